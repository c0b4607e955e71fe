package metastore

import (
	"sort"
	"sync"
)

// Memory is an in-process Store. Safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	header *Header
	ms     []Mapping
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory { return &Memory{} }

func (s *Memory) Replace(h Header, ms []Mapping) error {
	cp := make([]Mapping, len(ms))
	for i, m := range ms {
		m.Hint = append([]byte(nil), m.Hint...)
		cp[i] = m
	}
	sort.Slice(cp, func(i, j int) bool { return cp[i].CBlock < cp[j].CBlock })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.header = &h
	s.ms = cp
	return nil
}

func (s *Memory) Load() (Header, []Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.header == nil {
		return Header{}, nil, ErrNotFound
	}
	out := make([]Mapping, len(s.ms))
	for i, m := range s.ms {
		m.Hint = append([]byte(nil), m.Hint...)
		out[i] = m
	}
	return *s.header, out, nil
}

func (s *Memory) Close() error { return nil }

var _ Store = (*Memory)(nil)
