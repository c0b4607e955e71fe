package policy

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Registry maps policy names to their Type. It is built once at startup and
// read-only afterwards except for explicit Register calls.
// Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Type
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Type)}
}

// Register adds t. Names must be unique and must not contain the stack
// delimiter.
func (r *Registry) Register(t Type) error {
	if t.Name == "" || strings.Contains(t.Name, "+") {
		return errors.Wrapf(ErrInvalidArgument, "policy name %q", t.Name)
	}
	if t.New == nil {
		return errors.Wrapf(ErrInvalidArgument, "policy %q has no constructor", t.Name)
	}
	if t.HintSize < 0 {
		return errors.Wrapf(ErrInvalidArgument, "policy %q hint size %d", t.Name, t.HintSize)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.types[t.Name]; dup {
		return errors.Wrapf(ErrInvalidArgument, "policy %q already registered", t.Name)
	}
	r.types[t.Name] = t
	return nil
}

// MustRegister is Register that panics on error; meant for init-time wiring.
func (r *Registry) MustRegister(types ...Type) {
	for _, t := range types {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

// Lookup resolves name. A trailing "+" (the shim naming form) is ignored.
func (r *Registry) Lookup(name string) (Type, error) {
	name = strings.TrimSuffix(name, "+")

	r.mu.RLock()
	t, ok := r.types[name]
	r.mu.RUnlock()
	if !ok {
		return Type{}, errors.Wrapf(ErrInvalidArgument, "unknown policy %q", name)
	}
	return t, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for n := range r.types {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
