package stack

import (
	"sync"

	"github.com/IvanBrykalov/policystack/policy"
	"github.com/IvanBrykalov/policystack/policy/era"
	"github.com/IvanBrykalov/policystack/policy/lru"
	"github.com/IvanBrykalov/policystack/policy/stats"
	"github.com/IvanBrykalov/policystack/policy/twoq"
)

var (
	defaultOnce sync.Once
	defaultReg  *policy.Registry
)

// DefaultRegistry returns the process-wide registry holding the built-in
// policies: the era and stats shims and the lru and 2q terminals.
func DefaultRegistry() *policy.Registry {
	defaultOnce.Do(func() {
		defaultReg = NewRegistry()
	})
	return defaultReg
}

// NewRegistry returns a fresh registry with the built-in policies.
func NewRegistry() *policy.Registry {
	r := policy.NewRegistry()
	r.MustRegister(era.Type(), stats.Type(), lru.Type(), twoq.Type())
	return r
}
