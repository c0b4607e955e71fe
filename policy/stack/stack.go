// Package stack builds policy stacks from textual specifications such as
// "era+lru": every segment but the last names a shim, the last names a
// terminal policy, and the first segment becomes the outermost layer.
package stack

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/IvanBrykalov/policystack/internal/logger"
	"github.com/IvanBrykalov/policystack/policy"
)

// Delimiter separates stack segments.
const Delimiter = "+"

// IsStack reports whether spec names a multi-segment stack: it contains a
// delimiter that is not its final character. A trailing delimiter is the
// shim naming form ("era+") and does not make a stack.
func IsStack(spec string) bool {
	i := strings.Index(spec, Delimiter)
	return i >= 0 && i != len(spec)-1
}

// Description is the canonical identity of a stack.
type Description struct {
	Name     string         `json:"name" yaml:"name"`
	Version  policy.Version `json:"version" yaml:"version"`
	HintSize int            `json:"hint_size" yaml:"hint_size"`
}

// Segments splits spec into its segment names.
func Segments(spec string) ([]string, error) {
	if spec == "" {
		return nil, errors.Wrap(policy.ErrInvalidArgument, "empty policy spec")
	}
	if !IsStack(spec) {
		return []string{strings.TrimSuffix(spec, Delimiter)}, nil
	}
	names := strings.Split(strings.TrimSuffix(spec, Delimiter), Delimiter)
	for _, n := range names {
		if n == "" {
			return nil, errors.Wrapf(policy.ErrInvalidArgument, "empty segment in %q", spec)
		}
	}
	return names, nil
}

// Describe resolves spec against reg and returns the identity a built stack
// would report, without instantiating anything. Hintless shims are counted.
func Describe(reg *policy.Registry, spec string) (Description, error) {
	types, err := resolve(reg, spec)
	if err != nil {
		return Description{}, err
	}
	return describe(types), nil
}

// Build instantiates spec. A single segment is returned as is; several
// segments are chained (first segment outermost) and wrapped in a *Root.
//
// On failure every node created so far is destroyed and the first error is
// returned; no partially built stack escapes.
func Build(reg *policy.Registry, spec string, cacheSize policy.CBlock, originSize policy.OBlock, blockSize uint32) (policy.Policy, error) {
	types, err := resolve(reg, spec)
	if err != nil {
		return nil, err
	}

	built := make([]policy.Policy, 0, len(types))
	fail := func(err error) (policy.Policy, error) {
		for i := len(built) - 1; i >= 0; i-- {
			built[i].Destroy()
		}
		return nil, err
	}

	for i, t := range types {
		p, err := t.New(cacheSize, originSize, blockSize)
		if err != nil {
			return fail(errors.Wrapf(err, "create policy %q", t.Name))
		}
		if i < len(types)-1 {
			if _, ok := p.(policy.Layer); !ok {
				p.Destroy()
				return fail(errors.Wrapf(policy.ErrNotAShim, "segment %q", t.Name))
			}
		}
		built = append(built, p)
	}

	if len(built) == 1 {
		return built[0], nil
	}
	for i := 0; i < len(built)-1; i++ {
		built[i].(policy.Layer).SetChild(built[i+1])
	}

	d := describe(types)
	logger.Debug("policy stack built", "name", d.Name, "hint_size", d.HintSize, "cache_blocks", cacheSize)
	return &Root{top: built[0].(policy.Layer), desc: d}, nil
}

// Layers returns the chain under p from outermost to terminal. For a *Root
// the root itself is not included.
func Layers(p policy.Policy) []policy.Policy {
	if r, ok := p.(*Root); ok {
		if r.top == nil {
			return nil
		}
		p = r.top
	}
	var out []policy.Policy
	for p != nil {
		out = append(out, p)
		l, ok := p.(policy.Layer)
		if !ok {
			break
		}
		p = l.Child()
	}
	return out
}

// resolve looks up every segment and checks shim placement.
func resolve(reg *policy.Registry, spec string) ([]policy.Type, error) {
	names, err := Segments(spec)
	if err != nil {
		return nil, err
	}
	types := make([]policy.Type, 0, len(names))
	for i, n := range names {
		t, err := reg.Lookup(n)
		if err != nil {
			return nil, err
		}
		last := i == len(names)-1
		if !last && !t.Shim {
			return nil, errors.Wrapf(policy.ErrNotAShim, "segment %q in %q", n, spec)
		}
		if last && t.Shim {
			return nil, errors.Wrapf(policy.ErrInvalidArgument, "terminal segment %q is a shim", n)
		}
		types = append(types, t)
	}
	return types, nil
}

func describe(types []policy.Type) Description {
	var d Description
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.Name
		d.Version = d.Version.Add(t.Version)
		d.HintSize += t.HintSize
	}
	d.Name = strings.Join(names, Delimiter)
	return d
}
