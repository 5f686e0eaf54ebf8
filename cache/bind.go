package cache

import (
	"sort"

	"github.com/agentuity/go-datacache/frame"
	"github.com/cockroachdb/errors"
)

// ErrBinding is returned when call arguments do not fit the declared
// parameters.
var ErrBinding = errors.New("cannot bind call arguments")

// Param declares one fetcher parameter.
type Param struct {
	Name     string
	Default  any
	Required bool
}

// Args are the arguments of one call, forwarded to the fetcher once bound.
type Args struct {
	Positional []any
	Named      map[string]any
}

// Positional returns Args holding values in order.
func Positional(values ...any) Args {
	return Args{Positional: values}
}

// Named returns Args holding a single named value.
func Named(name string, value any) Args {
	return Args{}.With(name, value)
}

// With returns a copy of a with name set to value.
func (a Args) With(name string, value any) Args {
	named := make(map[string]any, len(a.Named)+1)
	for k, v := range a.Named {
		named[k] = v
	}
	named[name] = value
	return Args{Positional: a.Positional, Named: named}
}

// Bound is the complete, ordered argument mapping of one call.
type Bound struct {
	names  []string
	values map[string]any
}

// Names returns the argument names in parameter order.
func (b Bound) Names() []string {
	return append([]string(nil), b.names...)
}

// Len returns the number of bound arguments.
func (b Bound) Len() int {
	return len(b.names)
}

// Get returns the value bound to name.
func (b Bound) Get(name string) (any, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Value returns the value bound to name or nil.
func (b Bound) Value(name string) any {
	return b.values[name]
}

// String returns the value bound to name formatted as text.
func (b Bound) String(name string) string {
	return frame.Format(b.values[name])
}

// Map returns a copy of the mapping.
func (b Bound) Map() map[string]any {
	out := make(map[string]any, len(b.values))
	for k, v := range b.values {
		out[k] = v
	}
	return out
}

// Strings returns every value formatted as text.
func (b Bound) Strings() map[string]string {
	out := make(map[string]string, len(b.values))
	for k, v := range b.values {
		out[k] = frame.Format(v)
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// bind maps args onto params: positional values fill slots in order, named
// values fill the rest, unfilled slots take their defaults.
func bind(params []Param, args Args) (Bound, error) {
	if len(params) == 0 {
		if len(args.Positional) > 0 {
			return Bound{}, errors.Wrapf(ErrBinding, "%d positional arguments given but no parameters declared", len(args.Positional))
		}
		for name := range args.Named {
			if reserved(name) {
				return Bound{}, errors.Wrapf(ErrBinding, "argument name %q is reserved", name)
			}
		}
		return Bound{names: sortedKeys(args.Named), values: Bound{values: args.Named}.Map()}, nil
	}
	if len(args.Positional) > len(params) {
		return Bound{}, errors.Wrapf(ErrBinding, "takes %d arguments but %d were given", len(params), len(args.Positional))
	}
	values := make(map[string]any, len(params))
	declared := make(map[string]bool, len(params))
	for _, p := range params {
		declared[p.Name] = true
	}
	for i, v := range args.Positional {
		values[params[i].Name] = v
	}
	for _, name := range sortedKeys(args.Named) {
		if !declared[name] {
			return Bound{}, errors.Wrapf(ErrBinding, "unexpected argument %q", name)
		}
		if _, ok := values[name]; ok {
			return Bound{}, errors.Wrapf(ErrBinding, "multiple values for argument %q", name)
		}
		values[name] = args.Named[name]
	}
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
		if _, ok := values[p.Name]; ok {
			continue
		}
		if p.Required {
			return Bound{}, errors.Wrapf(ErrBinding, "missing required argument %q", p.Name)
		}
		values[p.Name] = p.Default
	}
	return Bound{names: names, values: values}, nil
}
