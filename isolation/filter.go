package isolation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gobwas/glob"
)

// Filter selects which platform capabilities a scope may resolve. The filter
// exists so a bundle cannot incidentally depend on platform-internal symbols
// that were never meant for exposure; an empty filter exposes nothing.
type Filter struct {
	patterns []string
	globs    []glob.Glob
}

// NewFilter compiles the given glob patterns into a capability filter.
func NewFilter(patterns ...string) (Filter, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return Filter{}, fmt.Errorf("failed to compile capability pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return Filter{patterns: patterns, globs: globs}, nil
}

// MustNewFilter is NewFilter that panics on invalid patterns. Intended for
// statically known filters.
func MustNewFilter(patterns ...string) Filter {
	f, err := NewFilter(patterns...)
	if err != nil {
		panic(err)
	}
	return f
}

// Allows reports whether the capability name passes the filter.
func (f Filter) Allows(name string) bool {
	for _, g := range f.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

func (f Filter) String() string {
	return fmt.Sprintf("filter%v", f.patterns)
}

// CapabilityRegistry is the set of symbols the platform exposes to bundles.
// Registration happens at platform startup; scopes only read from it through
// a filtered view.
type CapabilityRegistry struct {
	mu      sync.RWMutex
	symbols map[string]Symbol
}

func NewCapabilityRegistry() *CapabilityRegistry {
	return &CapabilityRegistry{symbols: make(map[string]Symbol)}
}

// Register exposes a platform capability under its symbol name.
func (r *CapabilityRegistry) Register(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.symbols[name]; ok {
		return fmt.Errorf("platform capability %q already registered", name)
	}
	r.symbols[name] = Symbol{Name: name, Kind: KindPlatform}
	return nil
}

// Names returns the registered capability names in sorted order.
func (r *CapabilityRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.symbols))
	for name := range r.symbols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *CapabilityRegistry) resolve(name string) (Symbol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sym, ok := r.symbols[name]
	return sym, ok
}

// filteredView is the default delegate resolver: the platform capability
// registry narrowed by a filter.
type filteredView struct {
	registry *CapabilityRegistry
	filter   Filter
}

func (v *filteredView) Resolve(name string) (Symbol, error) {
	if !v.filter.Allows(name) {
		return Symbol{}, &NotFoundError{Name: name}
	}
	sym, ok := v.registry.resolve(name)
	if !ok {
		return Symbol{}, &NotFoundError{Name: name}
	}
	return sym, nil
}
