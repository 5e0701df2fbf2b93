// Package isolation builds the code-loading boundary around one artifact:
// a freshly unpacked copy of the bundle plus a restricted view of platform
// capabilities. A scope is owned by exactly one logical operation and must
// be closed by it on every exit path.
package isolation

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Symbol is one resolvable unit inside a scope: either a symbol exported by
// the unpacked bundle or a platform capability exposed through the filter.
type Symbol struct {
	Name string
	// Kind is the bundle symbol kind (plugin, library, application) or
	// KindPlatform for platform capabilities.
	Kind string
	// Path is the absolute path of the symbol's backing content inside the
	// unpacked bundle. Empty for platform capabilities.
	Path string
}

// KindPlatform marks symbols exposed by the platform rather than a bundle.
const KindPlatform = "platform"

// NotFoundError reports that a name resolved to nothing in the scope.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("symbol %q not found in scope", e.Name)
}

// Resolver resolves exported symbol names. Both scopes and platform
// capability views implement it, which is what lets a child scope delegate
// to its parent without a live inheritance graph.
type Resolver interface {
	Resolve(name string) (Symbol, error)
}

// Scope is a live, closeable isolation boundary. Lookup order is fixed:
// symbols of the unpacked bundle first, then the delegate resolver (a parent
// scope or a filtered platform view). The scope is not meant to be shared
// across operations; one creator, one closer.
type Scope struct {
	dir      string
	symbols  map[string]Symbol
	delegate Resolver

	closeOnce sync.Once
	boundary  Boundary // non-nil when a specialized provider supplied the delegate
	logger    *slog.Logger
}

// Dir returns the private temporary directory holding the unpacked bundle.
// It is removed on Close.
func (s *Scope) Dir() string {
	return s.dir
}

// Resolve looks the name up in the bundle's exported symbols first and falls
// back to the delegate resolver.
func (s *Scope) Resolve(name string) (Symbol, error) {
	if sym, ok := s.symbols[name]; ok {
		return sym, nil
	}
	if s.delegate != nil {
		return s.delegate.Resolve(name)
	}
	return Symbol{}, &NotFoundError{Name: name}
}

// Close releases the boundary and removes the unpacked content. It is
// idempotent; repeated calls are no-ops. Cleanup failures are downgraded to
// warnings because the boundary is considered released either way.
func (s *Scope) Close() error {
	s.closeOnce.Do(func() {
		if s.boundary != nil {
			if err := s.boundary.Close(); err != nil {
				s.logger.Warn("failed to release specialized boundary", "dir", s.dir, "err", err)
			}
		}
		if err := os.RemoveAll(s.dir); err != nil {
			s.logger.Warn("failed to delete unpacked bundle directory", "dir", s.dir, "err", err)
		}
	})
	return nil
}
