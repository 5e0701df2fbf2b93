package isolation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/loomworks/loom/bundle"
)

// Factory creates isolation scopes for artifact bundles. Every scope gets a
// freshly allocated temporary directory under the factory's root; directories
// are never reused or shared between scopes.
type Factory struct {
	tmpRoot   string
	platform  *CapabilityRegistry
	providers []BoundaryProvider
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithBoundaryProvider registers a specialized boundary provider. Providers
// are consulted in registration order before the default filtered platform
// view is used.
func WithBoundaryProvider(p BoundaryProvider) FactoryOption {
	return func(f *Factory) {
		f.providers = append(f.providers, p)
	}
}

// NewFactory builds a scope factory rooted at tmpRoot. The platform registry
// supplies the capabilities scopes may see through their filter.
func NewFactory(tmpRoot string, platform *CapabilityRegistry, opts ...FactoryOption) (*Factory, error) {
	tmpRoot, err := filepath.Abs(tmpRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scope root: %w", err)
	}
	if err := os.MkdirAll(tmpRoot, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scope root %s: %w", tmpRoot, err)
	}
	f := &Factory{tmpRoot: tmpRoot, platform: platform}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// ScopeOption configures one CreateScope call.
type ScopeOption func(*scopeOptions)

type scopeOptions struct {
	delegate Resolver
}

// WithDelegate chains the new scope to the given resolver (typically an open
// parent scope) instead of the filtered platform view. The delegate's
// lifetime stays with its own creator; closing the child does not touch it.
func WithDelegate(r Resolver) ScopeOption {
	return func(o *scopeOptions) {
		o.delegate = r
	}
}

// CreateScope unpacks the bundle at location into a private temporary
// directory and wires up the lookup chain: bundle symbols first, then either
// the configured delegate, a specialized provider boundary, or the filtered
// platform view. The returned scope must be closed by the caller on every
// exit path.
func (f *Factory) CreateScope(ctx context.Context, location string, filter Filter, opts ...ScopeOption) (_ *Scope, err error) {
	logger := slogcontext.FromCtx(ctx)

	var options scopeOptions
	for _, opt := range opts {
		opt(&options)
	}

	dir, err := os.MkdirTemp(f.tmpRoot, "scope-")
	if err != nil {
		return nil, fmt.Errorf("failed to allocate scope directory: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()

	if err := bundle.Unpack(location, dir); err != nil {
		return nil, fmt.Errorf("failed to unpack bundle %s: %w", location, err)
	}

	manifestRaw, err := os.ReadFile(filepath.Join(dir, bundle.ManifestFileName))
	if err != nil {
		return nil, fmt.Errorf("bundle %s has no readable manifest: %w", location, err)
	}
	manifest, err := bundle.ParseManifest(manifestRaw)
	if err != nil {
		return nil, fmt.Errorf("bundle %s has an invalid manifest: %w", location, err)
	}

	symbols := make(map[string]Symbol, len(manifest.Symbols))
	for _, decl := range manifest.Symbols {
		sym := Symbol{Name: decl.Name, Kind: decl.Kind}
		if decl.Source != "" {
			sym.Path = filepath.Join(dir, filepath.FromSlash(decl.Source))
		}
		symbols[decl.Name] = sym
	}

	scope := &Scope{
		dir:     dir,
		symbols: symbols,
		logger:  logger,
	}

	if options.delegate != nil {
		scope.delegate = options.delegate
		return scope, nil
	}

	for _, provider := range f.providers {
		boundary, ok, err := provider.TryCreateBoundary(dir)
		if err != nil {
			logger.DebugContext(ctx, "specialized boundary provider failed, falling back", "dir", dir, "err", err)
			continue
		}
		if !ok {
			logger.DebugContext(ctx, "specialized boundary provider unavailable", "dir", dir)
			continue
		}
		scope.delegate = boundary
		scope.boundary = boundary
		return scope, nil
	}

	scope.delegate = &filteredView{registry: f.platform, filter: filter}
	return scope, nil
}
