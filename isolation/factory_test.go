package isolation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/bundle"
)

func writeBundle(t *testing.T, m *bundle.Manifest, files map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.zip")
	require.NoError(t, bundle.WriteFile(path, m, files))
	return path
}

func libraryBundle(t *testing.T) string {
	t.Helper()
	return writeBundle(t, &bundle.Manifest{
		Format: bundle.FormatV1,
		Symbols: []bundle.SymbolDecl{
			{Name: "io.example.Util", Kind: bundle.KindLibrary, Source: "lib/util.bin"},
			{Name: "io.example.Marker", Kind: bundle.KindLibrary},
		},
	}, map[string][]byte{"lib/util.bin": []byte("util-bytes")})
}

func TestCreateScopeResolvesBundleSymbols(t *testing.T) {
	ctx := context.Background()
	factory, err := NewFactory(t.TempDir(), NewCapabilityRegistry())
	require.NoError(t, err)

	scope, err := factory.CreateScope(ctx, libraryBundle(t), Filter{})
	require.NoError(t, err)
	defer scope.Close()

	sym, err := scope.Resolve("io.example.Util")
	require.NoError(t, err)
	assert.Equal(t, bundle.KindLibrary, sym.Kind)
	require.FileExists(t, sym.Path)
	raw, err := os.ReadFile(sym.Path)
	require.NoError(t, err)
	assert.Equal(t, "util-bytes", string(raw))

	marker, err := scope.Resolve("io.example.Marker")
	require.NoError(t, err)
	assert.Empty(t, marker.Path)

	_, err = scope.Resolve("io.example.Nope")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "io.example.Nope", notFound.Name)
}

func TestCreateScopeFiltersPlatformCapabilities(t *testing.T) {
	ctx := context.Background()
	registry := NewCapabilityRegistry()
	require.NoError(t, registry.Register("platform.api.logger"))
	require.NoError(t, registry.Register("platform.internal.secrets"))

	factory, err := NewFactory(t.TempDir(), registry)
	require.NoError(t, err)

	scope, err := factory.CreateScope(ctx, libraryBundle(t), MustNewFilter("platform.api.*"))
	require.NoError(t, err)
	defer scope.Close()

	sym, err := scope.Resolve("platform.api.logger")
	require.NoError(t, err)
	assert.Equal(t, KindPlatform, sym.Kind)

	_, err = scope.Resolve("platform.internal.secrets")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestCreateScopeEmptyFilterExposesNothing(t *testing.T) {
	ctx := context.Background()
	registry := NewCapabilityRegistry()
	require.NoError(t, registry.Register("platform.api.logger"))

	factory, err := NewFactory(t.TempDir(), registry)
	require.NoError(t, err)

	scope, err := factory.CreateScope(ctx, libraryBundle(t), Filter{})
	require.NoError(t, err)
	defer scope.Close()

	_, err = scope.Resolve("platform.api.logger")
	require.Error(t, err)
}

func TestCreateScopeWithParentDelegate(t *testing.T) {
	ctx := context.Background()
	factory, err := NewFactory(t.TempDir(), NewCapabilityRegistry())
	require.NoError(t, err)

	parent, err := factory.CreateScope(ctx, libraryBundle(t), Filter{})
	require.NoError(t, err)
	defer parent.Close()

	childBundle := writeBundle(t, &bundle.Manifest{
		Format: bundle.FormatV1,
		Symbols: []bundle.SymbolDecl{
			{Name: "io.example.Child", Kind: bundle.KindLibrary},
		},
	}, nil)

	child, err := factory.CreateScope(ctx, childBundle, Filter{}, WithDelegate(parent))
	require.NoError(t, err)
	defer child.Close()

	// Own symbol wins, parent symbols are reachable through the delegate.
	_, err = child.Resolve("io.example.Child")
	require.NoError(t, err)
	sym, err := child.Resolve("io.example.Util")
	require.NoError(t, err)
	assert.Equal(t, bundle.KindLibrary, sym.Kind)
}

func TestScopeCloseRemovesUnpackedContent(t *testing.T) {
	ctx := context.Background()
	factory, err := NewFactory(t.TempDir(), NewCapabilityRegistry())
	require.NoError(t, err)

	scope, err := factory.CreateScope(ctx, libraryBundle(t), Filter{})
	require.NoError(t, err)
	require.DirExists(t, scope.Dir())

	require.NoError(t, scope.Close())
	_, err = os.Stat(scope.Dir())
	require.ErrorIs(t, err, os.ErrNotExist)

	// Close is idempotent; a second call must not fail on the missing dir.
	require.NoError(t, scope.Close())
}

func TestCreateScopeCleansUpOnFailure(t *testing.T) {
	ctx := context.Background()
	tmpRoot := t.TempDir()
	factory, err := NewFactory(tmpRoot, NewCapabilityRegistry())
	require.NoError(t, err)

	corrupt := filepath.Join(t.TempDir(), "corrupt.zip")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a zip"), 0o644))

	_, err = factory.CreateScope(ctx, corrupt, Filter{})
	require.Error(t, err)

	entries, err := os.ReadDir(tmpRoot)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed scope creation must not leave directories behind")
}

type fakeBoundary struct {
	symbols map[string]Symbol
	closed  bool
}

func (b *fakeBoundary) Resolve(name string) (Symbol, error) {
	if sym, ok := b.symbols[name]; ok {
		return sym, nil
	}
	return Symbol{}, &NotFoundError{Name: name}
}

func (b *fakeBoundary) Close() error {
	b.closed = true
	return nil
}

type fakeProvider struct {
	boundary *fakeBoundary
	ok       bool
	err      error
}

func (p *fakeProvider) TryCreateBoundary(string) (Boundary, bool, error) {
	if p.err != nil {
		return nil, false, p.err
	}
	if !p.ok {
		return nil, false, nil
	}
	return p.boundary, true, nil
}

func TestCreateScopeUsesSpecializedProvider(t *testing.T) {
	ctx := context.Background()
	boundary := &fakeBoundary{symbols: map[string]Symbol{
		"engine.runtime": {Name: "engine.runtime", Kind: KindPlatform},
	}}
	factory, err := NewFactory(t.TempDir(), NewCapabilityRegistry(),
		WithBoundaryProvider(&fakeProvider{boundary: boundary, ok: true}))
	require.NoError(t, err)

	scope, err := factory.CreateScope(ctx, libraryBundle(t), Filter{})
	require.NoError(t, err)

	_, err = scope.Resolve("engine.runtime")
	require.NoError(t, err)

	require.NoError(t, scope.Close())
	assert.True(t, boundary.closed, "closing the scope must release the provider boundary")
}

func TestCreateScopeFallsBackWhenProviderUnavailable(t *testing.T) {
	ctx := context.Background()
	registry := NewCapabilityRegistry()
	require.NoError(t, registry.Register("platform.api.logger"))

	factory, err := NewFactory(t.TempDir(), registry,
		WithBoundaryProvider(&fakeProvider{ok: false}),
		WithBoundaryProvider(&fakeProvider{err: errors.New("engine exploded")}))
	require.NoError(t, err)

	scope, err := factory.CreateScope(ctx, libraryBundle(t), MustNewFilter("platform.api.*"))
	require.NoError(t, err)
	defer scope.Close()

	_, err = scope.Resolve("platform.api.logger")
	require.NoError(t, err, "fallback to the filtered platform view must still work")
}
