package deploy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/artifact"
	"github.com/loomworks/loom/bundle"
	"github.com/loomworks/loom/inspect"
	"github.com/loomworks/loom/isolation"
	"github.com/loomworks/loom/repository"
	"github.com/loomworks/loom/store"
	"github.com/loomworks/loom/store/filesystem"
)

type fixture struct {
	repo      *repository.ArtifactRepository
	scopeRoot string
	provider  *gatedProvider
}

// gatedProvider blocks boundary creation on a channel once armed, so a test
// can hold an instantiation attempt open past the stage timeout.
type gatedProvider struct {
	gate chan struct{}
}

func (p *gatedProvider) TryCreateBoundary(string) (isolation.Boundary, bool, error) {
	if p.gate != nil {
		<-p.gate
	}
	return nil, false, nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)

	scopeRoot := t.TempDir()
	provider := &gatedProvider{}
	factory, err := isolation.NewFactory(scopeRoot, isolation.NewCapabilityRegistry(),
		isolation.WithBoundaryProvider(provider))
	require.NoError(t, err)

	inspector := inspect.NewInspector("source", "sink")
	return &fixture{
		repo:      repository.NewArtifactRepository(st, factory, inspector),
		scopeRoot: scopeRoot,
		provider:  provider,
	}
}

func (f *fixture) addArtifact(t *testing.T, m *bundle.Manifest, files map[string][]byte) artifact.Coordinate {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.zip")
	require.NoError(t, bundle.WriteFile(path, m, files))
	coord := artifact.MustNewCoordinate("default", "my-app", "1.0.0")
	require.NoError(t, f.repo.AddArtifact(context.Background(), coord, path, nil))
	return coord
}

const validSpec = `name: orders-etl
description: Moves orders into the warehouse.
version: 0.3.0
`

func appManifest(source string) *bundle.Manifest {
	return &bundle.Manifest{
		Format: bundle.FormatV1,
		Symbols: []bundle.SymbolDecl{
			{Name: "io.example.OrdersApp", Kind: bundle.KindApplication, Source: source},
		},
	}
}

func TestProcessConfiguresApplication(t *testing.T) {
	f := newFixture(t)
	coord := f.addArtifact(t, appManifest("app/spec.yaml"),
		map[string][]byte{"app/spec.yaml": []byte(validSpec)})

	stage := NewConfiguratorStage(f.repo)
	deployable, err := stage.Process(context.Background(), DeploymentInfo{
		Artifact:   coord,
		Entrypoint: "io.example.OrdersApp",
	})
	require.NoError(t, err)
	assert.True(t, deployable.Artifact.Coordinate.Equal(coord))
	assert.Equal(t, "orders-etl", deployable.Spec.Name)
	assert.Equal(t, "0.3.0", deployable.Spec.Version)

	entries, err := os.ReadDir(f.scopeRoot)
	require.NoError(t, err)
	assert.Empty(t, entries, "the execution scope must be closed after configuring")
}

func TestProcessUnknownArtifact(t *testing.T) {
	f := newFixture(t)

	stage := NewConfiguratorStage(f.repo)
	_, err := stage.Process(context.Background(), DeploymentInfo{
		Artifact:   artifact.MustNewCoordinate("default", "missing", "1.0.0"),
		Entrypoint: "io.example.OrdersApp",
	})
	var notFound *store.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestProcessEntrypointErrors(t *testing.T) {
	tests := []struct {
		name       string
		manifest   *bundle.Manifest
		files      map[string][]byte
		entrypoint string
		wantErr    string
	}{
		{
			name:       "unknown symbol",
			manifest:   appManifest("app/spec.yaml"),
			files:      map[string][]byte{"app/spec.yaml": []byte(validSpec)},
			entrypoint: "io.example.Nope",
			wantErr:    "not found",
		},
		{
			name: "symbol is not an application",
			manifest: &bundle.Manifest{
				Format: bundle.FormatV1,
				Symbols: []bundle.SymbolDecl{
					{
						Name:   "io.example.MySQLSource",
						Kind:   bundle.KindPlugin,
						Plugin: &bundle.PluginDecl{Type: "source", Name: "mysql"},
					},
				},
			},
			entrypoint: "io.example.MySQLSource",
			wantErr:    "not an application",
		},
		{
			name:       "application without source",
			manifest:   appManifest(""),
			entrypoint: "io.example.OrdersApp",
			wantErr:    "declares no source",
		},
		{
			name:       "malformed specification",
			manifest:   appManifest("app/spec.yaml"),
			files:      map[string][]byte{"app/spec.yaml": []byte("name: [")},
			entrypoint: "io.example.OrdersApp",
			wantErr:    "invalid application specification",
		},
		{
			name:       "specification without name",
			manifest:   appManifest("app/spec.yaml"),
			files:      map[string][]byte{"app/spec.yaml": []byte("description: nameless\n")},
			entrypoint: "io.example.OrdersApp",
			wantErr:    "has no name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			coord := f.addArtifact(t, tt.manifest, tt.files)

			stage := NewConfiguratorStage(f.repo)
			_, err := stage.Process(context.Background(), DeploymentInfo{
				Artifact:   coord,
				Entrypoint: tt.entrypoint,
			})
			require.ErrorContains(t, err, tt.wantErr)

			entries, err := os.ReadDir(f.scopeRoot)
			require.NoError(t, err)
			assert.Empty(t, entries, "failed attempts must not leak scopes")
		})
	}
}

func TestProcessTimeoutAbandonsAttempt(t *testing.T) {
	f := newFixture(t)
	coord := f.addArtifact(t, appManifest("app/spec.yaml"),
		map[string][]byte{"app/spec.yaml": []byte(validSpec)})

	// Arm the gate after the add so only the execution scope blocks on it.
	gate := make(chan struct{})
	f.provider.gate = gate

	stage := NewConfiguratorStage(f.repo, WithTimeout(50*time.Millisecond))
	_, err := stage.Process(context.Background(), DeploymentInfo{
		Artifact:   coord,
		Entrypoint: "io.example.OrdersApp",
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned goroutine still owns its scope; once unblocked it must
	// finish the attempt and clean up after itself.
	close(gate)
	assert.Eventually(t, func() bool {
		entries, err := os.ReadDir(f.scopeRoot)
		return err == nil && len(entries) == 0
	}, 5*time.Second, 10*time.Millisecond, "the abandoned attempt must still clean up its scope")
}
