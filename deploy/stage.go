// Package deploy implements the pipeline stage that turns a stored artifact
// into a deployable application: it instantiates the artifact's application
// entry point inside a fresh isolation scope and emits the resulting
// specification. It is the principal consumer of the artifact repository.
package deploy

import (
	"context"
	"fmt"
	"os"
	"time"

	slogcontext "github.com/veqryn/slog-context"
	"sigs.k8s.io/yaml"

	"github.com/loomworks/loom/artifact"
	"github.com/loomworks/loom/bundle"
	"github.com/loomworks/loom/isolation"
	"github.com/loomworks/loom/repository"
)

// DefaultConfigureTimeout bounds one entry point instantiation. An attempt
// that runs past it is treated as failed, not retried.
const DefaultConfigureTimeout = 120 * time.Second

// AppSpec is the application specification an entry point produces when
// configured. It is carried as YAML under the entry point symbol's source
// path inside the bundle.
type AppSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Version is the application's own version, independent of the artifact
	// version it was built from.
	Version string `json:"version,omitempty"`
}

// DeploymentInfo is the input of the stage: which stored artifact to deploy
// and which of its application symbols to configure.
type DeploymentInfo struct {
	Artifact   artifact.Coordinate
	Entrypoint string
}

// Deployable is the output of the stage, forwarded to the next pipeline
// step.
type Deployable struct {
	Artifact artifact.Descriptor
	Spec     AppSpec
}

// ConfiguratorStage instantiates application entry points from stored
// artifacts. Every Process call opens its own isolation scope and closes it
// when the attempt finishes, even when the caller abandons the attempt at
// the timeout boundary.
type ConfiguratorStage struct {
	repo    *repository.ArtifactRepository
	filter  isolation.Filter
	timeout time.Duration
}

// StageOption configures a ConfiguratorStage.
type StageOption func(*ConfiguratorStage)

// WithTimeout overrides the wall-clock bound on entry point instantiation.
func WithTimeout(d time.Duration) StageOption {
	return func(s *ConfiguratorStage) {
		s.timeout = d
	}
}

// WithExecutionFilter sets the capability filter for the execution scopes
// the stage opens.
func WithExecutionFilter(f isolation.Filter) StageOption {
	return func(s *ConfiguratorStage) {
		s.filter = f
	}
}

// NewConfiguratorStage builds the stage on top of the artifact repository.
func NewConfiguratorStage(repo *repository.ArtifactRepository, opts ...StageOption) *ConfiguratorStage {
	s := &ConfiguratorStage{
		repo:    repo,
		timeout: DefaultConfigureTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type configureResult struct {
	spec AppSpec
	err  error
}

// Process configures the artifact's entry point and returns the deployable.
// The instantiation runs under the stage timeout; on expiry the attempt is
// abandoned and fails, while the scope opened for it is still cleaned up by
// the instantiating goroutine.
func (s *ConfiguratorStage) Process(ctx context.Context, info DeploymentInfo) (Deployable, error) {
	logger := slogcontext.FromCtx(ctx)

	detail, err := s.repo.GetArtifact(ctx, info.Artifact)
	if err != nil {
		return Deployable{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results := make(chan configureResult, 1)
	go func() {
		spec, err := s.configure(ctx, info)
		results <- configureResult{spec: spec, err: err}
	}()

	select {
	case res := <-results:
		if res.err != nil {
			return Deployable{}, res.err
		}
		logger.DebugContext(ctx, "configured application",
			"artifact", info.Artifact.String(), "application", res.spec.Name)
		return Deployable{Artifact: detail.Descriptor, Spec: res.spec}, nil
	case <-ctx.Done():
		return Deployable{}, fmt.Errorf("configuring entry point %s of %s: %w",
			info.Entrypoint, info.Artifact, ctx.Err())
	}
}

// configure opens the scope, resolves the entry point and loads its
// specification. The scope is closed here, unconditionally, so abandonment
// by Process cannot leak the unpacked directory.
func (s *ConfiguratorStage) configure(ctx context.Context, info DeploymentInfo) (_ AppSpec, err error) {
	scope, err := s.repo.ScopeFor(ctx, info.Artifact, s.filter)
	if err != nil {
		return AppSpec{}, err
	}
	defer func() {
		if cerr := scope.Close(); cerr != nil {
			err = fmt.Errorf("failed to close scope: %w", cerr)
		}
	}()

	sym, err := scope.Resolve(info.Entrypoint)
	if err != nil {
		return AppSpec{}, fmt.Errorf("entry point %q not found in artifact %s: %w", info.Entrypoint, info.Artifact, err)
	}
	if sym.Kind != bundle.KindApplication {
		return AppSpec{}, fmt.Errorf("symbol %q in artifact %s is a %s, not an application", info.Entrypoint, info.Artifact, sym.Kind)
	}
	if sym.Path == "" {
		return AppSpec{}, fmt.Errorf("application symbol %q in artifact %s declares no source", info.Entrypoint, info.Artifact)
	}

	raw, err := os.ReadFile(sym.Path)
	if err != nil {
		return AppSpec{}, fmt.Errorf("failed to read application specification: %w", err)
	}
	var spec AppSpec
	if err := yaml.UnmarshalStrict(raw, &spec); err != nil {
		return AppSpec{}, fmt.Errorf("invalid application specification for %q: %w", info.Entrypoint, err)
	}
	if spec.Name == "" {
		return AppSpec{}, fmt.Errorf("application specification for %q has no name", info.Entrypoint)
	}
	return spec, nil
}
