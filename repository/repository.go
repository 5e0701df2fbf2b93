// Package repository is the façade of the artifact subsystem. It accepts
// uploaded bundles, orchestrates inspection inside isolation scopes,
// persists the results through the store, and answers plugin discovery and
// selection queries.
package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/errgroup"

	"github.com/loomworks/loom/artifact"
	"github.com/loomworks/loom/inspect"
	"github.com/loomworks/loom/isolation"
	"github.com/loomworks/loom/plugin"
	"github.com/loomworks/loom/store"
)

// ArtifactRepository manages artifacts and the metadata inspection derives
// from them. All methods are synchronous and safe for concurrent use; the
// store serializes conflicting writes.
type ArtifactRepository struct {
	store            store.Store
	factory          *isolation.Factory
	inspector        *inspect.Inspector
	inspectionFilter isolation.Filter
}

// Option configures an ArtifactRepository.
type Option func(*ArtifactRepository)

// WithInspectionFilter sets the capability filter applied to scopes built
// for inspection. The default exposes nothing beyond the bundle itself.
func WithInspectionFilter(f isolation.Filter) Option {
	return func(r *ArtifactRepository) {
		r.inspectionFilter = f
	}
}

// NewArtifactRepository wires the façade from its collaborators.
func NewArtifactRepository(st store.Store, factory *isolation.Factory, inspector *inspect.Inspector, opts ...Option) *ArtifactRepository {
	r := &ArtifactRepository{
		store:     st,
		factory:   factory,
		inspector: inspector,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddArtifact inspects the bundle at bundlePath and persists its bytes and
// discovered metadata under the coordinate. If parent ranges are declared,
// at least one must resolve to an existing artifact; the first resolving
// match (by range order, then artifact order) seeds the inspection scope so
// the bundle can reference parent-defined symbols. The isolation scope is
// closed on every exit path.
func (r *ArtifactRepository) AddArtifact(ctx context.Context, coordinate artifact.Coordinate, bundlePath string, parents []artifact.Range) (err error) {
	logger := slogcontext.FromCtx(ctx)

	parents = slices.Clone(parents)
	slices.SortFunc(parents, artifact.Range.Compare)

	scopeLocation := bundlePath
	if len(parents) > 0 {
		parentLocation, err := r.resolveParentLocation(ctx, parents)
		if err != nil {
			return err
		}
		scopeLocation = parentLocation
	}

	scope, err := r.factory.CreateScope(ctx, scopeLocation, r.inspectionFilter)
	if err != nil {
		return fmt.Errorf("failed to create isolation scope for %s: %w", coordinate, err)
	}
	defer func() {
		err = errors.Join(err, scope.Close())
	}()

	classes, err := r.inspector.Inspect(ctx, coordinate, bundlePath, scope)
	if err != nil {
		return err
	}

	f, err := os.Open(bundlePath)
	if err != nil {
		return fmt.Errorf("failed to open bundle %s: %w", bundlePath, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	if _, err := r.store.Write(ctx, coordinate, store.Meta{Classes: classes, Parents: parents}, f); err != nil {
		return err
	}

	logger.DebugContext(ctx, "added artifact",
		"artifact", coordinate.String(), "plugins", len(classes), "parents", len(parents))
	return nil
}

// resolveParentLocation queries all parent ranges and returns the storage
// location of the first resolving match. Queries run concurrently; the
// choice stays deterministic because ranges are sorted and store results are
// ordered by descriptor.
func (r *ArtifactRepository) resolveParentLocation(ctx context.Context, parents []artifact.Range) (string, error) {
	results := make([][]store.Detail, len(parents))
	g, gctx := errgroup.WithContext(ctx)
	for i, parentRange := range parents {
		i, parentRange := i, parentRange
		g.Go(func() error {
			details, err := r.store.List(gctx, parentRange)
			if err != nil {
				return fmt.Errorf("failed to query parent range %s: %w", parentRange, err)
			}
			results[i] = details
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	for _, details := range results {
		if len(details) > 0 {
			return details[0].Descriptor.Location, nil
		}
	}
	return "", &ParentNotFoundError{Ranges: parents}
}

// GetPlugins returns every plugin visible to the artifact: its own classes
// plus, transitively through its stored parent ranges, the classes of every
// artifact it extends. Entries come back sorted ascending by descriptor, and
// each artifact's class list is unique per (type, name).
func (r *ArtifactRepository) GetPlugins(ctx context.Context, coordinate artifact.Coordinate) ([]plugin.Entry, error) {
	root, err := r.store.Get(ctx, coordinate)
	if err != nil {
		return nil, err
	}

	var entries []plugin.Entry
	visited := map[string]struct{}{}
	queue := []store.Detail{root}
	for len(queue) > 0 {
		detail := queue[0]
		queue = queue[1:]

		key := detail.Descriptor.Coordinate.String()
		if _, ok := visited[key]; ok {
			continue
		}
		visited[key] = struct{}{}

		entries = append(entries, plugin.Entry{
			Artifact: detail.Descriptor,
			Classes:  uniqueByKey(detail.Meta.Classes),
		})

		parents := slices.Clone(detail.Meta.Parents)
		slices.SortFunc(parents, artifact.Range.Compare)
		for _, parentRange := range parents {
			details, err := r.store.List(ctx, parentRange)
			if err != nil {
				return nil, fmt.Errorf("failed to query parent range %s: %w", parentRange, err)
			}
			queue = append(queue, details...)
		}
	}

	slices.SortFunc(entries, func(a, b plugin.Entry) int {
		return a.Artifact.Compare(b.Artifact)
	})
	return entries, nil
}

// uniqueByKey keeps the first class per (type, name). Inspection rejects
// duplicates at add time, so this only guards against older stores.
func uniqueByKey(classes []plugin.Class) []plugin.Class {
	seen := make(map[string]struct{}, len(classes))
	unique := make([]plugin.Class, 0, len(classes))
	for _, c := range classes {
		if _, ok := seen[c.Key()]; ok {
			continue
		}
		seen[c.Key()] = struct{}{}
		unique = append(unique, c)
	}
	return unique
}

// FindPlugin gathers all candidates visible to the artifact that match the
// capability type and name exactly and delegates the tie-break to the given
// selector. An empty candidate set fails with PluginNotFoundError.
func (r *ArtifactRepository) FindPlugin(ctx context.Context, coordinate artifact.Coordinate, capabilityType, capabilityName string, selector plugin.Selector) (plugin.Match, error) {
	entries, err := r.GetPlugins(ctx, coordinate)
	if err != nil {
		return plugin.Match{}, err
	}

	candidates := make([]plugin.Entry, 0, len(entries))
	for _, entry := range entries {
		var matching []plugin.Class
		for _, class := range entry.Classes {
			if class.Type == capabilityType && class.Name == capabilityName {
				matching = append(matching, class)
			}
		}
		if len(matching) > 0 {
			candidates = append(candidates, plugin.Entry{Artifact: entry.Artifact, Classes: matching})
		}
	}
	if len(candidates) == 0 {
		return plugin.Match{}, &PluginNotFoundError{
			Coordinate:     coordinate,
			CapabilityType: capabilityType,
			CapabilityName: capabilityName,
		}
	}
	return selector.Select(candidates)
}

// GetArtifact returns the stored descriptor and metadata for a coordinate.
func (r *ArtifactRepository) GetArtifact(ctx context.Context, coordinate artifact.Coordinate) (store.Detail, error) {
	return r.store.Get(ctx, coordinate)
}

// ScopeFor opens a short-lived isolation scope over the stored artifact's
// bytes, for callers instantiating entry points outside the add flow. The
// caller owns the scope and must close it.
func (r *ArtifactRepository) ScopeFor(ctx context.Context, coordinate artifact.Coordinate, filter isolation.Filter, opts ...isolation.ScopeOption) (*isolation.Scope, error) {
	detail, err := r.store.Get(ctx, coordinate)
	if err != nil {
		return nil, err
	}
	return r.factory.CreateScope(ctx, detail.Descriptor.Location, filter, opts...)
}

// DeleteArtifact removes a stored artifact. Deletion is blocked while any
// other stored artifact declares a parent range matching the coordinate, so
// the extension relation never dangles.
func (r *ArtifactRepository) DeleteArtifact(ctx context.Context, coordinate artifact.Coordinate) error {
	if _, err := r.store.Get(ctx, coordinate); err != nil {
		return err
	}

	details, err := r.store.All(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to enumerate artifacts: %w", err)
	}
	var dependents []artifact.Coordinate
	for _, detail := range details {
		if detail.Descriptor.Coordinate.Equal(coordinate) {
			continue
		}
		for _, parentRange := range detail.Meta.Parents {
			if parentRange.Matches(coordinate) {
				dependents = append(dependents, detail.Descriptor.Coordinate)
				break
			}
		}
	}
	if len(dependents) > 0 {
		return &DependencyError{Coordinate: coordinate, Dependents: dependents}
	}
	return r.store.Delete(ctx, coordinate)
}

// Clear removes all artifacts in the namespace. Administrative; intended for
// test and teardown paths only.
func (r *ArtifactRepository) Clear(ctx context.Context, namespace string) error {
	return r.store.Clear(ctx, namespace)
}
