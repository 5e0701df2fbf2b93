// Package store defines the durable artifact store contract the repository
// builds on. The store is the single source of truth for artifact bytes and
// metadata and must serialize conflicting writes; everything above it is
// stateless.
package store

import (
	"context"
	"io"

	"github.com/loomworks/loom/artifact"
	"github.com/loomworks/loom/plugin"
)

// Meta is the metadata recorded for one artifact at add time. It is replaced
// wholesale on rewrite, never mutated in place.
type Meta struct {
	// Classes are the plugin classes discovered by inspection.
	Classes []plugin.Class `json:"classes,omitempty"`
	// Parents are the artifact ranges this artifact extends.
	Parents []artifact.Range `json:"parents,omitempty"`
}

// Detail is one stored artifact: its descriptor plus metadata.
type Detail struct {
	Descriptor artifact.Descriptor `json:"descriptor"`
	Meta       Meta                `json:"meta"`
}

// Store is the narrow read/write contract consumed by the artifact
// repository. Implementations must make Write a check-and-set: a coordinate
// is either created with its bytes and metadata in one consistent step, or
// the call fails and nothing becomes visible.
type Store interface {
	// Write persists the artifact bytes together with its metadata under the
	// given coordinate. It fails with AlreadyExistsError if the coordinate is
	// taken, and with WriteConflictError if a concurrent writer won the race
	// after this call started.
	Write(ctx context.Context, coordinate artifact.Coordinate, meta Meta, bundle io.Reader) (artifact.Descriptor, error)

	// Get returns the stored detail for the coordinate, or NotFoundError.
	Get(ctx context.Context, coordinate artifact.Coordinate) (Detail, error)

	// List returns all artifacts matching the range, sorted ascending by
	// descriptor. An empty result is not an error.
	List(ctx context.Context, r artifact.Range) ([]Detail, error)

	// Exists reports whether the coordinate is registered.
	Exists(ctx context.Context, coordinate artifact.Coordinate) (bool, error)

	// Delete removes the artifact's bytes and metadata. Deleting an absent
	// coordinate returns NotFoundError.
	Delete(ctx context.Context, coordinate artifact.Coordinate) error

	// All returns every stored artifact in the namespace, sorted ascending by
	// descriptor. An empty namespace selects all namespaces.
	All(ctx context.Context, namespace string) ([]Detail, error)

	// Clear removes all artifacts in the namespace. Administrative; used by
	// test and teardown paths only.
	Clear(ctx context.Context, namespace string) error
}
