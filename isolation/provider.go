package isolation

import "io"

// Boundary is a delegate resolver with resources of its own that must be
// released together with the scope that uses it.
type Boundary interface {
	Resolver
	io.Closer
}

// BoundaryProvider supplies a higher-fidelity boundary for a specialized
// execution context, e.g. a data-processing engine runtime bringing its own
// loader. Unavailability is an expected outcome, not an error: the factory
// falls back to the default filtered platform view and logs the attempt at
// debug severity only.
type BoundaryProvider interface {
	// TryCreateBoundary attempts to build a boundary over the unpacked
	// bundle content. ok is false when the provider cannot serve this
	// context; err is reserved for genuine provider failures, which the
	// factory also treats as fallback, not as scope failure.
	TryCreateBoundary(unpackedDir string) (b Boundary, ok bool, err error)
}
