package store

import (
	"errors"
	"fmt"

	"github.com/loomworks/loom/artifact"
)

// ErrUnavailable marks a transient store failure. Callers may retry with
// backoff; it must never be conflated with a missing coordinate.
var ErrUnavailable = errors.New("artifact store unavailable")

// NotFoundError reports that a coordinate is not registered. Permanent for
// the queried coordinate.
type NotFoundError struct {
	Coordinate artifact.Coordinate
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("artifact %s not found", e.Coordinate)
}

// AlreadyExistsError reports a coordinate collision on write. The existing
// artifact is never overwritten.
type AlreadyExistsError struct {
	Coordinate artifact.Coordinate
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("artifact %s already exists", e.Coordinate)
}

// WriteConflictError reports that a concurrent conflicting write won the
// race. The whole add may be retried with a fresh attempt by the caller; the
// store performs no internal retries.
type WriteConflictError struct {
	Coordinate artifact.Coordinate
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("conflicting concurrent write for artifact %s", e.Coordinate)
}
