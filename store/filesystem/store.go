// Package filesystem provides the store.Store implementation backed by a
// local directory: a JSON index describing every artifact plus a
// content-addressed blob directory holding the bundle bytes.
package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/loomworks/loom/artifact"
	"github.com/loomworks/loom/store"
)

const (
	indexFileName      = "index.json"
	blobsDirectoryName = "blobs"
)

// Store is a filesystem-backed artifact store. The on-disk index is the
// source of truth; it is re-read on every operation and replaced atomically
// on every mutation, so concurrent stores over the same directory observe a
// consistent linearized history.
type Store struct {
	root string

	// mu serializes index mutations within this process. Cross-process
	// conflicts are caught by the check-and-set against the re-read index.
	mu sync.Mutex
}

var _ store.Store = (*Store)(nil)

// NewStore opens (or initializes) a store rooted at the given directory.
func NewStore(root string) (*Store, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, blobsDirectoryName), 0o755); err != nil {
		return nil, fmt.Errorf("failed to initialize store at %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

type indexEntry struct {
	Descriptor artifact.Descriptor `json:"descriptor"`
	Meta       store.Meta          `json:"meta"`
	Digest     digest.Digest       `json:"digest"`
}

type index struct {
	Artifacts []indexEntry `json:"artifacts"`
}

func (s *Store) loadIndex() (*index, error) {
	raw, err := os.ReadFile(filepath.Join(s.root, indexFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return &index{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact index: %w", errors.Join(store.ErrUnavailable, err))
	}
	var idx index
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("failed to decode artifact index: %w", errors.Join(store.ErrUnavailable, err))
	}
	return &idx, nil
}

func (s *Store) saveIndex(idx *index) error {
	slices.SortFunc(idx.Artifacts, func(a, b indexEntry) int {
		return a.Descriptor.Compare(b.Descriptor)
	})
	raw, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode artifact index: %w", err)
	}
	tmp, err := os.CreateTemp(s.root, indexFileName+".*")
	if err != nil {
		return fmt.Errorf("failed to stage artifact index: %w", errors.Join(store.ErrUnavailable, err))
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write artifact index: %w", errors.Join(store.ErrUnavailable, err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close staged index: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.root, indexFileName)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace artifact index: %w", errors.Join(store.ErrUnavailable, err))
	}
	return nil
}

func (idx *index) find(c artifact.Coordinate) (indexEntry, bool) {
	for _, e := range idx.Artifacts {
		if e.Descriptor.Coordinate.Equal(c) {
			return e, true
		}
	}
	return indexEntry{}, false
}

func (idx *index) references(d digest.Digest) int {
	n := 0
	for _, e := range idx.Artifacts {
		if e.Digest == d {
			n++
		}
	}
	return n
}

// Write persists the bundle bytes and metadata under the coordinate. The
// blob is staged and content-addressed before the index is touched, so a
// failed write never leaves a coordinate registered without its bytes.
func (s *Store) Write(ctx context.Context, coordinate artifact.Coordinate, meta store.Meta, bundle io.Reader) (artifact.Descriptor, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return artifact.Descriptor{}, err
	}
	if _, ok := idx.find(coordinate); ok {
		return artifact.Descriptor{}, &store.AlreadyExistsError{Coordinate: coordinate}
	}

	dgst, err := s.stageBlob(bundle)
	if err != nil {
		return artifact.Descriptor{}, err
	}
	location := s.blobPath(dgst)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-read under the lock: a concurrent writer may have claimed the
	// coordinate while the blob was being staged.
	if idx, err = s.loadIndex(); err != nil {
		return artifact.Descriptor{}, err
	}
	if _, ok := idx.find(coordinate); ok {
		if idx.references(dgst) == 0 {
			_ = os.Remove(location)
		}
		return artifact.Descriptor{}, &store.WriteConflictError{Coordinate: coordinate}
	}

	desc := artifact.Descriptor{Coordinate: coordinate, Location: location}
	idx.Artifacts = append(idx.Artifacts, indexEntry{
		Descriptor: desc,
		Meta:       meta,
		Digest:     dgst,
	})
	if err := s.saveIndex(idx); err != nil {
		return artifact.Descriptor{}, err
	}
	return desc, nil
}

// stageBlob copies the bundle into the blob directory under its digest.
func (s *Store) stageBlob(bundle io.Reader) (_ digest.Digest, err error) {
	tmp, err := os.CreateTemp(filepath.Join(s.root, blobsDirectoryName), "staged.*")
	if err != nil {
		return "", fmt.Errorf("failed to stage artifact blob: %w", errors.Join(store.ErrUnavailable, err))
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	digester := digest.SHA256.Digester()
	if _, err := io.Copy(io.MultiWriter(tmp, digester.Hash()), bundle); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to copy artifact bytes: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close staged blob: %w", err)
	}

	dgst := digester.Digest()
	if err := os.Rename(tmp.Name(), s.blobPath(dgst)); err != nil {
		return "", fmt.Errorf("failed to finalize artifact blob: %w", errors.Join(store.ErrUnavailable, err))
	}
	return dgst, nil
}

func (s *Store) blobPath(d digest.Digest) string {
	return filepath.Join(s.root, blobsDirectoryName, d.Algorithm().String()+"."+d.Encoded())
}

// Get returns the stored detail for the coordinate.
func (s *Store) Get(ctx context.Context, coordinate artifact.Coordinate) (store.Detail, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return store.Detail{}, err
	}
	entry, ok := idx.find(coordinate)
	if !ok {
		return store.Detail{}, &store.NotFoundError{Coordinate: coordinate}
	}
	return store.Detail{Descriptor: entry.Descriptor, Meta: entry.Meta}, nil
}

// List returns all stored artifacts matching the range, ascending by
// descriptor.
func (s *Store) List(ctx context.Context, r artifact.Range) ([]store.Detail, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	var details []store.Detail
	for _, e := range idx.Artifacts {
		if r.Matches(e.Descriptor.Coordinate) {
			details = append(details, store.Detail{Descriptor: e.Descriptor, Meta: e.Meta})
		}
	}
	sortDetails(details)
	return details, nil
}

// Exists reports whether the coordinate is registered.
func (s *Store) Exists(ctx context.Context, coordinate artifact.Coordinate) (bool, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return false, err
	}
	_, ok := idx.find(coordinate)
	return ok, nil
}

// Delete removes the artifact and, if unshared, its blob.
func (s *Store) Delete(ctx context.Context, coordinate artifact.Coordinate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return err
	}
	entry, ok := idx.find(coordinate)
	if !ok {
		return &store.NotFoundError{Coordinate: coordinate}
	}
	idx.Artifacts = slices.DeleteFunc(idx.Artifacts, func(e indexEntry) bool {
		return e.Descriptor.Coordinate.Equal(coordinate)
	})
	if err := s.saveIndex(idx); err != nil {
		return err
	}
	if idx.references(entry.Digest) == 0 {
		_ = os.Remove(s.blobPath(entry.Digest))
	}
	return nil
}

// All returns every artifact in the namespace, ascending by descriptor. An
// empty namespace selects all namespaces.
func (s *Store) All(ctx context.Context, namespace string) ([]store.Detail, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	var details []store.Detail
	for _, e := range idx.Artifacts {
		if namespace == "" || e.Descriptor.Coordinate.Namespace == namespace {
			details = append(details, store.Detail{Descriptor: e.Descriptor, Meta: e.Meta})
		}
	}
	sortDetails(details)
	return details, nil
}

// Clear removes every artifact in the namespace.
func (s *Store) Clear(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return err
	}
	var removed []indexEntry
	idx.Artifacts = slices.DeleteFunc(idx.Artifacts, func(e indexEntry) bool {
		if e.Descriptor.Coordinate.Namespace == namespace {
			removed = append(removed, e)
			return true
		}
		return false
	})
	if len(removed) == 0 {
		return nil
	}
	if err := s.saveIndex(idx); err != nil {
		return err
	}
	for _, e := range removed {
		if idx.references(e.Digest) == 0 {
			_ = os.Remove(s.blobPath(e.Digest))
		}
	}
	return nil
}

func sortDetails(details []store.Detail) {
	slices.SortFunc(details, func(a, b store.Detail) int {
		return a.Descriptor.Compare(b.Descriptor)
	})
}
