package bundle

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Write streams a bundle archive to w: the manifest first, then the given
// files keyed by archive-relative path, in sorted order so the same input
// always produces the same archive layout.
func Write(w io.Writer, m *Manifest, files map[string][]byte) (err error) {
	raw, err := m.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	zw := zip.NewWriter(w)
	defer func() {
		err = errors.Join(err, zw.Close())
	}()

	entry, err := zw.Create(ManifestFileName)
	if err != nil {
		return fmt.Errorf("failed to create manifest entry: %w", err)
	}
	if _, err := entry.Write(raw); err != nil {
		return fmt.Errorf("failed to write manifest entry: %w", err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		entry, err := zw.Create(name)
		if err != nil {
			return fmt.Errorf("failed to create entry %s: %w", name, err)
		}
		if _, err := entry.Write(files[name]); err != nil {
			return fmt.Errorf("failed to write entry %s: %w", name, err)
		}
	}
	return nil
}

// WriteFile writes a bundle archive to the given path.
func WriteFile(path string, m *Manifest, files map[string][]byte) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create bundle file: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return Write(f, m, files)
}

// ReadManifest opens the archive at path and parses its manifest without
// unpacking anything else.
func ReadManifest(path string) (_ *Manifest, err error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, zr.Close())
	}()

	for _, f := range zr.File {
		if f.Name != ManifestFileName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open manifest entry: %w", err)
		}
		raw, err := io.ReadAll(rc)
		if cerr := rc.Close(); cerr != nil {
			return nil, cerr
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest entry: %w", err)
		}
		return ParseManifest(raw)
	}
	return nil, fmt.Errorf("bundle %s has no %s entry", path, ManifestFileName)
}

// Unpack extracts the archive at src into the directory dst. Entry paths are
// confined to dst; an entry escaping it fails the whole extraction.
func Unpack(src, dst string) (err error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open bundle %s: %w", src, err)
	}
	defer func() {
		err = errors.Join(err, zr.Close())
	}()

	for _, f := range zr.File {
		if err := unpackEntry(f, dst); err != nil {
			return err
		}
	}
	return nil
}

func unpackEntry(f *zip.File, dst string) (err error) {
	target := filepath.Join(dst, filepath.FromSlash(f.Name))
	if rel, err := filepath.Rel(dst, target); err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("entry %s escapes the extraction directory", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open entry %s: %w", f.Name, err)
	}
	defer func() {
		err = errors.Join(err, rc.Close())
	}()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	if _, err := io.Copy(out, rc); err != nil { //nolint:gosec // bundles come from the trusted local store
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return nil
}
