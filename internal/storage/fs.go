package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/pfdl/internal/apperr"
)

// FS implements Backend for a root on the local file system.
type FS struct {
	root         string // absolute path to the root directory
	contentLimit int64
}

// NewFS creates a backend rooted at the given directory. The path must be
// absolute and the directory must already exist.
func NewFS(root string, contentLimit int64) (*FS, error) {
	if !filepath.IsAbs(root) {
		return nil, fmt.Errorf("storage: root %s: %w", root, apperr.ErrNotAbsolute)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", root)
	}
	if contentLimit <= 0 {
		contentLimit = DefaultContentLimit
	}
	return &FS{root: filepath.Clean(root), contentLimit: contentLimit}, nil
}

// Root returns the absolute root directory.
func (f *FS) Root() string { return f.root }

// safePath joins batch and entry names to the root and rejects any result
// that escapes it (directory traversal).
func (f *FS) safePath(parts ...string) (string, error) {
	for _, p := range parts {
		if p == "" || p == "." || p == ".." || strings.ContainsRune(p, os.PathSeparator) {
			return "", fmt.Errorf("storage: invalid name %q", p)
		}
	}
	abs := filepath.Join(append([]string{f.root}, parts...)...)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes root: %s", abs)
	}
	return abs, nil
}

// ListBatches returns the sub-directories of the root.
func (f *FS) ListBatches(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list batches: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// ListEntries returns every child of a batch directory. Symlinks count as
// plain only when they resolve to a regular file.
func (f *FS) ListEntries(_ context.Context, batch string) ([]Entry, error) {
	dir, err := f.safePath(batch)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: list entries: %w", err)
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, Entry{Name: e.Name(), Plain: isPlain(filepath.Join(dir, e.Name()), e)})
	}
	return out, nil
}

func isPlain(path string, e fs.DirEntry) bool {
	if e.Type().IsRegular() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ReadBytes returns the raw bytes of a batch entry.
func (f *FS) ReadBytes(_ context.Context, batch, name string) ([]byte, error) {
	abs, err := f.safePath(batch, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s/%s: %w", batch, name, err)
	}
	return data, nil
}

// Describe stats an entry and, when it is small, reads it and digests the bytes.
func (f *FS) Describe(ctx context.Context, batch, name string) (*Object, error) {
	abs, err := f.safePath(batch, name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat %s/%s: %w", batch, name, err)
	}
	return describeObject(info.Size(), "file://"+filepath.ToSlash(abs), f.contentLimit, func() ([]byte, error) {
		return f.ReadBytes(ctx, batch, name)
	})
}
