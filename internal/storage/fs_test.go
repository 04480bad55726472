package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/checksum"
)

func tempRoot(t *testing.T) (string, *FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir, 16)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return dir, fs
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNewFSRejectsRelative(t *testing.T) {
	_, err := NewFS("relative/dir", 0)
	if !errors.Is(err, apperr.ErrNotAbsolute) {
		t.Errorf("expected ErrNotAbsolute, got %v", err)
	}
}

func TestNewFSRejectsMissing(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"), 0)
	if err == nil || errors.Is(err, apperr.ErrNotAbsolute) {
		t.Errorf("expected stat error, got %v", err)
	}
}

func TestListBatchesOnlyDirectories(t *testing.T) {
	dir, fs := tempRoot(t)
	writeFile(t, filepath.Join(dir, "002", "a"), "a")
	writeFile(t, filepath.Join(dir, "001", "a"), "a")
	writeFile(t, filepath.Join(dir, "stray.txt"), "x")

	got, err := fs.ListBatches(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != "001,002" {
		t.Errorf("batches = %v", got)
	}
}

func TestListEntriesMarksNonPlain(t *testing.T) {
	dir, fs := tempRoot(t)
	writeFile(t, filepath.Join(dir, "001", "a.txt"), "a")
	writeFile(t, filepath.Join(dir, "001", "sub", "b.txt"), "b")
	if err := os.Symlink(filepath.Join(dir, "001", "a.txt"), filepath.Join(dir, "001", "link.txt")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(dir, "001", "sub"), filepath.Join(dir, "001", "dirlink")); err != nil {
		t.Fatal(err)
	}
	if err := syscall.Mkfifo(filepath.Join(dir, "001", "pipe"), 0o644); err != nil {
		t.Skipf("mkfifo unsupported: %v", err)
	}

	entries, err := fs.ListEntries(context.Background(), "001")
	if err != nil {
		t.Fatal(err)
	}
	plain := map[string]bool{}
	for _, e := range entries {
		plain[e.Name] = e.Plain
	}
	want := map[string]bool{"a.txt": true, "link.txt": true, "sub": false, "dirlink": false, "pipe": false}
	for name, p := range want {
		if got, ok := plain[name]; !ok || got != p {
			t.Errorf("%s: plain = %v (present %v), want %v", name, got, ok, p)
		}
	}
}

func TestDescribeSmallAndLarge(t *testing.T) {
	dir, fs := tempRoot(t)
	writeFile(t, filepath.Join(dir, "001", "small"), "hello world")
	writeFile(t, filepath.Join(dir, "001", "large"), strings.Repeat("x", 64))

	small, err := fs.Describe(context.Background(), "001", "small")
	if err != nil {
		t.Fatal(err)
	}
	if small.Size != 11 || string(small.Content) != "hello world" {
		t.Errorf("small = %+v", small)
	}
	if v, _ := small.Checksums.Get(checksum.MD5); v != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("md5 = %s", v)
	}
	if small.URI != "file://"+filepath.Join(dir, "001", "small") {
		t.Errorf("uri = %s", small.URI)
	}

	large, err := fs.Describe(context.Background(), "001", "large")
	if err != nil {
		t.Fatal(err)
	}
	if large.Size != 64 || large.Content != nil || len(large.Checksums) != 0 {
		t.Errorf("large = %+v", large)
	}
}

func TestSafePathRejectsTraversal(t *testing.T) {
	_, fs := tempRoot(t)
	if _, err := fs.ReadBytes(context.Background(), "..", "etc"); err == nil {
		t.Error("expected traversal rejection")
	}
	if _, err := fs.ReadBytes(context.Background(), "001", "a/b"); err == nil {
		t.Error("expected nested name rejection")
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	b, err := Open(context.Background(), dir, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.(*FS); !ok {
		t.Errorf("backend = %T", b)
	}
	b, err = Open(context.Background(), "file://"+dir, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if b.Root() != dir {
		t.Errorf("root = %s", b.Root())
	}

	if _, err := Open(context.Background(), "ftp://bucket/x", Config{}); !errors.Is(err, apperr.ErrInvalidRoot) {
		t.Errorf("expected ErrInvalidRoot, got %v", err)
	}
	if _, err := Open(context.Background(), "s3://ab/x", Config{}); !errors.Is(err, apperr.ErrInvalidRoot) {
		t.Errorf("short bucket: expected ErrInvalidRoot, got %v", err)
	}
	if _, err := Open(context.Background(), "rel/path", Config{}); !errors.Is(err, apperr.ErrNotAbsolute) {
		t.Errorf("expected ErrNotAbsolute, got %v", err)
	}
}

func TestSplitBucket(t *testing.T) {
	cases := []struct{ in, bucket, prefix string }{
		{"bucket", "bucket", ""},
		{"bucket/", "bucket", ""},
		{"bucket/a/b", "bucket", "a/b/"},
		{"bucket/a/b/", "bucket", "a/b/"},
	}
	for _, c := range cases {
		b, p, err := splitBucket(c.in)
		if err != nil || b != c.bucket || p != c.prefix {
			t.Errorf("splitBucket(%q) = %q, %q, %v", c.in, b, p, err)
		}
	}
}
