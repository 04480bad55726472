// Package storage defines the read-only root abstraction and its backends.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/checksum"
)

// DefaultContentLimit is the size below which object content is retained.
const DefaultContentLimit = 128 * 1024

// Entry is one child of a batch.
type Entry struct {
	Name  string
	Plain bool
}

// Object describes one batch entry as seen by its backend.
type Object struct {
	Size int64
	URI  string
	// Content is set only when Size is below the content limit.
	Content   []byte
	Checksums checksum.Set
}

// Backend is the capability set of one root.
type Backend interface {
	// Root returns the location the backend was opened for.
	Root() string
	// ListBatches returns the batch names directly under the root, sorted.
	ListBatches(ctx context.Context) ([]string, error)
	// ListEntries returns the children of a batch.
	ListEntries(ctx context.Context, batch string) ([]Entry, error)
	// ReadBytes returns the full content of a batch entry.
	ReadBytes(ctx context.Context, batch, name string) ([]byte, error)
	// Describe sizes an entry and derives whatever checksums the backend can.
	Describe(ctx context.Context, batch, name string) (*Object, error)
}

// Config carries backend credentials and limits.
type Config struct {
	S3           S3Config    `yaml:"s3"`
	GCS          GCSConfig   `yaml:"gcs"`
	Azure        AzureConfig `yaml:"azure"`
	ContentLimit int64       `yaml:"-"`
}

func (c Config) contentLimit() int64 {
	if c.ContentLimit <= 0 {
		return DefaultContentLimit
	}
	return c.ContentLimit
}

// Open selects a backend by the root's URI scheme. Roots without a scheme
// are local directories and must be absolute.
func Open(ctx context.Context, root string, cfg Config) (Backend, error) {
	scheme, rest, ok := strings.Cut(root, "://")
	if !ok {
		return NewFS(root, cfg.contentLimit())
	}
	if scheme == "file" {
		return NewFS(rest, cfg.contentLimit())
	}
	bucket, prefix, err := splitBucket(rest)
	if err != nil {
		return nil, fmt.Errorf("storage: %s: %w", root, err)
	}
	switch scheme {
	case "s3":
		return NewS3(ctx, root, bucket, prefix, cfg.S3, cfg.contentLimit())
	case "gs":
		return NewGCS(ctx, root, bucket, prefix, cfg.GCS, cfg.contentLimit())
	case "az":
		return NewAzure(root, bucket, prefix, cfg.Azure, cfg.contentLimit())
	default:
		return nil, fmt.Errorf("storage: scheme %q: %w", scheme, apperr.ErrInvalidRoot)
	}
}

// splitBucket splits "bucket/some/prefix" into the bucket and a prefix that
// is either empty or ends in a slash.
func splitBucket(rest string) (string, string, error) {
	bucket, prefix, _ := strings.Cut(rest, "/")
	if len(bucket) < 3 {
		return "", "", fmt.Errorf("bucket %q: %w", bucket, apperr.ErrInvalidRoot)
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return bucket, prefix, nil
}

// objectName strips the listing prefix and reports whether what remains is
// a plain child name.
func objectName(key, prefix string) (string, bool) {
	name := strings.TrimPrefix(key, prefix)
	return name, name != "" && !strings.Contains(name, "/")
}

// describeObject fills in retained content and checksums for an object the
// backend has already sized.
func describeObject(size int64, uri string, limit int64, read func() ([]byte, error)) (*Object, error) {
	obj := &Object{Size: size, URI: uri, Checksums: checksum.Set{}}
	if size >= limit {
		return obj, nil
	}
	data, err := read()
	if err != nil {
		return nil, err
	}
	obj.Content = data
	obj.Checksums = checksum.Of(data)
	return obj, nil
}
