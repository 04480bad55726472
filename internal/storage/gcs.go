package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/checksum"
)

// GCSConfig configures Google Cloud Storage access. Without a credentials
// file, Application Default Credentials are used.
type GCSConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
}

// GCS implements Backend for a gs://bucket/prefix root.
type GCS struct {
	root         string
	bucket       *gcs.BucketHandle
	bucketName   string
	prefix       string
	contentLimit int64
}

// NewGCS opens a client for the bucket named in root.
func NewGCS(ctx context.Context, root, bucket, prefix string, cfg GCSConfig, contentLimit int64) (*GCS, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: create gcs client: %w", err)
	}
	if contentLimit <= 0 {
		contentLimit = DefaultContentLimit
	}
	return &GCS{
		root:         root,
		bucket:       client.Bucket(bucket),
		bucketName:   bucket,
		prefix:       prefix,
		contentLimit: contentLimit,
	}, nil
}

func (g *GCS) Root() string { return g.root }

func (g *GCS) ListBatches(ctx context.Context) ([]string, error) {
	it := g.bucket.Objects(ctx, &gcs.Query{Prefix: g.prefix, Delimiter: "/"})
	var out []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("storage: list batches: %w", err)
		}
		// With a delimiter, sub-collections come back as prefix-only entries.
		if attrs.Prefix == "" {
			continue
		}
		if name, _ := objectName(attrs.Prefix, g.prefix); name != "" {
			out = append(out, name[:len(name)-1])
		}
	}
	return out, nil
}

func (g *GCS) ListEntries(ctx context.Context, batch string) ([]Entry, error) {
	prefix := g.prefix + batch + "/"
	it := g.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	var out []Entry
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("storage: list entries: %w", err)
		}
		name, plain := objectName(attrs.Name, prefix)
		if name == "" {
			continue
		}
		out = append(out, Entry{Name: name, Plain: plain})
	}
	return out, nil
}

func (g *GCS) ReadBytes(ctx context.Context, batch, name string) ([]byte, error) {
	r, err := g.bucket.Object(g.prefix + batch + "/" + name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("storage: read %s/%s: %w", batch, name, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: read %s/%s: %w", batch, name, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s/%s: %w", batch, name, err)
	}
	return data, nil
}

// Describe uses the object's stored MD5 when GCS has one; composite objects
// carry only a CRC32C, which we do not record.
func (g *GCS) Describe(ctx context.Context, batch, name string) (*Object, error) {
	key := g.prefix + batch + "/" + name
	attrs, err := g.bucket.Object(key).Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: attrs %s/%s: %w", batch, name, err)
	}
	uri := fmt.Sprintf("gs://%s/%s", g.bucketName, key)
	obj, err := describeObject(attrs.Size, uri, g.contentLimit, func() ([]byte, error) {
		return g.ReadBytes(ctx, batch, name)
	})
	if err != nil {
		return nil, err
	}
	if len(attrs.MD5) == 16 {
		if err := obj.Checksums.Put(checksum.MD5, hex.EncodeToString(attrs.MD5)); err != nil {
			return nil, err
		}
	}
	return obj, nil
}
