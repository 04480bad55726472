package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/starford/pfdl/internal/checksum"
)

// S3Config configures access to S3 and S3-compatible object stores.
type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// s3API is the subset of *s3.Client used by the backend.
type s3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 implements Backend for an s3://bucket/prefix root.
type S3 struct {
	root         string
	bucket       string
	prefix       string
	client       s3API
	contentLimit int64
}

// NewS3 builds an S3 client from cfg, falling back to the default
// credential chain when no static keys are configured.
func NewS3(ctx context.Context, root, bucket, prefix string, cfg S3Config, contentLimit int64) (*S3, error) {
	region := cfg.Region
	if region == "" {
		region = "ap-southeast-2"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return newS3(root, bucket, prefix, s3.NewFromConfig(awsCfg, s3Opts...), contentLimit), nil
}

func newS3(root, bucket, prefix string, client s3API, contentLimit int64) *S3 {
	if contentLimit <= 0 {
		contentLimit = DefaultContentLimit
	}
	return &S3{root: root, bucket: bucket, prefix: prefix, client: client, contentLimit: contentLimit}
}

func (s *S3) Root() string { return s.root }

func (s *S3) key(batch, name string) string {
	return s.prefix + batch + "/" + name
}

// ListBatches lists the common prefixes one level below the root prefix.
func (s *S3) ListBatches(ctx context.Context) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.prefix),
		Delimiter: aws.String("/"),
	})
	var out []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: list batches: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), s.prefix), "/")
			if name != "" {
				out = append(out, name)
			}
		}
	}
	return out, nil
}

// ListEntries lists every key below a batch. Keys nested deeper than one
// level are reported as non-plain.
func (s *S3) ListEntries(ctx context.Context, batch string) ([]Entry, error) {
	prefix := s.prefix + batch + "/"
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	var out []Entry
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: list entries: %w", err)
		}
		for _, obj := range page.Contents {
			name, plain := objectName(aws.ToString(obj.Key), prefix)
			if name == "" {
				continue
			}
			out = append(out, Entry{Name: name, Plain: plain})
		}
	}
	return out, nil
}

func (s *S3) ReadBytes(ctx context.Context, batch, name string) ([]byte, error) {
	res, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(batch, name)),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: get %s/%s: %w", batch, name, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s/%s: %w", batch, name, err)
	}
	return data, nil
}

// Describe sizes the object. Small objects are fetched and digested; large
// ones get whatever the ETag of their first part can tell us.
func (s *S3) Describe(ctx context.Context, batch, name string) (*Object, error) {
	key := s.key(batch, name)
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: head %s/%s: %w", batch, name, err)
	}
	uri := fmt.Sprintf("s3://%s/%s", s.bucket, key)
	obj, err := describeObject(aws.ToInt64(head.ContentLength), uri, s.contentLimit, func() ([]byte, error) {
		return s.ReadBytes(ctx, batch, name)
	})
	if err != nil || obj.Content != nil {
		return obj, err
	}

	part, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(key),
		PartNumber: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: head part %s/%s: %w", batch, name, err)
	}
	etag := strings.Trim(aws.ToString(part.ETag), `"`)
	if etag == "" {
		return obj, nil
	}
	if aws.ToInt32(part.PartsCount) > 0 {
		// A "-1" tag means the whole object fit in its first part, so the
		// part length says nothing about the chunk size used.
		if alg, ok := checksum.ETagChunkSizes[aws.ToInt64(part.ContentLength)]; ok && !strings.HasSuffix(etag, "-1") {
			if err := obj.Checksums.Put(alg, etag); err != nil {
				return nil, err
			}
		}
		return obj, nil
	}
	// Single-part uploads under SSE-S3 carry the content MD5 as their ETag.
	if part.ServerSideEncryption == types.ServerSideEncryptionAes256 {
		if err := obj.Checksums.Put(checksum.MD5, etag); err != nil {
			return nil, err
		}
	}
	return obj, nil
}
