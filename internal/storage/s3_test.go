package storage

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/starford/pfdl/internal/checksum"
)

type fakeObject struct {
	data       []byte
	size       int64
	etag       string
	parts      int32
	partLength int64
	sse        types.ServerSideEncryption
}

type fakeS3 struct {
	objects map[string]fakeObject
	gets    int
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	o, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	out := &s3.HeadObjectOutput{
		ContentLength:        aws.Int64(o.size),
		ETag:                 aws.String(`"` + o.etag + `"`),
		ServerSideEncryption: o.sse,
	}
	if in.PartNumber != nil && o.parts > 0 {
		out.PartsCount = aws.Int32(o.parts)
		out.ContentLength = aws.Int64(o.partLength)
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gets++
	o, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(o.data))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	out := &s3.ListObjectsV2Output{}
	seen := map[string]bool{}
	for key := range f.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if aws.ToString(in.Delimiter) == "/" {
			if i := strings.Index(rest, "/"); i >= 0 {
				cp := prefix + rest[:i+1]
				if !seen[cp] {
					seen[cp] = true
					out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(cp)})
				}
				continue
			}
		}
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	return out, nil
}

func testS3(objects map[string]fakeObject) (*S3, *fakeS3) {
	fake := &fakeS3{objects: objects}
	return newS3("s3://bucket/data", "bucket", "data/", fake, 16), fake
}

func TestS3ListBatchesAndEntries(t *testing.T) {
	s, _ := testS3(map[string]fakeObject{
		"data/":                {},
		"data/002/a":           {},
		"data/001/":            {},
		"data/001/a":           {},
		"data/001/nested/b":    {},
		"data/001/md5sums.txt": {},
	})
	batches, err := s.ListBatches(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Join(slices.Sorted(slices.Values(batches)), ",")
	if got != "001,002" {
		t.Errorf("batches = %s", got)
	}

	entries, err := s.ListEntries(context.Background(), "001")
	if err != nil {
		t.Fatal(err)
	}
	plain := map[string]bool{}
	for _, e := range entries {
		plain[e.Name] = e.Plain
	}
	if len(plain) != 3 || !plain["a"] || !plain["md5sums.txt"] || plain["nested/b"] {
		t.Errorf("entries = %v", plain)
	}
}

func TestS3DescribeSmallObjectDigestsContent(t *testing.T) {
	s, fake := testS3(map[string]fakeObject{
		"data/001/a": {data: []byte("hello world"), size: 11, etag: "ignored"},
	})
	obj, err := s.Describe(context.Background(), "001", "a")
	if err != nil {
		t.Fatal(err)
	}
	if fake.gets != 1 || string(obj.Content) != "hello world" {
		t.Errorf("content not fetched: %+v", obj)
	}
	if v, _ := obj.Checksums.Get(checksum.MD5); v != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("md5 = %s", v)
	}
	if obj.URI != "s3://bucket/data/001/a" {
		t.Errorf("uri = %s", obj.URI)
	}
}

func TestS3DescribeMultipartETag(t *testing.T) {
	s, fake := testS3(map[string]fakeObject{
		"data/001/big":    {size: 20 * 1024 * 1024, etag: "abc-3", parts: 3, partLength: 8 * 1024 * 1024},
		"data/001/odd":    {size: 20 * 1024 * 1024, etag: "abc-2", parts: 2, partLength: 10 * 1024 * 1024},
		"data/001/single": {size: 20 * 1024 * 1024, etag: "abc-1", parts: 1, partLength: 8 * 1024 * 1024},
	})
	obj, err := s.Describe(context.Background(), "001", "big")
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := obj.Checksums.Get(checksum.ETag8MiB); v != "abc-3" {
		t.Errorf("checksums = %v", obj.Checksums)
	}
	if fake.gets != 0 {
		t.Error("large object must not be fetched")
	}

	for _, name := range []string{"odd", "single"} {
		obj, err := s.Describe(context.Background(), "001", name)
		if err != nil {
			t.Fatal(err)
		}
		if len(obj.Checksums) != 0 {
			t.Errorf("%s: expected no checksums, got %v", name, obj.Checksums)
		}
	}
}

func TestS3DescribeSinglePartSSE(t *testing.T) {
	s, _ := testS3(map[string]fakeObject{
		"data/001/aes": {size: 1 << 20, etag: "0123456789ABCDEF0123456789abcdef", sse: types.ServerSideEncryptionAes256},
		"data/001/kms": {size: 1 << 20, etag: "0123456789abcdef0123456789abcdef", sse: types.ServerSideEncryptionAwsKms},
	})
	obj, err := s.Describe(context.Background(), "001", "aes")
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := obj.Checksums.Get(checksum.MD5); v != "0123456789abcdef0123456789abcdef" {
		t.Errorf("md5 = %q", v)
	}
	obj, err = s.Describe(context.Background(), "001", "kms")
	if err != nil {
		t.Fatal(err)
	}
	if len(obj.Checksums) != 0 {
		t.Errorf("kms etag must not be trusted: %v", obj.Checksums)
	}
}
