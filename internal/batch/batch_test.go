package batch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/checksum"
	"github.com/starford/pfdl/internal/manifest"
	"github.com/starford/pfdl/internal/storage"
)

// putBatch stores files plus a matching manifest.
func putBatch(m *storage.Memory, batch string, files map[string]string) {
	var sb strings.Builder
	for name, content := range files {
		m.Put(batch, name, []byte(content))
		sb.WriteString(checksum.MD5Hex([]byte(content)) + "  " + name + "\n")
	}
	m.Put(batch, manifest.FileName, []byte(sb.String()))
}

func failuresOf(t *testing.T, err error) []apperr.Failure {
	t.Helper()
	e, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected aggregated error, got %v", err)
	}
	return e.Failures
}

func TestEntriesRejectNonPlain(t *testing.T) {
	m := storage.NewMemory("/r1")
	putBatch(m, "001", map[string]string{"a": "a"})
	m.PutDir("001", "sub1")
	m.PutDir("001", "sub2")

	b := NewRoot(m).Batch("001")
	_, err := b.LoadAndCheckEntries(context.Background())
	fs := failuresOf(t, err)
	if len(fs) != 2 {
		t.Fatalf("failures = %+v", fs)
	}
	for _, f := range fs {
		if f.Category != apperr.EntryInvalid || f.Message != MsgNotPlain || f.Root != "/r1" || f.Batch != "001" {
			t.Errorf("failure = %+v", f)
		}
	}
}

func TestManifestMissingEntry(t *testing.T) {
	m := storage.NewMemory("/r1")
	m.Put("001", manifest.FileName, []byte("deadbeefdeadbeefdeadbeefdeadbeef  a.txt\n"))

	_, err := NewRoot(m).Batch("001").LoadAndCheckManifest(context.Background())
	fs := failuresOf(t, err)
	if len(fs) != 1 || fs[0].Category != apperr.ManifestContentMismatch ||
		fs[0].Message != MsgListedNotPresent || fs[0].Artifact != "a.txt" {
		t.Errorf("failures = %+v", fs)
	}
}

func TestManifestExtraEntriesReportedTogether(t *testing.T) {
	m := storage.NewMemory("/r1")
	putBatch(m, "001", map[string]string{"a": "a"})
	m.Put("001", "x", []byte("x"))
	m.Put("001", "y", []byte("y"))

	_, err := NewRoot(m).Batch("001").LoadAndCheckManifest(context.Background())
	fs := failuresOf(t, err)
	if len(fs) != 2 || fs[0].Artifact != "x" || fs[1].Artifact != "y" {
		t.Errorf("failures = %+v", fs)
	}
}

func TestManifestAbsentAndEscaped(t *testing.T) {
	m := storage.NewMemory("/r1")
	m.Put("001", "a", []byte("a"))
	m.Put("002", manifest.FileName, []byte(`\deadbeefdeadbeefdeadbeefdeadbeef  a\nb`+"\n"))
	root := NewRoot(m)

	_, err := root.Batch("001").LoadAndCheckManifest(context.Background())
	if fs := failuresOf(t, err); fs[0].Category != apperr.ManifestMissing || fs[0].Message != MsgNoManifest {
		t.Errorf("failures = %+v", fs)
	}
	_, err = root.Batch("002").LoadAndCheckManifest(context.Background())
	if fs := failuresOf(t, err); fs[0].Category != apperr.ManifestUnsupported {
		t.Errorf("failures = %+v", fs)
	}
}

func TestManifestCached(t *testing.T) {
	m := storage.NewMemory("/r1")
	putBatch(m, "001", map[string]string{"a": "a"})
	b := NewRoot(m).Batch("001")
	first, err := b.LoadAndCheckManifest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	m.Remove("001", "a")
	second, err := b.LoadAndCheckManifest(context.Background())
	if err != nil || len(second) != len(first) {
		t.Errorf("manifest not cached: %v %v", second, err)
	}
}

func TestCreateArtifact(t *testing.T) {
	m := storage.NewMemory("/r1")
	putBatch(m, "001", map[string]string{"a": "hello world"})
	b := NewRoot(m).Batch("001")

	a, err := b.CreateArtifact(context.Background(), "a", "5eb63bbbe01eeed093cb22bb8f5acdc3")
	if err != nil {
		t.Fatal(err)
	}
	if string(a.Content()) != "hello world" || a.Root != "/r1" || a.Batch != "001" {
		t.Errorf("artifact = %+v", a)
	}

	_, err = b.CreateArtifact(context.Background(), "a", "00000000000000000000000000000000")
	if fs := failuresOf(t, err); fs[0].Category != apperr.ChecksumConflict || fs[0].Artifact != "a" {
		t.Errorf("failures = %+v", fs)
	}
	_, err = b.CreateArtifact(context.Background(), "missing", "00000000000000000000000000000000")
	fs := failuresOf(t, err)
	if fs[0].Category != apperr.ArtifactFetchFailed || !strings.Contains(fs[0].Detail, "not found") {
		t.Errorf("failures = %+v", fs)
	}
}

type failingBackend struct{ *storage.Memory }

func (failingBackend) ListBatches(context.Context) ([]string, error) {
	return nil, errors.New("access denied")
}

func TestGroupByNameOrdersAndFolds(t *testing.T) {
	r1 := storage.NewMemory("/r1")
	r2 := storage.NewMemory("/r2")
	putBatch(r1, "002", map[string]string{"a": "a"})
	putBatch(r1, "001", map[string]string{"a": "a"})
	putBatch(r2, "001", map[string]string{"a": "a"})
	putBatch(r2, "003", map[string]string{"a": "a"})

	groups, err := GroupByName(context.Background(), []*Root{NewRoot(r1), NewRoot(r2)}, nil, 2)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, g := range groups {
		names = append(names, g.Name)
	}
	if strings.Join(names, ",") != "001,002,003" {
		t.Errorf("order = %v", names)
	}
	if len(groups[0].Batches) != 2 || groups[0].Batches[0].Root().Location() != "/r1" {
		t.Errorf("group 001 members = %+v", groups[0].Batches)
	}

	reversed, err := GroupByName(context.Background(), []*Root{NewRoot(r1)}, func(a, b string) int {
		return strings.Compare(b, a)
	}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if reversed[0].Name != "002" {
		t.Errorf("custom order ignored: %s", reversed[0].Name)
	}
}

func TestGroupByNameListingFailure(t *testing.T) {
	bad := failingBackend{storage.NewMemory("s3://bucket/x")}
	_, err := GroupByName(context.Background(), []*Root{NewRoot(bad)}, nil, 0)
	fs := failuresOf(t, err)
	if len(fs) != 1 || fs[0].Category != apperr.RootInvalid || fs[0].Root != "s3://bucket/x" {
		t.Errorf("failures = %+v", fs)
	}
}

func TestLoadManifestsMismatchAcrossRoots(t *testing.T) {
	r1 := storage.NewMemory("/r1")
	r2 := storage.NewMemory("/r2")
	r1.Put("001", "x", []byte("x"))
	r2.Put("001", "x", []byte("x"))
	r1.Put("001", manifest.FileName, []byte("11111111111111111111111111111111  x\n"))
	r2.Put("001", manifest.FileName, []byte("22222222222222222222222222222222  x\n"))

	groups, err := GroupByName(context.Background(), []*Root{NewRoot(r1), NewRoot(r2)}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := LoadEntries(context.Background(), groups, 0); err != nil {
		t.Fatal(err)
	}
	err = LoadManifests(context.Background(), groups, 0)
	fs := failuresOf(t, err)
	if len(fs) != 2 {
		t.Fatalf("failures = %+v", fs)
	}
	if fs[0].Root != "/r1" || fs[1].Root != "/r2" || fs[0].Batch != "001" || fs[0].Category != apperr.ManifestMismatchAcrossRoots {
		t.Errorf("failures = %+v", fs)
	}
	if groups[0].Manifest() != nil {
		t.Error("mismatched group must have no usable manifest")
	}
}

func TestLoadEntriesAggregatesAcrossGroups(t *testing.T) {
	r1 := storage.NewMemory("/r1")
	putBatch(r1, "001", map[string]string{"a": "a"})
	putBatch(r1, "002", map[string]string{"a": "a"})
	r1.PutDir("001", "d")
	r1.PutDir("002", "d")

	groups, err := GroupByName(context.Background(), []*Root{NewRoot(r1)}, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	err = LoadEntries(context.Background(), groups, 1)
	if fs := failuresOf(t, err); len(fs) != 2 {
		t.Errorf("failures = %+v", fs)
	}
}
