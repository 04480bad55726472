package artifact

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/checksum"
)

func TestSetChecksumWriteOnce(t *testing.T) {
	a := New("/r1", "001", "a.bam", 10, "file:///r1/001/a.bam", nil, nil)
	if err := a.SetChecksum(checksum.MD5, "aa"); err != nil {
		t.Fatal(err)
	}
	err := a.SetChecksum(checksum.MD5, "bb")
	if !errors.Is(err, apperr.ErrChecksumConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "001/a.bam") {
		t.Errorf("error should identify artifact: %v", err)
	}
}

func TestNewCopiesChecksums(t *testing.T) {
	sums := checksum.Set{checksum.MD5: "aa"}
	a := New("/r1", "001", "a", 1, "u", []byte("x"), sums)
	sums[checksum.MD5] = "changed"
	if v, _ := a.Checksum(checksum.MD5); v != "aa" {
		t.Errorf("artifact aliases caller's set: %s", v)
	}
}

func TestIdentityReconcile(t *testing.T) {
	id := Identity{Batch: "001", Name: "a", Artifacts: []*Artifact{
		New("/r1", "001", "a", 1, "u1", nil, checksum.Set{checksum.MD5: "aa"}),
		New("s3://b/p", "001", "a", 1, "u2", nil, checksum.Set{checksum.MD5: "aa", checksum.ETag5MiB: "e-2"}),
	}}
	sums, err := id.Checksums()
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 2 {
		t.Errorf("sums = %v", sums)
	}
	if got := id.URIs(); len(got) != 2 || got[1] != "u2" {
		t.Errorf("uris = %v", got)
	}

	id.Artifacts = append(id.Artifacts, New("/r3", "001", "a", 1, "u3", nil, checksum.Set{checksum.MD5: "bb"}))
	if _, err := id.Checksums(); !errors.Is(err, apperr.ErrChecksumConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestHistoryPrepend(t *testing.T) {
	var h History
	h = h.Prepend(Identity{Batch: "001"})
	h = h.Prepend(Identity{Batch: "002"})
	cur, ok := h.Current()
	if !ok || cur.Batch != "002" || h[1].Batch != "001" {
		t.Errorf("history = %+v", h)
	}
	if _, ok := History(nil).Current(); ok {
		t.Error("empty history has no current")
	}
}

func TestArtifactJSON(t *testing.T) {
	a := New("/r1", "001", "a", 3, "file:///r1/001/a", []byte("abc"), checksum.Set{checksum.MD5: "aa"})
	data, err := json.Marshal(Identity{Batch: "001", Name: "a", Artifacts: []*Artifact{a}})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"batch":"001","artifacts":[{"root":"/r1","uri":"file:///r1/001/a","size":3,"checksums":{"md5":"aa"}}]}`
	if string(data) != want {
		t.Errorf("json = %s", data)
	}
}
