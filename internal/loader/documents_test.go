package loader

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/checksum"
	"github.com/starford/pfdl/internal/storage"
	"github.com/starford/pfdl/internal/testutil"
)

func structureOf(t *testing.T, batches map[string]map[string][]byte, opts ...Option) (*Loader, *Structure) {
	t.Helper()
	m := storage.NewMemory("/r1")
	for name, files := range batches {
		testutil.MemoryBatch(m, name, files)
	}
	l := memoryLoader(map[string]storage.Backend{"/r1": m}, opts...)
	s, err := l.CheckStructure(context.Background())
	if err != nil {
		t.Fatalf("check structure: %v", err)
	}
	return l, s
}

func TestDocumentsAllReferenced(t *testing.T) {
	l, s := structureOf(t, map[string]map[string][]byte{
		"001": {
			"doc.json":  testutil.Individual(t, "s1", "file://a.bam", "b.vcf"),
			"a.bam":     []byte("reads"),
			"a.bam.bai": []byte("index"),
			"b.vcf":     []byte("variants"),
		},
	})
	if err := l.CheckDocuments(s); err != nil {
		t.Fatalf("unexpected failures: %v", err)
	}
}

func TestDocumentsUnreferencedArtifact(t *testing.T) {
	l, s := structureOf(t, map[string]map[string][]byte{
		"001": {
			"doc.json": testutil.Individual(t, "s1", "file://a.bam"),
			"a.bam":    []byte("a"),
			"b.bam":    []byte("b"),
		},
	})
	fs := failuresOf(t, l.CheckDocuments(s))
	if len(fs) != 1 {
		t.Fatalf("failures = %+v", fs)
	}
	if fs[0].Category != apperr.ArtifactUnreferenced || fs[0].Artifact != "b.bam" || fs[0].Message != MsgUnreferenced {
		t.Errorf("failure = %+v", fs[0])
	}
}

func TestDocumentsAbsoluteURI(t *testing.T) {
	l, s := structureOf(t, map[string]map[string][]byte{
		"001": {
			"doc.json": testutil.Individual(t, "s1", "https://host/f.bam"),
			"f.bam":    []byte("f"),
		},
	})
	fs := failuresOf(t, l.CheckDocuments(s))
	// The unreferenced pass is skipped once references have failed.
	if len(fs) != 1 {
		t.Fatalf("failures = %+v", fs)
	}
	if fs[0].Category != apperr.FileReferenceInvalid || fs[0].Artifact != "doc.json" ||
		fs[0].Message != "Phenopacket contained a file URI 'https://host/f.bam' that is an absolute URI" {
		t.Errorf("failure = %+v", fs[0])
	}
}

func TestDocumentsOtherClaimantKeepsArtifactReferenced(t *testing.T) {
	l, s := structureOf(t, map[string]map[string][]byte{
		"001": {
			"doc1.json": testutil.Individual(t, "s1", "https://host/f.bam"),
			"doc2.json": testutil.Individual(t, "s2", "f.bam"),
			"f.bam":     []byte("f"),
		},
	})
	fs := failuresOf(t, l.CheckDocuments(s))
	if len(fs) != 1 || fs[0].Artifact != "doc1.json" {
		t.Errorf("failures = %+v", fs)
	}
}

func TestDocumentsFamilyWithoutID(t *testing.T) {
	l, s := structureOf(t, map[string]map[string][]byte{
		"001": {"fam.json": testutil.Family(t, "", "s1", "missing.bam")},
	})
	fs := failuresOf(t, l.CheckDocuments(s))
	if len(fs) != 1 {
		t.Fatalf("failures = %+v", fs)
	}
	if fs[0].Category != apperr.DocumentFieldMissing || fs[0].Message != MsgFamilyIDMissing {
		t.Errorf("failure = %+v", fs[0])
	}
}

func TestDocumentsSubjectMissingIsFatal(t *testing.T) {
	l, s := structureOf(t, map[string]map[string][]byte{
		"001": {
			"a.json": testutil.Individual(t, "s1", "gone.bam"),
			"b.json": testutil.Individual(t, "", "also-gone.bam"),
			"c.json": testutil.Individual(t, "s3", "never-checked.bam"),
		},
	})
	fs := failuresOf(t, l.CheckDocuments(s))
	if len(fs) != 2 {
		t.Fatalf("failures = %+v", fs)
	}
	var sawSubject bool
	for _, f := range fs {
		if strings.Contains(f.Message, "never-checked") || strings.Contains(f.Message, "also-gone") {
			t.Errorf("document after the fatal one was checked: %+v", f)
		}
		if f.Message == MsgSubjectMissing && f.Artifact == "b.json" {
			sawSubject = true
		}
	}
	if !sawSubject {
		t.Errorf("missing subject not reported: %+v", fs)
	}
}

func TestDocumentsDeletedArtifacts(t *testing.T) {
	l, s := structureOf(t, map[string]map[string][]byte{
		"001": {
			"doc.json": testutil.Individual(t, "s1", "a.bam"),
			"a.bam":    []byte("a"),
			"old.bam":  []byte("old"),
		},
	})
	s.Delete("old.bam")
	if err := l.CheckDocuments(s); err != nil {
		t.Fatalf("deleted artifacts must not be reported: %v", err)
	}

	s.Delete("a.bam")
	fs := failuresOf(t, l.CheckDocuments(s))
	if len(fs) != 1 || fs[0].Category != apperr.FileReferenceDangling ||
		fs[0].Message != "Phenopacket contained a file entry 'a.bam' that is referencing a deleted artifact of the dataset" {
		t.Errorf("failures = %+v", fs)
	}
}

func TestDocumentsDanglingAndMissingURI(t *testing.T) {
	doc := []byte(`{"subject":{"id":"s1"},"files":[{"uri":"file://nope.bam"},{"fileAttributes":{"x":"y"}}]}`)
	l, s := structureOf(t, map[string]map[string][]byte{"001": {"doc.json": doc}})
	fs := failuresOf(t, l.CheckDocuments(s))
	if len(fs) != 2 {
		t.Fatalf("failures = %+v", fs)
	}
	if fs[0].Message != "Phenopacket contained a file entry 'file://nope.bam' that is referencing a non-existent artifact in the dataset" {
		t.Errorf("failure 0 = %+v", fs[0])
	}
	if fs[1].Message != MsgFileNoURI || fs[1].Category != apperr.FileReferenceInvalid {
		t.Errorf("failure 1 = %+v", fs[1])
	}
}

func TestDocumentsCohortUnrecognised(t *testing.T) {
	l, s := structureOf(t, map[string]map[string][]byte{
		"001": {"cohort.json": []byte(`{"id":"c","description":"d","members":[]}`)},
	})
	fs := failuresOf(t, l.CheckDocuments(s))
	if len(fs) != 1 || fs[0].Category != apperr.DocumentUnrecognized || fs[0].Message != MsgUnrecognised {
		t.Errorf("failures = %+v", fs)
	}
}

func TestDocumentsCompanionSuffixes(t *testing.T) {
	files := map[string][]byte{
		"doc.json":  testutil.Individual(t, "s1", "a.vcf"),
		"a.vcf":     []byte("v"),
		"a.vcf.csi": []byte("i"),
	}
	l, s := structureOf(t, map[string]map[string][]byte{"001": files})
	if err := l.CheckDocuments(s); err == nil {
		t.Fatal("expected .csi to be unreferenced by default")
	}
	l, s = structureOf(t, map[string]map[string][]byte{"001": files}, WithCompanionSuffixes(".csi"))
	if err := l.CheckDocuments(s); err != nil {
		t.Errorf("unexpected failures: %v", err)
	}
}

func TestArtifactName(t *testing.T) {
	cases := map[string]string{
		"file://a.bam":     "a.bam",
		"file:/a.bam":      "a.bam",
		"file://dir/a.bam": "dir/a.bam",
		"a.bam":            "a.bam",
		"file:///abs.bam":  "",
		"/abs.bam":         "",
		"s3://b/a.bam":     "",
		"https://h/a.bam":  "",
		"file://":          "",
	}
	for uri, want := range cases {
		got, ok := artifactName(uri)
		if got != want || ok != (want != "") {
			t.Errorf("artifactName(%q) = %q, %v", uri, got, ok)
		}
	}
}

func TestAssembleIndividualWithConsent(t *testing.T) {
	consent := testutil.Consent(t, "GRU")
	doc := []byte(`{
		"id": "pp1",
		"subject": {"id": "s1"},
		"files": [
			{"uri": "file://a.bam", "fileAttributes": {"fileFormat": "BAM"}},
			{"uri": "consent.json"}
		],
		"biosamples": [{"id": "b1", "files": [{"uri": "b.vcf"}]}]
	}`)
	_, s := structureOf(t, map[string]map[string][]byte{
		"001": {"doc.json": doc, "a.bam": []byte("old"), "b.vcf": []byte("v"), "consent.json": consent},
		"002": {"a.bam": []byte("new")},
	})

	ds, err := Assemble(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Individuals) != 1 || len(ds.Families) != 0 {
		t.Fatalf("dataset = %+v", ds)
	}
	ind := ds.Individuals[0]
	if string(ind.Consent) != `{"dataUse":{"code":"GRU"},"schemaMajorVersion":1}` {
		t.Errorf("consent = %s", ind.Consent)
	}
	if len(ind.Files) != 1 {
		t.Fatalf("files = %+v", ind.Files)
	}
	f := ind.Files[0]
	if f.Name != "a.bam" || f.Artifact.Batch != "002" || f.Artifact.Size != 3 {
		t.Errorf("file = %+v", f)
	}
	if f.Artifact.Checksums[checksum.MD5] != checksum.MD5Hex([]byte("new")) {
		t.Errorf("checksums = %v", f.Artifact.Checksums)
	}
	if len(f.Artifact.URIs) != 1 || f.Artifact.URIs[0] != "mem:///r1/002/a.bam" {
		t.Errorf("uris = %v", f.Artifact.URIs)
	}
	if f.FileAttributes["fileFormat"] != "BAM" {
		t.Errorf("attributes = %v", f.FileAttributes)
	}
	if len(ind.Biosamples) != 1 || ind.Biosamples[0].Files[0].Name != "b.vcf" || ind.Biosamples[0].Consent != nil {
		t.Errorf("biosamples = %+v", ind.Biosamples)
	}

	data, err := json.Marshal(ind)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "consent.json") || !strings.Contains(string(data), `"uri":"a.bam"`) {
		t.Errorf("json = %s", data)
	}
}

func TestAssembleFamily(t *testing.T) {
	fam := []byte(`{
		"id": "fam1",
		"proband": {"subject": {"id": "s1"}, "files": [{"uri": "p.bam"}, {"uri": "c1.json"}]},
		"relatives": [{"subject": {"id": "s2"}, "files": [{"uri": "r.bam"}]}],
		"files": [{"uri": "ped.vcf"}, {"uri": "c2.json"}],
		"pedigree": {"persons": []}
	}`)
	_, s := structureOf(t, map[string]map[string][]byte{
		"001": {
			"fam.json": fam,
			"p.bam":    []byte("p"),
			"r.bam":    []byte("r"),
			"ped.vcf":  []byte("ped"),
			"c1.json":  testutil.Consent(t, "proband"),
			"c2.json":  testutil.Consent(t, "family"),
		},
	})
	ds, err := Assemble(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Families) != 1 || len(ds.Individuals) != 0 {
		t.Fatalf("dataset = %+v", ds)
	}
	f := ds.Families[0]
	if f.ID != "fam1" || len(f.Files) != 1 || f.Files[0].Name != "ped.vcf" {
		t.Errorf("family = %+v", f)
	}
	if !strings.Contains(string(f.Consent), "family") || !strings.Contains(string(f.Proband.Consent), "proband") {
		t.Errorf("consents = %s / %s", f.Consent, f.Proband.Consent)
	}
	if len(f.Proband.Files) != 1 || len(f.Relatives) != 1 || f.Relatives[0].Files[0].Name != "r.bam" {
		t.Errorf("members = %+v / %+v", f.Proband, f.Relatives)
	}
	if _, ok := f.Extra["pedigree"]; !ok {
		t.Error("pedigree dropped")
	}
}

func TestAssembleConsentConflict(t *testing.T) {
	doc := testutil.Individual(t, "s1", "c1.json", "c2.json")
	_, s := structureOf(t, map[string]map[string][]byte{
		"001": {"doc.json": doc, "c1.json": testutil.Consent(t, "a"), "c2.json": testutil.Consent(t, "b")},
	})
	_, err := Assemble(s)
	fs := failuresOf(t, err)
	if len(fs) != 1 || fs[0].Category != apperr.ConsentConflict || fs[0].Message != MsgConsentConflict {
		t.Errorf("failures = %+v", fs)
	}
	if !strings.Contains(fs[0].Detail, apperr.ErrConsentConflict.Error()) {
		t.Errorf("detail = %q", fs[0].Detail)
	}
}

func TestCheckProducesDataReport(t *testing.T) {
	m := storage.NewMemory("/r1")
	testutil.MemoryBatch(m, "001", map[string][]byte{
		"doc.json": testutil.Individual(t, "s1", "a.bam"),
		"a.bam":    []byte("a"),
	})
	res, err := memoryLoader(map[string]storage.Backend{"/r1": m}).Check(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(res.Report())
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]json.RawMessage
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if string(got["state"]) != `"data"` {
		t.Errorf("state = %s", got["state"])
	}
	var artifacts map[string][]json.RawMessage
	if err := json.Unmarshal(got["artifacts"], &artifacts); err != nil || len(artifacts) != 2 {
		t.Errorf("artifacts = %s", got["artifacts"])
	}
	if !strings.Contains(string(got["dataset"]), `"families":[]`) || !strings.Contains(string(got["dataset"]), `"s1"`) {
		t.Errorf("dataset = %s", got["dataset"])
	}
}

func TestCheckStopsOnDocumentFailure(t *testing.T) {
	m := storage.NewMemory("/r1")
	testutil.MemoryBatch(m, "001", map[string][]byte{"orphan.bam": []byte("a")})
	_, err := memoryLoader(map[string]storage.Backend{"/r1": m}).Check(context.Background(), true)
	e, ok := apperr.As(err)
	if !ok || e.Label != LabelDocuments {
		t.Fatalf("err = %v", err)
	}
}
