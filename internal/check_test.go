package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/starford/pfdl/internal/codec"
	"github.com/starford/pfdl/internal/loader"
	"github.com/starford/pfdl/internal/testutil"
)

func checkConfig(roots ...string) *Config {
	cfg := NewDefaultConfig()
	cfg.Roots = roots
	return cfg
}

func TestCheckPrintsDataReport(t *testing.T) {
	root := t.TempDir()
	testutil.FSBatch(t, root, "001", map[string][]byte{
		"p1.json": testutil.Individual(t, "P1", "P1.bam"),
		"P1.bam":  []byte("reads"),
	})

	var out bytes.Buffer
	err := Check(context.Background(), CheckOptions{Out: &out},
		WithConfig(checkConfig(root)), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	var rep struct {
		State   string          `json:"state"`
		Dataset json.RawMessage `json:"dataset"`
	}
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.State != "data" || len(rep.Dataset) == 0 {
		t.Errorf("report = %s", out.String())
	}
}

func TestCheckSkipDocuments(t *testing.T) {
	root := t.TempDir()
	testutil.FSBatch(t, root, "001", map[string][]byte{"stray.vcf": []byte("variants")})

	var out bytes.Buffer
	err := Check(context.Background(), CheckOptions{Out: &out, SkipDocuments: true, Format: codec.Canonical},
		WithConfig(checkConfig(root)), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if bytes.Contains(out.Bytes(), []byte(`"dataset"`)) || !bytes.HasPrefix(out.Bytes(), []byte(`{"artifacts":`)) {
		t.Errorf("report = %s", out.String())
	}
}

func TestCheckPrintsFailureReport(t *testing.T) {
	root := t.TempDir()
	testutil.FSBatch(t, root, "001", map[string][]byte{"stray.vcf": []byte("variants")})

	var out bytes.Buffer
	err := Check(context.Background(), CheckOptions{Out: &out},
		WithConfig(checkConfig(root)), WithLogOutput(io.Discard))
	if !errors.Is(err, ErrFailureReport) {
		t.Fatalf("err = %v, want ErrFailureReport", err)
	}
	var rep struct {
		State string `json:"state"`
		Error string `json:"error"`
	}
	_ = json.Unmarshal(out.Bytes(), &rep)
	if rep.State != "error" || rep.Error != loader.LabelDocuments {
		t.Errorf("report = %s", out.String())
	}
}

func TestCheckRequiresRoots(t *testing.T) {
	err := Check(context.Background(), CheckOptions{Out: io.Discard}, WithConfig(checkConfig()))
	if err == nil {
		t.Fatal("expected error without roots")
	}
	if err := Check(context.Background(), CheckOptions{Out: io.Discard}); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestCheckServiceHonoursSkipDocuments(t *testing.T) {
	root := t.TempDir()
	testutil.FSBatch(t, root, "001", map[string][]byte{"stray.vcf": []byte("variants")})

	cfg := checkConfig(root)
	cfg.Check.SkipDocuments = true
	logger := NewLogger(io.Discard, cfg.App.LogLevel)
	svc := newCheckService(cfg, cfg.NewLoader(cfg.Roots, logger), nil, nil, logger)

	res, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Dataset != nil {
		t.Errorf("dataset assembled with documents skipped: %+v", res.Dataset)
	}
}
