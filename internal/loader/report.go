package loader

import (
	"context"
	"log/slog"

	"github.com/starford/pfdl/internal/artifact"
	"github.com/starford/pfdl/internal/models"
)

// Result is the outcome of a check that found no failures.
type Result struct {
	Structure *Structure
	// Dataset is nil when phenopackets were not checked.
	Dataset *models.Dataset
}

// Report is the printable form of a Result.
type Report struct {
	State     string                      `json:"state"`
	Artifacts map[string]artifact.History `json:"artifacts"`
	Dataset   *models.Dataset             `json:"dataset,omitempty"`
}

// Report converts the result into its printable form.
func (r *Result) Report() Report {
	return Report{State: "data", Artifacts: r.Structure.Artifacts, Dataset: r.Dataset}
}

// Check runs CheckStructure and, when documents is set, CheckDocuments and
// Assemble. Failures are returned as *apperr.Error.
func (l *Loader) Check(ctx context.Context, documents bool) (*Result, error) {
	s, err := l.CheckStructure(ctx)
	if err != nil {
		return nil, err
	}
	res := &Result{Structure: s}
	if !documents {
		return res, nil
	}
	if err := l.CheckDocuments(s); err != nil {
		return nil, l.stageFailed("documents", err)
	}
	l.stageDone("documents")
	ds, err := Assemble(s)
	if err != nil {
		return nil, l.stageFailed("assemble", err)
	}
	l.stageDone("assemble", slog.Int("individuals", len(ds.Individuals)), slog.Int("families", len(ds.Families)))
	res.Dataset = ds
	return res, nil
}
