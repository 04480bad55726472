// Package apperr holds the sentinel errors and the aggregated failure model
// shared by every stage of a dataset check.
package apperr

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// Category classifies a single failure record.
type Category string

const (
	RootInvalid                 Category = "root_invalid"
	EntryInvalid                Category = "entry_invalid"
	ManifestMissing             Category = "manifest_missing"
	ManifestMismatchAcrossRoots Category = "manifest_mismatch_across_roots"
	ManifestContentMismatch     Category = "manifest_content_mismatch"
	ManifestUnsupported         Category = "manifest_unsupported"
	ArtifactFetchFailed         Category = "artifact_fetch_failed"
	ChecksumConflict            Category = "checksum_conflict"
	DocumentUnrecognized        Category = "document_unrecognized"
	DocumentFieldMissing        Category = "document_field_missing"
	FileReferenceInvalid        Category = "file_reference_invalid"
	FileReferenceDangling       Category = "file_reference_dangling"
	ArtifactUnreferenced        Category = "artifact_unreferenced"
	ConsentConflict             Category = "consent_conflict"
)

// Failure is one problem found while checking a dataset. Detail carries the
// underlying error text, when there is one.
type Failure struct {
	Message  string   `json:"message"`
	Category Category `json:"category"`
	Root     string   `json:"root,omitempty"`
	Batch    string   `json:"batch,omitempty"`
	Artifact string   `json:"artifact,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

// WithDetail returns a copy of f annotated with err.
func (f Failure) WithDetail(err error) Failure {
	if err != nil {
		f.Detail = err.Error()
	}
	return f
}

// Error aggregates every failure found by one stage of a check.
type Error struct {
	Label    string
	Failures []Failure
}

// Fail builds an aggregated error with its failures in deterministic order.
func Fail(label string, failures ...Failure) *Error {
	out := slices.Clone(failures)
	SortFailures(out)
	return &Error{Label: label, Failures: out}
}

func (e *Error) Error() string {
	switch len(e.Failures) {
	case 0:
		return e.Label
	case 1:
		return fmt.Sprintf("%s: %s", e.Label, e.Failures[0].Message)
	default:
		return fmt.Sprintf("%s: %s (and %d more)", e.Label, e.Failures[0].Message, len(e.Failures)-1)
	}
}

// Report converts the error into its printable form.
func (e *Error) Report() Report {
	specific := e.Failures
	if specific == nil {
		specific = []Failure{}
	}
	return Report{State: "error", Error: e.Label, Specific: specific}
}

// Report is the structured output emitted when a check fails.
type Report struct {
	State    string    `json:"state"`
	Error    string    `json:"error"`
	Specific []Failure `json:"specific"`
}

// As extracts an aggregated error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// SortFailures orders failures by message, root, batch then artifact.
func SortFailures(failures []Failure) {
	slices.SortStableFunc(failures, func(a, b Failure) int {
		return cmp.Or(
			cmp.Compare(a.Message, b.Message),
			cmp.Compare(a.Root, b.Root),
			cmp.Compare(a.Batch, b.Batch),
			cmp.Compare(a.Artifact, b.Artifact),
		)
	})
}
