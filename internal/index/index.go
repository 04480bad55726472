package index

import "github.com/starford/pfdl/internal/apperr"

// ArtifactIndex defines the interface for artifact index operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type ArtifactIndex interface {
	UpsertArtifact(row ArtifactRow, versions []VersionRow) error
	DeleteArtifact(name string) error
	GetArtifact(name string) (*ArtifactRow, error)
	History(name string) ([]VersionRow, error)
	ListArtifacts(limit, offset int) ([]ArtifactRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	AllFingerprints() (map[string]string, error)
	ReplaceFailures(label string, failures []apperr.Failure) error
	Failures() (string, []apperr.Failure, error)
	Close() error
}

// Verify *DB satisfies ArtifactIndex at compile time.
var _ ArtifactIndex = (*DB)(nil)
