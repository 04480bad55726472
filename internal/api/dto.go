package api

import (
	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/checkservice"
	"github.com/starford/pfdl/internal/index"
)

// ArtifactDetail is the current version of an artifact with its history
// (aliased from the domain layer).
type ArtifactDetail = checkservice.ArtifactDetail

// ArtifactListResponse wraps paginated artifact listings.
type ArtifactListResponse struct {
	Artifacts []index.ArtifactRow `json:"artifacts" validate:"required"`
	Total     int                 `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// FailuresResponse lists the failures of the latest failing check. Label
// is empty after a passing check.
type FailuresResponse struct {
	Label    string           `json:"label" example:"Phenopackets invalid"`
	Failures []apperr.Failure `json:"failures" validate:"required"`
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
