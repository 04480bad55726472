package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/checkservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *checkservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *checkservice.Service) *Handler {
	return &Handler{svc: svc}
}

// artifactName extracts the artifact name from the URL. Supports encoded
// characters from OpenAPI clients.
func artifactName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNoResult):
		writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	default:
		if agg, ok := apperr.As(err); ok {
			writeJSON(w, http.StatusConflict, agg.Report())
			return
		}
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// Report handles GET /api/report.
//
//	@Summary		Report of the latest check
//	@Tags			check
//	@Produce		json
//	@Param			format	query		string	false	"Encoding"	Enums(json, canonical, cbor)
//	@Success		200		{object}	loader.Report
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/report [get]
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Report()
	if err != nil {
		writeServiceError(w, "report", err)
		return
	}
	writeReport(w, r, http.StatusOK, rep)
}

// Check handles POST /api/check. The check runs within the request and its
// report is returned whether it passed or not.
//
//	@Summary		Run a check now
//	@Tags			check
//	@Produce		json
//	@Param			format	query		string	false	"Encoding"	Enums(json, canonical, cbor)
//	@Success		200		{object}	loader.Report
//	@Security		BearerAuth
//	@Router			/check [post]
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Run(r.Context())
	if err != nil {
		if agg, ok := apperr.As(err); ok {
			writeReport(w, r, http.StatusOK, agg.Report())
			return
		}
		writeServiceError(w, "check", err)
		return
	}
	writeReport(w, r, http.StatusOK, res.Report())
}

// Failures handles GET /api/failures.
//
//	@Summary		Failures of the latest failing check
//	@Tags			check
//	@Produce		json
//	@Success		200	{object}	FailuresResponse
//	@Security		BearerAuth
//	@Router			/failures [get]
func (h *Handler) Failures(w http.ResponseWriter, r *http.Request) {
	label, failures, err := h.svc.Failures(r.Context())
	if err != nil {
		writeServiceError(w, "failures", err)
		return
	}
	writeJSON(w, http.StatusOK, FailuresResponse{Label: label, Failures: nonNilSlice(failures)})
}

// Dataset handles GET /api/dataset.
//
//	@Summary		Dataset assembled by the latest passing check
//	@Tags			check
//	@Produce		json
//	@Success		200	{object}	models.Dataset
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	apperr.Report
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dataset [get]
func (h *Handler) Dataset(w http.ResponseWriter, r *http.Request) {
	ds, err := h.svc.Dataset()
	if err != nil {
		writeServiceError(w, "dataset", err)
		return
	}
	writeReport(w, r, http.StatusOK, ds)
}

// ListArtifacts handles GET /api/artifacts. With q it searches the index,
// otherwise it pages through every artifact in name order.
//
//	@Summary		List or search indexed artifacts
//	@Tags			artifacts
//	@Produce		json
//	@Param			q		query		string	false	"Search query"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	ArtifactListResponse
//	@Security		BearerAuth
//	@Router			/artifacts [get]
func (h *Handler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	if query := q.Get("q"); query != "" {
		results, err := h.svc.Search(r.Context(), query, limit)
		if err != nil {
			writeServiceError(w, "search", err)
			return
		}
		writeJSON(w, http.StatusOK, SearchResponse{Results: nonNilSlice(results)})
		return
	}

	rows, total, err := h.svc.ListArtifacts(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, "list artifacts", err)
		return
	}
	writeJSON(w, http.StatusOK, ArtifactListResponse{Artifacts: nonNilSlice(rows), Total: total})
}

// GetArtifact handles GET /api/artifacts/{name}.
//
//	@Summary		Get an artifact with its version history
//	@Tags			artifacts
//	@Produce		json
//	@Param			name	path		string	true	"Artifact name"
//	@Success		200		{object}	ArtifactDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/artifacts/{name} [get]
func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	name := artifactName(r)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	detail, err := h.svc.Artifact(r.Context(), name)
	if err != nil {
		writeServiceError(w, "get artifact", err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
