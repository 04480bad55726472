// Package checkservice runs dataset checks on demand, keeps the outcome of
// the latest one, mirrors it into the artifact index and announces it to
// event subscribers.
package checkservice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/index"
	"github.com/starford/pfdl/internal/loader"
	"github.com/starford/pfdl/internal/models"
	"github.com/starford/pfdl/internal/sse"
)

// Checker runs one check over the configured roots.
type Checker interface {
	Check(ctx context.Context, documents bool) (*loader.Result, error)
}

// Publisher receives a summary of every completed check.
type Publisher interface {
	PublishCheck(summary sse.CheckSummary)
}

// Outcome is the result of one check run.
type Outcome struct {
	Result   *loader.Result
	Err      error
	Started  time.Time
	Finished time.Time
}

// Service coordinates checks, the index and event publishing.
type Service struct {
	checker   Checker
	db        index.ArtifactIndex
	publisher Publisher
	logger    *slog.Logger
	documents bool

	run    sync.Mutex
	mu     sync.RWMutex
	latest *Outcome
}

// NewService creates a check service. db and publisher may be nil.
func NewService(checker Checker, db index.ArtifactIndex, publisher Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{checker: checker, db: db, publisher: publisher, logger: logger, documents: true}
}

// SkipDocuments makes every run stop after the structure check.
func (s *Service) SkipDocuments() *Service {
	s.documents = false
	return s
}

// Run performs a check and records its outcome. Concurrent calls are
// serialised. A cancelled run leaves the previous outcome in place.
func (s *Service) Run(ctx context.Context) (*loader.Result, error) {
	s.run.Lock()
	defer s.run.Unlock()

	out := &Outcome{Started: time.Now().UTC()}
	out.Result, out.Err = s.checker.Check(ctx, s.documents)
	out.Finished = time.Now().UTC()
	if errors.Is(out.Err, context.Canceled) || errors.Is(out.Err, context.DeadlineExceeded) {
		return nil, out.Err
	}
	if out.Err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.mu.Lock()
	s.latest = out
	s.mu.Unlock()

	s.mirror(out)
	summary := summarize(out)
	s.logger.Info("check: completed",
		slog.String("state", summary.State),
		slog.Int("failures", summary.Failures),
		slog.Int("artifacts", summary.Artifacts),
		slog.Duration("took", out.Finished.Sub(out.Started)))
	if s.publisher != nil {
		s.publisher.PublishCheck(summary)
	}
	return out.Result, out.Err
}

// mirror writes the outcome into the index. Index problems are logged and
// never change the outcome.
func (s *Service) mirror(out *Outcome) {
	if s.db == nil {
		return
	}
	if out.Err != nil {
		label, failures := "", []apperr.Failure(nil)
		if agg, ok := apperr.As(out.Err); ok {
			label, failures = agg.Label, agg.Failures
		} else {
			label = out.Err.Error()
		}
		if err := s.db.ReplaceFailures(label, failures); err != nil {
			s.logger.Warn("check: store failures", slog.String("error", err.Error()))
		}
		return
	}
	st := out.Result.Structure
	stats, err := index.Sync(s.db, st.Artifacts, st.Deleted, s.logger)
	if err != nil {
		s.logger.Warn("check: index sync", slog.String("error", err.Error()))
		return
	}
	if err := s.db.ReplaceFailures("", nil); err != nil {
		s.logger.Warn("check: clear failures", slog.String("error", err.Error()))
	}
	s.logger.Debug("check: index synced",
		slog.Int("upserted", stats.Upserted),
		slog.Int("removed", stats.Removed),
		slog.Int("unchanged", stats.Unchanged))
}

func summarize(out *Outcome) sse.CheckSummary {
	if out.Err != nil {
		sum := sse.CheckSummary{State: "error", Label: out.Err.Error()}
		if agg, ok := apperr.As(out.Err); ok {
			sum.Label = agg.Label
			sum.Failures = len(agg.Failures)
		}
		return sum
	}
	sum := sse.CheckSummary{State: "data", Artifacts: len(out.Result.Structure.Artifacts)}
	if ds := out.Result.Dataset; ds != nil {
		sum.Individuals = len(ds.Individuals)
		sum.Families = len(ds.Families)
	}
	return sum
}

// Latest returns the outcome of the most recent run, or ErrNoResult.
func (s *Service) Latest() (*Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, apperr.ErrNoResult
	}
	return s.latest, nil
}

// Report returns the printable form of the latest outcome: a loader.Report
// after a passing check, an apperr.Report after a failing one. Errors that
// are not failure aggregates are returned as is.
func (s *Service) Report() (any, error) {
	out, err := s.Latest()
	if err != nil {
		return nil, err
	}
	if out.Err != nil {
		if agg, ok := apperr.As(out.Err); ok {
			return agg.Report(), nil
		}
		return nil, out.Err
	}
	return out.Result.Report(), nil
}

// Dataset returns the assembled dataset of the latest passing check.
func (s *Service) Dataset() (*models.Dataset, error) {
	out, err := s.Latest()
	if err != nil {
		return nil, err
	}
	if out.Err != nil {
		return nil, out.Err
	}
	if out.Result.Dataset == nil {
		return nil, apperr.ErrNotFound
	}
	return out.Result.Dataset, nil
}

// Search delegates artifact search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if s.db == nil {
		return nil, apperr.ErrNoResult
	}
	return s.db.Search(query, limit)
}

// ListArtifacts returns a page of the indexed artifacts.
func (s *Service) ListArtifacts(_ context.Context, limit, offset int) ([]index.ArtifactRow, int, error) {
	if s.db == nil {
		return nil, 0, apperr.ErrNoResult
	}
	return s.db.ListArtifacts(limit, offset)
}

// ArtifactDetail is the current version of one artifact and every version
// recorded for it.
type ArtifactDetail struct {
	index.ArtifactRow
	History []index.VersionRow `json:"history"`
}

// Artifact returns one indexed artifact with its history.
func (s *Service) Artifact(_ context.Context, name string) (*ArtifactDetail, error) {
	if s.db == nil {
		return nil, apperr.ErrNoResult
	}
	row, err := s.db.GetArtifact(name)
	if err != nil {
		return nil, err
	}
	vs, err := s.db.History(name)
	if err != nil {
		return nil, err
	}
	return &ArtifactDetail{ArtifactRow: *row, History: vs}, nil
}

// Failures returns the failures stored by the latest failing check.
func (s *Service) Failures(_ context.Context) (string, []apperr.Failure, error) {
	if s.db == nil {
		return "", nil, apperr.ErrNoResult
	}
	return s.db.Failures()
}
