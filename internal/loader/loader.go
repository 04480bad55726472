// Package loader runs a dataset check: it opens the roots, reconciles their
// batches into an artifact history, validates the phenopackets against that
// history and assembles the dataset.
package loader

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/batch"
	"github.com/starford/pfdl/internal/storage"
)

// DefaultConcurrency bounds the storage operations in flight per stage.
const DefaultConcurrency = 8

// DefaultCompanionSuffixes name the index files that travel with a
// referenced artifact without being referenced themselves.
var DefaultCompanionSuffixes = []string{".bai", ".tbi"}

// Root validation messages.
const (
	MsgRootNotAbsolute  = "Root path not recognised as 'absolute' path"
	MsgRootInaccessible = "Root path not accessible"
	MsgRootUnsupported  = "Root location not recognised as a local path or object storage URI"

	LabelRoots = "Root paths invalid"
)

// Opener opens the storage backend of one root.
type Opener func(ctx context.Context, root string) (storage.Backend, error)

// Loader checks a dataset spread over a fixed list of roots.
type Loader struct {
	roots       []string
	order       batch.Order
	concurrency int
	logger      *slog.Logger
	storageCfg  storage.Config
	open        Opener
	companions  []string
}

// New creates a loader for roots. Roots are used in the order given; the
// first root supplies the representative artifact of every identity.
func New(roots []string, opts ...Option) *Loader {
	l := &Loader{
		roots:       slices.Clone(roots),
		order:       batch.LexicalOrder,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
		companions:  DefaultCompanionSuffixes,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.open == nil {
		cfg := l.storageCfg
		l.open = func(ctx context.Context, root string) (storage.Backend, error) {
			return storage.Open(ctx, root, cfg)
		}
	}
	return l
}

// Roots returns the configured roots.
func (l *Loader) Roots() []string { return slices.Clone(l.roots) }

// CheckStructure reconciles every batch under every root into the artifact
// history. Stages run in order and the first stage to report failures ends
// the check.
func (l *Loader) CheckStructure(ctx context.Context) (*Structure, error) {
	roots, err := l.openRoots(ctx)
	if err != nil {
		return nil, l.stageFailed("roots", err)
	}
	l.stageDone("roots", slog.Int("roots", len(roots)))

	groups, err := batch.GroupByName(ctx, roots, l.order, l.concurrency)
	if err != nil {
		return nil, l.stageFailed("group", err)
	}
	l.stageDone("group", slog.Int("groups", len(groups)))

	if err := batch.LoadEntries(ctx, groups, l.concurrency); err != nil {
		return nil, l.stageFailed("entries", err)
	}
	l.stageDone("entries")

	if err := batch.LoadManifests(ctx, groups, l.concurrency); err != nil {
		return nil, l.stageFailed("manifests", err)
	}
	l.stageDone("manifests")

	s, err := l.buildHistory(ctx, groups)
	if err != nil {
		return nil, l.stageFailed("history", err)
	}
	l.stageDone("history", slog.Int("artifacts", len(s.Artifacts)))
	return s, nil
}

func (l *Loader) stageDone(stage string, attrs ...any) {
	l.logger.Debug("loader: stage complete", append([]any{slog.String("stage", stage)}, attrs...)...)
}

func (l *Loader) stageFailed(stage string, err error) error {
	attrs := []any{slog.String("stage", stage), slog.String("error", err.Error())}
	if e, ok := apperr.As(err); ok {
		attrs = append(attrs, slog.Int("failures", len(e.Failures)))
	}
	l.logger.Warn("loader: stage failed", attrs...)
	return err
}

// openRoots opens every root concurrently. All invalid roots are reported
// together.
func (l *Loader) openRoots(ctx context.Context) ([]*batch.Root, error) {
	out := make([]*batch.Root, len(l.roots))
	var (
		mu       sync.Mutex
		failures []apperr.Failure
	)
	g, gctx := errgroup.WithContext(ctx)
	if l.concurrency > 0 {
		g.SetLimit(l.concurrency)
	}
	for i, root := range l.roots {
		g.Go(func() error {
			backend, err := l.open(gctx, root)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				mu.Lock()
				failures = append(failures, rootFailure(root, err))
				mu.Unlock()
				return nil
			}
			out[i] = batch.NewRoot(backend)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(failures) > 0 {
		return nil, apperr.Fail(LabelRoots, failures...)
	}
	return out, nil
}

func rootFailure(root string, err error) apperr.Failure {
	msg := MsgRootInaccessible
	switch {
	case errors.Is(err, apperr.ErrNotAbsolute):
		msg = MsgRootNotAbsolute
	case errors.Is(err, apperr.ErrInvalidRoot):
		msg = MsgRootUnsupported
	}
	return apperr.Failure{Message: msg, Category: apperr.RootInvalid, Root: root}.WithDetail(err)
}
