package loader

import (
	"log/slog"
	"slices"

	"github.com/starford/pfdl/internal/batch"
	"github.com/starford/pfdl/internal/storage"
)

// Option is a functional option for configuring a Loader.
type Option func(*Loader)

// WithBatchOrder sets the comparator that orders batch names. Batches that
// sort later supersede earlier ones.
func WithBatchOrder(order batch.Order) Option {
	return func(l *Loader) {
		if order != nil {
			l.order = order
		}
	}
}

// WithConcurrency bounds the storage operations in flight per stage.
// Zero or less removes the bound.
func WithConcurrency(n int) Option {
	return func(l *Loader) {
		l.concurrency = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithStorageConfig sets the backend credentials and content limit used by
// the default opener.
func WithStorageConfig(cfg storage.Config) Option {
	return func(l *Loader) {
		l.storageCfg = cfg
	}
}

// WithOpener replaces how roots are opened.
func WithOpener(open Opener) Option {
	return func(l *Loader) {
		l.open = open
	}
}

// WithCompanionSuffixes sets the suffixes of index files that are counted
// as referenced along with the file they index.
func WithCompanionSuffixes(suffixes ...string) Option {
	return func(l *Loader) {
		l.companions = slices.Clone(suffixes)
	}
}
