package internal

import (
	"context"
	"errors"
	"io"

	"github.com/starford/pfdl/internal/apperr"
	"github.com/starford/pfdl/internal/codec"
)

// ErrFailureReport is returned by Check after it has printed a failure report.
var ErrFailureReport = errors.New("check reported failures")

// CheckOptions controls a single command-line check.
type CheckOptions struct {
	Format        codec.Format
	SkipDocuments bool
	Out           io.Writer
}

// Check runs one check over the configured roots and writes its report to
// opts.Out. Errors that are not failure aggregates are returned without a
// report.
func Check(ctx context.Context, opts CheckOptions, appOpts ...Option) error {
	app, err := newApplication(appOpts)
	if err != nil {
		return err
	}
	cfg := app.config
	if opts.Format == "" {
		opts.Format = codec.JSON
	}

	logger := NewLogger(app.logOut, cfg.App.LogLevel)
	res, err := cfg.NewLoader(cfg.Roots, logger).Check(ctx, !opts.SkipDocuments)
	if err != nil {
		agg, ok := apperr.As(err)
		if !ok {
			return err
		}
		if werr := codec.Write(opts.Out, opts.Format, agg.Report()); werr != nil {
			return werr
		}
		return ErrFailureReport
	}
	return codec.Write(opts.Out, opts.Format, res.Report())
}
