// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/pfdl/internal/api"
	"github.com/starford/pfdl/internal/checkservice"
	"github.com/starford/pfdl/internal/index"
	"github.com/starford/pfdl/internal/loader"
	"github.com/starford/pfdl/internal/mcpserver"
	"github.com/starford/pfdl/internal/sse"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOut: os.Stderr}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if len(app.config.Roots) == 0 {
		return nil, fmt.Errorf("at least one root is required")
	}
	return app, nil
}

// newCheckService builds the check service shared by serve and MCP modes.
func newCheckService(cfg *Config, l *loader.Loader, db index.ArtifactIndex, pub checkservice.Publisher, logger *slog.Logger) *checkservice.Service {
	svc := checkservice.NewService(l, db, pub, logger)
	if cfg.Check.SkipDocuments {
		svc = svc.SkipDocuments()
	}
	return svc
}

// NewLogger returns the structured JSON logger used by every command.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Run starts serve mode: an initial check, a watcher on local roots that
// re-checks on change, and the HTTP API over the latest result.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := NewLogger(app.logOut, cfg.App.LogLevel)
	slog.SetDefault(logger)

	l := cfg.NewLoader(cfg.Roots, logger)
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.Any("roots", l.Roots()),
		slog.String("index_path", cfg.Index.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize SQLite index.
	db, err := index.Open(cfg.Index.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	svc := newCheckService(cfg, l, db, broker, logger)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := svc.Latest(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"checking"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Checks run one at a time; a change during a check queues one more.
	recheck := make(chan struct{}, 1)
	recheck <- struct{}{}
	g.Go(func() error {
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-recheck:
				if _, err := svc.Run(gCtx); err != nil && gCtx.Err() == nil {
					logger.Warn("check: failed", slog.String("error", err.Error()))
				}
			}
		}
	})

	// Start root watcher with SSE callback.
	if cfg.Watch.Enabled {
		g.Go(func() error {
			return index.Watch(gCtx, cfg.Roots, cfg.Watch.Debounce, logger, func(path string) {
				broker.PublishChange(path)
				select {
				case recheck <- struct{}{}:
				default:
				}
			})
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the errgroup once the server has been shut down so
// the check loop and watcher stop too.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools on stdin/stdout. Checks run on demand.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := NewLogger(app.logOut, cfg.App.LogLevel)
	slog.SetDefault(logger)

	db, err := index.Open(cfg.Index.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	l := cfg.NewLoader(cfg.Roots, logger)
	svc := newCheckService(cfg, l, db, nil, logger)
	logger.Info("MCP server starting", slog.Any("roots", l.Roots()))
	return mcpserver.New(svc, app.version).ServeStdio()
}
