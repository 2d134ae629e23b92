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

	"github.com/starford/folio/internal/api"
	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/export"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/mcpserver"
	"github.com/starford/folio/internal/project"
	"github.com/starford/folio/internal/projectservice"
	"github.com/starford/folio/internal/sse"
)

const manuscriptThrottle = 2 * time.Second

// Session is an open project together with its search index.
type Session struct {
	Service *projectservice.Service
	Project *project.Project
	DB      *index.DB
}

// Close releases the search index.
func (s *Session) Close() error {
	return s.DB.Close()
}

// NewLogger builds the JSON logger used by every entrypoint.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Open opens the configured project, brings its search index up to date and
// returns a service over both.
func Open(cfg *Config, logger *slog.Logger, opts ...projectservice.Option) (*Session, error) {
	proj, err := project.Open(cfg.Project.Path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("no project at %s (create one with `folio new`): %w", cfg.Project.Path, err)
		}
		return nil, fmt.Errorf("open project: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	if err := index.Sync(db, proj.Store(), logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	exporter := export.New(
		export.WithWorkers(cfg.Export.Workers),
		export.WithLogger(logger),
	)
	base := []projectservice.Option{
		projectservice.WithExporter(exporter),
		projectservice.WithExportDir(cfg.Export.OutputDir),
		projectservice.WithLogger(logger),
	}
	svc := projectservice.NewService(proj, db, append(base, opts...)...)

	return &Session{Service: svc, Project: proj, DB: db}, nil
}

func configure(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) loggerOr(w io.Writer) *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return NewLogger(w, a.config.App.LogLevel)
}

// Run starts the HTTP API, the SSE stream and the chapter watcher, and blocks
// until ctx is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := configure(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := app.loggerOr(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("project_path", cfg.Project.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Int("export_workers", cfg.Export.Workers),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(manuscriptThrottle)
	defer broker.Close()

	session, err := Open(cfg, logger, projectservice.WithPublisher(broker))
	if err != nil {
		return err
	}
	defer session.Close()

	apiRouter := api.NewRouter(session.Service, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	// Open event streams never go idle on their own.
	httpServer.RegisterOnShutdown(broker.Close)

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(runCtx)

	// Chapter files edited outside the API reach clients through the watcher.
	g.Go(func() error {
		return index.Watch(gCtx, session.DB, session.Project.Store(), logger, broker.PublishFileEvent)
	})

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
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdio. Logs go to stderr since stdout
// carries the protocol.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := configure(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := app.loggerOr(os.Stderr)
	slog.SetDefault(logger)

	session, err := Open(cfg, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	logger.Info("MCP server starting", slog.String("project_path", cfg.Project.Path))
	return mcpserver.New(session.Service).ServeStdio()
}
