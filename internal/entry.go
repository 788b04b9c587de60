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
	"sort"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/dbfolder/internal/api"
	"github.com/starford/dbfolder/internal/diskconfig"
	"github.com/starford/dbfolder/internal/index"
	"github.com/starford/dbfolder/internal/logging"
	"github.com/starford/dbfolder/internal/mcpserver"
	"github.com/starford/dbfolder/internal/noteservice"
	"github.com/starford/dbfolder/internal/persist"
	"github.com/starford/dbfolder/internal/query"
	"github.com/starford/dbfolder/internal/settings"
	"github.com/starford/dbfolder/internal/sse"
	"github.com/starford/dbfolder/internal/storage"
	"github.com/starford/dbfolder/internal/view"
)

// services are the components shared by every entry point.
type services struct {
	logger  *slog.Logger
	store   storage.Provider
	db      *index.DB
	tracker *persist.Tracker
	global  *settings.GlobalStore

	bulkLimit int
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// bootstrap opens storage, the index and the global settings, and wires
// the settings to the logger level.
func (a *application) bootstrap() (*services, error) {
	cfg := a.config

	// Initialize structured JSON logger.
	logger, ctrl := logging.New(a.logOutput, cfg.App.LogLevel)

	logger.Info("Configuration loaded",
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("settings_path", cfg.Settings.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	// Initialize storage.
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	global, err := settings.Open(cfg.Settings.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("init settings: %w", err)
	}
	if err := global.ConfigureLogging(ctrl); err != nil {
		logger.Warn("invalid logging settings", slog.String("error", err.Error()))
	}

	// Initialize SQLite index.
	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	// Run initial sync.
	if _, err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	return &services{
		logger:  logger,
		store:   store,
		db:      db,
		tracker: persist.NewTracker(logger),
		global:  global,

		bulkLimit: cfg.Vault.BulkWriteLimit,
	}, nil
}

func (s *services) views(n view.Notifier) *view.Manager {
	return view.NewManager(view.Deps{
		Store:   s.store,
		Index:   s.db,
		Query:   query.NewService(s.db, s.store, s.logger),
		Global:  s.global,
		Tracker: s.tracker,
		Logger:  s.logger,

		BulkLimit: s.bulkLimit,
	}, n)
}

// close waits for pending note writes and closes the index.
func (s *services) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.tracker.Flush(ctx); err != nil {
		s.logger.Error("pending writes lost", slog.String("error", err.Error()))
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("close index", slog.String("error", err.Error()))
	}
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	s, err := app.bootstrap()
	if err != nil {
		return err
	}
	defer s.close()
	logger := s.logger

	// SSE broker.
	broker := sse.NewBroker(cfg.SSE.RefreshThrottle)
	defer broker.Close()
	s.tracker.OnFailure(broker.PersistFailed)

	views := s.views(broker)
	svc := noteservice.NewService(s.store, s.db, s.global, logger)

	// Build API handler and router.
	h := api.NewHandler(views, svc, logger)
	apiRouter := api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		if err := s.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
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

	// Start file watcher; open views follow vault changes.
	g.Go(func() error {
		return index.Watch(gCtx, s.db, s.store, cfg.Vault.Path, logger, func(kind, path string) {
			views.HandleNoteEvent(gCtx, kind, path)
		})
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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr unless
// another output is set.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	s, err := app.bootstrap()
	if err != nil {
		return err
	}
	defer s.close()

	views := s.views(nil)
	svc := noteservice.NewService(s.store, s.db, s.global, s.logger)

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		err := index.Watch(watchCtx, s.db, s.store, app.config.Vault.Path, s.logger, func(kind, path string) {
			views.HandleNoteEvent(watchCtx, kind, path)
		})
		if err != nil {
			s.logger.Warn("watcher stopped", slog.String("error", err.Error()))
		}
	}()

	s.logger.Info("MCP server starting on stdio")
	return mcpserver.New(views, svc).ServeStdio()
}

// Repair loads the database note at notePath, prints the repairs the
// marshalling pipeline applied to out and rewrites the block.
func Repair(ctx context.Context, notePath string, out io.Writer, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	s, err := app.bootstrap()
	if err != nil {
		return err
	}
	defer s.close()

	cfg, err := diskconfig.Load(ctx, s.store, s.tracker, s.logger, notePath)
	if err != nil {
		return fmt.Errorf("repair: %w", err)
	}
	if err := writeWarnings(out, notePath, cfg.Warnings()); err != nil {
		return err
	}
	cfg.Repair()
	if err := cfg.Flush(ctx); err != nil {
		return fmt.Errorf("repair: %w", err)
	}
	if st := cfg.Status(); st.Status == persist.StatusFailed {
		return fmt.Errorf("repair: write %s: %s", notePath, st.Error)
	}
	_, err = fmt.Fprintf(out, "%s: block rewritten\n", notePath)
	return err
}

func writeWarnings(out io.Writer, notePath string, warnings map[string][]string) error {
	if len(warnings) == 0 {
		_, err := fmt.Fprintf(out, "%s: no repairs needed\n", notePath)
		return err
	}
	keys := make([]string, 0, len(warnings))
	for k := range warnings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, w := range warnings[k] {
			if _, err := fmt.Fprintf(out, "%s: %s: %s\n", notePath, k, w); err != nil {
				return err
			}
		}
	}
	return nil
}
