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

	"github.com/starford/haven/internal/bridge"
	"github.com/starford/haven/internal/mockstore"
	"github.com/starford/haven/internal/notify"
	"github.com/starford/haven/internal/sse"
)

// NewLogger builds the structured JSON logger used by every command.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// Run starts the bridge server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := NewLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storefront", cfg.Storefront.BaseURL),
		slog.String("state_dir", cfg.Session.StateDir),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker()
	defer broker.Close()

	var renderer notify.Renderer = sse.Notifications{B: broker}
	if app.terminal != nil {
		renderer = notify.Multi{renderer, notify.NewTerminal(app.terminal)}
	}

	core, err := NewCore(cfg, Surface{
		Renderer:  renderer,
		Navigator: sse.Navigator{B: broker},
		Display:   sse.Badge{B: broker},
	}, logger)
	if err != nil {
		return err
	}
	defer core.Close()

	apiRouter := bridge.NewRouter(bridge.Deps{
		Cart:     core.Cart,
		Buttons:  core.Buttons,
		Badge:    core.Badge,
		Session:  core.Session,
		Accounts: core.Client,
		Notifier: core.Notifier,
		Events:   broker,
		Logger:   logger,
	}, cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	mountHealth(r)

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}
	// Open event streams never go idle; end them so Shutdown can finish.
	httpServer.RegisterOnShutdown(broker.Close)

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	return serve(ctx, logger, httpServer, func(gCtx context.Context) error {
		// Follow logins and logouts made by other processes (e.g. `haven login`).
		err := core.Session.Watch(gCtx, func(authenticated bool) {
			broker.Publish(sse.Event{
				Type: sse.TypeSessionChanged,
				Data: map[string]bool{"authenticated": authenticated},
			})
			if authenticated {
				core.Badge.Refresh(gCtx)
			} else {
				core.Badge.Reset()
			}
		})
		if err != nil {
			logger.Warn("session watcher unavailable", slog.String("error", err.Error()))
		}
		return nil
	})
}

// RunMockstore starts the development storefront with the given options.
func RunMockstore(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := NewLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	db, err := mockstore.Open(cfg.Mockstore.SQLitePath)
	if err != nil {
		return fmt.Errorf("init mockstore: %w", err)
	}
	defer db.Close()

	srv := mockstore.NewServer(db, mockstore.NewTokens(cfg.Mockstore.JWTSecret, cfg.Mockstore.TokenTTL), logger)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	mountHealth(r)
	r.Mount("/", srv.Router())

	httpServer := &http.Server{
		Addr:    cfg.Mockstore.Address(),
		Handler: r,
	}

	logger.Info("Mock storefront starting...",
		slog.String("http_address", cfg.Mockstore.Address()),
		slog.String("sqlite_path", cfg.Mockstore.SQLitePath))

	return serve(ctx, logger, httpServer, nil)
}

// Health check endpoints (unauthenticated).
func mountHealth(r chi.Router) {
	ok := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
	r.Get("/health/live", ok)
	r.Get("/health/ready", ok)
}

// serve runs httpServer and an optional background task until a signal
// arrives or ctx is cancelled, then shuts down gracefully.
func serve(ctx context.Context, logger *slog.Logger, httpServer *http.Server, background func(context.Context) error) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gCtx := errgroup.WithContext(ctx)

	if background != nil {
		g.Go(func() error {
			return background(gCtx)
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", httpServer.Addr))
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
		stop()

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
