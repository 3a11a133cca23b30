package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	cfhttp "github.com/lFer17/codebase-gen/internal/adapter/http"
	cfotel "github.com/lFer17/codebase-gen/internal/adapter/otel"
	"github.com/lFer17/codebase-gen/internal/adapter/ws"
	"github.com/lFer17/codebase-gen/internal/config"
	"github.com/lFer17/codebase-gen/internal/logger"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigFile, "YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closer := logger.New(cfg.Logging)
	defer closer.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"storage", cfg.Storage.Driver,
		"max_jobs", cfg.Generation.MaxJobs,
		"max_workers", cfg.Generation.MaxWorkers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := cfotel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	wsHandler := ws.NewHandler(eng.gen, cfg.Server.RequestTimeout)
	if host := originHost(cfg.Server.CORSOrigin); host != "" {
		wsHandler.SetOriginPatterns(host)
	}
	handlers := &cfhttp.Handlers{
		Generation:    eng.gen,
		Archives:      eng.store,
		StorageDriver: cfg.Storage.Driver,
		Connections:   wsHandler.ConnectionCount,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(cfhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cfotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	cfhttp.MountRoutes(r, handlers, wsHandler, cfg.Server.StaticDir)

	addr := ":" + cfg.Server.Port
	// No WriteTimeout: generation streams are long-lived.
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server", "active_jobs", eng.gen.Registry().Len())
	eng.gen.Registry().CancelAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// originHost returns the host[:port] of the configured CORS origin, which is
// also the one cross-site page allowed to open generation sockets.
func originHost(origin string) string {
	if origin == "" || origin == "*" {
		return origin
	}
	u, err := url.Parse(origin)
	if err != nil {
		slog.Warn("ignoring unparsable cors origin for websocket", "origin", origin, "error", err)
		return ""
	}
	return u.Host
}
