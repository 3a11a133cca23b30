package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lFer17/codebase-gen/internal/adapter/cachedstore"
	"github.com/lFer17/codebase-gen/internal/adapter/fsstore"
	"github.com/lFer17/codebase-gen/internal/adapter/natsobj"
	"github.com/lFer17/codebase-gen/internal/adapter/openai"
	cfotel "github.com/lFer17/codebase-gen/internal/adapter/otel"
	"github.com/lFer17/codebase-gen/internal/adapter/ristretto"
	"github.com/lFer17/codebase-gen/internal/config"
	"github.com/lFer17/codebase-gen/internal/domain/template"
	"github.com/lFer17/codebase-gen/internal/pool"
	"github.com/lFer17/codebase-gen/internal/port/artifactstore"
	"github.com/lFer17/codebase-gen/internal/resilience"
	"github.com/lFer17/codebase-gen/internal/service"
)

// engine is the wired generation stack shared by serve and generate.
type engine struct {
	gen     *service.GenerationService
	store   artifactstore.Store
	cleanup []func()
}

func (e *engine) Close() {
	for i := len(e.cleanup) - 1; i >= 0; i-- {
		e.cleanup[i]()
	}
}

func buildEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	e := &engine{}

	catalog, err := template.Load(cfg.Templates.Dir, cfg.Templates.PromptDir)
	if catalog == nil {
		return nil, fmt.Errorf("template catalog: %w", err)
	}
	if err != nil {
		slog.Warn("template catalog: skipped files", "error", err)
	}
	slog.Info("template catalog loaded",
		"templates", len(catalog.Templates()),
		"languages", catalog.Languages(),
	)

	store, err := openStore(ctx, cfg, e)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.store = store

	metrics, err := cfotel.NewMetrics()
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	backend := openai.NewClient(cfg.Backend)
	backend.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	limiter := pool.New(cfg.Backend.MaxConcurrent)

	worker := service.NewWorkerService(backend, limiter, cfg.Generation.UnitTimeout)
	e.gen = service.NewGenerationService(
		service.NewPlannerService(catalog),
		service.NewOrchestratorService(worker, &cfg.Generation, metrics),
		service.NewArchiveService(store, cfg.Server.PublicURL, metrics),
		service.NewRegistryService(cfg.Generation.MaxJobs),
		&cfg.Generation,
		metrics,
	)
	return e, nil
}

// openStore selects the archive store driver and puts the read cache in
// front of it when one is configured.
func openStore(ctx context.Context, cfg *config.Config, e *engine) (artifactstore.Store, error) {
	var store artifactstore.Store
	switch cfg.Storage.Driver {
	case "nats":
		s, err := natsobj.Connect(ctx, cfg.NATS.URL, cfg.Storage.NATSBucket)
		if err != nil {
			return nil, fmt.Errorf("archive store: %w", err)
		}
		e.cleanup = append(e.cleanup, func() { _ = s.Close() })
		store = s
	default:
		s, err := fsstore.New(cfg.Storage.Dir)
		if err != nil {
			return nil, fmt.Errorf("archive store: %w", err)
		}
		store = s
	}
	slog.Info("archive store ready", "driver", cfg.Storage.Driver)

	if cfg.Storage.CacheMB <= 0 {
		return store, nil
	}
	c, err := ristretto.New(cfg.Storage.CacheMB << 20)
	if err != nil {
		return nil, fmt.Errorf("archive cache: %w", err)
	}
	e.cleanup = append(e.cleanup, c.Close)
	return cachedstore.New(store, c, cfg.Storage.CacheTTL), nil
}
