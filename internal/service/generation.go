package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	cfotel "github.com/lFer17/codebase-gen/internal/adapter/otel"
	"github.com/lFer17/codebase-gen/internal/config"
	"github.com/lFer17/codebase-gen/internal/domain/generation"
	"github.com/lFer17/codebase-gen/internal/logger"
	"github.com/lFer17/codebase-gen/internal/port/broadcast"
)

// GenerationService is the single entry point for running a generation
// request: validate, admit, plan, orchestrate, archive, report, release.
type GenerationService struct {
	planner      *PlannerService
	orchestrator *OrchestratorService
	archiver     *ArchiveService
	registry     *RegistryService
	limits       generation.Limits
	metrics      *cfotel.Metrics
	newID        func() string
}

// NewGenerationService wires the engine components together.
func NewGenerationService(
	planner *PlannerService,
	orchestrator *OrchestratorService,
	archiver *ArchiveService,
	registry *RegistryService,
	genCfg *config.Generation,
	metrics *cfotel.Metrics,
) *GenerationService {
	return &GenerationService{
		planner:      planner,
		orchestrator: orchestrator,
		archiver:     archiver,
		registry:     registry,
		limits:       generation.Limits{MaxWorkers: genCfg.MaxWorkers, DefaultModel: genCfg.DefaultModel},
		metrics:      metrics,
		newID:        uuid.NewString,
	}
}

// Registry returns the job registry.
func (s *GenerationService) Registry() *RegistryService { return s.registry }

// Planner returns the task planner.
func (s *GenerationService) Planner() *PlannerService { return s.planner }

// Prepare normalizes and validates req, including the template and
// language pairing. Errors wrap generation.ErrInvalidRequest.
func (s *GenerationService) Prepare(req generation.Request) (generation.Request, error) {
	req = req.Normalize(s.limits)
	if err := req.Validate(s.limits); err != nil {
		return req, err
	}
	if _, err := s.planner.Resolve(req); err != nil {
		return req, err
	}
	return req, nil
}

// Run executes req and streams its progress to sink. Cancelling ctx cancels
// the job through the registry, which is how a closed connection stops it.
// The returned error classifies the outcome: nil for a completed job,
// otherwise one of the generation sentinels. Run releases the registry
// entry before returning.
func (s *GenerationService) Run(ctx context.Context, req generation.Request, sink broadcast.Sink) (generation.Snapshot, error) {
	em := NewEmitter(ctx, sink)
	defer em.Close()

	req, err := s.Prepare(req)
	if err != nil {
		s.metrics.JobRejected(ctx, "invalid_request")
		s.emit(em, generation.TerminalErrorEvent(err.Error(), ""))
		return generation.Snapshot{}, err
	}

	jobID := s.newID()
	jobCtx, cancel := context.WithCancel(logger.WithJobID(ctx, jobID))
	defer cancel()
	log := logger.FromContext(jobCtx)

	if err := s.registry.Register(jobID, cancel); err != nil {
		s.metrics.JobRejected(ctx, "capacity")
		log.Warn("job rejected", "error", err)
		s.emit(em, generation.TerminalErrorEvent(err.Error(), ""))
		return generation.Snapshot{}, err
	}
	defer s.registry.Unregister(jobID)
	stop := context.AfterFunc(ctx, func() { s.registry.Cancel(jobID) })
	defer stop()

	units, err := s.planner.Plan(req)
	if err != nil {
		s.emit(em, generation.TerminalErrorEvent(err.Error(), ""))
		return generation.Snapshot{}, err
	}
	systemPrompt, err := s.planner.SystemPrompt(req)
	if err != nil {
		s.emit(em, generation.TerminalErrorEvent(err.Error(), ""))
		return generation.Snapshot{}, fmt.Errorf("%w: %w", generation.ErrInvalidRequest, err)
	}

	job := generation.NewJob(jobID, req, units)
	em.Attach(job)
	s.registry.Bind(jobID, job)
	if err := job.Start(); err != nil {
		log.Info("job cancelled before start")
		return s.cancelled(ctx, job, em)
	}

	jobCtx, span := cfotel.StartJobSpan(jobCtx, jobID, req.Template, req.Language)
	defer span.End()
	started := time.Now()
	s.metrics.JobStarted(jobCtx, req.Template, req.Language)
	log.Info("job started", "template", req.Template, "language", req.Language,
		"units", len(units), "workers", req.WorkerCount, "model", req.Model)

	s.emit(em, generation.StartEvent(fmt.Sprintf("Generating %d files for %s (%s, %s)",
		len(units), req.ProjectName, req.Template, req.Language)))

	outcome := s.orchestrator.Run(jobCtx, job, UnitContext{
		Model:        req.Model,
		SystemPrompt: systemPrompt,
		Prompt:       req.Prompt,
		Language:     req.Language,
	}, em)

	snap, err := s.settle(ctx, jobCtx, job, outcome, em)
	s.metrics.JobFinished(jobCtx, string(snap.State), time.Since(started))
	log.Info("job finished", "state", snap.State, "succeeded", outcome.Succeeded,
		"failed", len(outcome.Failed), "duration", time.Since(started).String())
	if err != nil {
		span.RecordError(err)
	}
	return snap, err
}

// settle archives the job when it was not cancelled and emits the one
// terminal event. connCtx is the caller's context; jobCtx carries the job
// logger and span.
func (s *GenerationService) settle(connCtx, ctx context.Context, job *generation.Job, outcome Outcome, em *Emitter) (generation.Snapshot, error) {
	if outcome.Cancelled || job.State() == generation.StateCancelled {
		return s.cancelled(connCtx, job, em)
	}

	var (
		art        generation.Artifact
		archiveErr error
	)
	if outcome.Succeeded > 0 || len(outcome.Failed) == 0 {
		art, archiveErr = s.archiver.Build(ctx, job)
		if archiveErr != nil && job.State() == generation.StateCancelled {
			return s.cancelled(connCtx, job, em)
		}
	}

	var failure error
	switch {
	case len(outcome.Failed) > 0 && archiveErr != nil:
		failure = fmt.Errorf("%w (%s); %w", generation.ErrUnitsFailed, failedSummary(outcome, job), archiveErr)
	case len(outcome.Failed) > 0:
		failure = fmt.Errorf("%w (%s)", generation.ErrUnitsFailed, failedSummary(outcome, job))
	case archiveErr != nil:
		failure = archiveErr
	}

	if failure != nil {
		if err := job.Fail(failure.Error()); err != nil {
			return s.cancelled(connCtx, job, em)
		}
		s.emit(em, generation.TerminalErrorEvent(failure.Error(), art.URL))
		return job.Snapshot(), failure
	}

	if err := job.Complete(); err != nil {
		return s.cancelled(connCtx, job, em)
	}
	s.emit(em, generation.CompleteEvent(
		fmt.Sprintf("Generated %d files for %s", outcome.Succeeded, job.Request().ProjectName), art.URL))
	return job.Snapshot(), nil
}

// cancelled ends a cancelled job. When the caller is gone nothing more is
// sent; otherwise the cancellation came from the registry (an operator or
// shutdown) and the live stream still gets its terminal error.
func (s *GenerationService) cancelled(connCtx context.Context, job *generation.Job, em *Emitter) (generation.Snapshot, error) {
	if connCtx.Err() != nil || em.Lost() {
		return job.Snapshot(), generation.ErrConnectionLost
	}
	s.emit(em, generation.TerminalErrorEvent(generation.ErrJobCancelled.Error(), ""))
	return job.Snapshot(), generation.ErrJobCancelled
}

func failedSummary(outcome Outcome, job *generation.Job) string {
	return fmt.Sprintf("%d of %d failed: %s", len(outcome.Failed), job.UnitCount(), strings.Join(outcome.Failed, ", "))
}

func (s *GenerationService) emit(em *Emitter, ev generation.Event) {
	if err := em.Emit(ev); err != nil && !errors.Is(err, ErrEmitterClosed) {
		slog.Error("emit progress event", "kind", ev.Kind, "error", err)
	}
}
