package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	cfotel "github.com/lFer17/codebase-gen/internal/adapter/otel"
	"github.com/lFer17/codebase-gen/internal/config"
	"github.com/lFer17/codebase-gen/internal/domain/generation"
	"github.com/lFer17/codebase-gen/internal/logger"
)

// maxBackoffFactor caps the retry delay at this multiple of the first delay.
const maxBackoffFactor = 10

// Outcome summarizes a job's units once orchestration returns.
type Outcome struct {
	Succeeded int
	Failed    []string
	Cancelled bool
}

// OrchestratorService runs the units of one job on at most workerCount
// concurrent workers and records every result in the job.
type OrchestratorService struct {
	worker  *WorkerService
	genCfg  *config.Generation
	metrics *cfotel.Metrics
}

// NewOrchestratorService creates an OrchestratorService.
func NewOrchestratorService(worker *WorkerService, genCfg *config.Generation, metrics *cfotel.Metrics) *OrchestratorService {
	return &OrchestratorService{worker: worker, genCfg: genCfg, metrics: metrics}
}

// Run dispatches the pending units of a running job from a FIFO queue to
// job.Request().WorkerCount workers. A failing unit never stops its
// siblings. Once the job is cancelled no further unit starts; units already
// running finish and are recorded. Each settled unit is emitted as a file
// event in completion order.
func (s *OrchestratorService) Run(ctx context.Context, job *generation.Job, uc UnitContext, em *Emitter) Outcome {
	n := job.UnitCount()
	queue := make(chan int, n)
	for i := 0; i < n; i++ {
		queue <- i
	}
	close(queue)

	workers := job.Request().WorkerCount
	if workers > n {
		workers = n
	}

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for idx := range queue {
				if !s.runUnit(ctx, job, idx, uc, em) {
					return nil
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	snap := job.Snapshot()
	out := Outcome{Cancelled: snap.State == generation.StateCancelled}
	for _, u := range snap.Units {
		switch u.State {
		case generation.UnitSucceeded:
			out.Succeeded++
		case generation.UnitFailed:
			out.Failed = append(out.Failed, u.ID)
		}
	}
	return out
}

// runUnit drives one unit through its attempts. It returns false when the
// job stopped accepting work, which ends the calling worker.
func (s *OrchestratorService) runUnit(ctx context.Context, job *generation.Job, idx int, uc UnitContext, em *Emitter) bool {
	log := logger.FromContext(ctx)
	start := time.Now()

	unit, ok := job.BeginUnit(idx)
	if !ok {
		return false
	}
	for {
		res := s.worker.Execute(ctx, unit, uc)
		if res.Failure == nil {
			if err := job.SucceedUnit(idx, res.Content); err != nil {
				log.Error("record unit success", "unit_id", unit.ID, "error", err)
				return true
			}
			s.metrics.UnitFinished(ctx, "", time.Since(start))
			s.emit(em, generation.FileEvent(unit.Path))
			return true
		}

		if s.shouldRetry(unit.Attempts, res.Failure.Cause) && s.waitBackoff(ctx, unit.Attempts) {
			if next, ok := job.BeginUnit(idx); ok {
				log.Info("retrying unit", "unit_id", unit.ID, "attempt", next.Attempts, "cause", res.Failure.Cause)
				unit = next
				continue
			}
		}

		if err := job.FailUnit(idx, res.Failure.Error()); err != nil {
			log.Error("record unit failure", "unit_id", unit.ID, "error", err)
		}
		s.metrics.UnitFinished(ctx, string(res.Failure.Cause), time.Since(start))
		if s.genCfg.ReportUnitErrors {
			s.emit(em, generation.UnitErrorEvent(unit.ID, res.Failure.Error()))
		}
		return job.State() == generation.StateRunning
	}
}

func (s *OrchestratorService) shouldRetry(attempts int, cause generation.FailureCause) bool {
	return cause.Retryable() && attempts <= s.genCfg.UnitRetries
}

// waitBackoff sleeps before attempt+1. It returns false if ctx ends first.
func (s *OrchestratorService) waitBackoff(ctx context.Context, attempt int) bool {
	d := backoffDelay(s.genCfg.RetryBackoff, attempt)
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoffDelay doubles base per attempt, capped at maxBackoffFactor*base.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt < 1 {
		return 0
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= base*maxBackoffFactor {
			return base * maxBackoffFactor
		}
	}
	return d
}

func (s *OrchestratorService) emit(em *Emitter, ev generation.Event) {
	if em == nil {
		return
	}
	if err := em.Emit(ev); err != nil {
		slog.Error("emit progress event", "kind", ev.Kind, "error", err)
	}
}
