package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	cfotel "github.com/lFer17/codebase-gen/internal/adapter/otel"
	"github.com/lFer17/codebase-gen/internal/domain/generation"
	"github.com/lFer17/codebase-gen/internal/logger"
	"github.com/lFer17/codebase-gen/internal/pool"
	"github.com/lFer17/codebase-gen/internal/port/generator"
)

// UnitContext is the per-job context every unit of the job is generated with.
type UnitContext struct {
	Model        string
	SystemPrompt string
	Prompt       string
	Language     string
}

// UnitResult is the outcome of one Execute call: Content on success,
// Failure otherwise.
type UnitResult struct {
	UnitID   string
	Content  string
	Failure  *generation.UnitFailure
	Duration time.Duration
}

// WorkerService executes single work units against the generation backend.
// It is stateless and safe for concurrent use.
type WorkerService struct {
	backend generator.Backend
	limiter *pool.Pool
	timeout time.Duration
}

// NewWorkerService creates a WorkerService. limiter bounds backend calls
// across all jobs and may be nil.
func NewWorkerService(backend generator.Backend, limiter *pool.Pool, unitTimeout time.Duration) *WorkerService {
	return &WorkerService{backend: backend, limiter: limiter, timeout: unitTimeout}
}

// Execute runs one attempt at unit. Generate units make exactly one backend
// call; static units make none. The backend call is detached from ctx
// cancellation and bounded only by the unit timeout, so an in-flight unit
// always finishes. Execute never panics.
func (w *WorkerService) Execute(ctx context.Context, unit generation.WorkUnit, uc UnitContext) (res UnitResult) {
	start := time.Now()
	res.UnitID = unit.ID

	ctx, span := cfotel.StartUnitSpan(ctx, unit.ID, unit.Attempts)
	defer func() {
		if r := recover(); r != nil {
			res.Content = ""
			res.Failure = &generation.UnitFailure{
				UnitID: unit.ID,
				Cause:  generation.CauseBackend,
				Err:    fmt.Errorf("panic: %v", r),
			}
		}
		res.Duration = time.Since(start)
		if res.Failure != nil {
			span.RecordError(res.Failure)
			span.SetStatus(codes.Error, string(res.Failure.Cause))
		}
		span.End()
	}()

	if unit.Kind == generation.KindStatic {
		res.Content = unit.Hint
		return res
	}

	// The unit timeout bounds the backend call only. Waiting for a shared
	// limiter slot is bounded by the calls ahead, each under its own timeout.
	var (
		out     string
		callErr error
		cause   generation.FailureCause
	)
	err := w.limiter.Run(context.WithoutCancel(ctx), func() error {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
		defer cancel()
		out, callErr = w.backend.Generate(callCtx, generator.Prompt{
			Model:  uc.Model,
			System: uc.SystemPrompt,
			User:   userPrompt(uc, unit),
		})
		if callErr != nil {
			cause = classify(callCtx, callErr)
		}
		return callErr
	})
	if err != nil {
		if callErr == nil {
			cause = generation.CauseUnavailable
		}
		res.Failure = &generation.UnitFailure{UnitID: unit.ID, Cause: cause, Err: err}
		logger.FromContext(ctx).Warn("unit failed",
			"unit_id", unit.ID, "attempt", unit.Attempts, "cause", res.Failure.Cause, "error", err)
		return res
	}

	content := extractContent(out, unit.Path)
	if content == "" {
		res.Failure = &generation.UnitFailure{
			UnitID: unit.ID,
			Cause:  generation.CauseMalformed,
			Err:    errors.New("backend returned no file content"),
		}
		return res
	}
	res.Content = content
	return res
}

func classify(callCtx context.Context, err error) generation.FailureCause {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return generation.CauseTimeout
	case errors.Is(err, generator.ErrUnavailable):
		return generation.CauseUnavailable
	default:
		return generation.CauseBackend
	}
}

func userPrompt(uc UnitContext, unit generation.WorkUnit) string {
	var b strings.Builder
	b.WriteString(uc.Prompt)
	b.WriteString("\n\n")
	b.WriteString(unit.Description())
	b.WriteString("\n\nGenerate only this file, in ")
	b.WriteString(uc.Language)
	b.WriteString(", as a single ---FILE_PATH: ")
	b.WriteString(unit.Path)
	b.WriteString(" block.")
	return b.String()
}
