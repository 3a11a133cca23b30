package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lFer17/codebase-gen/internal/domain/generation"
	"github.com/lFer17/codebase-gen/internal/port/broadcast"
)

var (
	// ErrEventOrder is returned when an event would break the stream grammar
	// Start (File | Error)* (Complete | terminal Error).
	ErrEventOrder = errors.New("event out of order")

	// ErrEmitterClosed is returned by Emit after Close.
	ErrEmitterClosed = errors.New("emitter closed")
)

// Emitter serializes a job's progress events into one ordered stream.
// Emit never blocks on the network: events are queued in call order and a
// single goroutine delivers them to the sink. Once the sink fails, the
// connection is treated as gone and later events are dropped silently.
type Emitter struct {
	sink broadcast.Sink
	ctx  context.Context

	mu         sync.Mutex
	cond       *sync.Cond
	queue      []generation.Event
	job        *generation.Job
	started    bool
	terminated bool
	closing    bool
	lost       bool
	done       chan struct{}
}

// NewEmitter creates an Emitter delivering to sink and starts its drain loop.
func NewEmitter(ctx context.Context, sink broadcast.Sink) *Emitter {
	e := &Emitter{
		sink: sink,
		ctx:  context.WithoutCancel(ctx),
		done: make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	go e.drain()
	return e
}

// Attach binds the job whose final state gates Complete.
func (e *Emitter) Attach(job *generation.Job) {
	e.mu.Lock()
	e.job = job
	e.mu.Unlock()
}

// Emit appends ev to the stream. It returns ErrEventOrder when ev breaks the
// grammar and nil when the connection is already gone.
func (e *Emitter) Emit(ev generation.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closing {
		return ErrEmitterClosed
	}
	if err := e.checkLocked(ev); err != nil {
		return err
	}
	switch {
	case ev.Kind == generation.EventStart:
		e.started = true
	case ev.IsTerminal():
		e.terminated = true
	}
	if e.lost {
		return nil
	}
	e.queue = append(e.queue, ev)
	e.cond.Signal()
	return nil
}

func (e *Emitter) checkLocked(ev generation.Event) error {
	if e.terminated {
		return fmt.Errorf("%w: %s after terminal event", ErrEventOrder, ev.Kind)
	}
	if !e.started {
		if ev.Kind == generation.EventStart || (ev.Kind == generation.EventError && ev.Terminal) {
			return nil
		}
		return fmt.Errorf("%w: %s before start", ErrEventOrder, ev.Kind)
	}
	if ev.Kind == generation.EventStart {
		return fmt.Errorf("%w: duplicate start", ErrEventOrder)
	}
	if ev.Kind == generation.EventComplete && e.job != nil && e.job.State() != generation.StateCompleted {
		return fmt.Errorf("%w: complete for %s job", ErrEventOrder, e.job.State())
	}
	return nil
}

// Lost reports whether the sink failed.
func (e *Emitter) Lost() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lost
}

// Close flushes queued events and stops the drain loop. It is safe to call
// more than once.
func (e *Emitter) Close() {
	e.mu.Lock()
	e.closing = true
	e.cond.Signal()
	e.mu.Unlock()
	<-e.done
}

func (e *Emitter) drain() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closing {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		batch := e.queue
		e.queue = nil
		e.mu.Unlock()

		for _, ev := range batch {
			if err := e.sink.Send(e.ctx, ev); err != nil {
				slog.Debug("progress sink gone, dropping events", "kind", ev.Kind, "error", err)
				e.mu.Lock()
				e.lost = true
				e.queue = nil
				e.mu.Unlock()
				break
			}
		}
	}
}
