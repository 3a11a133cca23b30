package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer allows flushing and stopping the async handler.
type Closer interface {
	Close()
}

// nopCloser is a no-op Closer for synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// queued pairs a record with the handler that must write it, so handlers
// derived via WithAttrs/WithGroup keep their attributes after the hop.
type queued struct {
	h   slog.Handler
	rec slog.Record
}

// asyncQueue is shared by an AsyncHandler and every handler derived from it.
type asyncQueue struct {
	ch        chan queued
	wg        sync.WaitGroup
	dropped   atomic.Int64
	closeOnce sync.Once
}

// AsyncHandler wraps an slog.Handler with a buffered channel and drain
// goroutines so generation workers never block on log I/O.
type AsyncHandler struct {
	inner slog.Handler
	q     *asyncQueue
}

// NewAsyncHandler creates an AsyncHandler with the given channel capacity and worker count.
func NewAsyncHandler(inner slog.Handler, chanSize, workers int) *AsyncHandler {
	if workers < 1 {
		workers = 1
	}
	q := &asyncQueue{ch: make(chan queued, chanSize)}
	for range workers {
		q.wg.Add(1)
		go q.drain()
	}
	return &AsyncHandler{inner: inner, q: q}
}

func (q *asyncQueue) drain() {
	defer q.wg.Done()
	for item := range q.ch {
		_ = item.h.Handle(context.Background(), item.rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record. Drops if the channel is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.q.ch <- queued{h: h.inner, rec: rec.Clone()}:
	default:
		h.q.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a new AsyncHandler sharing the same queue but wrapping a new inner handler.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), q: h.q}
}

// WithGroup returns a new AsyncHandler sharing the same queue but wrapping a new inner handler.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), q: h.q}
}

// DroppedCount returns the number of dropped records.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.q.dropped.Load()
}

// Close closes the queue, waits for the drain goroutines, and reports the
// number of dropped records through the inner handler. Idempotent.
func (h *AsyncHandler) Close() {
	h.q.closeOnce.Do(func() {
		close(h.q.ch)
		h.q.wg.Wait()
		if n := h.q.dropped.Load(); n > 0 {
			rec := slog.NewRecord(time.Now(), slog.LevelWarn, "async log records dropped", 0)
			rec.AddAttrs(slog.Int64("dropped", n))
			_ = h.inner.Handle(context.Background(), rec)
		}
	})
}
