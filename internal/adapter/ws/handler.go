// Package ws implements the WebSocket generation endpoint: one request frame
// in, a stream of progress event frames out.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/lFer17/codebase-gen/internal/domain/generation"
	"github.com/lFer17/codebase-gen/internal/port/broadcast"
)

// errConnGone marks failures where the peer is no longer reachable.
var errConnGone = errors.New("connection gone")

const defaultWriteTimeout = 10 * time.Second

// Runner executes one generation request, streaming events to sink.
type Runner interface {
	Run(ctx context.Context, req generation.Request, sink broadcast.Sink) (generation.Snapshot, error)
}

// Handler upgrades connections on the generation endpoint.
type Handler struct {
	runner         Runner
	requestTimeout time.Duration
	writeTimeout   time.Duration
	originPatterns []string
	active         atomic.Int64
}

// NewHandler creates a Handler. requestTimeout bounds the wait for the
// request frame after the upgrade.
func NewHandler(runner Runner, requestTimeout time.Duration) *Handler {
	return &Handler{
		runner:         runner,
		requestTimeout: requestTimeout,
		writeTimeout:   defaultWriteTimeout,
	}
}

// SetOriginPatterns lists the cross-origin hosts allowed to upgrade, in
// addition to the request's own host. Without patterns only same-origin
// browsers (and clients sending no Origin) are accepted.
func (h *Handler) SetOriginPatterns(patterns ...string) {
	h.originPatterns = patterns
}

// SetWriteTimeout bounds each outbound frame write.
func (h *Handler) SetWriteTimeout(d time.Duration) {
	if d > 0 {
		h.writeTimeout = d
	}
}

// ConnectionCount returns the number of connections currently served.
func (h *Handler) ConnectionCount() int {
	return int(h.active.Load())
}

// ServeHTTP upgrades the request and runs one generation job over it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		slog.Warn("websocket accept failed", "origin", r.Header.Get("Origin"), "error", err)
		return
	}

	h.active.Add(1)
	defer h.active.Add(-1)

	s := newSession(conn, h.writeTimeout)
	log := slog.With("remote", r.RemoteAddr)
	log.Info("websocket connected")

	req, err := s.readRequest(r.Context(), h.requestTimeout)
	if err != nil {
		log.Warn("generation request rejected", "error", err)
		if !errors.Is(err, errConnGone) {
			_ = s.Send(r.Context(), generation.TerminalErrorEvent(err.Error(), ""))
		}
		code, reason := closeStatus(err)
		s.close(code, reason)
		return
	}
	if !s.open() {
		s.close(websocket.StatusGoingAway, "closed")
		return
	}

	// The returned context is cancelled when the peer goes away, which
	// cancels the job. Further data frames from the client close the socket.
	ctx := conn.CloseRead(r.Context())

	snap, err := h.runner.Run(ctx, req, s)
	code, reason := closeStatus(err)
	if errors.Is(err, generation.ErrConnectionLost) {
		log.Info("websocket closed by client", "job_id", snap.ID)
	} else {
		log.Info("websocket done", "job_id", snap.ID, "state", snap.State, "close", reason)
	}
	s.close(code, reason)
}

// closeStatus maps a run outcome to a close code and a short reason.
func closeStatus(err error) (websocket.StatusCode, string) {
	switch {
	case err == nil:
		return websocket.StatusNormalClosure, "complete"
	case errors.Is(err, generation.ErrInvalidRequest):
		return websocket.StatusPolicyViolation, "invalid request"
	case errors.Is(err, generation.ErrCapacity):
		return websocket.StatusTryAgainLater, "at capacity"
	case errors.Is(err, generation.ErrJobCancelled):
		return websocket.StatusNormalClosure, "cancelled"
	case errors.Is(err, generation.ErrConnectionLost), errors.Is(err, errConnGone):
		return websocket.StatusGoingAway, "connection lost"
	default:
		return websocket.StatusNormalClosure, "failed"
	}
}
