package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/lFer17/codebase-gen/internal/domain/generation"
)

// State is the lifecycle state of one generation connection.
type State int32

const (
	// StateConnecting covers the upgrade and the wait for the request frame.
	StateConnecting State = iota
	// StateOpen means a job is streaming events to the client.
	StateOpen
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// maxRequestBytes bounds the inbound request frame.
const maxRequestBytes = 1 << 20

// errSessionClosed is returned by Send once the session is closed.
var errSessionClosed = errors.New("websocket session closed")

// session wraps one accepted connection and implements broadcast.Sink.
type session struct {
	conn         *websocket.Conn
	state        atomic.Int32
	writeTimeout time.Duration
}

func newSession(conn *websocket.Conn, writeTimeout time.Duration) *session {
	conn.SetReadLimit(maxRequestBytes)
	return &session{conn: conn, writeTimeout: writeTimeout}
}

func (s *session) State() State {
	return State(s.state.Load())
}

// open moves Connecting to Open. It fails once the session is closed.
func (s *session) open() bool {
	return s.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
}

// readRequest waits up to timeout for the single request frame. A timeout or
// read failure closes the connection, which the returned errConnGone reports.
func (s *session) readRequest(ctx context.Context, timeout time.Duration) (generation.Request, error) {
	var req generation.Request

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	typ, data, err := s.conn.Read(rctx)
	if err != nil {
		s.state.Store(int32(StateClosed))
		return req, fmt.Errorf("%w: read request: %w", errConnGone, err)
	}
	if typ != websocket.MessageText {
		return req, fmt.Errorf("%w: request must be a JSON text frame", generation.ErrInvalidRequest)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("%w: malformed request: %v", generation.ErrInvalidRequest, err)
	}
	return req, nil
}

// Send writes ev as one JSON text frame.
func (s *session) Send(ctx context.Context, ev generation.Event) error {
	if s.State() == StateClosed {
		return errSessionClosed
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Kind, err)
	}

	wctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := s.conn.Write(wctx, websocket.MessageText, data); err != nil {
		s.state.Store(int32(StateClosed))
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// close performs the closing handshake once. Later calls are no-ops.
func (s *session) close(code websocket.StatusCode, reason string) {
	if State(s.state.Swap(int32(StateClosed))) == StateClosed {
		_ = s.conn.CloseNow()
		return
	}
	_ = s.conn.Close(code, reason)
}
