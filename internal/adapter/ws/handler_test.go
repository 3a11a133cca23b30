package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/lFer17/codebase-gen/internal/domain/generation"
	"github.com/lFer17/codebase-gen/internal/port/broadcast"
)

type runnerFunc func(ctx context.Context, req generation.Request, sink broadcast.Sink) (generation.Snapshot, error)

func (f runnerFunc) Run(ctx context.Context, req generation.Request, sink broadcast.Sink) (generation.Snapshot, error) {
	return f(ctx, req, sink)
}

type frame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	File    string `json:"file"`
	Error   string `json:"error"`
	ZipURL  string `json:"zipUrl"`
}

func dial(t *testing.T, h *Handler) (*websocket.Conn, context.Context) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.CloseNow() })
	return c, ctx
}

// readAll reads frames until the server closes and returns them with the
// close status.
func readAll(t *testing.T, ctx context.Context, c *websocket.Conn) ([]frame, websocket.StatusCode) {
	t.Helper()
	var frames []frame
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			return frames, websocket.CloseStatus(err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("decode frame %s: %v", data, err)
		}
		frames = append(frames, f)
	}
}

func writeJSON(t *testing.T, ctx context.Context, c *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHandler_StreamsJob(t *testing.T) {
	var got generation.Request
	h := NewHandler(runnerFunc(func(ctx context.Context, req generation.Request, sink broadcast.Sink) (generation.Snapshot, error) {
		got = req
		_ = sink.Send(ctx, generation.StartEvent("Generating 2 files"))
		_ = sink.Send(ctx, generation.FileEvent("main.go"))
		_ = sink.Send(ctx, generation.FileEvent("go.mod"))
		_ = sink.Send(ctx, generation.CompleteEvent("Generated 2 files", "/download/j/app.zip"))
		return generation.Snapshot{ID: "j", State: generation.StateCompleted}, nil
	}), time.Second)

	c, ctx := dial(t, h)
	writeJSON(t, ctx, c, map[string]any{
		"prompt": "todo api", "language": "go", "template": "rest-api",
		"basePackage": "github.com/acme/todo", "workerCount": 3, "model": "m", "projectName": "todo",
	})

	frames, code := readAll(t, ctx, c)
	if code != websocket.StatusNormalClosure {
		t.Fatalf("close status = %v, want normal", code)
	}
	if len(frames) != 4 {
		t.Fatalf("got %d frames, want 4: %+v", len(frames), frames)
	}
	if frames[0].Type != "start" || frames[1].File != "main.go" || frames[3].Type != "complete" {
		t.Fatalf("unexpected frames %+v", frames)
	}
	if frames[3].ZipURL != "/download/j/app.zip" {
		t.Fatalf("zipUrl = %q", frames[3].ZipURL)
	}
	if got.WorkerCount != 3 || got.BasePackage != "github.com/acme/todo" || got.ProjectName != "todo" {
		t.Fatalf("request not decoded: %+v", got)
	}
}

func TestHandler_MalformedRequest(t *testing.T) {
	var called atomic.Bool
	h := NewHandler(runnerFunc(func(context.Context, generation.Request, broadcast.Sink) (generation.Snapshot, error) {
		called.Store(true)
		return generation.Snapshot{}, nil
	}), time.Second)

	c, ctx := dial(t, h)
	if err := c.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	frames, code := readAll(t, ctx, c)
	if code != websocket.StatusPolicyViolation {
		t.Fatalf("close status = %v, want policy violation", code)
	}
	if len(frames) != 1 || frames[0].Type != "error" {
		t.Fatalf("want a single error frame, got %+v", frames)
	}
	if !strings.Contains(frames[0].Error, "malformed request") {
		t.Fatalf("error = %q", frames[0].Error)
	}
	if called.Load() {
		t.Fatal("runner must not be called for malformed input")
	}
}

func TestHandler_RequestErrorsMapToCloseCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want websocket.StatusCode
	}{
		{"invalid", generation.ErrInvalidRequest, websocket.StatusPolicyViolation},
		{"capacity", generation.ErrCapacity, websocket.StatusTryAgainLater},
		{"units failed", generation.ErrUnitsFailed, websocket.StatusNormalClosure},
		{"cancelled", generation.ErrJobCancelled, websocket.StatusNormalClosure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(runnerFunc(func(ctx context.Context, _ generation.Request, sink broadcast.Sink) (generation.Snapshot, error) {
				_ = sink.Send(ctx, generation.TerminalErrorEvent(tt.err.Error(), ""))
				return generation.Snapshot{}, tt.err
			}), time.Second)

			c, ctx := dial(t, h)
			writeJSON(t, ctx, c, map[string]any{"prompt": "x"})
			frames, code := readAll(t, ctx, c)
			if code != tt.want {
				t.Fatalf("close status = %v, want %v", code, tt.want)
			}
			if len(frames) != 1 || frames[0].Type != "error" {
				t.Fatalf("frames = %+v", frames)
			}
		})
	}
}

func TestCloseStatus_Cancelled(t *testing.T) {
	code, reason := closeStatus(fmt.Errorf("shutdown: %w", generation.ErrJobCancelled))
	if code != websocket.StatusNormalClosure || reason != "cancelled" {
		t.Fatalf("closeStatus = %v %q, want normal closure %q", code, reason, "cancelled")
	}
	if _, reason := closeStatus(generation.ErrConnectionLost); reason != "connection lost" {
		t.Fatalf("connection lost reason = %q", reason)
	}
}

func TestHandler_RejectsCrossOrigin(t *testing.T) {
	var called atomic.Bool
	h := NewHandler(runnerFunc(func(context.Context, generation.Request, broadcast.Sink) (generation.Snapshot, error) {
		called.Store(true)
		return generation.Snapshot{}, nil
	}), time.Second)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": {"http://evil.example"}},
	})
	if err == nil {
		t.Fatal("cross-origin upgrade was accepted")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("response = %+v, want 403", resp)
	}

	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": {srv.URL}},
	})
	if err != nil {
		t.Fatalf("same-origin dial: %v", err)
	}
	_ = c.CloseNow()
	if called.Load() {
		t.Fatal("runner called without a request frame")
	}
}

func TestHandler_OriginPatternsAllowConfiguredHost(t *testing.T) {
	h := NewHandler(runnerFunc(func(context.Context, generation.Request, broadcast.Sink) (generation.Snapshot, error) {
		return generation.Snapshot{}, nil
	}), time.Second)
	h.SetOriginPatterns("app.example.com")
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": {"https://app.example.com"}},
	})
	if err != nil {
		t.Fatalf("configured origin dial: %v", err)
	}
	_ = c.CloseNow()

	if _, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": {"https://other.example.com"}},
	}); err == nil {
		t.Fatal("unlisted origin was accepted")
	}
}

func TestHandler_ClientCloseCancelsRun(t *testing.T) {
	started := make(chan struct{})
	done := make(chan error, 1)
	h := NewHandler(runnerFunc(func(ctx context.Context, _ generation.Request, sink broadcast.Sink) (generation.Snapshot, error) {
		_ = sink.Send(ctx, generation.StartEvent("go"))
		close(started)
		<-ctx.Done()
		done <- ctx.Err()
		return generation.Snapshot{}, generation.ErrConnectionLost
	}), time.Second)

	c, ctx := dial(t, h)
	writeJSON(t, ctx, c, map[string]any{"prompt": "x"})
	if _, _, err := c.Read(ctx); err != nil {
		t.Fatalf("read start: %v", err)
	}
	<-started
	_ = c.Close(websocket.StatusNormalClosure, "bye")

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run ctx err = %v, want canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("run was not cancelled after client close")
	}
}

func TestHandler_ConnectionCount(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	h := NewHandler(runnerFunc(func(context.Context, generation.Request, broadcast.Sink) (generation.Snapshot, error) {
		close(entered)
		<-release
		return generation.Snapshot{}, nil
	}), time.Second)

	c, ctx := dial(t, h)
	writeJSON(t, ctx, c, map[string]any{"prompt": "x"})
	<-entered
	if n := h.ConnectionCount(); n != 1 {
		t.Fatalf("ConnectionCount = %d, want 1", n)
	}
	close(release)
	readAll(t, ctx, c)

	deadline := time.Now().Add(2 * time.Second)
	for h.ConnectionCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := h.ConnectionCount(); n != 0 {
		t.Fatalf("ConnectionCount after close = %d, want 0", n)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{StateConnecting: "connecting", StateOpen: "open", StateClosed: "closed"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
