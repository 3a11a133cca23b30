package service_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lFer17/codebase-gen/internal/config"
	"github.com/lFer17/codebase-gen/internal/domain/generation"
	"github.com/lFer17/codebase-gen/internal/domain/template"
	"github.com/lFer17/codebase-gen/internal/port/artifactstore"
	"github.com/lFer17/codebase-gen/internal/port/generator"
	"github.com/lFer17/codebase-gen/internal/service"
)

// fakeBackend answers every prompt with a FILE_PATH block for the requested
// file unless fn overrides the response.
type fakeBackend struct {
	fn       func(ctx context.Context, p generator.Prompt) (string, error)
	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64
	delay    time.Duration
}

func (b *fakeBackend) Generate(ctx context.Context, p generator.Prompt) (string, error) {
	b.calls.Add(1)
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		cur := b.maxSeen.Load()
		if n <= cur || b.maxSeen.CompareAndSwap(cur, n) {
			break
		}
	}
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	if b.fn != nil {
		return b.fn(ctx, p)
	}
	file := unitPathOf(p)
	return "---FILE_PATH: " + file + "\n```go\n// " + file + "\n```\n---END_FILE", nil
}

// unitPathOf recovers the unit path from the user prompt.
func unitPathOf(p generator.Prompt) string {
	for _, line := range strings.Split(p.User, "\n") {
		if strings.HasPrefix(line, "File: ") {
			return strings.TrimPrefix(line, "File: ")
		}
	}
	return ""
}

type memStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	putErr error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.data[key] = append([]byte(nil), data...)
	return nil
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.data[key]
	if !ok {
		return nil, artifactstore.ErrNotFound
	}
	return d, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	return out
}

// recordingSink collects delivered events. With failAfter > 0 it fails
// every send after the first failAfter events.
type recordingSink struct {
	mu        sync.Mutex
	events    []generation.Event
	failAfter int
}

var errSinkClosed = errors.New("sink closed")

func (s *recordingSink) Send(_ context.Context, ev generation.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.events) >= s.failAfter {
		return errSinkClosed
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) all() []generation.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]generation.Event(nil), s.events...)
}

func kinds(events []generation.Event) []generation.EventKind {
	out := make([]generation.EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func filePaths(events []generation.Event) []string {
	var out []string
	for _, e := range events {
		if e.Kind == generation.EventFile {
			out = append(out, e.Path)
		}
	}
	sort.Strings(out)
	return out
}

// assertGrammar checks Start (File | non-terminal Error)* (Complete | terminal Error).
func assertGrammar(t *testing.T, events []generation.Event) {
	t.Helper()
	if len(events) < 2 {
		t.Fatalf("stream too short: %v", kinds(events))
	}
	if events[0].Kind != generation.EventStart {
		t.Fatalf("first event = %s, want start", events[0].Kind)
	}
	last := events[len(events)-1]
	if !last.IsTerminal() {
		t.Fatalf("last event %s is not terminal", last.Kind)
	}
	for _, e := range events[1 : len(events)-1] {
		if e.Kind == generation.EventStart || e.IsTerminal() {
			t.Fatalf("unexpected %s (terminal=%v) inside stream %v", e.Kind, e.Terminal, kinds(events))
		}
	}
}

func zipEntries(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

// quadCatalog has one template "quad" with four generated Go files.
func quadCatalog(t *testing.T) *template.Catalog {
	t.Helper()
	c, err := template.New([]template.Template{{
		Name:      "quad",
		Languages: []string{"go"},
		Files: []template.FileSpec{
			{Path: "a.go"}, {Path: "b.go"}, {Path: "c.go"}, {Path: "d.go"},
		},
	}, {
		Name:  "many",
		Files: manyFiles(12),
	}}, []template.PromptTemplate{{Language: "default", Template: "write {{.Language}} for {{.BasePackage}}"}})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func manyFiles(n int) []template.FileSpec {
	files := make([]template.FileSpec, n)
	for i := range files {
		files[i] = template.FileSpec{Path: "pkg/f" + string(rune('a'+i)) + ".go"}
	}
	return files
}

type testEnv struct {
	svc      *service.GenerationService
	backend  *fakeBackend
	store    *memStore
	registry *service.RegistryService
	genCfg   *config.Generation
}

func newTestEnv(t *testing.T, catalog *template.Catalog, mutate func(*config.Generation)) *testEnv {
	t.Helper()
	if catalog == nil {
		var err error
		catalog, err = template.Builtin()
		if err != nil {
			t.Fatal(err)
		}
	}
	cfg := config.Defaults()
	genCfg := cfg.Generation
	genCfg.UnitTimeout = 2 * time.Second
	genCfg.RetryBackoff = time.Millisecond
	if mutate != nil {
		mutate(&genCfg)
	}

	backend := &fakeBackend{}
	store := newMemStore()
	registry := service.NewRegistryService(genCfg.MaxJobs)
	worker := service.NewWorkerService(backend, nil, genCfg.UnitTimeout)
	svc := service.NewGenerationService(
		service.NewPlannerService(catalog),
		service.NewOrchestratorService(worker, &genCfg, nil),
		service.NewArchiveService(store, "https://gen.example.com", nil),
		registry,
		&genCfg,
		nil,
	)
	return &testEnv{svc: svc, backend: backend, store: store, registry: registry, genCfg: &genCfg}
}

func goRequest(tmpl string, workers int) generation.Request {
	return generation.Request{
		Prompt:      "a todo service",
		Language:    "go",
		Template:    tmpl,
		BasePackage: "example.com/todo",
		WorkerCount: workers,
	}
}
