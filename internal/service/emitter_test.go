package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/lFer17/codebase-gen/internal/domain/generation"
	"github.com/lFer17/codebase-gen/internal/service"
)

func TestEmitterPreservesOrder(t *testing.T) {
	sink := &recordingSink{}
	em := service.NewEmitter(context.Background(), sink)

	if err := em.Emit(generation.StartEvent("go")); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := em.Emit(generation.FileEvent(fmt.Sprintf("f%02d.go", i))); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	if err := em.Emit(generation.TerminalErrorEvent("done", "")); err != nil {
		t.Fatal(err)
	}
	em.Close()

	events := sink.all()
	if len(events) != 52 {
		t.Fatalf("delivered %d events, want 52", len(events))
	}
	assertGrammar(t, events)
	if len(filePaths(events)) != 50 {
		t.Error("file events lost")
	}
}

func TestEmitterGrammar(t *testing.T) {
	em := service.NewEmitter(context.Background(), &recordingSink{})
	defer em.Close()

	if err := em.Emit(generation.FileEvent("a.go")); !errors.Is(err, service.ErrEventOrder) {
		t.Errorf("file before start: %v", err)
	}
	if err := em.Emit(generation.UnitErrorEvent("a.go", "x")); !errors.Is(err, service.ErrEventOrder) {
		t.Errorf("unit error before start: %v", err)
	}
	if err := em.Emit(generation.StartEvent("s")); err != nil {
		t.Fatal(err)
	}
	if err := em.Emit(generation.StartEvent("s")); !errors.Is(err, service.ErrEventOrder) {
		t.Errorf("second start: %v", err)
	}
	if err := em.Emit(generation.CompleteEvent("c", "u")); err != nil {
		t.Fatal(err)
	}
	if err := em.Emit(generation.FileEvent("late.go")); !errors.Is(err, service.ErrEventOrder) {
		t.Errorf("file after terminal: %v", err)
	}
}

func TestEmitterTerminalErrorBeforeStart(t *testing.T) {
	sink := &recordingSink{}
	em := service.NewEmitter(context.Background(), sink)
	if err := em.Emit(generation.TerminalErrorEvent("invalid request", "")); err != nil {
		t.Fatal(err)
	}
	if err := em.Emit(generation.StartEvent("s")); !errors.Is(err, service.ErrEventOrder) {
		t.Errorf("start after rejection: %v", err)
	}
	em.Close()
	if got := sink.all(); len(got) != 1 {
		t.Errorf("events = %v", kinds(got))
	}
}

func TestEmitterRefusesCompleteForFailedJob(t *testing.T) {
	job := generation.NewJob("j", goRequest("quad", 1), []generation.WorkUnit{{ID: "a.go", Path: "a.go"}})
	_ = job.Start()
	_ = job.Fail("units failed")

	em := service.NewEmitter(context.Background(), &recordingSink{})
	defer em.Close()
	em.Attach(job)
	_ = em.Emit(generation.StartEvent("s"))

	if err := em.Emit(generation.CompleteEvent("done", "u")); !errors.Is(err, service.ErrEventOrder) {
		t.Errorf("complete for failed job: %v", err)
	}
	if err := em.Emit(generation.TerminalErrorEvent("failed", "")); err != nil {
		t.Errorf("terminal error refused: %v", err)
	}
}

func TestEmitterLostSinkIsNoop(t *testing.T) {
	sink := &recordingSink{failAfter: 1}
	em := service.NewEmitter(context.Background(), sink)

	_ = em.Emit(generation.StartEvent("s"))
	for i := 0; i < 5; i++ {
		if err := em.Emit(generation.FileEvent(fmt.Sprintf("f%d", i))); err != nil {
			t.Fatalf("emit on lost sink must not fail: %v", err)
		}
	}
	em.Close()
	if !em.Lost() {
		t.Error("emitter should report the lost sink")
	}
	if got := len(sink.all()); got != 1 {
		t.Errorf("delivered %d events, want 1", got)
	}
}

func TestEmitterCloseIsIdempotent(t *testing.T) {
	em := service.NewEmitter(context.Background(), &recordingSink{})
	em.Close()
	em.Close()
	if err := em.Emit(generation.StartEvent("s")); !errors.Is(err, service.ErrEmitterClosed) {
		t.Errorf("emit after close: %v", err)
	}
}
