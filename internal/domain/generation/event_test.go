package generation_test

import (
	"encoding/json"
	"testing"

	"github.com/lFer17/codebase-gen/internal/domain/generation"
)

func TestEventWireFormat(t *testing.T) {
	tests := []struct {
		name string
		ev   generation.Event
		want string
	}{
		{"start", generation.StartEvent("Generating 5 files"), `{"type":"start","message":"Generating 5 files"}`},
		{"file", generation.FileEvent("cmd/main.go"), `{"type":"file","file":"cmd/main.go"}`},
		{"unit error", generation.UnitErrorEvent("a.go", "timeout"), `{"type":"error","error":"timeout","unitId":"a.go"}`},
		{"terminal error", generation.TerminalErrorEvent("archive failed", ""), `{"type":"error","error":"archive failed"}`},
		{"partial error", generation.TerminalErrorEvent("1 failed", "/download/j/p.zip"), `{"type":"error","error":"1 failed","zipUrl":"/download/j/p.zip"}`},
		{"complete", generation.CompleteEvent("done", "/download/j/p.zip"), `{"type":"complete","message":"done","zipUrl":"/download/j/p.zip"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.ev)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.want {
				t.Errorf("got %s, want %s", data, tt.want)
			}
		})
	}
}

func TestEventIsTerminal(t *testing.T) {
	if generation.StartEvent("").IsTerminal() || generation.FileEvent("x").IsTerminal() {
		t.Error("start and file are not terminal")
	}
	if generation.UnitErrorEvent("x", "y").IsTerminal() {
		t.Error("unit error is not terminal")
	}
	if !generation.TerminalErrorEvent("x", "").IsTerminal() || !generation.CompleteEvent("x", "u").IsTerminal() {
		t.Error("terminal error and complete end the stream")
	}
}
