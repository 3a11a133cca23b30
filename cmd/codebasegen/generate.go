package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/lFer17/codebase-gen/internal/config"
	"github.com/lFer17/codebase-gen/internal/domain/generation"
	"github.com/lFer17/codebase-gen/internal/logger"
	"github.com/lFer17/codebase-gen/internal/port/broadcast"
)

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	tmpl := fs.String("template", "default", "template name")
	language := fs.String("language", "go", "target language")
	basePackage := fs.String("base-package", "", "module or package path (default "+generation.DefaultBasePackage+")")
	workerCount := fs.Int("worker-count", 4, "concurrent work units")
	model := fs.String("model", "", "backend model (default from config)")
	projectName := fs.String("project-name", "", "archive root directory (default <language>-project)")
	configPath := fs.String("config", config.DefaultConfigFile, "YAML config file")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: codebasegen generate [options] <prompt>\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		fs.Usage()
		return errors.New("prompt is required")
	}

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// Progress goes to stdout; logs stay on stderr.
	log, closer := logger.NewWithWriter(cfg.Logging, os.Stderr)
	defer closer.Close()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	req := generation.Request{
		Prompt:      prompt,
		Language:    *language,
		Template:    *tmpl,
		BasePackage: *basePackage,
		WorkerCount: *workerCount,
		Model:       *model,
		ProjectName: *projectName,
	}

	sink := newPrinter(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
	snap, err := eng.gen.Run(ctx, req, sink)

	if sink.human && snap.Archive != nil && cfg.Storage.Driver == "fs" {
		fmt.Fprintf(os.Stdout, "archive: %s\n", filepath.Join(cfg.Storage.Dir, filepath.FromSlash(snap.Archive.Key)))
	}
	if err != nil {
		return fmt.Errorf("%w: %w", errJobFailed, err)
	}
	return nil
}

// printer writes progress events as text on a terminal and as JSON lines
// otherwise.
type printer struct {
	w     io.Writer
	human bool
	enc   *json.Encoder
}

var _ broadcast.Sink = (*printer)(nil)

func newPrinter(w io.Writer, human bool) *printer {
	return &printer{w: w, human: human, enc: json.NewEncoder(w)}
}

func (p *printer) Send(_ context.Context, ev generation.Event) error {
	if !p.human {
		return p.enc.Encode(ev)
	}
	var err error
	switch ev.Kind {
	case generation.EventStart:
		_, err = fmt.Fprintf(p.w, "%s\n", ev.Message)
	case generation.EventFile:
		_, err = fmt.Fprintf(p.w, "  + %s\n", ev.Path)
	case generation.EventError:
		if ev.Terminal {
			_, err = fmt.Fprintf(p.w, "error: %s\n", ev.Message)
		} else {
			_, err = fmt.Fprintf(p.w, "  ! %s: %s\n", ev.UnitID, ev.Message)
		}
	case generation.EventComplete:
		_, err = fmt.Fprintf(p.w, "%s\n", ev.Message)
	}
	return err
}
