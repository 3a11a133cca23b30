// Command codebasegen serves the codebase generation engine over WebSocket
// and runs single generation jobs from the command line.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// errJobFailed marks a generate run whose job ended with a terminal error.
var errJobFailed = errors.New("generation failed")

func main() {
	// .env is optional; real environment variables win over its values.
	_ = godotenv.Load()

	cmd, args := "serve", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "generate":
		err = runGenerate(args)
	case "help":
		printHelp()
	default:
		printHelp()
		err = fmt.Errorf("unknown command: %s", cmd)
	}

	if err != nil {
		if !errors.Is(err, errJobFailed) {
			slog.Error("fatal", "error", err)
		}
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Fprintf(os.Stderr, `Usage: codebasegen [command] [options]

Commands:
  serve      Run the generation server (default)
  generate   Generate one codebase and print progress
  help       Show this help message

Examples:
  codebasegen serve -config codebasegen.yaml
  codebasegen generate -template rest-api -language go -worker-count 4 "a todo API"
`)
}
