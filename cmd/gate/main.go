package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/scbe-labs/gate/pkg/config"
	"github.com/scbe-labs/gate/pkg/observability"
)

// Dispatcher
func main() {
	os.Exit(realMain())
}

func realMain() int {
	cfg := config.Load()
	observability.NewLogger(cfg.LogLevel)

	if cfg.OTLPEndpoint != "" {
		obsCfg := observability.DefaultConfig()
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
		provider, err := observability.New(context.Background(), obsCfg)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error: observability init: %v\n", err)
			return 2
		}
		defer func() { _ = provider.Shutdown(context.Background()) }()
	}

	return Run(os.Args, os.Stdout, os.Stderr)
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "stamp":
		return runStampCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "decide":
		return runDecideCmd(args[2:], stdout, stderr)
	case "noise":
		return runNoiseCmd(args[2:], stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage: gate <stamp|verify|decide|noise> [flags]")
	_, _ = fmt.Fprintln(w, "  stamp   Compute and embed section commitments into an envelope")
	_, _ = fmt.Fprintln(w, "  verify  Run the full gate sequence and report the verdict")
	_, _ = fmt.Fprintln(w, "  decide  Run the gate sequence and emit the external response")
	_, _ = fmt.Fprintln(w, "  noise   Emit the deterministic noise response for an envelope and seed")
}
