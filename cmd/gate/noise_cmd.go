package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/scbe-labs/gate/pkg/envelope"
	"github.com/scbe-labs/gate/pkg/noise"
)

// runNoiseCmd implements `gate noise`.
//
// Emits the deterministic noise response for an envelope and caller seed
// without running the gate sequence. Useful for verifying that a rejection
// observed remotely matches the expected mask.
//
// Exit codes:
//
//	0 = noise emitted
//	2 = runtime error
func runNoiseCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("noise", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		envPath string
		seed    string
	)
	cmd.StringVar(&envPath, "envelope", "", "Path to stamped envelope JSON (REQUIRED)")
	cmd.StringVar(&seed, "seed", "", "Caller identity seed (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if envPath == "" || seed == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --envelope and --seed are required")
		return 2
	}

	data, err := os.ReadFile(envPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot read envelope: %v\n", err)
		return 2
	}

	codec := envelope.NewCodec()
	env, err := codec.Parse(data)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: invalid envelope: %v\n", err)
		return 2
	}

	masked, err := noise.Generate(env, seed)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	out, err := codec.Marshal(masked)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: encode failed: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintln(stdout, string(out))
	return 0
}
