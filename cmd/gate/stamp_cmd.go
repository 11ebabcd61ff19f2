package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/scbe-labs/gate/pkg/contracts"
	"github.com/scbe-labs/gate/pkg/envelope"
)

// runStampCmd implements `gate stamp`.
//
// Reads an envelope JSON file, computes the four section commitments, and
// writes the stamped envelope to stdout (or back to the file with --write).
//
// Exit codes:
//
//	0 = stamped
//	2 = runtime error
func runStampCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("stamp", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		path    string
		inPlace bool
	)
	cmd.StringVar(&path, "envelope", "", "Path to envelope JSON (REQUIRED)")
	cmd.BoolVar(&inPlace, "write", false, "Write the stamped envelope back to the file")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if path == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --envelope is required")
		return 2
	}

	data, err := os.ReadFile(path)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot read envelope: %v\n", err)
		return 2
	}

	// Unstamped envelopes will not pass full parsing yet, so decode the raw
	// structure directly.
	var env contracts.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: invalid envelope JSON: %v\n", err)
		return 2
	}
	if env.Ver == "" {
		env.Ver = contracts.Version
	}

	if err := envelope.Stamp(&env); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: stamp failed: %v\n", err)
		return 2
	}

	out, err := envelope.NewCodec().Marshal(&env)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: encode failed: %v\n", err)
		return 2
	}

	if inPlace {
		if err := os.WriteFile(path, out, 0o644); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: cannot write envelope: %v\n", err)
			return 2
		}
		_, _ = fmt.Fprintf(stdout, "Stamped envelope written to %s\n", path)
		return 0
	}

	_, _ = fmt.Fprintln(stdout, string(out))
	return 0
}
