package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/scbe-labs/gate/pkg/envelope"
	"github.com/scbe-labs/gate/pkg/pipeline"
)

// runDecideCmd implements `gate decide`.
//
// Runs the gate sequence and prints the external response: the envelope
// itself on accept, a noise envelope on reject. The verdict is carried only
// in the exit code, matching what a remote caller can observe.
//
// Exit codes:
//
//	0 = accepted
//	1 = rejected (response is noise)
//	2 = runtime error
func runDecideCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("decide", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		envPath    string
		policyPath string
		tolerance  float64
		filter     string
		seed       string
	)
	cmd.StringVar(&envPath, "envelope", "", "Path to envelope JSON (REQUIRED)")
	cmd.StringVar(&policyPath, "policy", "policy.yaml", "Path to policy YAML")
	cmd.Float64Var(&tolerance, "tolerance", pipeline.DefaultPhaseTolerance, "Phase-lock tolerance in degrees")
	cmd.StringVar(&filter, "filter", "", "Optional CEL pre-filter expression")
	cmd.StringVar(&seed, "seed", "", "Caller identity seed for the noise response (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if envPath == "" || seed == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --envelope and --seed are required")
		return 2
	}

	env, p, code := loadInputs(envPath, policyPath, tolerance, filter, stderr)
	if code != 0 {
		return code
	}

	decision, err := p.Decide(context.Background(), env, seed)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	out, err := envelope.NewCodec().Marshal(decision.Response)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: encode failed: %v\n", err)
		return 2
	}
	_, _ = fmt.Fprintln(stdout, string(out))

	if !decision.Result.Allowed {
		return 1
	}
	return 0
}
