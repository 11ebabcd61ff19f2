package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/scbe-labs/gate/pkg/config"
	"github.com/scbe-labs/gate/pkg/contracts"
	"github.com/scbe-labs/gate/pkg/envelope"
	"github.com/scbe-labs/gate/pkg/pipeline"
	"github.com/scbe-labs/gate/pkg/policy"
)

// runVerifyCmd implements `gate verify`.
//
// Parses an envelope, loads the policy document, and runs the full gate
// sequence. The internal verdict, including the reason code, is printed; this
// command is for operators, so nothing is masked.
//
// Exit codes:
//
//	0 = accepted
//	1 = rejected
//	2 = runtime error
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		envPath    string
		policyPath string
		tolerance  float64
		filter     string
		jsonOutput bool
	)
	cmd.StringVar(&envPath, "envelope", "", "Path to envelope JSON (REQUIRED)")
	cmd.StringVar(&policyPath, "policy", "policy.yaml", "Path to policy YAML")
	cmd.Float64Var(&tolerance, "tolerance", pipeline.DefaultPhaseTolerance, "Phase-lock tolerance in degrees")
	cmd.StringVar(&filter, "filter", "", "Optional CEL pre-filter expression")
	cmd.BoolVar(&jsonOutput, "json", false, "Output verdict as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if envPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --envelope is required")
		return 2
	}

	env, p, code := loadInputs(envPath, policyPath, tolerance, filter, stderr)
	if code != 0 {
		return code
	}

	result := p.VerifyFull(context.Background(), env)

	if jsonOutput {
		data, _ := json.MarshalIndent(result, "", "  ")
		_, _ = fmt.Fprintln(stdout, string(data))
	} else if result.Allowed {
		_, _ = fmt.Fprintln(stdout, "ACCEPT")
	} else {
		_, _ = fmt.Fprintf(stdout, "REJECT (%s): %s\n", result.Reason, result.Detail)
	}

	if !result.Allowed {
		return 1
	}
	return 0
}

// loadInputs is shared by verify and decide: it parses the envelope, loads
// the policy document into a fresh registry, and assembles a pipeline.
func loadInputs(envPath, policyPath string, tolerance float64, filter string, stderr io.Writer) (*contracts.Envelope, *pipeline.Pipeline, int) {
	data, err := os.ReadFile(envPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: cannot read envelope: %v\n", err)
		return nil, nil, 2
	}
	env, err := envelope.NewCodec().Parse(data)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: invalid envelope: %v\n", err)
		return nil, nil, 2
	}

	doc, err := config.LoadPolicy(policyPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, nil, 2
	}
	reg := policy.NewInMemory()
	if err := doc.Apply(context.Background(), reg); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: apply policy: %v\n", err)
		return nil, nil, 2
	}

	p := pipeline.New(reg).WithPhaseTolerance(tolerance)
	if filter != "" {
		gate, err := pipeline.NewCELPrefilter(filter)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return nil, nil, 2
		}
		p = p.WithFractalGate(gate)
	}

	return env, p, 0
}
