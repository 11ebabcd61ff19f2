package pipeline

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/scbe-labs/gate/pkg/contracts"
)

// CELPrefilter is a reference fractal-gate strategy: a cheap nonlinear
// pre-filter over context and intent, expressed as a deployer-supplied CEL
// expression. The expression sees three variables:
//
//	ctx    — the context section as a map
//	intent — the intent section as a map
//	now    — the evaluation timestamp in unix seconds
//
// and must evaluate to a bool. Evaluation errors are fail-closed.
type CELPrefilter struct {
	program cel.Program
	expr    string
}

// NewCELPrefilter compiles the expression once. A compile failure is a
// configuration error and is returned to the deployer at wiring time.
func NewCELPrefilter(expr string) (*CELPrefilter, error) {
	env, err := cel.NewEnv(
		cel.Variable("ctx", cel.DynType),
		cel.Variable("intent", cel.DynType),
		cel.Variable("now", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline: cel environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("pipeline: cel compile %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("pipeline: cel expression %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("pipeline: cel program: %w", err)
	}

	return &CELPrefilter{program: program, expr: expr}, nil
}

func (f *CELPrefilter) Name() string { return "fractal" }

// Check evaluates the expression against the envelope. Missing sections and
// runtime evaluation errors reject with the fractal reason.
func (f *CELPrefilter) Check(_ context.Context, env *contracts.Envelope) GateResult {
	if env == nil || env.Ctx == nil || env.Intent == nil {
		return Reject(contracts.ReasonFractal, "context or intent section missing")
	}

	input := map[string]any{
		"now": env.Ctx.TS,
		"ctx": map[string]any{
			"ts":           env.Ctx.TS,
			"device_id":    env.Ctx.DeviceID,
			"threat_level": env.Ctx.ThreatLevel,
			"entropy":      env.Ctx.Entropy,
			"server_load":  env.Ctx.ServerLoad,
			"stability":    env.Ctx.Stability,
		},
		"intent": map[string]any{
			"primary":   env.Intent.Primary,
			"modifier":  env.Intent.Modifier,
			"harmonic":  env.Intent.Harmonic,
			"phase_deg": env.Intent.PhaseDeg,
		},
	}

	out, _, err := f.program.Eval(input)
	if err != nil {
		return Reject(contracts.ReasonFractal, fmt.Sprintf("prefilter evaluation failed: %v", err))
	}
	if out != types.True {
		return Reject(contracts.ReasonFractal, fmt.Sprintf("prefilter %q not satisfied", f.expr))
	}
	return Accept()
}
