// Package pipeline runs the ordered gate sequence that decides whether a
// request envelope may be dispatched.
//
// The sequence is fixed: schema+clamp, fractal (extension), intent policy,
// trajectory+phase lock, neural (extension), swarm trust, crypto (extension).
// Every gate runs on every call; the decision branch happens once, at the
// end, so the response path has the same shape no matter which gate failed.
// The decision signal stays internal — callers surface rejections only as
// noise responses.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/scbe-labs/gate/pkg/audit"
	"github.com/scbe-labs/gate/pkg/contracts"
	"github.com/scbe-labs/gate/pkg/envelope"
	"github.com/scbe-labs/gate/pkg/noise"
	"github.com/scbe-labs/gate/pkg/policy"
)

const (
	// DefaultPhaseTolerance is the accepted circular distance, in degrees,
	// between the declared intent angle and the angle implied by elapsed
	// time. The boundary is inclusive: distance == tolerance passes.
	DefaultPhaseTolerance = 15.0
)

// Gate is one pluggable check. The three extension points (fractal, neural,
// crypto) are supplied through this interface; a nil gate always passes.
type Gate interface {
	Name() string
	Check(ctx context.Context, env *contracts.Envelope) GateResult
}

// GateFunc adapts a function to the Gate interface.
type GateFunc struct {
	GateName string
	Fn       func(ctx context.Context, env *contracts.Envelope) GateResult
}

func (g GateFunc) Name() string { return g.GateName }

func (g GateFunc) Check(ctx context.Context, env *contracts.Envelope) GateResult {
	return g.Fn(ctx, env)
}

// Pipeline evaluates envelopes against a policy registry. Construct with New
// and configure with the With* chainers; the zero value is not usable.
type Pipeline struct {
	registry  policy.Registry
	clock     func() time.Time
	tolerance float64
	minTrust  float64

	fractal Gate
	neural  Gate
	crypto  Gate

	sink   audit.Logger
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a pipeline over the given registry with default thresholds, no
// extension gates, and a discarding audit sink.
func New(registry policy.Registry) *Pipeline {
	return &Pipeline{
		registry:  registry,
		clock:     time.Now,
		tolerance: DefaultPhaseTolerance,
		minTrust:  policy.DefaultMinTrust,
		sink:      audit.Discard,
		logger:    slog.Default(),
		tracer:    otel.Tracer("github.com/scbe-labs/gate/pkg/pipeline"),
	}
}

// WithClock overrides the clock for deterministic testing.
func (p *Pipeline) WithClock(clock func() time.Time) *Pipeline {
	p.clock = clock
	return p
}

// WithPhaseTolerance overrides the phase-lock tolerance in degrees.
func (p *Pipeline) WithPhaseTolerance(deg float64) *Pipeline {
	p.tolerance = deg
	return p
}

// WithMinTrust overrides the swarm auto-exclusion threshold.
func (p *Pipeline) WithMinTrust(min float64) *Pipeline {
	p.minTrust = min
	return p
}

// WithFractalGate installs the fractal pre-filter extension.
func (p *Pipeline) WithFractalGate(g Gate) *Pipeline {
	p.fractal = g
	return p
}

// WithNeuralGate installs the behavior-energy extension.
func (p *Pipeline) WithNeuralGate(g Gate) *Pipeline {
	p.neural = g
	return p
}

// WithCryptoGate installs the signature/decapsulation extension.
func (p *Pipeline) WithCryptoGate(g Gate) *Pipeline {
	p.crypto = g
	return p
}

// WithAudit installs the decision audit sink.
func (p *Pipeline) WithAudit(sink audit.Logger) *Pipeline {
	p.sink = sink
	return p
}

// WithLogger overrides the structured logger.
func (p *Pipeline) WithLogger(logger *slog.Logger) *Pipeline {
	p.logger = logger
	return p
}

// VerifyFull runs every gate in order and returns the first failure by gate
// order, or an accepting result. All gates execute on every call; no early
// return happens before the final selection.
func (p *Pipeline) VerifyFull(ctx context.Context, env *contracts.Envelope) GateResult {
	ctx, span := p.tracer.Start(ctx, "gate.verify_full")
	defer span.End()

	results := [7]GateResult{
		p.checkSchema(env),
		p.checkExtension(ctx, p.fractal, env),
		p.checkIntentPolicy(ctx, env),
		p.checkTrajectory(env),
		p.checkExtension(ctx, p.neural, env),
		p.checkSwarmTrust(ctx, env),
		p.checkExtension(ctx, p.crypto, env),
	}

	decision := Accept()
	for _, r := range results {
		if !r.Allowed && decision.Allowed {
			decision = r
		}
	}

	p.record(ctx, span, env, decision)
	return decision
}

// Decision pairs the internal gate result with the externally observable
// response: the envelope itself on accept, a noise response on reject.
type Decision struct {
	Result   GateResult
	Response *contracts.Envelope
}

// Decide runs VerifyFull and builds the external response. The seed should be
// derived from caller identity so probing with the same envelope yields the
// same noise. An unstamped envelope is a local-caller mistake and is returned
// as an error directly; it never crosses the adversarial boundary.
func (p *Pipeline) Decide(ctx context.Context, env *contracts.Envelope, seed string) (*Decision, error) {
	result := p.VerifyFull(ctx, env)
	if result.Allowed {
		return &Decision{Result: result, Response: env}, nil
	}

	masked, err := noise.Generate(env, seed)
	if err != nil {
		return nil, fmt.Errorf("pipeline: noise response: %w", err)
	}
	return &Decision{Result: result, Response: masked}, nil
}

// --- Mandatory gates ---

// checkSchema validates structure: all sections present, commitments intact,
// and every bounded field within range.
func (p *Pipeline) checkSchema(env *contracts.Envelope) GateResult {
	if env == nil || env.Ctx == nil || env.Intent == nil || env.Trajectory == nil ||
		env.AAD == nil || env.Commit == nil || env.Crypto == nil {
		return Reject(contracts.ReasonSchema, "missing required envelope section")
	}

	if !envelope.VerifyCommitments(env) {
		return Reject(contracts.ReasonSchema, "commitment mismatch: envelope tampering or corruption")
	}

	for name, v := range map[string]float64{
		"entropy":     env.Ctx.Entropy,
		"server_load": env.Ctx.ServerLoad,
		"stability":   env.Ctx.Stability,
	} {
		if v < 0 || v > 1 {
			return Reject(contracts.ReasonSchema, fmt.Sprintf("%s out of bounds: %v", name, v))
		}
	}
	if env.Ctx.ThreatLevel < 1 || env.Ctx.ThreatLevel > 5 {
		return Reject(contracts.ReasonSchema, fmt.Sprintf("threat_level out of bounds: %d", env.Ctx.ThreatLevel))
	}
	if env.Intent.Harmonic < 1 || env.Intent.Harmonic > 7 {
		return Reject(contracts.ReasonSchema, fmt.Sprintf("harmonic out of bounds: %d", env.Intent.Harmonic))
	}
	if env.Intent.PhaseDeg < 0 || env.Intent.PhaseDeg > 359 {
		return Reject(contracts.ReasonSchema, fmt.Sprintf("phase_deg out of bounds: %d", env.Intent.PhaseDeg))
	}

	return Accept()
}

// checkIntentPolicy looks up (primary, modifier, harmonic) and rejects unless
// the declared route is in the permitted set. Registry failure is fail-closed.
func (p *Pipeline) checkIntentPolicy(ctx context.Context, env *contracts.Envelope) GateResult {
	if env == nil || env.Intent == nil || env.AAD == nil {
		return Reject(contracts.ReasonIntent, "intent or aad section missing")
	}

	key := env.Intent.Key()
	ok, err := p.registry.Allowed(ctx, key, env.AAD.RouteHint)
	if err != nil {
		p.logger.ErrorContext(ctx, "intent policy lookup failed", "error", err)
		return Reject(contracts.ReasonIntent, "policy registry unavailable")
	}
	if !ok {
		return Reject(contracts.ReasonIntent,
			fmt.Sprintf("intent (%s, %s, %d) not allowed for route %q",
				key.Primary, key.Modifier, key.Harmonic, env.AAD.RouteHint))
	}
	return Accept()
}

// checkTrajectory enforces the policy window and the phase lock: the declared
// intent angle must match the angle implied by elapsed time since epoch,
// within tolerance, with wraparound handled circularly.
func (p *Pipeline) checkTrajectory(env *contracts.Envelope) GateResult {
	if env == nil || env.Trajectory == nil || env.Intent == nil {
		return Reject(contracts.ReasonTrajectory, "trajectory or intent section missing")
	}

	traj := env.Trajectory
	if traj.PeriodS <= 0 {
		return Reject(contracts.ReasonTrajectory, fmt.Sprintf("invalid period %d", traj.PeriodS))
	}

	now := p.clock().Unix()
	if now < traj.Epoch {
		return Reject(contracts.ReasonTrajectory,
			fmt.Sprintf("request %ds before trajectory epoch", traj.Epoch-now))
	}

	elapsed := now - traj.Epoch
	expected := math.Mod(360*(float64(elapsed)/float64(traj.PeriodS)), 360)

	if d := circularDistance(expected, float64(env.Intent.PhaseDeg)); d > p.tolerance {
		return Reject(contracts.ReasonTrajectory,
			fmt.Sprintf("phase mismatch: declared %d°, expected %.1f° (distance %.1f°)",
				env.Intent.PhaseDeg, expected, d))
	}
	return Accept()
}

// checkSwarmTrust rejects routes whose trust has decayed below the
// auto-exclusion threshold. Registry failure is fail-closed.
func (p *Pipeline) checkSwarmTrust(ctx context.Context, env *contracts.Envelope) GateResult {
	if env == nil || env.AAD == nil {
		return Reject(contracts.ReasonSwarm, "aad section missing")
	}

	trust, err := p.registry.Trust(ctx, env.AAD.RouteHint)
	if err != nil {
		p.logger.ErrorContext(ctx, "trust lookup failed", "error", err)
		return Reject(contracts.ReasonSwarm, "policy registry unavailable")
	}
	if trust < p.minTrust {
		return Reject(contracts.ReasonSwarm,
			fmt.Sprintf("route %q trust %.2f below minimum %.2f", env.AAD.RouteHint, trust, p.minTrust))
	}
	return Accept()
}

// checkExtension runs a pluggable gate. Absent gates always pass; they are
// unimplemented, not untrusted.
func (p *Pipeline) checkExtension(ctx context.Context, g Gate, env *contracts.Envelope) GateResult {
	if g == nil {
		return Accept()
	}
	return g.Check(ctx, env)
}

// circularDistance returns min(|a-b|, 360-|a-b|).
func circularDistance(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func (p *Pipeline) record(ctx context.Context, span trace.Span, env *contracts.Envelope, decision GateResult) {
	event := audit.Event{Detail: decision.Detail, Reason: decision.Reason}
	if decision.Allowed {
		event.Outcome = audit.OutcomeAccept
		event.Reason = ""
	} else {
		event.Outcome = audit.OutcomeReject
	}
	if env != nil && env.AAD != nil {
		event.Route = env.AAD.RouteHint
		event.RunID = env.AAD.RunID
	}
	if env != nil && env.Ctx != nil {
		event.DeviceID = env.Ctx.DeviceID
	}

	span.SetAttributes(
		attribute.Bool("gate.allowed", decision.Allowed),
		attribute.String("gate.reason", string(decision.Reason)),
		attribute.String("gate.route", event.Route),
	)

	if err := p.sink.Record(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "audit record failed", "error", err)
	}
}
