// Package envelope builds, canonicalizes, stamps, serializes, and parses the
// request-authorization envelope.
//
// The envelope is the foundational primitive of the gate: every inbound task
// request is wrapped in one before anything is allowed to reach an execution
// provider. Construction-time errors here are local-caller mistakes and are
// surfaced directly; everything after the adversarial boundary goes through
// the verification pipeline instead.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/scbe-labs/gate/pkg/contracts"
)

var (
	// ErrIncompleteEnvelope is returned when commitments are requested before
	// Context, Intent, Trajectory, and AAD are all set.
	ErrIncompleteEnvelope = errors.New("envelope: context, intent, trajectory, and aad must be set before computing commitments")

	// ErrMalformedEnvelope is returned by Parse when the document is not a
	// structurally valid envelope.
	ErrMalformedEnvelope = errors.New("envelope: malformed envelope")
)

// formatConstraint accepts any 2.x envelope format.
var formatConstraint = mustConstraint("^2")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Codec builds and round-trips envelopes. The zero value is not usable;
// construct with NewCodec.
type Codec struct {
	clock func() time.Time
}

// NewCodec creates a codec using the wall clock.
func NewCodec() *Codec {
	return &Codec{clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (c *Codec) WithClock(clock func() time.Time) *Codec {
	c.clock = clock
	return c
}

// NewContext creates a context stamped with the current timestamp.
// Threat level is bounded to 1..5; the three signals are clamped to [0,1].
func (c *Codec) NewContext(deviceID string, threatLevel int, entropy, serverLoad, stability float64) *contracts.Context {
	return &contracts.Context{
		TS:          c.clock().Unix(),
		DeviceID:    deviceID,
		ThreatLevel: boundInt(threatLevel, 1, 5),
		Entropy:     clamp01(entropy),
		ServerLoad:  clamp01(serverLoad),
		Stability:   clamp01(stability),
	}
}

// NewIntent creates an intent. Harmonic is bounded to 1..7 and the phase
// angle is wrapped into 0..359.
func (c *Codec) NewIntent(primary, modifier string, harmonic, phaseDeg int) *contracts.Intent {
	return &contracts.Intent{
		Primary:  primary,
		Modifier: modifier,
		Harmonic: boundInt(harmonic, 1, 7),
		PhaseDeg: wrapDegrees(phaseDeg),
	}
}

// NewTrajectory creates a trajectory window specification.
func (c *Codec) NewTrajectory(epoch, periodS int64, slotID string, waypoint int) *contracts.Trajectory {
	return &contracts.Trajectory{
		Epoch:    epoch,
		PeriodS:  periodS,
		SlotID:   slotID,
		Waypoint: waypoint,
	}
}

// NewAAD creates the additional authenticated data binding an envelope to an
// execution route.
func (c *Codec) NewAAD(routeHint, runID string, stepNo int) *contracts.AAD {
	return &contracts.AAD{
		RouteHint: routeHint,
		RunID:     runID,
		StepNo:    stepNo,
	}
}

// New assembles an envelope from its sections. Crypto and signatures are
// attached later in the lifecycle; the commitment is stamped via Stamp.
func (c *Codec) New(ctx *contracts.Context, intent *contracts.Intent, traj *contracts.Trajectory, aad *contracts.AAD) *contracts.Envelope {
	return &contracts.Envelope{
		Ver:        contracts.Version,
		Ctx:        ctx,
		Intent:     intent,
		Trajectory: traj,
		AAD:        aad,
		Sig:        &contracts.Signatures{},
	}
}

// Marshal serializes the envelope to its JSON exchange form.
func (c *Codec) Marshal(env *contracts.Envelope) ([]byte, error) {
	return json.MarshalIndent(env, "", "  ")
}

// Parse reads an envelope from its JSON exchange form. It fails with
// ErrMalformedEnvelope when the document does not satisfy the envelope
// schema, when a mandatory section (ctx, intent, trajectory, aad, commit)
// is absent, or when the format version is not a supported 2.x release.
func (c *Codec) Parse(data []byte) (*contracts.Envelope, error) {
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedEnvelope, err)
	}
	if err := validateSchema(generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	var env contracts.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	if env.Ctx == nil || env.Intent == nil || env.Trajectory == nil || env.AAD == nil || env.Commit == nil {
		return nil, fmt.Errorf("%w: mandatory section missing", ErrMalformedEnvelope)
	}

	if err := checkFormatVersion(env.Ver); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	return &env, nil
}

// checkFormatVersion verifies a "scbe-<semver>" version tag against the
// supported range.
func checkFormatVersion(ver string) error {
	raw, ok := strings.CutPrefix(ver, "scbe-")
	if !ok {
		return fmt.Errorf("unrecognized format tag %q", ver)
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("unparseable format version %q: %v", ver, err)
	}
	if !formatConstraint.Check(v) {
		return fmt.Errorf("unsupported format version %q", ver)
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func boundInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// wrapDegrees maps any angle onto 0..359, including negative inputs.
func wrapDegrees(deg int) int {
	return ((deg % 360) + 360) % 360
}
