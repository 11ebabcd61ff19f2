package contracts

// Reason identifies which pipeline stage rejected an envelope. Each reason is
// raised by exactly one stage. Internally every reason is precise; externally
// every rejection surfaces only as a noise response.
type Reason string

// Rejection reason codes.
const (
	// ReasonSchema covers malformed structure, out-of-bounds fields, and
	// commitment mismatch. Tamper or corruption; never retried.
	ReasonSchema Reason = "schema"

	// ReasonIntent is a policy violation: the intent key is not allow-listed
	// for the requested route. Not retried; a configuration issue.
	ReasonIntent Reason = "intent"

	// ReasonTrajectory is a clock, window, or phase violation. May be
	// transiently retried by the caller once clock skew is ruled out.
	ReasonTrajectory Reason = "trajectory"

	// ReasonSwarm means the route's trust score is below threshold. Not
	// retried until trust recovers via successful outcomes elsewhere.
	ReasonSwarm Reason = "swarm"

	// Reserved reasons for the deployer-supplied extension gates.
	ReasonFractal Reason = "fractal"
	ReasonNeural  Reason = "neural"
	ReasonCrypto  Reason = "crypto"
)

// IntentKey is the allow-list lookup key derived from an envelope's intent.
type IntentKey struct {
	Primary  string `json:"primary"`
	Modifier string `json:"modifier"`
	Harmonic int    `json:"harmonic"`
}

// Key extracts the allow-list lookup key from an intent.
func (i *Intent) Key() IntentKey {
	return IntentKey{Primary: i.Primary, Modifier: i.Modifier, Harmonic: i.Harmonic}
}
