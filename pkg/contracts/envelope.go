package contracts

// Version is the envelope format identifier carried in the "ver" field.
const Version = "scbe-2.0"

// Context is the per-request situational snapshot. It is attached fresh to
// every envelope and never reused across requests with a different timestamp.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Context struct {
	TS          int64   `json:"ts"` // seconds, not milliseconds
	DeviceID    string  `json:"device_id"`
	ThreatLevel int     `json:"threat_level"` // 1..5
	Entropy     float64 `json:"entropy"`      // [0,1] clamped
	ServerLoad  float64 `json:"server_load"`  // [0,1] clamped
	Stability   float64 `json:"stability"`    // [0,1] clamped
}

// Intent is the semantic operation being requested. (Primary, Modifier,
// Harmonic) forms the lookup key into the policy registry's allow-list.
type Intent struct {
	Primary  string `json:"primary"`
	Modifier string `json:"modifier"`
	Harmonic int    `json:"harmonic"`  // 1..7
	PhaseDeg int    `json:"phase_deg"` // 0..359, wrapped
}

// Trajectory is the time-windowed authorization schedule used to phase-lock
// the declared intent angle against wall-clock elapsed time since Epoch.
type Trajectory struct {
	Epoch    int64  `json:"epoch"`    // start of policy window, seconds
	PeriodS  int64  `json:"period_s"` // phase period in seconds
	SlotID   string `json:"slot_id"`
	Waypoint int    `json:"waypoint"`
}

// AAD (Additional Authenticated Data) binds the envelope to a specific
// execution route.
type AAD struct {
	RouteHint string `json:"route_hint"`
	RunID     string `json:"run_id"`
	StepNo    int    `json:"step_no"`
}

// Commitment holds one SHA-256 hex digest per envelope section, computed
// over the canonical serialization of that section. Recomputing the four
// digests from the live section values must exactly equal the stored
// Commitment; any mismatch means corruption or tampering.
type Commitment struct {
	CtxSHA256    string `json:"ctx_sha256"`
	IntentSHA256 string `json:"intent_sha256"`
	TrajSHA256   string `json:"traj_sha256"`
	AADSHA256    string `json:"aad_sha256"`
}

// CryptoParams identifies the key-encapsulation and signature schemes plus
// the parameters of the nonlinear diffusion step. The mandatory gates do not
// interpret this block; a deployer-supplied crypto gate may.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type CryptoParams struct {
	KEM       string         `json:"kem"` // e.g. "ML-KEM-768"
	Sig       string         `json:"sig"` // e.g. "ML-DSA-65"
	H         map[string]any `json:"h,omitempty"`
	SaltQB64  string         `json:"salt_q_b64"`
	CipherB64 string         `json:"cipher_b64"`
}

// Signatures holds the orchestrator- and provider-supplied signature blobs,
// populated later in the protocol lifecycle.
type Signatures struct {
	OrchestratorSigB64 string `json:"orchestrator_sig_b64,omitempty"`
	ProviderSigB64     string `json:"provider_sig_b64,omitempty"`
}

// Envelope is the structured, committed bundle describing one authorization
// request. It is constructed once per request and is immutable after its
// Commitment is stamped: mutating any section invalidates the Commitment.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Envelope struct {
	Ver        string        `json:"ver"`
	Ctx        *Context      `json:"ctx"`
	Intent     *Intent       `json:"intent"`
	Trajectory *Trajectory   `json:"trajectory"`
	AAD        *AAD          `json:"aad"`
	Commit     *Commitment   `json:"commit"`
	Crypto     *CryptoParams `json:"crypto"`
	Sig        *Signatures   `json:"sig"`
}

// Clone returns a deep copy of the envelope. The noise path returns a copy so
// the caller's envelope is never mutated after stamping.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	out := &Envelope{Ver: e.Ver}
	if e.Ctx != nil {
		c := *e.Ctx
		out.Ctx = &c
	}
	if e.Intent != nil {
		i := *e.Intent
		out.Intent = &i
	}
	if e.Trajectory != nil {
		t := *e.Trajectory
		out.Trajectory = &t
	}
	if e.AAD != nil {
		a := *e.AAD
		out.AAD = &a
	}
	if e.Commit != nil {
		c := *e.Commit
		out.Commit = &c
	}
	if e.Crypto != nil {
		c := *e.Crypto
		if e.Crypto.H != nil {
			c.H = make(map[string]any, len(e.Crypto.H))
			for k, v := range e.Crypto.H {
				c.H[k] = v
			}
		}
		out.Crypto = &c
	}
	if e.Sig != nil {
		s := *e.Sig
		out.Sig = &s
	}
	return out
}
