package keyring

import (
	"context"

	"github.com/scbe-labs/gate/pkg/contracts"
	"github.com/scbe-labs/gate/pkg/pipeline"
)

// SignatureGate is a crypto-gate strategy requiring a valid orchestrator
// signature from this keyring.
type SignatureGate struct {
	ring *Keyring
}

// NewSignatureGate wraps a keyring as a pipeline gate.
func NewSignatureGate(ring *Keyring) *SignatureGate {
	return &SignatureGate{ring: ring}
}

func (g *SignatureGate) Name() string { return "crypto" }

func (g *SignatureGate) Check(_ context.Context, env *contracts.Envelope) pipeline.GateResult {
	if !g.ring.VerifyEnvelope(env) {
		return pipeline.Reject(contracts.ReasonCrypto, "orchestrator signature missing or invalid")
	}
	return pipeline.Accept()
}
