package envelope

import (
	"crypto/subtle"
	"fmt"

	"github.com/scbe-labs/gate/pkg/canonicalize"
	"github.com/scbe-labs/gate/pkg/contracts"
)

// ComputeCommitments derives one SHA-256 digest per envelope section over its
// canonical serialization. All four sections must be present; otherwise
// ErrIncompleteEnvelope is returned.
func ComputeCommitments(env *contracts.Envelope) (*contracts.Commitment, error) {
	if env == nil || env.Ctx == nil || env.Intent == nil || env.Trajectory == nil || env.AAD == nil {
		return nil, ErrIncompleteEnvelope
	}

	ctxHash, err := canonicalize.SectionHash(env.Ctx)
	if err != nil {
		return nil, fmt.Errorf("envelope: context commitment: %w", err)
	}
	intentHash, err := canonicalize.SectionHash(env.Intent)
	if err != nil {
		return nil, fmt.Errorf("envelope: intent commitment: %w", err)
	}
	trajHash, err := canonicalize.SectionHash(env.Trajectory)
	if err != nil {
		return nil, fmt.Errorf("envelope: trajectory commitment: %w", err)
	}
	aadHash, err := canonicalize.SectionHash(env.AAD)
	if err != nil {
		return nil, fmt.Errorf("envelope: aad commitment: %w", err)
	}

	return &contracts.Commitment{
		CtxSHA256:    ctxHash,
		IntentSHA256: intentHash,
		TrajSHA256:   trajHash,
		AADSHA256:    aadHash,
	}, nil
}

// Stamp computes and attaches the commitment. After stamping, mutating any
// section invalidates the envelope until Stamp is called again.
func Stamp(env *contracts.Envelope) error {
	commit, err := ComputeCommitments(env)
	if err != nil {
		return err
	}
	env.Commit = commit
	return nil
}

// VerifyCommitments recomputes all four section digests and compares them
// field by field against the stored commitment. A single mismatch, a missing
// commitment, or an incomplete envelope all yield false: there is no partial
// trust.
func VerifyCommitments(env *contracts.Envelope) bool {
	if env == nil || env.Commit == nil {
		return false
	}
	expected, err := ComputeCommitments(env)
	if err != nil {
		return false
	}

	// Constant-time compare; commitment checks sit on the adversarial path.
	ok := 1
	ok &= subtle.ConstantTimeCompare([]byte(expected.CtxSHA256), []byte(env.Commit.CtxSHA256))
	ok &= subtle.ConstantTimeCompare([]byte(expected.IntentSHA256), []byte(env.Commit.IntentSHA256))
	ok &= subtle.ConstantTimeCompare([]byte(expected.TrajSHA256), []byte(env.Commit.TrajSHA256))
	ok &= subtle.ConstantTimeCompare([]byte(expected.AADSHA256), []byte(env.Commit.AADSHA256))
	return ok == 1
}
