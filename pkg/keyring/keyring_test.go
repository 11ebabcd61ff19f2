package keyring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scbe-labs/gate/pkg/contracts"
	"github.com/scbe-labs/gate/pkg/envelope"
)

func stampedEnvelope(t *testing.T) *contracts.Envelope {
	t.Helper()
	c := envelope.NewCodec().WithClock(func() time.Time { return time.Unix(1700000000, 0) })
	env := c.New(
		c.NewContext("dev-1", 3, 0.5, 0.5, 0.5),
		c.NewIntent("process", "analyze", 3, 180),
		c.NewTrajectory(1700000000-1800, 3600, "slot", 1),
		c.NewAAD("anthropic", "run-1", 1),
	)
	if err := envelope.Stamp(env); err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}
	return env
}

func newRing(t *testing.T) *Keyring {
	t.Helper()
	provider, err := NewMemoryKeyProvider()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	ring, err := New(provider)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return ring
}

func TestSignVerifyRoundTrip(t *testing.T) {
	ring := newRing(t)
	env := stampedEnvelope(t)

	if err := ring.SignEnvelope(env); err != nil {
		t.Fatalf("SignEnvelope failed: %v", err)
	}
	if env.Sig.OrchestratorSigB64 == "" {
		t.Fatal("signature not attached")
	}
	if !ring.VerifyEnvelope(env) {
		t.Error("freshly signed envelope fails verification")
	}
}

func TestVerifyRejectsTamperedCommitment(t *testing.T) {
	ring := newRing(t)
	env := stampedEnvelope(t)

	if err := ring.SignEnvelope(env); err != nil {
		t.Fatalf("SignEnvelope failed: %v", err)
	}
	env.Commit.CtxSHA256 = env.Commit.AADSHA256

	if ring.VerifyEnvelope(env) {
		t.Error("tampered commitment passed signature verification")
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	ringA := newRing(t)
	ringB := newRing(t)
	env := stampedEnvelope(t)

	if err := ringA.SignEnvelope(env); err != nil {
		t.Fatalf("SignEnvelope failed: %v", err)
	}
	if ringB.VerifyEnvelope(env) {
		t.Error("signature from another keyring verified")
	}
}

func TestSignRequiresCommitment(t *testing.T) {
	ring := newRing(t)
	env := stampedEnvelope(t)
	env.Commit = nil

	if err := ring.SignEnvelope(env); !errors.Is(err, ErrNoCommitment) {
		t.Errorf("expected ErrNoCommitment, got %v", err)
	}
}

func TestDeriveForRouteIsDeterministicAndIsolated(t *testing.T) {
	ring := newRing(t)

	a1, err := ring.DeriveForRoute("anthropic")
	if err != nil {
		t.Fatalf("DeriveForRoute failed: %v", err)
	}
	a2, err := ring.DeriveForRoute("anthropic")
	if err != nil {
		t.Fatalf("DeriveForRoute failed: %v", err)
	}
	b, err := ring.DeriveForRoute("github-api")
	if err != nil {
		t.Fatalf("DeriveForRoute failed: %v", err)
	}

	if !a1.provider.PublicKey().Equal(a2.provider.PublicKey()) {
		t.Error("same route derived different keys")
	}
	if a1.provider.PublicKey().Equal(b.provider.PublicKey()) {
		t.Error("different routes derived the same key")
	}

	env := stampedEnvelope(t)
	if err := a1.SignEnvelope(env); err != nil {
		t.Fatalf("SignEnvelope failed: %v", err)
	}
	if !a2.VerifyEnvelope(env) {
		t.Error("re-derived keyring cannot verify sibling signature")
	}
	if b.VerifyEnvelope(env) {
		t.Error("foreign route keyring verified signature")
	}
}

func TestSignatureGate(t *testing.T) {
	ring := newRing(t)
	gate := NewSignatureGate(ring)
	env := stampedEnvelope(t)

	result := gate.Check(context.Background(), env)
	if result.Allowed {
		t.Error("unsigned envelope passed crypto gate")
	}
	if result.Reason != contracts.ReasonCrypto {
		t.Errorf("expected crypto reason, got %q", result.Reason)
	}

	if err := ring.SignEnvelope(env); err != nil {
		t.Fatalf("SignEnvelope failed: %v", err)
	}
	if result := gate.Check(context.Background(), env); !result.Allowed {
		t.Errorf("signed envelope rejected: %s", result.Detail)
	}
}
