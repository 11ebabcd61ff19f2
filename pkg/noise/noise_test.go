package noise

import (
	"encoding/base64"
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
		c.NewIntent("test", "noise", 3, 45),
		c.NewTrajectory(1700000000, 3600, "slot", 1),
		c.NewAAD("github-api", "run-1", 1),
	)
	if err := envelope.Stamp(env); err != nil {
		t.Fatalf("Stamp failed: %v", err)
	}
	env.Crypto = &contracts.CryptoParams{KEM: "ML-KEM-768", Sig: "ML-DSA-65", CipherB64: "cmVhbA=="}
	return env
}

func TestGenerateIsDeterministic(t *testing.T) {
	env := stampedEnvelope(t)

	n1, err := Generate(env, "seed-A")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	n2, err := Generate(env, "seed-A")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if n1.Crypto.CipherB64 != n2.Crypto.CipherB64 {
		t.Error("identical (envelope, seed) produced different noise")
	}
}

func TestGenerateLengthInBand(t *testing.T) {
	env := stampedEnvelope(t)

	for _, seed := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		n, err := Generate(env, seed)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		raw, err := base64.StdEncoding.DecodeString(n.Crypto.CipherB64)
		if err != nil {
			t.Fatalf("noise is not valid base64: %v", err)
		}
		if len(raw) < 4096 || len(raw) > 8191 {
			t.Errorf("seed %q: noise length %d outside [4096, 8191]", seed, len(raw))
		}
	}
}

func TestGenerateDifferentSeedsDiffer(t *testing.T) {
	env := stampedEnvelope(t)

	n1, err := Generate(env, "seed-A")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	n2, err := Generate(env, "seed-B")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if n1.Crypto.CipherB64 == n2.Crypto.CipherB64 {
		t.Error("different seeds produced identical noise")
	}
}

func TestGenerateCarriesFieldsAndPreservesInput(t *testing.T) {
	env := stampedEnvelope(t)
	originalCipher := env.Crypto.CipherB64

	n, err := Generate(env, "seed-A")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if env.Crypto.CipherB64 != originalCipher {
		t.Error("input envelope was mutated")
	}
	if n.Ctx.DeviceID != env.Ctx.DeviceID || n.AAD.RouteHint != env.AAD.RouteHint {
		t.Error("noise response did not carry envelope fields through")
	}
	if n.Crypto.KEM != "ML-KEM-768" {
		t.Error("crypto parameters other than cipher were altered")
	}
	if n.Crypto.CipherB64 == originalCipher {
		t.Error("cipher was not replaced")
	}
}

func TestGenerateRequiresCommitment(t *testing.T) {
	env := stampedEnvelope(t)
	env.Commit = nil

	_, err := Generate(env, "seed-A")
	if !errors.Is(err, ErrUnstamped) {
		t.Errorf("expected ErrUnstamped, got %v", err)
	}
}
