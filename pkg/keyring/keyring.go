// Package keyring provides the reference crypto-gate strategy: Ed25519
// orchestrator signatures over the envelope's commitment set, with optional
// per-route key derivation via HKDF-SHA256.
//
// The pipeline's crypto gate is an extension point; wiring this package is a
// deployer choice, not a mandate. Absent a crypto gate the pipeline passes
// the stage through without claiming assurance it does not provide.
package keyring

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/scbe-labs/gate/pkg/canonicalize"
	"github.com/scbe-labs/gate/pkg/contracts"
)

// ErrNoCommitment is returned when signing an envelope that has not been
// stamped; the signature covers the commitment set.
var ErrNoCommitment = errors.New("keyring: envelope has no commitment to sign")

// KeyProvider abstracts the signing backend so the in-memory implementation
// can be swapped for an HSM or KMS.
type KeyProvider interface {
	Sign(msg []byte) ([]byte, error)
	PublicKey() ed25519.PublicKey
}

// MemoryKeyProvider is an in-memory Ed25519 provider for development and
// tests.
type MemoryKeyProvider struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewMemoryKeyProvider generates a fresh keypair.
func NewMemoryKeyProvider() (*MemoryKeyProvider, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &MemoryKeyProvider{pub: pub, priv: priv}, nil
}

func (m *MemoryKeyProvider) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(m.priv, msg), nil
}

func (m *MemoryKeyProvider) PublicKey() ed25519.PublicKey {
	return m.pub
}

// Keyring signs and verifies envelope commitment sets using a Provider.
type Keyring struct {
	provider KeyProvider
}

// New creates a keyring over the given provider.
func New(p KeyProvider) (*Keyring, error) {
	if p == nil {
		return nil, errors.New("keyring: provider must not be nil")
	}
	return &Keyring{provider: p}, nil
}

// signingPayload is the canonical byte form the orchestrator signature
// covers: the commitment section, which itself binds all four envelope
// sections.
func signingPayload(env *contracts.Envelope) ([]byte, error) {
	if env == nil || env.Commit == nil {
		return nil, ErrNoCommitment
	}
	return canonicalize.JCS(env.Commit)
}

// SignEnvelope computes the orchestrator signature and attaches it.
func (k *Keyring) SignEnvelope(env *contracts.Envelope) error {
	payload, err := signingPayload(env)
	if err != nil {
		return err
	}
	sig, err := k.provider.Sign(payload)
	if err != nil {
		return fmt.Errorf("keyring: sign: %w", err)
	}
	if env.Sig == nil {
		env.Sig = &contracts.Signatures{}
	}
	env.Sig.OrchestratorSigB64 = base64.StdEncoding.EncodeToString(sig)
	return nil
}

// VerifyEnvelope checks the orchestrator signature against this keyring's
// public key. Missing or undecodable signatures verify false.
func (k *Keyring) VerifyEnvelope(env *contracts.Envelope) bool {
	if env == nil || env.Sig == nil || env.Sig.OrchestratorSigB64 == "" {
		return false
	}
	payload, err := signingPayload(env)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(env.Sig.OrchestratorSigB64)
	if err != nil {
		return false
	}
	return ed25519.Verify(k.provider.PublicKey(), payload, sig)
}

// DeriveForRoute derives a route-specific keyring using HKDF-SHA256 over the
// master key's seed, with the route as info. Each route gets a unique,
// deterministic keypair, so a leaked route key does not expose the master or
// any sibling route.
func (k *Keyring) DeriveForRoute(route string) (*Keyring, error) {
	if route == "" {
		return nil, errors.New("keyring: route must not be empty")
	}

	master, ok := k.provider.(*MemoryKeyProvider)
	if !ok {
		return nil, errors.New("keyring: derivation requires an in-memory master key")
	}

	seed := master.priv.Seed()
	reader := hkdf.New(sha256.New, seed, nil, []byte("gate/route/"+route))

	derived := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, fmt.Errorf("keyring: hkdf expand: %w", err)
	}

	priv := ed25519.NewKeyFromSeed(derived)
	return &Keyring{provider: &MemoryKeyProvider{
		pub:  priv.Public().(ed25519.PublicKey),
		priv: priv,
	}}, nil
}
