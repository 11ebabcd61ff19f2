// Package noise produces deterministic, size-padded, content-masking
// responses for rejected requests.
//
// Every rejection, regardless of which gate failed, surfaces externally as a
// noise response of the same shape as a genuine one. Determinism is part of
// the contract: identical (envelope, seed) inputs always yield byte-identical
// noise, so repeated probing observes no entropy leak.
package noise

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/pbkdf2"

	"github.com/scbe-labs/gate/pkg/contracts"
)

const (
	// minLength and band define the response size window: lengths fall in
	// [4096, 8191] bytes, wide enough to mask real ciphertext sizes.
	minLength = 4096
	band      = 4096
)

// ErrUnstamped is returned when the envelope carries no commitment; the noise
// digest is keyed on the context commitment hash.
var ErrUnstamped = errors.New("noise: envelope has no commitment")

// Generate returns an envelope-shaped response whose crypto.cipher_b64 is
// replaced by deterministic noise derived from seed and the envelope's
// context commitment. Every other field is carried through unchanged; the
// input envelope is not mutated.
func Generate(env *contracts.Envelope, seed string) (*contracts.Envelope, error) {
	if env == nil || env.Commit == nil {
		return nil, ErrUnstamped
	}

	digest := sha256.Sum256([]byte(seed + env.Commit.CtxSHA256))

	// Length is pseudo-random but fully determined by the digest.
	length := minLength + int(binary.BigEndian.Uint32(digest[:4]))%band

	// Single-iteration PBKDF2 is a deterministic stretch here, not a password
	// hash; it expands the 32-byte digest to the padded response length.
	data := pbkdf2.Key(digest[:], []byte("noise"), 1, length, sha256.New)

	out := env.Clone()
	if out.Crypto == nil {
		out.Crypto = &contracts.CryptoParams{}
	}
	out.Crypto.CipherB64 = base64.StdEncoding.EncodeToString(data)
	return out, nil
}
