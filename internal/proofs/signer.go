package proofs

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrNoSigningKey     = errors.New("no signing key or secret configured")
	ErrInvalidSignature = errors.New("signature does not verify")
)

const (
	hkdfSalt = "vra-proofs"
	hkdfInfo = "monthly-digest ed25519 v1"
)

// Signer signs digests with an ed25519 key.
type Signer struct {
	key ed25519.PrivateKey
}

// NewSigner loads the key from a base64 private key (64 bytes) or seed
// (32 bytes). When keyB64 is empty the seed is derived from secret with
// HKDF-SHA256, so the same secret always yields the same key.
func NewSigner(keyB64, secret string) (*Signer, error) {
	if keyB64 != "" {
		raw, err := base64.StdEncoding.DecodeString(keyB64)
		if err != nil {
			return nil, fmt.Errorf("decoding signing key: %w", err)
		}
		switch len(raw) {
		case ed25519.PrivateKeySize:
			return &Signer{key: ed25519.PrivateKey(raw)}, nil
		case ed25519.SeedSize:
			return &Signer{key: ed25519.NewKeyFromSeed(raw)}, nil
		default:
			return nil, fmt.Errorf("signing key is %d bytes, want %d or %d", len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
		}
	}
	if secret == "" {
		return nil, ErrNoSigningKey
	}
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), []byte(hkdfSalt), []byte(hkdfInfo)), seed); err != nil {
		return nil, fmt.Errorf("deriving signing key: %w", err)
	}
	return &Signer{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// Sign returns the base64 signature over digest.
func (s *Signer) Sign(digest string) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.key, []byte(digest)))
}

// PublicKey returns the verification key.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.key.Public().(ed25519.PublicKey)
}

// PublicKeyBase64 is PublicKey in base64, for handing to verifiers.
func (s *Signer) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(s.PublicKey())
}

// Verify checks a stored base64 signature against digest.
func Verify(digest, signature string, pub ed25519.PublicKey) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("decoding signature: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize || !ed25519.Verify(pub, []byte(digest), sig) {
		return ErrInvalidSignature
	}
	return nil
}
