package crypto

import (
	stdcrypto "crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// Signer produces raw signatures for fulfillment material.
type Signer interface {
	Sign(message []byte) ([]byte, error)
	KeyID() string
}

// Ed25519Signer implementation.
type Ed25519Signer struct {
	privKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey
	keyID   string
}

func NewEd25519Signer(keyID string) (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Ed25519Signer{
		privKey: priv,
		pubKey:  pub,
		keyID:   keyID,
	}, nil
}

func NewEd25519SignerFromKey(priv ed25519.PrivateKey, keyID string) *Ed25519Signer {
	return &Ed25519Signer{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
		keyID:   keyID,
	}
}

// NewEd25519SignerFromSeed derives the key pair from a 32 byte seed.
func NewEd25519SignerFromSeed(seed []byte, keyID string) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed size: %d", len(seed))
	}
	return NewEd25519SignerFromKey(ed25519.NewKeyFromSeed(seed), keyID), nil
}

func (s *Ed25519Signer) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(s.privKey, message), nil
}

func (s *Ed25519Signer) KeyID() string {
	return s.keyID
}

// PublicKey returns a copy of the 32 byte public key.
func (s *Ed25519Signer) PublicKey() ed25519.PublicKey {
	out := make(ed25519.PublicKey, len(s.pubKey))
	copy(out, s.pubKey)
	return out
}

// RSASigner signs with RSASSA-PSS (SHA-256, 32 byte salt).
type RSASigner struct {
	privKey *rsa.PrivateKey
	keyID   string
}

// NewRSASigner generates a key of the given size with exponent 65537.
func NewRSASigner(bits int, keyID string) (*RSASigner, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &RSASigner{privKey: priv, keyID: keyID}, nil
}

func NewRSASignerFromKey(priv *rsa.PrivateKey, keyID string) (*RSASigner, error) {
	if priv == nil {
		return nil, fmt.Errorf("missing rsa private key")
	}
	if priv.E != RSAExponent {
		return nil, fmt.Errorf("unsupported rsa exponent: %d", priv.E)
	}
	return &RSASigner{privKey: priv, keyID: keyID}, nil
}

func (s *RSASigner) Sign(message []byte) ([]byte, error) {
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPSS(rand.Reader, s.privKey, stdcrypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: PSSSaltLength,
		Hash:       stdcrypto.SHA256,
	})
	if err != nil {
		return nil, fmt.Errorf("rsa-pss signing failed: %w", err)
	}
	return sig, nil
}

func (s *RSASigner) KeyID() string {
	return s.keyID
}

func (s *RSASigner) PublicKey() *rsa.PublicKey {
	return &s.privKey.PublicKey
}
