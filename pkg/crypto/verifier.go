package crypto

import (
	stdcrypto "crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// RSAExponent is the only public exponent accepted for RSA-SHA-256.
const RSAExponent = 65537

// PSSSaltLength is the RSASSA-PSS salt length (the SHA-256 digest size).
const PSSSaltLength = 32

// Verifier checks a signature over a message with a single public key.
type Verifier interface {
	Verify(message []byte, signature []byte) bool
}

// Ed25519Verifier implements Verifier using Ed25519.
type Ed25519Verifier struct {
	PublicKey ed25519.PublicKey
}

// NewEd25519Verifier creates a new verifier.
func NewEd25519Verifier(pubKeyBytes []byte) (*Ed25519Verifier, error) {
	if len(pubKeyBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid public key size: %d", len(pubKeyBytes))
	}
	return &Ed25519Verifier{PublicKey: ed25519.PublicKey(pubKeyBytes)}, nil
}

func (v *Ed25519Verifier) Verify(message []byte, signature []byte) bool {
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(v.PublicKey, message, signature)
}

// RSAPSSVerifier implements Verifier using RSASSA-PSS with SHA-256, MGF1-SHA-256
// and a 32 byte salt.
type RSAPSSVerifier struct {
	PublicKey *rsa.PublicKey
}

// NewRSAPSSVerifier creates a new verifier.
func NewRSAPSSVerifier(pub *rsa.PublicKey) (*RSAPSSVerifier, error) {
	if pub == nil || pub.N == nil {
		return nil, fmt.Errorf("missing rsa public key")
	}
	return &RSAPSSVerifier{PublicKey: pub}, nil
}

func (v *RSAPSSVerifier) Verify(message []byte, signature []byte) bool {
	digest := sha256.Sum256(message)
	err := rsa.VerifyPSS(v.PublicKey, stdcrypto.SHA256, digest[:], signature, &rsa.PSSOptions{
		SaltLength: PSSSaltLength,
		Hash:       stdcrypto.SHA256,
	})
	return err == nil
}

// Backend is the signature capability handed to RSA and Ed25519 fulfillments.
// Implementations must be safe for concurrent use.
type Backend interface {
	VerifyEd25519(pub ed25519.PublicKey, message, signature []byte) bool
	VerifyRSAPSS(pub *rsa.PublicKey, message, signature []byte) bool
}

// StdBackend verifies with the Go standard library primitives.
type StdBackend struct{}

func (StdBackend) VerifyEd25519(pub ed25519.PublicKey, message, signature []byte) bool {
	v, err := NewEd25519Verifier(pub)
	if err != nil {
		return false
	}
	return v.Verify(message, signature)
}

func (StdBackend) VerifyRSAPSS(pub *rsa.PublicKey, message, signature []byte) bool {
	v, err := NewRSAPSSVerifier(pub)
	if err != nil {
		return false
	}
	return v.Verify(message, signature)
}
