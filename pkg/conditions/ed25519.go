package conditions

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/hyperledger-archives/quilt-sub000/pkg/crypto"
	"github.com/hyperledger-archives/quilt-sub000/pkg/der"
)

// ed25519Cost is the fixed verification cost of an Ed25519 signature.
const ed25519Cost = 131072

// Ed25519Condition commits to an Ed25519 public key.
type Ed25519Condition struct {
	baseCondition
}

func NewEd25519Condition(pub ed25519.PublicKey) (*Ed25519Condition, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: ed25519 public key", ErrNilArgument)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: ed25519 public key must be %d bytes, got %d",
			ErrInvalidCondition, ed25519.PublicKeySize, len(pub))
	}
	b := der.NewBuilder()
	b.AddSequence(func(b *der.Builder) {
		b.AddPrimitive(der.Context(0), pub)
	})
	contents, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	return &Ed25519Condition{baseCondition: baseCondition{
		kind:        Ed25519Sha256,
		fingerprint: crypto.Fingerprint(contents),
		cost:        ed25519Cost,
	}}, nil
}

// NewEd25519ConditionFromFingerprint rebuilds a condition from its public
// fields.
func NewEd25519ConditionFromFingerprint(fingerprint []byte, cost uint64) (*Ed25519Condition, error) {
	base, err := newBaseCondition(Ed25519Sha256, fingerprint, cost)
	if err != nil {
		return nil, err
	}
	return &Ed25519Condition{baseCondition: base}, nil
}

// Ed25519Fulfillment carries an Ed25519 public key and a signature over the
// message.
type Ed25519Fulfillment struct {
	publicKey ed25519.PublicKey
	signature []byte
	backend   crypto.Backend
	condition *Ed25519Condition
}

// NewEd25519Fulfillment builds a fulfillment that verifies through backend.
func NewEd25519Fulfillment(backend crypto.Backend, pub ed25519.PublicKey, signature []byte) (*Ed25519Fulfillment, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: signature backend", ErrNilArgument)
	}
	if len(signature) != ed25519.SignatureSize {
		return nil, fmt.Errorf("%w: ed25519 signature must be %d bytes, got %d",
			ErrInvalidFulfillment, ed25519.SignatureSize, len(signature))
	}
	key := ed25519.PublicKey(bytes.Clone(pub))
	cond, err := NewEd25519Condition(key)
	if err != nil {
		return nil, err
	}
	return &Ed25519Fulfillment{
		publicKey: key,
		signature: bytes.Clone(signature),
		backend:   backend,
		condition: cond,
	}, nil
}

func (f *Ed25519Fulfillment) PublicKey() ed25519.PublicKey {
	return bytes.Clone(f.publicKey)
}

func (f *Ed25519Fulfillment) Signature() []byte {
	return bytes.Clone(f.signature)
}

func (f *Ed25519Fulfillment) Kind() Kind {
	return Ed25519Sha256
}

func (f *Ed25519Fulfillment) Condition() Condition {
	return f.condition
}

func (f *Ed25519Fulfillment) Verify(c Condition, message []byte) (bool, error) {
	ok, err := matches(f.condition, c)
	if !ok || err != nil {
		return false, err
	}
	return f.backend.VerifyEd25519(f.publicKey, message, f.signature), nil
}

func (*Ed25519Fulfillment) fulfillment() {}
