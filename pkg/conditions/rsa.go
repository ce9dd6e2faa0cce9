package conditions

import (
	"bytes"
	"crypto/rsa"
	"fmt"
	"math/big"

	"github.com/hyperledger-archives/quilt-sub000/pkg/crypto"
	"github.com/hyperledger-archives/quilt-sub000/pkg/der"
)

// Accepted modulus sizes, exclusive minimum and inclusive maximum in bits.
const (
	rsaMinModulusBits = 1017
	rsaMaxModulusBits = 4096
)

// RsaCondition commits to an RSA public key; fulfillments carry an RSA-PSS
// signature.
type RsaCondition struct {
	baseCondition
}

// NewRsaCondition derives the condition of pub. The exponent must be 65537
// and the modulus between 1018 and 4096 bits.
func NewRsaCondition(pub *rsa.PublicKey) (*RsaCondition, error) {
	if err := checkRsaKey(pub); err != nil {
		return nil, err
	}
	modulus := pub.N.Bytes()
	size := uint64(len(modulus))
	return &RsaCondition{baseCondition: baseCondition{
		kind:        RsaSha256,
		fingerprint: crypto.Fingerprint(rsaFingerprintContents(modulus)),
		cost:        size * size,
	}}, nil
}

// NewRsaConditionFromFingerprint rebuilds a condition from its public fields.
func NewRsaConditionFromFingerprint(fingerprint []byte, cost uint64) (*RsaCondition, error) {
	base, err := newBaseCondition(RsaSha256, fingerprint, cost)
	if err != nil {
		return nil, err
	}
	return &RsaCondition{baseCondition: base}, nil
}

func checkRsaKey(pub *rsa.PublicKey) error {
	if pub == nil || pub.N == nil {
		return fmt.Errorf("%w: rsa public key", ErrNilArgument)
	}
	if pub.E != crypto.RSAExponent {
		return fmt.Errorf("%w: rsa public exponent must be %d, got %d",
			ErrInvalidCondition, crypto.RSAExponent, pub.E)
	}
	if n := pub.N.BitLen(); n <= rsaMinModulusBits || n > rsaMaxModulusBits {
		return fmt.Errorf("%w: rsa modulus of %d bits outside (%d, %d]",
			ErrInvalidCondition, n, rsaMinModulusBits, rsaMaxModulusBits)
	}
	return nil
}

func rsaFingerprintContents(modulus []byte) []byte {
	b := der.NewBuilder()
	b.AddSequence(func(b *der.Builder) {
		b.AddPrimitive(der.Context(0), modulus)
	})
	out, err := b.Bytes()
	if err != nil {
		panic(fmt.Sprintf("conditions: rsa fingerprint contents: %v", err))
	}
	return out
}

// RsaFulfillment carries an RSA public key and an RSA-PSS signature over the
// message.
type RsaFulfillment struct {
	publicKey *rsa.PublicKey
	signature []byte
	backend   crypto.Backend
	condition *RsaCondition
}

// NewRsaFulfillment builds a fulfillment that verifies through backend.
func NewRsaFulfillment(backend crypto.Backend, pub *rsa.PublicKey, signature []byte) (*RsaFulfillment, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: signature backend", ErrNilArgument)
	}
	if err := checkRsaKey(pub); err != nil {
		return nil, err
	}
	if len(signature) == 0 {
		return nil, fmt.Errorf("%w: empty rsa signature", ErrInvalidFulfillment)
	}
	key := &rsa.PublicKey{N: new(big.Int).Set(pub.N), E: pub.E}
	cond, err := NewRsaCondition(key)
	if err != nil {
		return nil, err
	}
	return &RsaFulfillment{
		publicKey: key,
		signature: bytes.Clone(signature),
		backend:   backend,
		condition: cond,
	}, nil
}

// PublicKey returns a copy of the embedded key.
func (f *RsaFulfillment) PublicKey() *rsa.PublicKey {
	return &rsa.PublicKey{N: new(big.Int).Set(f.publicKey.N), E: f.publicKey.E}
}

func (f *RsaFulfillment) Signature() []byte {
	return bytes.Clone(f.signature)
}

func (f *RsaFulfillment) Kind() Kind {
	return RsaSha256
}

func (f *RsaFulfillment) Condition() Condition {
	return f.condition
}

func (f *RsaFulfillment) Verify(c Condition, message []byte) (bool, error) {
	ok, err := matches(f.condition, c)
	if !ok || err != nil {
		return false, err
	}
	return f.backend.VerifyRSAPSS(f.publicKey, message, f.signature), nil
}

func (*RsaFulfillment) fulfillment() {}
