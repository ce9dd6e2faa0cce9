package conditions

import (
	"fmt"

	"github.com/hyperledger-archives/quilt-sub000/pkg/crypto"
)

// OneOfTwo returns a threshold condition satisfied by either a or b.
func OneOfTwo(a, b Condition) (*ThresholdCondition, error) {
	return NewThresholdCondition(1, []Condition{a, b})
}

// TwoOfTwo returns a threshold condition requiring both a and b.
func TwoOfTwo(a, b Condition) (*ThresholdCondition, error) {
	return NewThresholdCondition(2, []Condition{a, b})
}

// MOfN returns a threshold condition requiring m of conds.
func MOfN(m int, conds ...Condition) (*ThresholdCondition, error) {
	return NewThresholdCondition(m, conds)
}

// SignEd25519 signs message and wraps the signature in a fulfillment that
// verifies through backend.
func SignEd25519(backend crypto.Backend, signer *crypto.Ed25519Signer, message []byte) (*Ed25519Fulfillment, error) {
	if signer == nil {
		return nil, fmt.Errorf("%w: ed25519 signer", ErrNilArgument)
	}
	sig, err := signer.Sign(message)
	if err != nil {
		return nil, err
	}
	return NewEd25519Fulfillment(backend, signer.PublicKey(), sig)
}

// SignRsa signs message with RSA-PSS and wraps the signature in a
// fulfillment that verifies through backend.
func SignRsa(backend crypto.Backend, signer *crypto.RSASigner, message []byte) (*RsaFulfillment, error) {
	if signer == nil {
		return nil, fmt.Errorf("%w: rsa signer", ErrNilArgument)
	}
	sig, err := signer.Sign(message)
	if err != nil {
		return nil, err
	}
	return NewRsaFulfillment(backend, signer.PublicKey(), sig)
}
