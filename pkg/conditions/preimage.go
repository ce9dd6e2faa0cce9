package conditions

import (
	"bytes"

	"github.com/hyperledger-archives/quilt-sub000/pkg/crypto"
)

// PreimageCondition commits to a secret whose SHA-256 digest is the
// fingerprint.
type PreimageCondition struct {
	baseCondition
}

// NewPreimageCondition derives the condition of preimage. A nil preimage is
// the empty preimage.
func NewPreimageCondition(preimage []byte) *PreimageCondition {
	return &PreimageCondition{baseCondition: baseCondition{
		kind:        PreimageSha256,
		fingerprint: crypto.Fingerprint(preimage),
		cost:        uint64(len(preimage)),
	}}
}

// NewPreimageConditionFromFingerprint rebuilds a condition from its public
// fields without the preimage.
func NewPreimageConditionFromFingerprint(fingerprint []byte, cost uint64) (*PreimageCondition, error) {
	base, err := newBaseCondition(PreimageSha256, fingerprint, cost)
	if err != nil {
		return nil, err
	}
	return &PreimageCondition{baseCondition: base}, nil
}

// PreimageFulfillment reveals the preimage.
type PreimageFulfillment struct {
	preimage  []byte
	condition *PreimageCondition
}

func NewPreimageFulfillment(preimage []byte) *PreimageFulfillment {
	p := bytes.Clone(preimage)
	if p == nil {
		p = []byte{}
	}
	return &PreimageFulfillment{preimage: p, condition: NewPreimageCondition(p)}
}

// Preimage returns a copy of the revealed secret.
func (f *PreimageFulfillment) Preimage() []byte {
	return bytes.Clone(f.preimage)
}

func (f *PreimageFulfillment) Kind() Kind {
	return PreimageSha256
}

func (f *PreimageFulfillment) Condition() Condition {
	return f.condition
}

// Verify succeeds whenever the derived condition matches; the message is not
// used.
func (f *PreimageFulfillment) Verify(c Condition, _ []byte) (bool, error) {
	return matches(f.condition, c)
}

func (*PreimageFulfillment) fulfillment() {}
