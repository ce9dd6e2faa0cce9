package conditions

import (
	"bytes"
	"fmt"

	"github.com/hyperledger-archives/quilt-sub000/pkg/crypto"
	"github.com/hyperledger-archives/quilt-sub000/pkg/der"
)

// prefixOverhead is the fixed cost added by a prefix wrapper.
const prefixOverhead = 1024

// PrefixCondition commits to a sub-condition verified against prefix||message.
type PrefixCondition struct {
	compoundCondition
}

// NewPrefixCondition derives the condition of a prefix wrapper around sub.
func NewPrefixCondition(prefix []byte, maxMessageLength uint64, sub Condition) (*PrefixCondition, error) {
	if sub == nil {
		return nil, fmt.Errorf("%w: prefix sub-condition", ErrNilArgument)
	}
	prefix = bytes.Clone(prefix)

	cost, err := addCost(PrefixSha256, uint64(len(prefix)), maxMessageLength)
	if err == nil {
		cost, err = addCost(PrefixSha256, cost, sub.Cost())
	}
	if err == nil {
		cost, err = addCost(PrefixSha256, cost, prefixOverhead)
	}
	if err != nil {
		return nil, err
	}

	contents, err := prefixFingerprintContents(prefix, maxMessageLength, sub)
	if err != nil {
		return nil, err
	}
	cc, err := newCompoundCondition(PrefixSha256, crypto.Fingerprint(contents), cost, subtypesOf(PrefixSha256, sub))
	if err != nil {
		return nil, err
	}
	return &PrefixCondition{compoundCondition: cc}, nil
}

// NewPrefixConditionFromFingerprint rebuilds a condition from its public
// fields.
func NewPrefixConditionFromFingerprint(fingerprint []byte, cost uint64, subtypes KindSet) (*PrefixCondition, error) {
	cc, err := newCompoundCondition(PrefixSha256, fingerprint, cost, subtypes)
	if err != nil {
		return nil, err
	}
	return &PrefixCondition{compoundCondition: cc}, nil
}

func prefixFingerprintContents(prefix []byte, maxMessageLength uint64, sub Condition) ([]byte, error) {
	b := der.NewBuilder()
	b.AddSequence(func(b *der.Builder) {
		b.AddPrimitive(der.Context(0), prefix)
		b.AddUint(der.Context(1), maxMessageLength)
		b.AddConstructed(der.ContextConstructed(2), func(b *der.Builder) {
			appendCondition(b, sub)
		})
	})
	return b.Bytes()
}

// PrefixFulfillment fulfills a prefix condition with one sub-fulfillment.
type PrefixFulfillment struct {
	prefix           []byte
	maxMessageLength uint64
	sub              Fulfillment
	condition        *PrefixCondition
}

func NewPrefixFulfillment(prefix []byte, maxMessageLength uint64, sub Fulfillment) (*PrefixFulfillment, error) {
	if sub == nil {
		return nil, fmt.Errorf("%w: prefix sub-fulfillment", ErrNilArgument)
	}
	prefix = bytes.Clone(prefix)
	if prefix == nil {
		prefix = []byte{}
	}
	cond, err := NewPrefixCondition(prefix, maxMessageLength, sub.Condition())
	if err != nil {
		return nil, err
	}
	return &PrefixFulfillment{
		prefix:           prefix,
		maxMessageLength: maxMessageLength,
		sub:              sub,
		condition:        cond,
	}, nil
}

func (f *PrefixFulfillment) Prefix() []byte {
	return bytes.Clone(f.prefix)
}

func (f *PrefixFulfillment) MaxMessageLength() uint64 {
	return f.maxMessageLength
}

func (f *PrefixFulfillment) Subfulfillment() Fulfillment {
	return f.sub
}

func (f *PrefixFulfillment) Kind() Kind {
	return PrefixSha256
}

func (f *PrefixFulfillment) Condition() Condition {
	return f.condition
}

// Verify checks the sub-fulfillment with the prefix prepended to message.
// A message longer than the maximum is an error rather than a failed proof.
func (f *PrefixFulfillment) Verify(c Condition, message []byte) (bool, error) {
	ok, err := matches(f.condition, c)
	if !ok || err != nil {
		return false, err
	}
	if uint64(len(message)) > f.maxMessageLength {
		return false, fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLong, len(message), f.maxMessageLength)
	}
	prefixed := make([]byte, 0, len(f.prefix)+len(message))
	prefixed = append(prefixed, f.prefix...)
	prefixed = append(prefixed, message...)
	return f.sub.Verify(f.sub.Condition(), prefixed)
}

func (*PrefixFulfillment) fulfillment() {}
