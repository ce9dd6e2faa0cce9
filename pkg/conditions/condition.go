package conditions

import (
	"bytes"
	"fmt"
	"math/bits"
	"sort"

	"github.com/hyperledger-archives/quilt-sub000/pkg/crypto"
)

// Condition is a public commitment: a kind, a cost and a 32 byte SHA-256
// fingerprint. The implementations in this package are the only ones; values
// are immutable and safe to share between goroutines.
type Condition interface {
	Kind() Kind
	Cost() uint64
	// Fingerprint returns a copy of the 32 byte digest.
	Fingerprint() []byte
	// String returns the ni:// URI form.
	String() string

	condition()
}

// CompoundCondition is implemented by prefix and threshold conditions.
type CompoundCondition interface {
	Condition
	// Subtypes is every kind reachable through sub-conditions, excluding
	// the condition's own kind.
	Subtypes() KindSet
}

type baseCondition struct {
	kind        Kind
	fingerprint []byte
	cost        uint64
}

func newBaseCondition(kind Kind, fingerprint []byte, cost uint64) (baseCondition, error) {
	if len(fingerprint) != crypto.FingerprintSize {
		return baseCondition{}, fmt.Errorf("%w: %s fingerprint must be %d bytes, got %d",
			ErrInvalidCondition, kind, crypto.FingerprintSize, len(fingerprint))
	}
	return baseCondition{kind: kind, fingerprint: bytes.Clone(fingerprint), cost: cost}, nil
}

func (c *baseCondition) Kind() Kind {
	return c.kind
}

func (c *baseCondition) Cost() uint64 {
	return c.cost
}

func (c *baseCondition) Fingerprint() []byte {
	return bytes.Clone(c.fingerprint)
}

func (c *baseCondition) String() string {
	return formatURI(c.kind, c.fingerprint, c.cost, nil)
}

// MarshalText implements encoding.TextMarshaler with the URI form.
func (c *baseCondition) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (*baseCondition) condition() {}

type compoundCondition struct {
	baseCondition
	subtypes KindSet
}

func newCompoundCondition(kind Kind, fingerprint []byte, cost uint64, subtypes KindSet) (compoundCondition, error) {
	base, err := newBaseCondition(kind, fingerprint, cost)
	if err != nil {
		return compoundCondition{}, err
	}
	if subtypes.Has(kind) {
		return compoundCondition{}, fmt.Errorf("%w: %s subtypes must not include its own type",
			ErrInvalidCondition, kind)
	}
	return compoundCondition{baseCondition: base, subtypes: subtypes}, nil
}

func (c *compoundCondition) Subtypes() KindSet {
	return c.subtypes
}

func (c *compoundCondition) String() string {
	return formatURI(c.kind, c.fingerprint, c.cost, &c.subtypes)
}

func (c *compoundCondition) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// subtypesOf collects the kinds reachable through subs, minus own.
func subtypesOf(own Kind, subs ...Condition) KindSet {
	var s KindSet
	for _, sub := range subs {
		s = s.Add(sub.Kind())
		if cc, ok := sub.(CompoundCondition); ok {
			s = s.Union(cc.Subtypes())
		}
	}
	return s.Remove(own)
}

// Equal reports structural equality of kind, cost, fingerprint and, for
// compound kinds, subtypes.
func Equal(a, b Condition) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() || a.Cost() != b.Cost() {
		return false
	}
	if !bytes.Equal(a.Fingerprint(), b.Fingerprint()) {
		return false
	}
	ca, aok := a.(CompoundCondition)
	cb, bok := b.(CompoundCondition)
	if aok != bok {
		return false
	}
	return !aok || ca.Subtypes() == cb.Subtypes()
}

// Compare orders conditions by the unsigned lexicographic order of their
// binary encodings, shorter first on a common prefix. A nil condition sorts
// before every other condition.
func Compare(a, b Condition) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return bytes.Compare(mustEncode(a), mustEncode(b))
}

// SortConditions returns a sorted copy of conds. Nil entries come first.
func SortConditions(conds []Condition) []Condition {
	out := make([]Condition, len(conds))
	copy(out, conds)
	encoded := make(map[Condition][]byte, len(out))
	for _, c := range out {
		if c != nil {
			encoded[c] = mustEncode(c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i] == nil || out[j] == nil {
			return out[i] == nil && out[j] != nil
		}
		return bytes.Compare(encoded[out[i]], encoded[out[j]]) < 0
	})
	return out
}

// sortedEncodings returns the encodings of conds in canonical order.
func sortedEncodings(conds []Condition) [][]byte {
	out := make([][]byte, len(conds))
	for i, c := range conds {
		out[i] = mustEncode(c)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i], out[j]) < 0
	})
	return out
}

// mustEncode encodes a condition built by this package. Failure means a
// value escaped construction without validation.
func mustEncode(c Condition) []byte {
	out, err := WriteCondition(c)
	if err != nil {
		panic(fmt.Sprintf("conditions: encoding a constructed condition failed: %v", err))
	}
	return out
}

func addCost(kind Kind, a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %s cost overflows", ErrInvalidCondition, kind)
	}
	return sum, nil
}
