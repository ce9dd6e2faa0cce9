package conditions

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Kind identifies one of the five condition families.
type Kind int

const (
	PreimageSha256 Kind = iota
	PrefixSha256
	ThresholdSha256
	RsaSha256
	Ed25519Sha256
)

const kindCount = 5

var kindNames = [kindCount]string{
	PreimageSha256:  "preimage-sha-256",
	PrefixSha256:    "prefix-sha-256",
	ThresholdSha256: "threshold-sha-256",
	RsaSha256:       "rsa-sha-256",
	Ed25519Sha256:   "ed25519-sha-256",
}

// foldedNames maps case-folded names back to kinds.
var foldedNames = func() map[string]Kind {
	m := make(map[string]Kind, kindCount)
	for k, name := range kindNames {
		m[cases.Fold().String(name)] = Kind(k)
	}
	return m
}()

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k >= 0 && k < kindCount
}

// Tag returns the wire CHOICE tag number of the kind.
func (k Kind) Tag() int {
	return int(k)
}

// IsCompound reports whether conditions of this kind carry subtypes.
func (k Kind) IsCompound() bool {
	return k == PrefixSha256 || k == ThresholdSha256
}

// String returns the canonical lowercase name used in URIs.
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// KindFromTag resolves a wire tag number.
func KindFromTag(tag int) (Kind, error) {
	k := Kind(tag)
	if !k.Valid() {
		return 0, fmt.Errorf("%w: tag %d", ErrUnknownKind, tag)
	}
	return k, nil
}

// KindFromName resolves a canonical name, ignoring case.
func KindFromName(name string) (Kind, error) {
	k, ok := foldedNames[cases.Fold().String(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	return k, nil
}

// KindSet is a set of kinds. The zero value is the empty set.
type KindSet uint8

// NewKindSet returns the set holding kinds. Invalid kinds are ignored.
func NewKindSet(kinds ...Kind) KindSet {
	var s KindSet
	for _, k := range kinds {
		s = s.Add(k)
	}
	return s
}

func (s KindSet) Add(k Kind) KindSet {
	if !k.Valid() {
		return s
	}
	return s | 1<<uint(k)
}

func (s KindSet) Remove(k Kind) KindSet {
	if !k.Valid() {
		return s
	}
	return s &^ (1 << uint(k))
}

func (s KindSet) Has(k Kind) bool {
	return k.Valid() && s&(1<<uint(k)) != 0
}

func (s KindSet) Len() int {
	return bits.OnesCount8(uint8(s))
}

func (s KindSet) Union(o KindSet) KindSet {
	return s | o
}

// Kinds lists the members in tag order.
func (s KindSet) Kinds() []Kind {
	out := make([]Kind, 0, s.Len())
	for k := Kind(0); k < kindCount; k++ {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// BitString returns the DER BIT STRING contents: a pad count octet followed
// by one bitmap octet where kind n is bit n counted from the most significant
// bit. The empty set is a lone zero pad octet.
func (s KindSet) BitString() []byte {
	if s == 0 {
		return []byte{0x00}
	}
	var bitmap byte
	highest := 0
	for _, k := range s.Kinds() {
		bitmap |= 0x80 >> uint(k)
		highest = int(k)
	}
	return []byte{byte(7 - highest), bitmap}
}

// KindSetFromBitString decodes BIT STRING contents produced by BitString.
func KindSetFromBitString(b []byte) (KindSet, error) {
	if len(b) == 1 && b[0] == 0x00 {
		return 0, nil
	}
	if len(b) != 2 {
		return 0, fmt.Errorf("%w: subtypes bit string of %d octets", ErrMalformed, len(b))
	}
	pad, bitmap := b[0], b[1]
	if pad < 8-kindCount || pad > 7 {
		return 0, fmt.Errorf("%w: subtypes pad count %d", ErrMalformed, pad)
	}
	if bitmap&(1<<pad-1) != 0 {
		return 0, fmt.Errorf("%w: subtypes bits set in padding", ErrMalformed)
	}
	var s KindSet
	for k := Kind(0); k < kindCount; k++ {
		if bitmap&(0x80>>uint(k)) != 0 {
			s = s.Add(k)
		}
	}
	return s, nil
}

// Names returns the member names sorted alphabetically and joined by commas.
func (s KindSet) Names() string {
	names := make([]string, 0, s.Len())
	for _, k := range s.Kinds() {
		names = append(names, k.String())
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// KindSetFromNames parses a comma separated name list. An empty string is
// the empty set.
func KindSetFromNames(list string) (KindSet, error) {
	var s KindSet
	if strings.TrimSpace(list) == "" {
		return s, nil
	}
	for _, name := range strings.Split(list, ",") {
		k, err := KindFromName(name)
		if err != nil {
			return 0, err
		}
		s = s.Add(k)
	}
	return s, nil
}
