// Package der implements the restricted DER subset used by crypto-conditions.
//
// Only definite, minimally encoded lengths and low tag numbers (0-30) are
// accepted. Elements are read through a Cursor that reports how many octets
// every read consumed, and written through a Builder backed by
// golang.org/x/crypto/cryptobyte so that lengths are always minimal.
package der

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte/asn1"
)

// ErrMalformed is returned for truncated buffers, non-minimal lengths,
// unexpected tags and trailing bytes.
var ErrMalformed = errors.New("der: malformed encoding")

// Tag is a single identifier octet.
type Tag = asn1.Tag

// Sequence is the universal SEQUENCE tag used for fingerprint contents.
const Sequence = asn1.SEQUENCE

const maxTagNumber = 30

// Context returns the primitive context-specific tag [n].
func Context(n int) Tag {
	return tagNumber(n).ContextSpecific()
}

// ContextConstructed returns the constructed context-specific tag [n].
func ContextConstructed(n int) Tag {
	return tagNumber(n).ContextSpecific().Constructed()
}

func tagNumber(n int) Tag {
	if n < 0 || n > maxTagNumber {
		panic(fmt.Sprintf("der: tag number %d out of range", n))
	}
	return Tag(n)
}

// Number returns the tag number carried in the low five bits.
func Number(t Tag) int {
	return int(t & 0x1f)
}

// IsContextSpecific reports whether t has the context-specific class.
func IsContextSpecific(t Tag) bool {
	return t&0xc0 == 0x80
}

// IsConstructed reports whether t has the constructed flag set.
func IsConstructed(t Tag) bool {
	return t&0x20 != 0
}

func malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
