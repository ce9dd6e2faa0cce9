package conditions

import (
	"bytes"
	"fmt"
)

// Fulfillment is the proof that unlocks a condition. Its condition is derived
// when the fulfillment is constructed.
type Fulfillment interface {
	Kind() Kind
	// Condition returns the condition derived from the fulfillment material.
	Condition() Condition
	// Verify checks the fulfillment against condition and message. A proof
	// that does not match is reported as false with a nil error; errors are
	// reserved for caller misuse.
	Verify(condition Condition, message []byte) (bool, error)

	fulfillment()
}

// Verify checks f against c for message.
func Verify(f Fulfillment, c Condition, message []byte) (bool, error) {
	if f == nil {
		return false, fmt.Errorf("%w: fulfillment", ErrNilArgument)
	}
	return f.Verify(c, message)
}

// EqualFulfillments reports whether a and b have identical encodings.
func EqualFulfillments(a, b Fulfillment) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ea, err := WriteFulfillment(a)
	if err != nil {
		return false
	}
	eb, err := WriteFulfillment(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ea, eb)
}

// matches runs the first verification step shared by every kind.
func matches(derived, supplied Condition) (bool, error) {
	if supplied == nil {
		return false, fmt.Errorf("%w: condition", ErrNilArgument)
	}
	return Equal(derived, supplied), nil
}
