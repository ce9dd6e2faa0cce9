package conditions

import (
	"errors"

	"github.com/hyperledger-archives/quilt-sub000/pkg/der"
)

var (
	// ErrNilArgument is returned when a required argument is missing.
	ErrNilArgument = errors.New("conditions: missing required argument")

	// ErrInvalidCondition is returned when condition material breaks a domain
	// rule (fingerprint length, key range, threshold bounds, cost overflow).
	ErrInvalidCondition = errors.New("conditions: invalid condition")

	// ErrInvalidFulfillment is returned when fulfillment material breaks a
	// domain rule.
	ErrInvalidFulfillment = errors.New("conditions: invalid fulfillment")

	// ErrMessageTooLong is returned by prefix verification when the message
	// exceeds the maximum message length.
	ErrMessageTooLong = errors.New("conditions: message exceeds maximum length")

	// ErrInvalidURI is returned for malformed ni:// URIs.
	ErrInvalidURI = errors.New("conditions: invalid condition uri")

	// ErrUnknownKind is returned for unknown tags and names.
	ErrUnknownKind = errors.New("conditions: unknown condition type")

	// ErrMalformed is returned for structurally invalid binary encodings.
	ErrMalformed = der.ErrMalformed
)
