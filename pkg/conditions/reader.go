package conditions

import (
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"
	"math/big"

	"github.com/hyperledger-archives/quilt-sub000/pkg/crypto"
	"github.com/hyperledger-archives/quilt-sub000/pkg/der"
)

// maxNestingDepth bounds prefix and threshold nesting when reading untrusted
// input.
const maxNestingDepth = 64

// Codec reads fulfillments whose signatures verify through an injected
// backend. Conditions carry no key material and need no backend.
type Codec struct {
	backend crypto.Backend
}

// NewCodec returns a codec bound to backend.
func NewCodec(backend crypto.Backend) (*Codec, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: signature backend", ErrNilArgument)
	}
	return &Codec{backend: backend}, nil
}

var defaultCodec = &Codec{backend: crypto.StdBackend{}}

// ReadCondition parses a complete condition encoding.
func ReadCondition(data []byte) (Condition, error) {
	return defaultCodec.ReadCondition(data)
}

// ReadFulfillment parses a complete fulfillment encoding using the standard
// library signature backend.
func ReadFulfillment(data []byte) (Fulfillment, error) {
	return defaultCodec.ReadFulfillment(data)
}

func (c *Codec) ReadCondition(data []byte) (Condition, error) {
	cur := der.NewCursor(data)
	cond, err := readCondition(cur)
	if err != nil {
		return nil, err
	}
	if err := cur.Finish(); err != nil {
		return nil, err
	}
	return cond, nil
}

func (c *Codec) ReadFulfillment(data []byte) (Fulfillment, error) {
	cur := der.NewCursor(data)
	f, err := c.readFulfillment(cur, 0)
	if err != nil {
		return nil, err
	}
	if err := cur.Finish(); err != nil {
		return nil, err
	}
	return f, nil
}

func (c *Codec) WriteCondition(cond Condition) ([]byte, error) {
	return WriteCondition(cond)
}

func (c *Codec) WriteFulfillment(f Fulfillment) ([]byte, error) {
	return WriteFulfillment(f)
}

// readChoice reads the outer CHOICE element and resolves its kind.
func readChoice(cur *der.Cursor) (Kind, *der.Cursor, error) {
	tag, body, _, err := cur.ReadAny()
	if err != nil {
		return 0, nil, err
	}
	if !der.IsContextSpecific(tag) || !der.IsConstructed(tag) {
		return 0, nil, fmt.Errorf("%w: unexpected type tag 0x%02x", ErrMalformed, uint8(tag))
	}
	kind, err := KindFromTag(der.Number(tag))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return kind, body, nil
}

func readCondition(cur *der.Cursor) (Condition, error) {
	kind, body, err := readChoice(cur)
	if err != nil {
		return nil, err
	}
	fingerprint, _, err := body.ReadBytes(der.Context(0))
	if err != nil {
		return nil, err
	}
	cost, err := readUint(body, der.Context(1), ErrInvalidCondition)
	if err != nil {
		return nil, err
	}
	var subtypes KindSet
	if kind.IsCompound() {
		raw, _, err := body.ReadBytes(der.Context(2))
		if err != nil {
			return nil, err
		}
		if subtypes, err = KindSetFromBitString(raw); err != nil {
			return nil, err
		}
	}
	if err := body.Finish(); err != nil {
		return nil, err
	}

	switch kind {
	case PreimageSha256:
		return NewPreimageConditionFromFingerprint(fingerprint, cost)
	case PrefixSha256:
		return NewPrefixConditionFromFingerprint(fingerprint, cost, subtypes)
	case ThresholdSha256:
		return NewThresholdConditionFromFingerprint(fingerprint, cost, subtypes)
	case RsaSha256:
		return NewRsaConditionFromFingerprint(fingerprint, cost)
	case Ed25519Sha256:
		return NewEd25519ConditionFromFingerprint(fingerprint, cost)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
}

func (c *Codec) readFulfillment(cur *der.Cursor, depth int) (Fulfillment, error) {
	if depth > maxNestingDepth {
		return nil, fmt.Errorf("%w: fulfillment nested deeper than %d", ErrMalformed, maxNestingDepth)
	}
	kind, body, err := readChoice(cur)
	if err != nil {
		return nil, err
	}

	var f Fulfillment
	switch kind {
	case PreimageSha256:
		f, err = readPreimageFulfillment(body)
	case PrefixSha256:
		f, err = c.readPrefixFulfillment(body, depth)
	case ThresholdSha256:
		f, err = c.readThresholdFulfillment(body, depth)
	case RsaSha256:
		f, err = c.readRsaFulfillment(body)
	case Ed25519Sha256:
		f, err = c.readEd25519Fulfillment(body)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, err
	}
	if err := body.Finish(); err != nil {
		return nil, err
	}
	return f, nil
}

func readPreimageFulfillment(body *der.Cursor) (Fulfillment, error) {
	preimage, _, err := body.ReadBytes(der.Context(0))
	if err != nil {
		return nil, err
	}
	return NewPreimageFulfillment(preimage), nil
}

func (c *Codec) readPrefixFulfillment(body *der.Cursor, depth int) (Fulfillment, error) {
	prefix, _, err := body.ReadBytes(der.Context(0))
	if err != nil {
		return nil, err
	}
	maxLen, err := readUint(body, der.Context(1), ErrInvalidFulfillment)
	if err != nil {
		return nil, err
	}
	inner, _, err := body.Read(der.ContextConstructed(2))
	if err != nil {
		return nil, err
	}
	sub, err := c.readFulfillment(inner, depth+1)
	if err != nil {
		return nil, err
	}
	if err := inner.Finish(); err != nil {
		return nil, err
	}
	return NewPrefixFulfillment(prefix, maxLen, sub)
}

func (c *Codec) readThresholdFulfillment(body *der.Cursor, depth int) (Fulfillment, error) {
	var subfulfillments []Fulfillment
	if next, ok := body.PeekTag(); ok && next == der.ContextConstructed(0) {
		set, _, err := body.Read(der.ContextConstructed(0))
		if err != nil {
			return nil, err
		}
		for !set.Empty() {
			sub, err := c.readFulfillment(set, depth+1)
			if err != nil {
				return nil, err
			}
			subfulfillments = append(subfulfillments, sub)
		}
	}

	set, _, err := body.Read(der.ContextConstructed(1))
	if err != nil {
		return nil, err
	}
	var subconditions []Condition
	for !set.Empty() {
		sub, err := readCondition(set)
		if err != nil {
			return nil, err
		}
		subconditions = append(subconditions, sub)
	}
	return NewThresholdFulfillment(subconditions, subfulfillments)
}

func (c *Codec) readRsaFulfillment(body *der.Cursor) (Fulfillment, error) {
	modulus, _, err := body.ReadBytes(der.Context(0))
	if err != nil {
		return nil, err
	}
	if len(modulus) == 0 || modulus[0] == 0 {
		return nil, fmt.Errorf("%w: rsa modulus is not minimally encoded", ErrMalformed)
	}
	signature, _, err := body.ReadBytes(der.Context(1))
	if err != nil {
		return nil, err
	}
	pub := &rsa.PublicKey{N: new(big.Int).SetBytes(modulus), E: crypto.RSAExponent}
	return NewRsaFulfillment(c.backend, pub, signature)
}

func (c *Codec) readEd25519Fulfillment(body *der.Cursor) (Fulfillment, error) {
	pub, _, err := body.ReadBytes(der.Context(0))
	if err != nil {
		return nil, err
	}
	signature, _, err := body.ReadBytes(der.Context(1))
	if err != nil {
		return nil, err
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: ed25519 public key must be %d bytes, got %d",
			ErrInvalidFulfillment, ed25519.PublicKeySize, len(pub))
	}
	return NewEd25519Fulfillment(c.backend, pub, signature)
}

// readUint reads a non-negative INTEGER that fits in 64 bits. Values outside
// that range are domain errors reported with domainErr.
func readUint(cur *der.Cursor, tag der.Tag, domainErr error) (uint64, error) {
	v, _, err := cur.ReadInteger(tag)
	if err != nil {
		return 0, err
	}
	if v.Sign() < 0 {
		return 0, fmt.Errorf("%w: negative integer %s", domainErr, v)
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: integer %s out of range", domainErr, v)
	}
	return v.Uint64(), nil
}
