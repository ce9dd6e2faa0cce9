package conditions

import (
	"fmt"

	"github.com/hyperledger-archives/quilt-sub000/pkg/der"
)

// WriteCondition returns the binary encoding of c.
func WriteCondition(c Condition) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: condition", ErrNilArgument)
	}
	b := der.NewBuilder()
	appendCondition(b, c)
	return b.Bytes()
}

// WriteFulfillment returns the binary encoding of f. Children are written in
// the order they were supplied.
func WriteFulfillment(f Fulfillment) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("%w: fulfillment", ErrNilArgument)
	}
	b := der.NewBuilder()
	appendFulfillment(b, f)
	return b.Bytes()
}

func appendCondition(b *der.Builder, c Condition) {
	var subtypes *KindSet
	switch c := c.(type) {
	case *PreimageCondition, *RsaCondition, *Ed25519Condition:
	case *PrefixCondition:
		subtypes = &c.subtypes
	case *ThresholdCondition:
		subtypes = &c.subtypes
	default:
		b.SetError(fmt.Errorf("%w: unsupported condition %T", ErrUnknownKind, c))
		return
	}
	b.AddConstructed(der.ContextConstructed(c.Kind().Tag()), func(b *der.Builder) {
		b.AddPrimitive(der.Context(0), c.Fingerprint())
		b.AddUint(der.Context(1), c.Cost())
		if subtypes != nil {
			b.AddPrimitive(der.Context(2), subtypes.BitString())
		}
	})
}

func appendFulfillment(b *der.Builder, f Fulfillment) {
	switch f := f.(type) {
	case *PreimageFulfillment:
		b.AddConstructed(der.ContextConstructed(PreimageSha256.Tag()), func(b *der.Builder) {
			b.AddPrimitive(der.Context(0), f.preimage)
		})
	case *PrefixFulfillment:
		b.AddConstructed(der.ContextConstructed(PrefixSha256.Tag()), func(b *der.Builder) {
			b.AddPrimitive(der.Context(0), f.prefix)
			b.AddUint(der.Context(1), f.maxMessageLength)
			b.AddConstructed(der.ContextConstructed(2), func(b *der.Builder) {
				appendFulfillment(b, f.sub)
			})
		})
	case *ThresholdFulfillment:
		b.AddConstructed(der.ContextConstructed(ThresholdSha256.Tag()), func(b *der.Builder) {
			b.AddConstructed(der.ContextConstructed(0), func(b *der.Builder) {
				for _, sub := range f.subfulfillments {
					appendFulfillment(b, sub)
				}
			})
			b.AddConstructed(der.ContextConstructed(1), func(b *der.Builder) {
				for _, sub := range f.subconditions {
					appendCondition(b, sub)
				}
			})
		})
	case *RsaFulfillment:
		b.AddConstructed(der.ContextConstructed(RsaSha256.Tag()), func(b *der.Builder) {
			b.AddPrimitive(der.Context(0), f.publicKey.N.Bytes())
			b.AddPrimitive(der.Context(1), f.signature)
		})
	case *Ed25519Fulfillment:
		b.AddConstructed(der.ContextConstructed(Ed25519Sha256.Tag()), func(b *der.Builder) {
			b.AddPrimitive(der.Context(0), f.publicKey)
			b.AddPrimitive(der.Context(1), f.signature)
		})
	default:
		b.SetError(fmt.Errorf("%w: unsupported fulfillment %T", ErrUnknownKind, f))
	}
}
