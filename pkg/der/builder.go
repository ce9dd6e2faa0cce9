package der

import (
	"encoding/binary"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
)

// Builder writes DER elements. Errors are sticky and surface from Bytes.
type Builder struct {
	b *cryptobyte.Builder
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{b: cryptobyte.NewBuilder(nil)}
}

// AddPrimitive writes a primitive element carrying content.
func (b *Builder) AddPrimitive(tag Tag, content []byte) {
	b.b.AddASN1(tag, func(child *cryptobyte.Builder) {
		child.AddBytes(content)
	})
}

// AddUint writes a non-negative INTEGER under tag.
func (b *Builder) AddUint(tag Tag, v uint64) {
	b.AddPrimitive(tag, EncodeUint(v))
}

// AddConstructed writes a constructed element whose contents are produced by f.
func (b *Builder) AddConstructed(tag Tag, f func(*Builder)) {
	b.b.AddASN1(tag, func(child *cryptobyte.Builder) {
		f(&Builder{b: child})
	})
}

// AddSequence writes a universal SEQUENCE.
func (b *Builder) AddSequence(f func(*Builder)) {
	b.AddConstructed(Sequence, f)
}

// AddRaw appends an already encoded element.
func (b *Builder) AddRaw(element []byte) {
	b.b.AddBytes(element)
}

// SetError aborts the build; Bytes returns err.
func (b *Builder) SetError(err error) {
	b.b.SetError(err)
}

// Bytes returns the encoding built so far.
func (b *Builder) Bytes() ([]byte, error) {
	return b.b.Bytes()
}

// EncodeUint returns the minimal two's complement contents of a non-negative
// INTEGER. Zero encodes as a single 0x00 octet and a leading 0x00 is added
// when the high bit of the first octet would otherwise be set.
func EncodeUint(v uint64) []byte {
	if v == 0 {
		return []byte{0x00}
	}
	var buf [9]byte
	binary.BigEndian.PutUint64(buf[1:], v)
	i := 1
	for buf[i] == 0 {
		i++
	}
	if buf[i]&0x80 != 0 {
		i--
	}
	out := make([]byte, len(buf)-i)
	copy(out, buf[i:])
	return out
}

// DecodeInteger decodes the contents of a two's complement INTEGER and
// rejects empty or non-minimal encodings.
func DecodeInteger(content []byte) (*big.Int, error) {
	if len(content) == 0 {
		return nil, malformedf("empty integer")
	}
	if len(content) > 1 {
		if content[0] == 0x00 && content[1]&0x80 == 0 ||
			content[0] == 0xff && content[1]&0x80 != 0 {
			return nil, malformedf("non-minimal integer")
		}
	}
	v := new(big.Int).SetBytes(content)
	if content[0]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(len(content))*8))
	}
	return v, nil
}
