package der

import (
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// Cursor is a forward-only reader over a DER buffer. A failed read leaves the
// cursor where it was.
type Cursor struct {
	s     cryptobyte.String
	total int
}

// NewCursor returns a cursor positioned at the start of data.
func NewCursor(data []byte) *Cursor {
	return &Cursor{s: cryptobyte.String(data), total: len(data)}
}

// Consumed returns the number of octets read so far.
func (c *Cursor) Consumed() int {
	return c.total - len(c.s)
}

// Len returns the number of unread octets.
func (c *Cursor) Len() int {
	return len(c.s)
}

// Empty reports whether every octet has been read.
func (c *Cursor) Empty() bool {
	return c.s.Empty()
}

// PeekTag returns the identifier octet of the next element without
// consuming it.
func (c *Cursor) PeekTag() (Tag, bool) {
	if len(c.s) == 0 {
		return 0, false
	}
	return Tag(c.s[0]), true
}

// ReadAny reads the next element whatever its tag. It returns the tag, a
// cursor over the element contents and the octets consumed including the
// header.
func (c *Cursor) ReadAny() (Tag, *Cursor, int, error) {
	before := len(c.s)
	var (
		body cryptobyte.String
		tag  asn1.Tag
	)
	if !c.s.ReadAnyASN1(&body, &tag) {
		return 0, nil, 0, c.describeFailure()
	}
	return tag, NewCursor(body), before - len(c.s), nil
}

// Read reads the next element and requires it to carry tag.
func (c *Cursor) Read(tag Tag) (*Cursor, int, error) {
	next, ok := c.PeekTag()
	if !ok {
		return nil, 0, malformedf("expected tag 0x%02x, buffer exhausted", uint8(tag))
	}
	if next != tag {
		return nil, 0, malformedf("expected tag 0x%02x, found 0x%02x", uint8(tag), uint8(next))
	}
	_, body, n, err := c.ReadAny()
	if err != nil {
		return nil, 0, err
	}
	return body, n, nil
}

// ReadBytes reads a primitive element carrying tag and returns a copy of its
// contents.
func (c *Cursor) ReadBytes(tag Tag) ([]byte, int, error) {
	body, n, err := c.Read(tag)
	if err != nil {
		return nil, 0, err
	}
	out := make([]byte, body.Len())
	copy(out, body.s)
	return out, n, nil
}

// ReadInteger reads a primitive element carrying tag and decodes its
// contents as a two's complement INTEGER.
func (c *Cursor) ReadInteger(tag Tag) (*big.Int, int, error) {
	body, n, err := c.Read(tag)
	if err != nil {
		return nil, 0, err
	}
	v, err := DecodeInteger(body.s)
	if err != nil {
		return nil, 0, err
	}
	return v, n, nil
}

// Finish fails if any octets remain unread.
func (c *Cursor) Finish() error {
	if !c.s.Empty() {
		return malformedf("%d trailing octets", len(c.s))
	}
	return nil
}

func (c *Cursor) describeFailure() error {
	switch {
	case len(c.s) == 0:
		return malformedf("buffer exhausted")
	case len(c.s) < 2:
		return malformedf("truncated element header")
	case c.s[0]&0x1f == 0x1f:
		return malformedf("high tag number form is not supported")
	case c.s[1] == 0x80:
		return malformedf("indefinite length is not supported")
	default:
		return malformedf("truncated element or non-minimal length after tag 0x%02x", c.s[0])
	}
}
