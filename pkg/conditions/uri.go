package conditions

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/hyperledger-archives/quilt-sub000/pkg/crypto"
)

const (
	uriScheme    = "ni"
	uriHashLabel = "sha-256"
)

// URI returns the ni:// form of c.
func URI(c Condition) (string, error) {
	if c == nil {
		return "", fmt.Errorf("%w: condition", ErrNilArgument)
	}
	return c.String(), nil
}

func formatURI(kind Kind, fingerprint []byte, cost uint64, subtypes *KindSet) string {
	var sb strings.Builder
	sb.WriteString(uriScheme)
	sb.WriteString(":///")
	sb.WriteString(uriHashLabel)
	sb.WriteByte(';')
	sb.WriteString(crypto.EncodeFingerprint(fingerprint))
	sb.WriteString("?cost=")
	sb.WriteString(strconv.FormatUint(cost, 10))
	sb.WriteString("&fpt=")
	sb.WriteString(kind.String())
	if subtypes != nil {
		sb.WriteString("&subtypes=")
		sb.WriteString(subtypes.Names())
	}
	return sb.String()
}

// ParseURI parses the ni:// form of a condition. The subtypes parameter is
// required for prefix and threshold conditions and ignored otherwise.
func ParseURI(raw string) (Condition, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}
	if u.Scheme != uriScheme {
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidURI, u.Scheme)
	}
	label, encoded, ok := strings.Cut(strings.TrimPrefix(u.Path, "/"), ";")
	if !ok {
		return nil, fmt.Errorf("%w: missing hash function label", ErrInvalidURI)
	}
	if label != uriHashLabel {
		return nil, fmt.Errorf("%w: hash function %q", ErrInvalidURI, label)
	}
	fingerprint, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: fingerprint: %w", ErrInvalidURI, err)
	}
	if len(fingerprint) != crypto.FingerprintSize {
		return nil, fmt.Errorf("%w: fingerprint of %d bytes", ErrInvalidURI, len(fingerprint))
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}
	if !query.Has("cost") {
		return nil, fmt.Errorf("%w: missing cost", ErrInvalidURI)
	}
	cost, err := strconv.ParseUint(query.Get("cost"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: cost: %w", ErrInvalidURI, err)
	}
	if !query.Has("fpt") {
		return nil, fmt.Errorf("%w: missing fpt", ErrInvalidURI)
	}
	kind, err := KindFromName(query.Get("fpt"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}

	var subtypes KindSet
	if kind.IsCompound() {
		if !query.Has("subtypes") {
			return nil, fmt.Errorf("%w: missing subtypes for %s", ErrInvalidURI, kind)
		}
		if subtypes, err = KindSetFromNames(query.Get("subtypes")); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidURI, err)
		}
	}

	var c Condition
	switch kind {
	case PreimageSha256:
		c, err = NewPreimageConditionFromFingerprint(fingerprint, cost)
	case PrefixSha256:
		c, err = NewPrefixConditionFromFingerprint(fingerprint, cost, subtypes)
	case ThresholdSha256:
		c, err = NewThresholdConditionFromFingerprint(fingerprint, cost, subtypes)
	case RsaSha256:
		c, err = NewRsaConditionFromFingerprint(fingerprint, cost)
	case Ed25519Sha256:
		c, err = NewEd25519ConditionFromFingerprint(fingerprint, cost)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURI, err)
	}
	return c, nil
}

// ConditionJSON is the public view of a condition used in reports and logs.
type ConditionJSON struct {
	URI         string   `json:"uri"`
	Type        string   `json:"type"`
	Cost        uint64   `json:"cost"`
	Fingerprint string   `json:"fingerprint"`
	Subtypes    []string `json:"subtypes,omitempty"`
}

// ToJSON returns the public view of c.
func ToJSON(c Condition) ConditionJSON {
	out := ConditionJSON{
		URI:         c.String(),
		Type:        c.Kind().String(),
		Cost:        c.Cost(),
		Fingerprint: crypto.EncodeFingerprint(c.Fingerprint()),
	}
	if cc, ok := c.(CompoundCondition); ok {
		for _, k := range cc.Subtypes().Kinds() {
			out.Subtypes = append(out.Subtypes, k.String())
		}
	}
	return out
}

// Condition parses the URI back into a condition.
func (j ConditionJSON) Condition() (Condition, error) {
	return ParseURI(j.URI)
}
