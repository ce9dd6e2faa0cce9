package conditions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindRegistry(t *testing.T) {
	tests := []struct {
		kind     Kind
		tag      int
		name     string
		compound bool
	}{
		{PreimageSha256, 0, "preimage-sha-256", false},
		{PrefixSha256, 1, "prefix-sha-256", true},
		{ThresholdSha256, 2, "threshold-sha-256", true},
		{RsaSha256, 3, "rsa-sha-256", false},
		{Ed25519Sha256, 4, "ed25519-sha-256", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.tag, tt.kind.Tag())
			assert.Equal(t, tt.name, tt.kind.String())
			assert.Equal(t, tt.compound, tt.kind.IsCompound())

			k, err := KindFromTag(tt.tag)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, k)

			k, err = KindFromName(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, k)
		})
	}
}

func TestKindFromName_CaseInsensitive(t *testing.T) {
	k, err := KindFromName("ED25519-SHA-256")
	require.NoError(t, err)
	assert.Equal(t, Ed25519Sha256, k)

	k, err = KindFromName("Threshold-Sha-256")
	require.NoError(t, err)
	assert.Equal(t, ThresholdSha256, k)

	_, err = KindFromName("sha-256")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestKindFromTag_Unknown(t *testing.T) {
	for _, tag := range []int{-1, 5, 30} {
		_, err := KindFromTag(tag)
		assert.ErrorIs(t, err, ErrUnknownKind, "tag %d", tag)
	}
}

func TestKindSet_Operations(t *testing.T) {
	s := NewKindSet(PreimageSha256, Ed25519Sha256)
	assert.True(t, s.Has(PreimageSha256))
	assert.False(t, s.Has(PrefixSha256))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []Kind{PreimageSha256, Ed25519Sha256}, s.Kinds())

	s2 := s.Add(RsaSha256).Remove(PreimageSha256)
	assert.Equal(t, []Kind{RsaSha256, Ed25519Sha256}, s2.Kinds())
	assert.Equal(t, 2, s.Len(), "sets are values")

	assert.Equal(t, NewKindSet(PreimageSha256, RsaSha256, Ed25519Sha256), s.Union(s2))
	assert.Equal(t, s, s.Add(Kind(9)), "invalid kinds are ignored")
}

func TestKindSet_BitString(t *testing.T) {
	tests := []struct {
		name string
		set  KindSet
		want []byte
	}{
		{"empty", 0, []byte{0x00}},
		{"preimage", NewKindSet(PreimageSha256), []byte{0x07, 0x80}},
		{"prefix", NewKindSet(PrefixSha256), []byte{0x06, 0x40}},
		{"preimage and rsa", NewKindSet(PreimageSha256, RsaSha256), []byte{0x04, 0x90}},
		{"all", NewKindSet(PreimageSha256, PrefixSha256, ThresholdSha256, RsaSha256, Ed25519Sha256), []byte{0x03, 0xf8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.set.BitString())
			back, err := KindSetFromBitString(tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.set, back)
		})
	}
}

func TestKindSet_BitStringRoundTripAllSets(t *testing.T) {
	for v := 0; v < 1<<kindCount; v++ {
		s := KindSet(v)
		back, err := KindSetFromBitString(s.BitString())
		require.NoError(t, err, "set %05b", v)
		assert.Equal(t, s, back)
	}
}

func TestKindSetFromBitString_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"nothing", nil},
		{"lone non-zero octet", []byte{0x07}},
		{"three octets", []byte{0x03, 0xf8, 0x00}},
		{"pad below three", []byte{0x02, 0xfc}},
		{"pad above seven", []byte{0x08, 0x00}},
		{"bits inside padding", []byte{0x07, 0x81}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := KindSetFromBitString(tt.data)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestKindSet_Names(t *testing.T) {
	all := NewKindSet(PreimageSha256, PrefixSha256, ThresholdSha256, RsaSha256, Ed25519Sha256)
	assert.Equal(t, "ed25519-sha-256,prefix-sha-256,preimage-sha-256,rsa-sha-256,threshold-sha-256", all.Names())
	assert.Equal(t, "", KindSet(0).Names())

	back, err := KindSetFromNames(all.Names())
	require.NoError(t, err)
	assert.Equal(t, all, back)

	empty, err := KindSetFromNames("")
	require.NoError(t, err)
	assert.Equal(t, KindSet(0), empty)

	_, err = KindSetFromNames("preimage-sha-256,md5")
	assert.ErrorIs(t, err, ErrUnknownKind)
}
