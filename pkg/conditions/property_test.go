//go:build property
// +build property

package conditions_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/hyperledger-archives/quilt-sub000/pkg/conditions"
)

// TestPreimageRoundTrip verifies encodings survive a read.
// Property: Read(Write(x)) == x for preimage conditions and fulfillments
func TestPreimageRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("preimage fulfillment round trips", prop.ForAll(
		func(preimage []byte) bool {
			ful := conditions.NewPreimageFulfillment(preimage)
			encoded, err := conditions.WriteFulfillment(ful)
			if err != nil {
				return false
			}
			back, err := conditions.ReadFulfillment(encoded)
			if err != nil {
				return false
			}
			if !conditions.EqualFulfillments(ful, back) {
				return false
			}

			condBytes, err := conditions.WriteCondition(ful.Condition())
			if err != nil {
				return false
			}
			cond, err := conditions.ReadCondition(condBytes)
			if err != nil {
				return false
			}
			ok, err := back.Verify(cond, nil)
			return err == nil && ok
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}

// TestThresholdOrderIndependence verifies sub-condition order is irrelevant.
// Property: Threshold(m, xs) == Threshold(m, reverse(xs))
func TestThresholdOrderIndependence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("threshold fingerprint ignores order", prop.ForAll(
		func(secrets []string, m int) bool {
			if len(secrets) == 0 {
				return true
			}
			subs := make([]conditions.Condition, len(secrets))
			for i, s := range secrets {
				subs[i] = conditions.NewPreimageCondition([]byte(s))
			}
			reversed := make([]conditions.Condition, len(subs))
			for i := range subs {
				reversed[len(subs)-1-i] = subs[i]
			}
			threshold := m % (len(subs) + 1)

			a, err := conditions.MOfN(threshold, subs...)
			if err != nil {
				return false
			}
			b, err := conditions.MOfN(threshold, reversed...)
			if err != nil {
				return false
			}
			return conditions.Equal(a, b)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.IntRange(0, 64),
	))

	properties.TestingRun(t)
}

// TestThresholdSelfFulfillment verifies built fulfillments verify.
// Property: f.Verify(f.Condition(), msg) for thresholds of preimages
func TestThresholdSelfFulfillment(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("threshold of preimages verifies", prop.ForAll(
		func(fulfilled []string, unfulfilled []string, msg string) bool {
			if len(fulfilled) == 0 {
				return true
			}
			fuls := make([]conditions.Fulfillment, len(fulfilled))
			for i, s := range fulfilled {
				fuls[i] = conditions.NewPreimageFulfillment([]byte(s))
			}
			conds := make([]conditions.Condition, len(unfulfilled))
			for i, s := range unfulfilled {
				conds[i] = conditions.NewPreimageCondition([]byte(s))
			}
			ful, err := conditions.NewThresholdFulfillment(conds, fuls)
			if err != nil {
				return false
			}
			encoded, err := conditions.WriteFulfillment(ful)
			if err != nil {
				return false
			}
			back, err := conditions.ReadFulfillment(encoded)
			if err != nil {
				return false
			}
			ok, err := back.Verify(ful.Condition(), []byte(msg))
			return err == nil && ok
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// TestKindSetBitStringRoundTrip verifies subtype bit strings decode to the
// encoded set.
func TestKindSetBitStringRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("bit string round trips", prop.ForAll(
		func(v uint8) bool {
			s := conditions.KindSet(v)
			back, err := conditions.KindSetFromBitString(s.BitString())
			return err == nil && back == s
		},
		gen.UInt8Range(0, 31),
	))

	properties.TestingRun(t)
}
