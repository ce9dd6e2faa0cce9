package conditions

import (
	"fmt"
	"sort"

	"github.com/hyperledger-archives/quilt-sub000/pkg/crypto"
	"github.com/hyperledger-archives/quilt-sub000/pkg/der"
)

// thresholdOverhead is the cost added per sub-condition.
const thresholdOverhead = 1024

// ThresholdCondition commits to m-of-n sub-conditions.
type ThresholdCondition struct {
	compoundCondition
}

// NewThresholdCondition derives the condition requiring threshold of
// subconditions. The order of subconditions does not affect the result and
// duplicates count separately.
func NewThresholdCondition(threshold int, subconditions []Condition) (*ThresholdCondition, error) {
	subs := make([]Condition, len(subconditions))
	copy(subs, subconditions)
	for i, sub := range subs {
		if sub == nil {
			return nil, fmt.Errorf("%w: threshold sub-condition %d", ErrNilArgument, i)
		}
	}
	if threshold < 0 {
		return nil, fmt.Errorf("%w: negative threshold %d", ErrInvalidCondition, threshold)
	}
	if threshold > len(subs) {
		return nil, fmt.Errorf("%w: threshold %d exceeds %d sub-conditions",
			ErrInvalidCondition, threshold, len(subs))
	}

	cost, err := thresholdCost(threshold, subs)
	if err != nil {
		return nil, err
	}
	contents, err := thresholdFingerprintContents(threshold, subs)
	if err != nil {
		return nil, err
	}
	cc, err := newCompoundCondition(ThresholdSha256, crypto.Fingerprint(contents), cost,
		subtypesOf(ThresholdSha256, subs...))
	if err != nil {
		return nil, err
	}
	return &ThresholdCondition{compoundCondition: cc}, nil
}

// NewThresholdConditionFromFingerprint rebuilds a condition from its public
// fields.
func NewThresholdConditionFromFingerprint(fingerprint []byte, cost uint64, subtypes KindSet) (*ThresholdCondition, error) {
	cc, err := newCompoundCondition(ThresholdSha256, fingerprint, cost, subtypes)
	if err != nil {
		return nil, err
	}
	return &ThresholdCondition{compoundCondition: cc}, nil
}

// thresholdCost sums the threshold largest sub-costs and adds the per
// sub-condition overhead.
func thresholdCost(threshold int, subs []Condition) (uint64, error) {
	costs := make([]uint64, len(subs))
	for i, sub := range subs {
		costs[i] = sub.Cost()
	}
	sort.Slice(costs, func(i, j int) bool { return costs[i] > costs[j] })

	var (
		total uint64
		err   error
	)
	for _, c := range costs[:threshold] {
		if total, err = addCost(ThresholdSha256, total, c); err != nil {
			return 0, err
		}
	}
	for range subs {
		if total, err = addCost(ThresholdSha256, total, thresholdOverhead); err != nil {
			return 0, err
		}
	}
	return total, nil
}

func thresholdFingerprintContents(threshold int, subs []Condition) ([]byte, error) {
	encoded := sortedEncodings(subs)
	b := der.NewBuilder()
	b.AddSequence(func(b *der.Builder) {
		b.AddUint(der.Context(0), uint64(threshold))
		b.AddConstructed(der.ContextConstructed(1), func(b *der.Builder) {
			for _, e := range encoded {
				b.AddRaw(e)
			}
		})
	})
	return b.Bytes()
}

// ThresholdFulfillment fulfills a threshold condition. The number of
// sub-fulfillments is the threshold; subconditions lists the members left
// unfulfilled.
type ThresholdFulfillment struct {
	subconditions   []Condition
	subfulfillments []Fulfillment
	condition       *ThresholdCondition
}

// NewThresholdFulfillment builds a fulfillment whose derived condition
// requires len(subfulfillments) of the union of subconditions and the
// sub-fulfillments' conditions. Wire order follows the arguments.
func NewThresholdFulfillment(subconditions []Condition, subfulfillments []Fulfillment) (*ThresholdFulfillment, error) {
	conds := make([]Condition, len(subconditions))
	copy(conds, subconditions)
	fuls := make([]Fulfillment, len(subfulfillments))
	copy(fuls, subfulfillments)

	all := make([]Condition, 0, len(conds)+len(fuls))
	all = append(all, conds...)
	for i, f := range fuls {
		if f == nil {
			return nil, fmt.Errorf("%w: threshold sub-fulfillment %d", ErrNilArgument, i)
		}
		all = append(all, f.Condition())
	}
	cond, err := NewThresholdCondition(len(fuls), all)
	if err != nil {
		return nil, err
	}
	return &ThresholdFulfillment{subconditions: conds, subfulfillments: fuls, condition: cond}, nil
}

// Threshold returns the number of sub-fulfillments.
func (f *ThresholdFulfillment) Threshold() int {
	return len(f.subfulfillments)
}

func (f *ThresholdFulfillment) Subconditions() []Condition {
	out := make([]Condition, len(f.subconditions))
	copy(out, f.subconditions)
	return out
}

func (f *ThresholdFulfillment) Subfulfillments() []Fulfillment {
	out := make([]Fulfillment, len(f.subfulfillments))
	copy(out, f.subfulfillments)
	return out
}

func (f *ThresholdFulfillment) Kind() Kind {
	return ThresholdSha256
}

func (f *ThresholdFulfillment) Condition() Condition {
	return f.condition
}

// Verify requires every sub-fulfillment to verify against its own derived
// condition. A fulfillment without sub-fulfillments never verifies.
func (f *ThresholdFulfillment) Verify(c Condition, message []byte) (bool, error) {
	ok, err := matches(f.condition, c)
	if !ok || err != nil {
		return false, err
	}
	if len(f.subfulfillments) == 0 {
		return false, nil
	}
	for _, sub := range f.subfulfillments {
		ok, err := sub.Verify(sub.Condition(), message)
		if !ok || err != nil {
			return false, err
		}
	}
	return true, nil
}

func (*ThresholdFulfillment) fulfillment() {}
