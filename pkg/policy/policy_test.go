package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger-archives/quilt-sub000/pkg/conditions"
)

func TestEvaluator_Admit(t *testing.T) {
	ed, err := conditions.NewEd25519Condition(make([]byte, 32))
	require.NoError(t, err)
	pre := conditions.NewPreimageCondition([]byte("secret"))
	th, err := conditions.OneOfTwo(ed, pre)
	require.NoError(t, err)

	e, err := NewEvaluator(
		Rule{Name: "cost-cap", Expr: "condition.cost <= 200000"},
		Rule{Name: "no-rsa", Expr: `!("rsa-sha-256" in condition.subtypes) && condition.type != "rsa-sha-256"`},
	)
	require.NoError(t, err)

	ctx := context.Background()
	assert.NoError(t, e.Admit(ctx, pre))
	assert.NoError(t, e.Admit(ctx, ed))
	assert.NoError(t, e.Admit(ctx, th), "131072 + 2*1024 fits")

	big, err := conditions.TwoOfTwo(ed, ed)
	require.NoError(t, err)
	err = e.Admit(ctx, big)
	assert.ErrorIs(t, err, ErrDenied)
	assert.Contains(t, err.Error(), "cost-cap")

	rsaFingerprint := make([]byte, 32)
	rsa, err := conditions.NewRsaConditionFromFingerprint(rsaFingerprint, 65536)
	require.NoError(t, err)
	err = e.Admit(ctx, rsa)
	assert.ErrorIs(t, err, ErrDenied)
	assert.Contains(t, err.Error(), "no-rsa")
}

func TestEvaluator_NoRulesAdmitsEverything(t *testing.T) {
	e, err := NewEvaluator()
	require.NoError(t, err)
	assert.NoError(t, e.Admit(context.Background(), conditions.NewPreimageCondition(nil)))
	assert.ErrorIs(t, e.Admit(context.Background(), nil), ErrDenied)
}

func TestEvaluator_CompileErrors(t *testing.T) {
	_, err := NewEvaluator(Rule{Name: "broken", Expr: "condition.cost <="})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	_, err = NewEvaluator(Rule{Name: "unknown-var", Expr: "module.name == 'x'"})
	assert.Error(t, err)
}

func TestEvaluator_NonBoolResult(t *testing.T) {
	e, err := NewEvaluator(Rule{Name: "not-bool", Expr: "condition.cost"})
	require.NoError(t, err)
	err = e.Admit(context.Background(), conditions.NewPreimageCondition(nil))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDenied)
}

func TestEvaluator_Evaluate(t *testing.T) {
	e, err := NewEvaluator()
	require.NoError(t, err)
	cond, err := conditions.NewPrefixCondition([]byte("p"), 10, conditions.NewPreimageCondition(nil))
	require.NoError(t, err)

	ok, err := e.Evaluate(context.Background(), `condition.compound && condition.subtypes == ["preimage-sha-256"]`, cond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Evaluate(context.Background(), `condition.fingerprint.size() == 43`, cond)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAttributes(t *testing.T) {
	attrs := Attributes(conditions.NewPreimageCondition([]byte("abc")))
	assert.Equal(t, "preimage-sha-256", attrs["type"])
	assert.Equal(t, int64(3), attrs["cost"])
	assert.Equal(t, false, attrs["compound"])
	assert.Equal(t, []string{}, attrs["subtypes"])
}
