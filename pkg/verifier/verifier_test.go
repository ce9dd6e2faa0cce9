package verifier

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/hyperledger-archives/quilt-sub000/pkg/conditions"
	"github.com/hyperledger-archives/quilt-sub000/pkg/config"
	"github.com/hyperledger-archives/quilt-sub000/pkg/crypto"
	"github.com/hyperledger-archives/quilt-sub000/pkg/observability"
	"github.com/hyperledger-archives/quilt-sub000/pkg/store"
)

func preimageFixture(t *testing.T, preimage string) (conditions.Condition, []byte) {
	t.Helper()
	f := conditions.NewPreimageFulfillment([]byte(preimage))
	encoded, err := conditions.WriteFulfillment(f)
	require.NoError(t, err)
	return f.Condition(), encoded
}

func checkNames(r *Report) []string {
	names := make([]string, len(r.Checks))
	for i, c := range r.Checks {
		names[i] = c.Name
	}
	return names
}

func TestVerify_Preimage(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	cond, ful := preimageFixture(t, "open sesame")
	report, err := s.Verify(context.Background(), cond, ful, nil)
	require.NoError(t, err)

	assert.True(t, report.Verified)
	assert.Equal(t, []string{CheckAllowedType, CheckMaxCost, CheckDecode, CheckSignature}, checkNames(report))
	assert.Equal(t, "PASS: 4/4 checks passed", report.Summary)
	assert.Equal(t, 0, report.IssueCount)
	assert.Equal(t, cond.String(), report.Condition.URI)
	assert.Equal(t, "preimage-sha-256", report.Condition.Type)
}

func TestVerify_WrongPreimage(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	cond, _ := preimageFixture(t, "open sesame")
	_, other := preimageFixture(t, "open barley")
	report, err := s.Verify(context.Background(), cond, other, nil)
	require.NoError(t, err)

	assert.False(t, report.Verified)
	assert.Equal(t, "FAIL: 1/4 checks failed", report.Summary)
	failed, ok := report.Failed()
	require.True(t, ok)
	assert.Equal(t, CheckSignature, failed.Name)
}

func TestVerify_StopsAtFirstFailure(t *testing.T) {
	signer, err := crypto.NewEd25519Signer("k1")
	require.NoError(t, err)
	edFul, err := conditions.SignEd25519(crypto.StdBackend{}, signer, []byte("msg"))
	require.NoError(t, err)
	edBytes, err := conditions.WriteFulfillment(edFul)
	require.NoError(t, err)

	tests := []struct {
		name   string
		opts   []Option
		cond   conditions.Condition
		ful    []byte
		failed string
		ran    int
	}{
		{
			name:   "type not allowed",
			opts:   []Option{WithAllowedKinds(conditions.NewKindSet(conditions.PreimageSha256))},
			cond:   edFul.Condition(),
			ful:    edBytes,
			failed: CheckAllowedType,
			ran:    1,
		},
		{
			name:   "cost above ceiling",
			opts:   []Option{WithMaxCost(1000)},
			cond:   edFul.Condition(),
			ful:    edBytes,
			failed: CheckMaxCost,
			ran:    2,
		},
		{
			name:   "undecodable fulfillment",
			cond:   edFul.Condition(),
			ful:    []byte{0xa4, 0xff},
			failed: CheckDecode,
			ran:    3,
		},
		{
			name:   "cost above budget burst",
			opts:   []Option{WithCostBudget(1, 10)},
			cond:   conditions.NewPreimageCondition([]byte("abcdefghijk")),
			ful:    mustFulfillment(t, conditions.NewPreimageFulfillment([]byte("abcdefghijk"))),
			failed: CheckCostBudget,
			ran:    4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.opts...)
			require.NoError(t, err)
			report, err := s.Verify(context.Background(), tt.cond, tt.ful, []byte("msg"))
			require.NoError(t, err)
			assert.False(t, report.Verified)
			assert.Len(t, report.Checks, tt.ran)
			failed, ok := report.Failed()
			require.True(t, ok)
			assert.Equal(t, tt.failed, failed.Name)
			assert.NotEmpty(t, failed.Reason)
		})
	}
}

func mustFulfillment(t *testing.T, f conditions.Fulfillment) []byte {
	t.Helper()
	b, err := conditions.WriteFulfillment(f)
	require.NoError(t, err)
	return b
}

func TestVerify_CostBudgetSpends(t *testing.T) {
	s, err := New(WithCostBudget(1000, 20))
	require.NoError(t, err)

	cond, ful := preimageFixture(t, "twelve bytes")
	report, err := s.Verify(context.Background(), cond, ful, nil)
	require.NoError(t, err)
	assert.True(t, report.Verified)
	assert.Contains(t, checkNames(report), CheckCostBudget)
}

func TestVerify_CancelledContextWhileBudgeted(t *testing.T) {
	s, err := New(WithCostBudget(1, 20))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cond, ful := preimageFixture(t, "abc")
	_, err = s.Verify(ctx, cond, ful, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerify_Ed25519WithTelemetry(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	obs, err := observability.NewWithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	s, err := New(WithObservability(obs))
	require.NoError(t, err)

	signer, err := crypto.NewEd25519Signer("k1")
	require.NoError(t, err)
	msg := []byte("pay 10 to bob")
	f, err := conditions.SignEd25519(crypto.StdBackend{}, signer, msg)
	require.NoError(t, err)
	encoded := mustFulfillment(t, f)

	report, err := s.Verify(context.Background(), f.Condition(), encoded, msg)
	require.NoError(t, err)
	assert.True(t, report.Verified)

	report, err = s.Verify(context.Background(), f.Condition(), encoded, []byte("pay 1000 to bob"))
	require.NoError(t, err)
	assert.False(t, report.Verified)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "conditions.verifications.total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), total)
}

func TestVerify_RecordsAndRejectsReplay(t *testing.T) {
	st := store.NewMemoryStore()
	s, err := New(WithStore(st))
	require.NoError(t, err)

	cond, ful := preimageFixture(t, "once")
	ctx := context.Background()

	report, err := s.Verify(ctx, cond, ful, nil)
	require.NoError(t, err)
	require.True(t, report.Verified)
	assert.Equal(t, CheckRecord, report.Checks[len(report.Checks)-1].Name)

	rec, err := st.Get(ctx, cond.String())
	require.NoError(t, err)
	assert.Equal(t, store.StateFulfilled, rec.State)
	assert.Equal(t, ful, rec.Fulfillment)

	report, err = s.Verify(ctx, cond, ful, nil)
	require.NoError(t, err)
	assert.False(t, report.Verified)
	failed, _ := report.Failed()
	assert.Equal(t, CheckRecord, failed.Name)
}

func TestNewFromProfile(t *testing.T) {
	profile := &config.Profile{
		Version:      "1.0.0",
		Name:         "strict",
		MaxCost:      200000,
		AllowedTypes: []string{"preimage-sha-256", "ed25519-sha-256"},
		Rules: []config.Rule{
			{Name: "no-short-preimages", Expr: `condition.type != "preimage-sha-256" || condition.cost >= 8`},
		},
		CostBudget: &config.CostBudget{PerSecond: 1e6, Burst: 200000},
	}
	s, err := NewFromProfile(profile)
	require.NoError(t, err)

	cond, ful := preimageFixture(t, "short")
	report, err := s.Verify(context.Background(), cond, ful, nil)
	require.NoError(t, err)
	assert.False(t, report.Verified)
	failed, _ := report.Failed()
	assert.Equal(t, CheckPolicy, failed.Name)
	assert.Contains(t, failed.Reason, "no-short-preimages")

	cond, ful = preimageFixture(t, "long enough")
	report, err = s.Verify(context.Background(), cond, ful, nil)
	require.NoError(t, err)
	assert.True(t, report.Verified)
	assert.Equal(t,
		[]string{CheckAllowedType, CheckMaxCost, CheckPolicy, CheckDecode, CheckCostBudget, CheckSignature},
		checkNames(report))

	threshold, err := conditions.OneOfTwo(cond, cond)
	require.NoError(t, err)
	report, err = s.Verify(context.Background(), threshold, ful, nil)
	require.NoError(t, err)
	failed, _ = report.Failed()
	assert.Equal(t, CheckAllowedType, failed.Name)
}

func TestNewFromProfile_Errors(t *testing.T) {
	_, err := NewFromProfile(nil)
	assert.ErrorIs(t, err, conditions.ErrNilArgument)

	_, err = NewFromProfile(&config.Profile{
		Version: "1.0.0",
		Name:    "broken",
		Rules:   []config.Rule{{Name: "bad", Expr: "condition.cost <="}},
	})
	assert.Error(t, err)

	_, err = NewFromProfile(&config.Profile{Version: "1.0.0", Name: "typo", AllowedTypes: []string{"sha3-256"}})
	assert.ErrorIs(t, err, conditions.ErrUnknownKind)
}

func TestVerify_NilCondition(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	_, err = s.Verify(context.Background(), nil, nil, nil)
	assert.ErrorIs(t, err, conditions.ErrNilArgument)
}

func TestVerifyURI(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	cond, ful := preimageFixture(t, "by uri")
	report, err := s.VerifyURI(context.Background(), cond.String(), ful, nil)
	require.NoError(t, err)
	assert.True(t, report.Verified)

	_, err = s.VerifyURI(context.Background(), "http://example.com", ful, nil)
	assert.ErrorIs(t, err, conditions.ErrInvalidURI)
}

const preimageProfile = `
version: 1.0.0
name: preimages-only
max_cost: 100
allowed_types: [preimage-sha-256]
`

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		LogLevel:    "ERROR",
		ProfilePath: writeProfile(t, preimageProfile),
		MaxCost:     40,
		StoreDriver: "memory",
	}
	s, err := NewFromConfig(ctx, cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close(ctx)) }()

	// The environment ceiling is stricter than the profile's.
	cond, ful := preimageFixture(t, string(bytes.Repeat([]byte("x"), 50)))
	report, err := s.Verify(ctx, cond, ful, nil)
	require.NoError(t, err)
	failed, _ := report.Failed()
	assert.Equal(t, CheckMaxCost, failed.Name)

	// Verified conditions are recorded in the configured store.
	cond, ful = preimageFixture(t, "from config")
	report, err = s.Verify(ctx, cond, ful, nil)
	require.NoError(t, err)
	assert.True(t, report.Verified)
	assert.Equal(t, CheckRecord, report.Checks[len(report.Checks)-1].Name)

	report, err = s.Verify(ctx, cond, ful, nil)
	require.NoError(t, err)
	failed, _ = report.Failed()
	assert.Equal(t, CheckRecord, failed.Name)

	signer, err := crypto.NewEd25519Signer("k1")
	require.NoError(t, err)
	edFul, err := conditions.SignEd25519(crypto.StdBackend{}, signer, []byte("m"))
	require.NoError(t, err)
	report, err = s.Verify(ctx, edFul.Condition(), mustFulfillment(t, edFul), []byte("m"))
	require.NoError(t, err)
	failed, _ = report.Failed()
	assert.Equal(t, CheckAllowedType, failed.Name)
}

func TestNewFromConfig_ProfileCeilingWins(t *testing.T) {
	ctx := context.Background()
	s, err := NewFromConfig(ctx, &config.Config{
		LogLevel:    "ERROR",
		ProfilePath: writeProfile(t, preimageProfile),
		MaxCost:     1000,
		StoreDriver: "memory",
	})
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close(ctx)) }()

	cond, ful := preimageFixture(t, string(bytes.Repeat([]byte("y"), 150)))
	report, err := s.Verify(ctx, cond, ful, nil)
	require.NoError(t, err)
	failed, _ := report.Failed()
	assert.Equal(t, CheckMaxCost, failed.Name)
	assert.Contains(t, failed.Reason, "maximum 100")
}

func TestNewFromConfig_DefaultProfile(t *testing.T) {
	ctx := context.Background()
	s, err := NewFromConfig(ctx, &config.Config{LogLevel: "ERROR", StoreDriver: "memory"})
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close(ctx)) }()

	signer, err := crypto.NewEd25519Signer("k1")
	require.NoError(t, err)
	f, err := conditions.SignEd25519(crypto.StdBackend{}, signer, []byte("m"))
	require.NoError(t, err)
	report, err := s.Verify(ctx, f.Condition(), mustFulfillment(t, f), []byte("m"))
	require.NoError(t, err)
	assert.True(t, report.Verified)
}

func TestNewFromConfig_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := NewFromConfig(ctx, nil)
	assert.ErrorIs(t, err, conditions.ErrNilArgument)

	_, err = NewFromConfig(ctx, &config.Config{
		ProfilePath: filepath.Join(t.TempDir(), "missing.yaml"),
		StoreDriver: "memory",
	})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = NewFromConfig(ctx, &config.Config{StoreDriver: "cassandra"})
	assert.Error(t, err)
}
