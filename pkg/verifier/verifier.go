// Package verifier checks fulfillments against conditions under an
// acceptance profile.
//
// A Service runs a fixed sequence of checks (type allow-list, cost ceiling,
// CEL admission rules, fulfillment decoding, cost budget, cryptographic
// verification, replay record) and reports every check it ran. The first
// failing check ends the run.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/hyperledger-archives/quilt-sub000/pkg/conditions"
	"github.com/hyperledger-archives/quilt-sub000/pkg/config"
	"github.com/hyperledger-archives/quilt-sub000/pkg/crypto"
	"github.com/hyperledger-archives/quilt-sub000/pkg/observability"
	"github.com/hyperledger-archives/quilt-sub000/pkg/policy"
	"github.com/hyperledger-archives/quilt-sub000/pkg/store"
)

// Check names, in the order they run.
const (
	CheckAllowedType = "allowed_type"
	CheckMaxCost     = "max_cost"
	CheckPolicy      = "policy"
	CheckDecode      = "decode"
	CheckCostBudget  = "cost_budget"
	CheckSignature   = "verify"
	CheckRecord      = "record"
)

var errNotVerified = errors.New("verifier: fulfillment not verified")

// Report is the structured output of one verification.
type Report struct {
	Condition  conditions.ConditionJSON `json:"condition"`
	Verified   bool                     `json:"verified"`
	Timestamp  time.Time                `json:"timestamp"`
	Checks     []CheckResult            `json:"checks"`
	Summary    string                   `json:"summary"`
	IssueCount int                      `json:"issue_count"`
}

// CheckResult represents a single verification check.
type CheckResult struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Detail string `json:"detail,omitempty"`
	Reason string `json:"reason,omitempty"` // failure reason
}

// Failed returns the first failing check, if any.
func (r *Report) Failed() (CheckResult, bool) {
	for _, c := range r.Checks {
		if !c.Pass {
			return c, true
		}
	}
	return CheckResult{}, false
}

func (r *Report) add(c CheckResult) bool {
	r.Checks = append(r.Checks, c)
	return c.Pass
}

func (r *Report) finish() {
	failed := 0
	for _, c := range r.Checks {
		if !c.Pass {
			failed++
		}
	}
	r.IssueCount = failed
	r.Verified = failed == 0
	if failed > 0 {
		r.Summary = fmt.Sprintf("FAIL: %d/%d checks failed", failed, len(r.Checks))
	} else {
		r.Summary = fmt.Sprintf("PASS: %d/%d checks passed", len(r.Checks), len(r.Checks))
	}
}

// Service verifies fulfillments. It is safe for concurrent use.
type Service struct {
	codec   *conditions.Codec
	policy  *policy.Evaluator
	allowed conditions.KindSet
	maxCost uint64
	budget  *rate.Limiter
	store   store.Store
	obs     *observability.Provider
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCodec sets the codec used to decode fulfillments.
func WithCodec(codec *conditions.Codec) Option {
	return func(s *Service) { s.codec = codec }
}

// WithPolicy sets the admission rule evaluator.
func WithPolicy(e *policy.Evaluator) Option {
	return func(s *Service) { s.policy = e }
}

// WithAllowedKinds restricts the accepted condition types.
func WithAllowedKinds(kinds conditions.KindSet) Option {
	return func(s *Service) { s.allowed = kinds }
}

// WithMaxCost sets the cost ceiling. Zero disables the ceiling.
func WithMaxCost(maxCost uint64) Option {
	return func(s *Service) { s.maxCost = maxCost }
}

// WithCostBudget limits total verification cost to perSecond, allowing
// bursts of up to burst.
func WithCostBudget(perSecond float64, burst int) Option {
	return func(s *Service) { s.budget = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithStore records fulfilled conditions and rejects replays.
func WithStore(st store.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithObservability sets the telemetry provider.
func WithObservability(p *observability.Provider) Option {
	return func(s *Service) { s.obs = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l.With("component", "verifier") }
}

func allKinds() conditions.KindSet {
	return conditions.NewKindSet(
		conditions.PreimageSha256,
		conditions.PrefixSha256,
		conditions.ThresholdSha256,
		conditions.RsaSha256,
		conditions.Ed25519Sha256,
	)
}

// New creates a Service that accepts every type up to config.DefaultMaxCost.
func New(opts ...Option) (*Service, error) {
	codec, err := conditions.NewCodec(crypto.StdBackend{})
	if err != nil {
		return nil, err
	}
	s := &Service{
		codec:   codec,
		allowed: allKinds(),
		maxCost: config.DefaultMaxCost,
		logger:  slog.Default().With("component", "verifier"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codec == nil {
		return nil, fmt.Errorf("verifier: %w: codec", conditions.ErrNilArgument)
	}
	return s, nil
}

// NewFromProfile creates a Service from a verification profile. Options are
// applied after the profile.
func NewFromProfile(p *config.Profile, opts ...Option) (*Service, error) {
	if p == nil {
		return nil, fmt.Errorf("verifier: %w: profile", conditions.ErrNilArgument)
	}
	allowed, err := p.AllowedKinds()
	if err != nil {
		return nil, fmt.Errorf("verifier: profile %q: %w", p.Name, err)
	}
	base := []Option{WithAllowedKinds(allowed)}
	if p.MaxCost > 0 {
		base = append(base, WithMaxCost(p.MaxCost))
	}
	if len(p.Rules) > 0 {
		rules := make([]policy.Rule, len(p.Rules))
		for i, r := range p.Rules {
			rules[i] = policy.Rule{Name: r.Name, Expr: r.Expr}
		}
		eval, err := policy.NewEvaluator(rules...)
		if err != nil {
			return nil, fmt.Errorf("verifier: profile %q: %w", p.Name, err)
		}
		base = append(base, WithPolicy(eval))
	}
	if p.CostBudget != nil {
		base = append(base, WithCostBudget(p.CostBudget.PerSecond, p.CostBudget.Burst))
	}
	return New(append(base, opts...)...)
}

// NewFromConfig builds a Service from process configuration: the profile at
// cfg.ProfilePath (or DefaultProfile), the cfg.MaxCost ceiling, the store
// selected by cfg.StoreDriver, telemetry and a leveled JSON logger. A profile
// max_cost only applies when it is stricter than cfg.MaxCost. Options are
// applied last. Close releases the store and telemetry.
func NewFromConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("verifier: %w: config", conditions.ErrNilArgument)
	}
	logger := cfg.Logger(os.Stderr)

	profile := config.DefaultProfile()
	if cfg.ProfilePath != "" {
		p, err := config.LoadProfile(cfg.ProfilePath)
		if err != nil {
			return nil, fmt.Errorf("verifier: %w", err)
		}
		profile = p
	}
	maxCost := cfg.MaxCost
	if profile.MaxCost > 0 && (maxCost == 0 || profile.MaxCost < maxCost) {
		maxCost = profile.MaxCost
	}

	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("verifier: %w", err)
	}

	obsConfig := observability.DefaultConfig()
	obsConfig.Enabled = cfg.TelemetryEnabled
	obsConfig.OTLPEndpoint = cfg.OTLPEndpoint
	obs, err := observability.New(ctx, obsConfig)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("verifier: %w", err)
	}

	base := []Option{
		WithMaxCost(maxCost),
		WithStore(st),
		WithObservability(obs),
		WithLogger(logger),
	}
	s, err := NewFromProfile(profile, append(base, opts...)...)
	if err != nil {
		_ = st.Close()
		_ = obs.Shutdown(ctx)
		return nil, err
	}
	s.logger.InfoContext(ctx, "verifier configured",
		"profile", profile.Name,
		"max_cost", maxCost,
		"store", cfg.StoreDriver,
		"telemetry", cfg.TelemetryEnabled,
	)
	return s, nil
}

// Close releases the store and telemetry provider attached to s.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.obs != nil {
		errs = append(errs, s.obs.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// VerifyURI parses uri and verifies fulfillment against it.
func (s *Service) VerifyURI(ctx context.Context, uri string, fulfillment, message []byte) (*Report, error) {
	cond, err := conditions.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return s.Verify(ctx, cond, fulfillment, message)
}

// Verify decodes fulfillment and verifies it against cond and message.
// Check failures are reported in the Report; the error is reserved for a
// missing condition, a cancelled context, and store failures.
func (s *Service) Verify(ctx context.Context, cond conditions.Condition, fulfillment, message []byte) (*Report, error) {
	if cond == nil {
		return nil, fmt.Errorf("verifier: %w: condition", conditions.ErrNilArgument)
	}

	kind := cond.Kind().String()
	finish := func(error) {}
	if s.obs != nil {
		ctx, finish = s.obs.TrackOperation(ctx, "conditions.verify",
			attribute.String("condition.type", kind))
	}

	report := &Report{
		Condition: conditions.ToJSON(cond),
		Timestamp: s.now().UTC(),
		Checks:    make([]CheckResult, 0, 7),
	}

	err := s.run(ctx, report, cond, fulfillment, message)
	if err != nil {
		finish(err)
		return nil, err
	}
	report.finish()

	if s.obs != nil {
		s.obs.RecordVerification(ctx, kind, report.Verified, cond.Cost())
	}
	if report.Verified {
		s.logger.InfoContext(ctx, "fulfillment verified", "uri", report.Condition.URI)
		finish(nil)
	} else {
		failed, _ := report.Failed()
		s.logger.WarnContext(ctx, "fulfillment rejected",
			"uri", report.Condition.URI, "check", failed.Name, "reason", failed.Reason)
		finish(errNotVerified)
	}
	return report, nil
}

func (s *Service) run(ctx context.Context, report *Report, cond conditions.Condition, fulfillment, message []byte) error {
	kind := cond.Kind()

	if !s.allowed.Has(kind) {
		report.add(CheckResult{Name: CheckAllowedType, Reason: fmt.Sprintf("type %s is not accepted", kind)})
		return nil
	}
	report.add(CheckResult{Name: CheckAllowedType, Pass: true, Detail: kind.String()})

	if s.maxCost > 0 && cond.Cost() > s.maxCost {
		report.add(CheckResult{Name: CheckMaxCost, Reason: fmt.Sprintf("cost %d exceeds maximum %d", cond.Cost(), s.maxCost)})
		return nil
	}
	report.add(CheckResult{Name: CheckMaxCost, Pass: true, Detail: fmt.Sprintf("cost %d", cond.Cost())})

	if s.policy != nil {
		if err := s.policy.Admit(ctx, cond); err != nil {
			report.add(CheckResult{Name: CheckPolicy, Reason: err.Error()})
			return nil
		}
		report.add(CheckResult{Name: CheckPolicy, Pass: true, Detail: fmt.Sprintf("%d rules admitted", len(s.policy.Rules()))})
	}

	f, err := s.codec.ReadFulfillment(fulfillment)
	if err != nil {
		report.add(CheckResult{Name: CheckDecode, Reason: err.Error()})
		return nil
	}
	report.add(CheckResult{Name: CheckDecode, Pass: true, Detail: f.Kind().String()})

	if s.budget != nil {
		if !report.add(s.spend(ctx, cond.Cost())) {
			return ctx.Err()
		}
	}

	ok, err := conditions.Verify(f, cond, message)
	switch {
	case err != nil:
		report.add(CheckResult{Name: CheckSignature, Reason: err.Error()})
		return nil
	case !ok:
		report.add(CheckResult{Name: CheckSignature, Reason: "fulfillment does not satisfy condition"})
		return nil
	}
	report.add(CheckResult{Name: CheckSignature, Pass: true})

	if s.store != nil {
		return s.record(ctx, report, cond, fulfillment)
	}
	return nil
}

// spend takes cost tokens from the budget, waiting if needed. A cost above
// the burst size can never be paid.
func (s *Service) spend(ctx context.Context, cost uint64) CheckResult {
	burst := s.budget.Burst()
	if cost > uint64(burst) || cost > math.MaxInt {
		return CheckResult{Name: CheckCostBudget, Reason: fmt.Sprintf("cost %d exceeds budget burst %d", cost, burst)}
	}
	if err := s.budget.WaitN(ctx, int(cost)); err != nil {
		return CheckResult{Name: CheckCostBudget, Reason: err.Error()}
	}
	return CheckResult{Name: CheckCostBudget, Pass: true, Detail: fmt.Sprintf("spent %d", cost)}
}

func (s *Service) record(ctx context.Context, report *Report, cond conditions.Condition, fulfillment []byte) error {
	rec, err := s.store.Put(ctx, cond)
	if err != nil {
		return fmt.Errorf("verifier: store condition: %w", err)
	}
	err = s.store.MarkFulfilled(ctx, rec.URI, fulfillment)
	if errors.Is(err, store.ErrAlreadyFulfilled) {
		report.add(CheckResult{Name: CheckRecord, Reason: "condition already fulfilled"})
		return nil
	}
	if err != nil {
		return fmt.Errorf("verifier: record fulfillment: %w", err)
	}
	report.add(CheckResult{Name: CheckRecord, Pass: true, Detail: rec.ID})
	return nil
}
