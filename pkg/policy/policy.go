// Package policy admits or rejects conditions before verification using CEL
// expressions over the condition's public fields.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/hyperledger-archives/quilt-sub000/pkg/conditions"
	"github.com/hyperledger-archives/quilt-sub000/pkg/crypto"
)

// ErrDenied is returned when a rule evaluates to false.
var ErrDenied = errors.New("policy: condition denied")

// Rule is a named boolean CEL expression over the variable `condition`:
//
//	condition.type        string, e.g. "ed25519-sha-256"
//	condition.cost        int
//	condition.fingerprint string, unpadded base64url
//	condition.compound    bool
//	condition.subtypes    list(string)
type Rule struct {
	Name string
	Expr string
}

// Evaluator evaluates rules with a compiled program cache. It is safe for
// concurrent use.
type Evaluator struct {
	env      *cel.Env
	rules    []Rule
	prgCache map[string]cel.Program
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewEvaluator compiles rules and returns an evaluator enforcing all of them.
func NewEvaluator(rules ...Rule) (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("condition", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	e := &Evaluator{
		env:      env,
		rules:    append([]Rule(nil), rules...),
		prgCache: make(map[string]cel.Program),
		logger:   slog.Default().With("component", "policy"),
	}
	for _, r := range e.rules {
		if _, err := e.program(r.Expr); err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
	}
	return e, nil
}

// Rules returns the configured rules.
func (e *Evaluator) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Admit evaluates every rule against c and fails closed on the first rule
// that is false or errors.
func (e *Evaluator) Admit(ctx context.Context, c conditions.Condition) error {
	if c == nil {
		return fmt.Errorf("%w: missing condition", ErrDenied)
	}
	input := map[string]any{"condition": Attributes(c)}
	for _, r := range e.rules {
		allowed, err := e.eval(ctx, r.Expr, input)
		if err != nil {
			return fmt.Errorf("policy rule %q: %w", r.Name, err)
		}
		if !allowed {
			e.logger.DebugContext(ctx, "condition denied", "rule", r.Name, "uri", c.String())
			return fmt.Errorf("%w: rule %q", ErrDenied, r.Name)
		}
	}
	return nil
}

// Evaluate runs a single expression against c.
func (e *Evaluator) Evaluate(ctx context.Context, expr string, c conditions.Condition) (bool, error) {
	return e.eval(ctx, expr, map[string]any{"condition": Attributes(c)})
}

// Attributes returns the CEL view of c.
func Attributes(c conditions.Condition) map[string]any {
	cost := int64(math.MaxInt64)
	if c.Cost() <= math.MaxInt64 {
		cost = int64(c.Cost())
	}
	subtypes := []string{}
	compound := false
	if cc, ok := c.(conditions.CompoundCondition); ok {
		compound = true
		for _, k := range cc.Subtypes().Kinds() {
			subtypes = append(subtypes, k.String())
		}
	}
	return map[string]any{
		"type":        c.Kind().String(),
		"cost":        cost,
		"fingerprint": crypto.EncodeFingerprint(c.Fingerprint()),
		"compound":    compound,
		"subtypes":    subtypes,
	}
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, hit := e.prgCache[expr]
	e.mu.RUnlock()
	if hit {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, hit = e.prgCache[expr]; hit {
		return prg, nil
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	p, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	e.prgCache[expr] = p
	return p, nil
}

func (e *Evaluator) eval(ctx context.Context, expr string, input map[string]any) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.ContextEval(ctx, input)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result not bool")
	}
	return val, nil
}
