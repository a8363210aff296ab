package router

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/cel-go/cel"
)

// Evaluator compiles and runs CEL boolean expressions against a router's
// data bag, caching compiled programs by expression text. Its shape mirrors
// the teacher's own task-condition evaluator: a cost-limited CEL
// environment backed by a Ristretto program cache.
type Evaluator struct {
	env          *cel.Env
	costLimit    uint64
	programCache *ristretto.Cache[string, cel.Program]
}

// Option configures an Evaluator.
type Option func(*evaluatorOptions)

type evaluatorOptions struct {
	costLimit uint64
	cacheSize int64
}

// WithCostLimit bounds the CEL interpreter's per-evaluation cost budget,
// rejecting expressions that would exceed it.
func WithCostLimit(limit uint64) Option {
	return func(o *evaluatorOptions) { o.costLimit = limit }
}

// WithCacheSize bounds the number of compiled programs kept in the
// Ristretto cache.
func WithCacheSize(size int64) Option {
	return func(o *evaluatorOptions) { o.cacheSize = size }
}

// NewEvaluator builds a CEL Evaluator with a `signal`, `headers`, `query`,
// `processor`, `task`, and `workflow` dynamic-map variable set — the
// variables router expressions typically branch on.
func NewEvaluator(opts ...Option) (*Evaluator, error) {
	options := evaluatorOptions{costLimit: 1000, cacheSize: 1000}
	for _, opt := range opts {
		opt(&options)
	}
	env, err := cel.NewEnv(
		cel.Variable("signal", cel.DynType),
		cel.Variable("headers", cel.DynType),
		cel.Variable("query", cel.DynType),
		cel.Variable("processor", cel.DynType),
		cel.Variable("task", cel.DynType),
		cel.Variable("workflow", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build CEL environment: %w", err)
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, cel.Program]{
		NumCounters: options.cacheSize * 10,
		MaxCost:     options.cacheSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build program cache: %w", err)
	}
	return &Evaluator{env: env, costLimit: options.costLimit, programCache: cache}, nil
}

// Evaluate compiles (or fetches from cache) expr and runs it against data,
// requiring a boolean result.
func (e *Evaluator) Evaluate(ctx context.Context, expr string, data map[string]any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error before evaluation: %w", err)
	}
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	vars := make(map[string]any, len(data))
	for k, v := range data {
		vars[k] = v
	}
	out, _, err := prg.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate expression %q: %w", expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not evaluate to a boolean, got %s", expr, out.Type())
	}
	return b, nil
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	if prg, ok := e.programCache.Get(expr); ok {
		return prg, nil
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed for expression %q: %w", expr, issues.Err())
	}
	prg, err := e.env.Program(ast,
		cel.CostLimit(e.costLimit),
		cel.EvalOptions(cel.OptOptimize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build CEL program for %q: %w", expr, err)
	}
	e.programCache.Set(expr, prg, 1)
	e.programCache.Wait()
	return prg, nil
}

// Branch pairs a CEL guard expression with the Decision to take when it
// evaluates true.
type Branch struct {
	Expression string
	Decision   Decision
}

// NewXOR builds an XOR router that evaluates branches in order and returns
// the first whose Expression is true; fallback is used if none match.
func NewXOR(evaluator *Evaluator, branches []Branch, fallback Decision) XOR {
	return func(ctx context.Context, rc *Context) (Decision, error) {
		for _, b := range branches {
			matched, err := evaluator.Evaluate(ctx, b.Expression, rc.Data)
			if err != nil {
				return Decision{}, fmt.Errorf("router branch %q: %w", b.Expression, err)
			}
			if matched {
				return b.Decision, nil
			}
		}
		return fallback, nil
	}
}

// NewOR builds an OR router that evaluates every branch and returns the
// Decisions for all that are true. At least one branch must match or the
// runtime's split evaluation returns a MissingRouter error; this
// constructor simply reports no decisions so the caller can detect it.
func NewOR(evaluator *Evaluator, branches []Branch) OR {
	return func(ctx context.Context, rc *Context) ([]Decision, error) {
		var decisions []Decision
		for _, b := range branches {
			matched, err := evaluator.Evaluate(ctx, b.Expression, rc.Data)
			if err != nil {
				return nil, fmt.Errorf("router branch %q: %w", b.Expression, err)
			}
			if matched {
				decisions = append(decisions, b.Decision)
			}
		}
		return decisions, nil
	}
}
