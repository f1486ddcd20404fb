package evaluator

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/mr-karan/pactwatch/pkg/models"
)

// ExpressionPrefix marks a condition as a CEL expression over the fact.
const ExpressionPrefix = "expr:"

// exprEngine compiles CEL conditions once and caches the programs.
//
// Variables: m (metrics map), party (string), window_days (int), now (timestamp).
// The expression must evaluate to a bool; true means compliant.
type exprEngine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func newExprEngine() (*exprEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("m", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("party", cel.StringType),
		cel.Variable("window_days", cel.IntType),
		cel.Variable("now", cel.TimestampType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &exprEngine{env: env, programs: make(map[string]cel.Program)}, nil
}

// IsExpression reports whether condition uses the expression form.
func IsExpression(condition string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(condition)), ExpressionPrefix)
}

func expressionBody(condition string) string {
	return strings.TrimSpace(strings.TrimSpace(condition)[len(ExpressionPrefix):])
}

func (e *exprEngine) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok = e.programs[expr]; ok {
		return prg, nil
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must be boolean, got %s", out)
	}
	prg, err := e.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	e.programs[expr] = prg
	return prg, nil
}

// eval returns whether the fact satisfies expr.
func (e *exprEngine) eval(expr string, fact *models.LiveFact, now time.Time) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	metrics := make(map[string]any, len(fact.Metrics))
	for k, v := range fact.Metrics {
		if v != nil {
			metrics[k] = v
		}
	}
	out, _, err := prg.Eval(map[string]any{
		"m":           metrics,
		"party":       fact.Party,
		"window_days": int64(fact.Window.Days()),
		"now":         now.UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression returned %T, want bool", out.Value())
	}
	return b, nil
}
