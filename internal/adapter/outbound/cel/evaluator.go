// Package cel adapts google/cel-go into a policy.ConditionEvaluator so
// ServiceDefinition rules can carry an optional expression predicate
// alongside the structured {method, path-prefix} match.
package cel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gocel "github.com/google/cel-go/cel"

	"github.com/clawguard/clawguard/internal/domain/policy"
)

// maxExpressionLength bounds the size of an admin-supplied expression.
const maxExpressionLength = 1024

// maxCostBudget limits CEL runtime cost to prevent cost-exhaustion DoS.
const maxCostBudget = 100_000

// maxNestingDepth bounds parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout bounds a single evaluation's wall time.
const evalTimeout = 5 * time.Second

// Evaluator compiles and caches CEL programs for Rule conditions and
// implements policy.ConditionEvaluator.
type Evaluator struct {
	env *gocel.Env

	mu    sync.RWMutex
	cache map[string]gocel.Program
}

// NewEvaluator creates an Evaluator with a fresh policy environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewPolicyEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create policy environment: %w", err)
	}
	return &Evaluator{env: env, cache: make(map[string]gocel.Program)}, nil
}

// ValidateExpression checks that expr is syntactically valid, within size
// and nesting limits, and compiles successfully. The admin plane's
// override handlers do not call it, so an override's CEL condition is
// first compiled when a request evaluates it.
func (e *Evaluator) ValidateExpression(expr string) error {
	if expr == "" {
		return errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if err := validateNesting(expr); err != nil {
		return err
	}
	_, err := e.compile(expr)
	return err
}

func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

func (e *Evaluator) compile(expr string) (gocel.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}
	prg, err := e.env.Program(ast,
		gocel.EvalOptions(gocel.OptOptimize),
		gocel.CostLimit(maxCostBudget),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	e.mu.Lock()
	e.cache[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

// Eval implements policy.ConditionEvaluator.
func (e *Evaluator) Eval(ctx context.Context, expr string, evalCtx policy.EvaluationContext) (bool, error) {
	prg, err := e.compile(expr)
	if err != nil {
		return false, err
	}

	timedCtx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(timedCtx, activation(evalCtx))
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}
	b, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}
	return b, nil
}

func activation(evalCtx policy.EvaluationContext) map[string]interface{} {
	headers := evalCtx.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	return map[string]interface{}{
		"method":        evalCtx.Method,
		"path":          evalCtx.Path,
		"service":       evalCtx.Service,
		"agent_address": evalCtx.AgentAddress,
		"hour_of_day":   int64(evalCtx.RequestTime.Hour()),
		"header":        headers,
	}
}

var _ policy.ConditionEvaluator = (*Evaluator)(nil)
