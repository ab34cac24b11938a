package cel

import (
	"context"
	"testing"
	"time"

	"github.com/clawguard/clawguard/internal/domain/policy"
)

func TestEvaluatorEvalMatchesMethodAndPath(t *testing.T) {
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	evalCtx := policy.EvaluationContext{Method: "GET", Path: "/user", Service: "gh", RequestTime: time.Now()}
	ok, err := e.Eval(context.Background(), `method == "GET" && path.startsWith("/user")`, evalCtx)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !ok {
		t.Fatal("expected expression to match")
	}
}

func TestValidateExpressionRejectsTooDeep(t *testing.T) {
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	deep := ""
	for i := 0; i < maxNestingDepth+5; i++ {
		deep += "("
	}
	deep += "true"
	for i := 0; i < maxNestingDepth+5; i++ {
		deep += ")"
	}
	if err := e.ValidateExpression(deep); err == nil {
		t.Fatal("expected nesting-depth rejection")
	}
}

func TestValidateExpressionRejectsEmpty(t *testing.T) {
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	if err := e.ValidateExpression(""); err == nil {
		t.Fatal("expected empty expression rejection")
	}
}

func TestEvalNonBooleanExpressionErrors(t *testing.T) {
	e, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	_, err = e.Eval(context.Background(), `"not a bool"`, policy.EvaluationContext{})
	if err == nil {
		t.Fatal("expected error for non-boolean result")
	}
}
