package policy

import "context"

// ConditionEvaluator evaluates a Rule's optional CEL Condition against an
// EvaluationContext. Rules with an empty Condition never invoke it.
type ConditionEvaluator interface {
	Eval(ctx context.Context, expr string, evalCtx EvaluationContext) (bool, error)
}

// Resolve walks rules in declared order and returns the action of the
// first rule whose structural predicate matches and, if present, whose
// Condition evaluates to true. If no rule matches, it returns def.
func Resolve(ctx context.Context, rules []Rule, evalCtx EvaluationContext, cel ConditionEvaluator, def Action) (Action, string, error) {
	for i, r := range rules {
		if !r.Matches(evalCtx.Method, evalCtx.Path) {
			continue
		}
		if r.Condition != "" {
			if cel == nil {
				continue
			}
			ok, err := cel.Eval(ctx, r.Condition, evalCtx)
			if err != nil {
				return def, "", err
			}
			if !ok {
				continue
			}
		}
		return r.Action, ruleLabel(i), nil
	}
	return def, "default", nil
}

func ruleLabel(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	if i < len(letters) {
		return "rule-" + string(letters[i])
	}
	return "rule"
}
