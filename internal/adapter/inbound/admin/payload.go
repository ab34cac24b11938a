package admin

import (
	"github.com/clawguard/clawguard/internal/domain/gwservice"
	"github.com/clawguard/clawguard/internal/domain/policy"
)

func toPayload(d gwservice.Definition) overridePayload {
	rules := make([]rulePayload, 0, len(d.Rules))
	for _, r := range d.Rules {
		rules = append(rules, rulePayload{
			Method:     r.Method,
			PathPrefix: r.PathPrefix,
			Condition:  r.Condition,
			Action:     string(r.Action),
		})
	}
	return overridePayload{
		Name:               d.Name,
		BaseURL:            d.BaseURL,
		InterceptHostnames: d.InterceptHostnames,
		Recipe: recipePayload{
			Kind:  string(d.Recipe.Kind),
			Name:  d.Recipe.Name,
			Token: d.Recipe.Token,
		},
		DefaultAction: string(d.DefaultAction),
		Rules:         rules,
	}
}

func fromPayload(p overridePayload) gwservice.Definition {
	rules := make([]policy.Rule, 0, len(p.Rules))
	for _, r := range p.Rules {
		rules = append(rules, policy.Rule{
			Method:     r.Method,
			PathPrefix: r.PathPrefix,
			Condition:  r.Condition,
			Action:     policy.Action(r.Action),
		})
	}
	return gwservice.Definition{
		Name:               p.Name,
		BaseURL:            p.BaseURL,
		InterceptHostnames: p.InterceptHostnames,
		Recipe: gwservice.Recipe{
			Kind:  gwservice.RecipeKind(p.Recipe.Kind),
			Name:  p.Recipe.Name,
			Token: p.Recipe.Token,
		},
		DefaultAction: policy.Action(p.DefaultAction),
		Rules:         rules,
	}
}
