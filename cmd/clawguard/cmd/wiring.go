package cmd

import (
	"github.com/clawguard/clawguard/internal/config"
	"github.com/clawguard/clawguard/internal/domain/gwservice"
	"github.com/clawguard/clawguard/internal/domain/policy"
)

// definitionsFromConfig converts the configured ServiceConfig list into
// the Definitions NewLiveTable seeds from at startup.
func definitionsFromConfig(services []config.ServiceConfig) []gwservice.Definition {
	defs := make([]gwservice.Definition, 0, len(services))
	for _, sc := range services {
		defs = append(defs, gwservice.Definition{
			Name:               sc.Name,
			BaseURL:            sc.BaseURL,
			InterceptHostnames: sc.InterceptHostnames,
			Recipe: gwservice.Recipe{
				Kind:  gwservice.RecipeKind(sc.Recipe.Kind),
				Name:  sc.Recipe.Name,
				Token: sc.Recipe.Token,
			},
			DefaultAction: policy.Action(sc.DefaultAction),
			Rules:         rulesFromConfig(sc.Rules),
		})
	}
	return defs
}

func rulesFromConfig(rules []config.RuleConfig) []policy.Rule {
	out := make([]policy.Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, policy.Rule{
			Method:     r.Method,
			PathPrefix: r.PathPrefix,
			Condition:  r.Condition,
			Action:     policy.Action(r.Action),
		})
	}
	return out
}
