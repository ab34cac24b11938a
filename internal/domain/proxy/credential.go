package proxy

import (
	"net/http"
	"net/url"

	"github.com/clawguard/clawguard/internal/domain/gwservice"
)

// InjectCredential shapes the outbound request's headers and query
// string per def.Recipe. It must run after hop-by-hop header stripping
// and before the request leaves the process, so the agent's own
// Authorization header (if any) is always overwritten, never merged.
func InjectCredential(header http.Header, query url.Values, recipe gwservice.Recipe) {
	switch recipe.Kind {
	case gwservice.RecipeBearer:
		header.Set("Authorization", "Bearer "+recipe.Token)
	case gwservice.RecipeHeader:
		if recipe.Name != "" {
			header.Set(recipe.Name, recipe.Token)
		}
	case gwservice.RecipeQuery:
		if recipe.Name != "" {
			query.Set(recipe.Name, recipe.Token)
		}
	}
}

// StripAgentCredential removes the agent-to-ClawGuard identity headers
// before the request is forwarded upstream, so the agent's own shared
// secret never leaks to the destination service.
func StripAgentCredential(header http.Header) {
	header.Del("X-ClawGuard-Key")
	header.Del("X-AgentGate-Key")
}
