package httpgw

import (
	"log/slog"
	"net/http"

	"github.com/clawguard/clawguard/internal/domain/secret"
)

// AuthConfig configures the identity check that gates every proxied
// request. There is exactly one agent-facing shared secret per
// deployment; this is not a multi-identity credential store.
type AuthConfig struct {
	// KeyHash is the Argon2id (or legacy sha256) hash the presented key
	// is checked against.
	KeyHash string
	Logger  *slog.Logger
}

// NewAuthMiddleware authenticates every proxied and agent-facing
// introspection request against the single configured agent key. The key
// is read from the current X-ClawGuard-Key header, falling back to the
// legacy X-AgentGate-Key alias, which is recognized but never emitted by
// ClawGuard itself. Failure returns 401 with the literal error body the
// agent-facing surface always uses for identity errors.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAgentKey(r)
			if key == "" {
				logger.Debug("httpgw: no agent credential presented", "remote_addr", r.RemoteAddr)
				writeJSONError(w, http.StatusUnauthorized, "Invalid or missing X-ClawGuard-Key")
				return
			}

			ok, err := secret.Verify(key, cfg.KeyHash)
			if err != nil || !ok {
				logger.Debug("httpgw: invalid agent credential", "remote_addr", r.RemoteAddr, "error", err)
				writeJSONError(w, http.StatusUnauthorized, "Invalid or missing X-ClawGuard-Key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractAgentKey reads the agent's shared secret from the canonical
// X-ClawGuard-Key header, falling back to the legacy X-AgentGate-Key
// alias. Both are stripped before forwarding upstream; see
// proxy.StripAgentCredential.
func extractAgentKey(r *http.Request) string {
	if key := r.Header.Get("X-ClawGuard-Key"); key != "" {
		return key
	}
	if key := r.Header.Get("X-AgentGate-Key"); key != "" {
		return key
	}
	return ""
}
