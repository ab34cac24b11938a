package admin

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/clawguard/clawguard/internal/domain/guard"
	"github.com/clawguard/clawguard/internal/domain/secret"
)

// AccessConfig configures the admin plane's access gate: a client must
// both originate from an allowlisted address and present the session PIN.
// An empty IPAllowlist admits every address, and an empty PINHash skips
// the PIN check. Neither check is the agent-facing credential the Proxy
// Engine checks.
type AccessConfig struct {
	IPAllowlist []string
	PINHash     string
	Logger      *slog.Logger
}

// NewAccessMiddleware wraps mux with the admin IP-allowlist and PIN gate.
// The PIN is read from the X-ClawGuard-Admin-PIN header.
func NewAccessMiddleware(cfg AccessConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := clientAddr(r)
			if !guard.AllowsAdminIP(cfg.IPAllowlist, clientIP) {
				logger.Warn("admin request rejected: IP not allowlisted", "remote_addr", r.RemoteAddr)
				writeAdminError(w, http.StatusForbidden, "admin access denied")
				return
			}
			if cfg.PINHash != "" {
				pin := r.Header.Get("X-ClawGuard-Admin-PIN")
				ok, err := secret.Verify(pin, cfg.PINHash)
				if err != nil || !ok {
					logger.Warn("admin request rejected: bad PIN", "remote_addr", r.RemoteAddr)
					writeAdminError(w, http.StatusUnauthorized, "admin access denied")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientAddr(r *http.Request) string {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}
