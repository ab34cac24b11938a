package httpgw

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clawguard/clawguard/internal/domain/secret"
)

func testAuthLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAuthMiddleware(t *testing.T, rawKey string) func(http.Handler) http.Handler {
	t.Helper()
	hash, err := secret.Hash(rawKey)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return NewAuthMiddleware(AuthConfig{KeyHash: hash, Logger: testAuthLogger()})
}

func passthrough() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestAuthMiddleware_MissingKeyReturns401(t *testing.T) {
	mw := newAuthMiddleware(t, "K")
	req := httptest.NewRequest(http.MethodGet, "/gh/user", nil)
	w := httptest.NewRecorder()
	mw(passthrough()).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if body["error"] != "Invalid or missing X-ClawGuard-Key" {
		t.Fatalf("error = %q, want exact spec literal", body["error"])
	}
}

func TestAuthMiddleware_WrongKeyReturns401(t *testing.T) {
	mw := newAuthMiddleware(t, "K")
	req := httptest.NewRequest(http.MethodGet, "/gh/user", nil)
	req.Header.Set("X-ClawGuard-Key", "not-the-key")
	w := httptest.NewRecorder()
	mw(passthrough()).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_CorrectKeyPassesThrough(t *testing.T) {
	mw := newAuthMiddleware(t, "K")
	req := httptest.NewRequest(http.MethodGet, "/gh/user", nil)
	req.Header.Set("X-ClawGuard-Key", "K")
	w := httptest.NewRecorder()
	mw(passthrough()).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_LegacyAliasAccepted(t *testing.T) {
	mw := newAuthMiddleware(t, "K")
	req := httptest.NewRequest(http.MethodGet, "/gh/user", nil)
	req.Header.Set("X-AgentGate-Key", "K")
	w := httptest.NewRecorder()
	mw(passthrough()).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_ProxyAuthorizationIsNotACredentialChannel(t *testing.T) {
	mw := newAuthMiddleware(t, "K")
	req := httptest.NewRequest(http.MethodGet, "/gh/user", nil)
	req.Header.Set("Proxy-Authorization", "Bearer K")
	w := httptest.NewRecorder()
	mw(passthrough()).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 (Proxy-Authorization must not authenticate)", w.Code)
	}
}

func TestAuthMiddleware_StatusWithoutAgentSecretReturns401(t *testing.T) {
	mw := newAuthMiddleware(t, "K")
	req := httptest.NewRequest(http.MethodGet, "/__status", nil)
	w := httptest.NewRecorder()
	mw(passthrough()).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
