// Package admin provides the out-of-band management surface: it accepts
// ServiceDefinition overrides, revokes Grants, and serves introspection
// endpoints. The `/__admin/*` mutation routes (AdminRoutes) are gated by
// the admin IP allowlist and session PIN. `/__status` and `/__audit`
// (AgentRoutes) sit on the agent-facing surface instead and are gated by
// the same agent secret header every proxied request carries; the caller
// wires each route group behind the matching middleware.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/clawguard/clawguard/internal/domain/audit"
	"github.com/clawguard/clawguard/internal/domain/grant"
	"github.com/clawguard/clawguard/internal/domain/gwservice"
)

// Coordinator is the subset of the Approval Coordinator the admin plane
// drives directly; satisfied by *service.Coordinator.
type Coordinator interface {
	Revoke(ctx context.Context, service string) bool
	RevokeAll(ctx context.Context, services []string) int
	Snapshot() map[string]grant.Grant
}

// Handler serves the admin HTTP surface.
type Handler struct {
	table       *gwservice.LiveTable
	overrides   gwservice.OverrideStore
	coordinator Coordinator
	store       audit.Store
	allowlist   []string
	version     string
	logger      *slog.Logger
}

// NewHandler builds the admin Handler. allowlist is the Security Guard's
// upstream host allowlist; every override write re-runs the guard against
// it before the override is persisted or installed. version is reported
// verbatim in the /__status response.
func NewHandler(table *gwservice.LiveTable, overrides gwservice.OverrideStore, coordinator Coordinator, store audit.Store, allowlist []string, version string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{table: table, overrides: overrides, coordinator: coordinator, store: store, allowlist: allowlist, version: version, logger: logger}
}

// AdminRoutes registers the `/__admin/*` surface on mux, which the caller
// wraps with NewAccessMiddleware (IP allowlist + session PIN) before
// serving. This is distinct from the agent-facing introspection routes
// registered by AgentRoutes.
func (h *Handler) AdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/__admin/overrides", h.handleOverrides)
	mux.HandleFunc("/__admin/overrides/", h.handleOverrideByName)
	mux.HandleFunc("/__admin/revoke", h.handleRevoke)
	mux.HandleFunc("/__admin/revoke-all", h.handleRevokeAll)
	mux.HandleFunc("/__admin/config", h.handleConfigExport)
}

// AgentRoutes registers `/__status` and `/__audit` on mux. These sit on
// the agent-facing surface and authenticate with the same agent secret
// header as every proxied request, not the admin access gate — the
// caller wraps mux with the agent-secret middleware, not
// NewAccessMiddleware.
func (h *Handler) AgentRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/__status", h.handleStatus)
	mux.HandleFunc("/__audit", h.handleAudit)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAdminError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
