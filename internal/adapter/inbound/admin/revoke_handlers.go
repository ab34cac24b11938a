package admin

import (
	"encoding/json"
	"net/http"
)

type revokePayload struct {
	Service string `json:"service"`
}

type revokeAllPayload struct {
	Services []string `json:"services,omitempty"`
}

// handleRevoke implements POST /__admin/revoke: immediately revokes the
// live Grant for one service, persisting the revocation before clearing
// it from the in-memory registry.
func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAdminError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var p revokePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Service == "" {
		writeAdminError(w, http.StatusBadRequest, "service is required")
		return
	}
	revoked := h.coordinator.Revoke(r.Context(), p.Service)
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}

// handleRevokeAll implements POST /__admin/revoke-all: revokes every live
// Grant, or a given subset of services if the body names any.
func (h *Handler) handleRevokeAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeAdminError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var p revokeAllPayload
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&p)
	}
	count := h.coordinator.RevokeAll(r.Context(), p.Services)
	writeJSON(w, http.StatusOK, map[string]int{"revoked_count": count})
}
