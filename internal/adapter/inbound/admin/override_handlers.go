package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/clawguard/clawguard/internal/domain/guard"
	"github.com/clawguard/clawguard/internal/domain/gwservice"
)

// ValidateAgainstGuard re-runs the Security Guard's upstream-host checks
// against d.BaseURL. An override whose host fails scheme, allowlist, or
// private-IP validation must never be installed, per the admission-time
// Security Guard re-check.
func ValidateAgainstGuard(d gwservice.Definition, allowlist []string) error {
	u, err := url.Parse(d.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if !guard.AllowsScheme(u.Scheme) {
		return fmt.Errorf("scheme not permitted: %s", u.Scheme)
	}
	hostname := u.Hostname()
	if !guard.AllowsHost(allowlist, hostname) {
		return fmt.Errorf("host not in allowlist: %s", hostname)
	}
	if guard.IsPrivateHost(hostname) {
		return fmt.Errorf("host resolves to a private/reserved range: %s", hostname)
	}
	return nil
}

// overridePayload is the wire shape of a service-override write.
type overridePayload struct {
	Name               string            `json:"name"`
	BaseURL            string            `json:"base_url"`
	InterceptHostnames []string          `json:"intercept_hostnames,omitempty"`
	Recipe             recipePayload     `json:"recipe"`
	DefaultAction      string            `json:"default_action"`
	Rules              []rulePayload     `json:"rules,omitempty"`
}

type recipePayload struct {
	Kind  string `json:"kind"`
	Name  string `json:"name,omitempty"`
	Token string `json:"token"`
}

type rulePayload struct {
	Method     string `json:"method,omitempty"`
	PathPrefix string `json:"path_prefix,omitempty"`
	Condition  string `json:"condition,omitempty"`
	Action     string `json:"action"`
}

// handleOverrides implements GET (list every configured service) and
// POST (create or replace one) on /__admin/overrides.
func (h *Handler) handleOverrides(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listOverrides(w, r)
	case http.MethodPost:
		h.writeOverride(w, r)
	default:
		writeAdminError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleOverrideByName implements GET and DELETE on
// /__admin/overrides/<name>.
func (h *Handler) handleOverrideByName(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/__admin/overrides/")
	if name == "" {
		writeAdminError(w, http.StatusBadRequest, "missing service name")
		return
	}
	switch r.Method {
	case http.MethodGet:
		def, ok := h.table.Get(name)
		if !ok {
			writeAdminError(w, http.StatusNotFound, "unknown service")
			return
		}
		writeJSON(w, http.StatusOK, toPayload(def))
	case http.MethodDelete:
		if err := h.overrides.DeleteOverride(r.Context(), name); err != nil {
			h.logger.Error("failed to delete override", "error", err, "service", name)
			writeAdminError(w, http.StatusInternalServerError, "failed to delete override")
			return
		}
		h.table.Delete(name)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeAdminError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) listOverrides(w http.ResponseWriter, r *http.Request) {
	defs := h.table.All()
	out := make([]overridePayload, 0, len(defs))
	for _, d := range defs {
		out = append(out, toPayload(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) writeOverride(w http.ResponseWriter, r *http.Request) {
	var p overridePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if p.Name == "" || p.BaseURL == "" {
		writeAdminError(w, http.StatusBadRequest, "name and base_url are required")
		return
	}

	def := fromPayload(p)
	if err := ValidateAgainstGuard(def, h.allowlist); err != nil {
		h.logger.Warn("override rejected by security guard", "error", err, "service", p.Name)
		writeAdminError(w, http.StatusForbidden, "request blocked by security policy: "+err.Error())
		return
	}

	var existingPtr *gwservice.Override
	if existing, ok, err := h.overrides.GetOverride(r.Context(), p.Name); err == nil && ok {
		existingPtr = &existing
	}
	ov := gwservice.OverrideNow(existingPtr, def, time.Now())

	if err := h.overrides.SaveOverride(r.Context(), ov); err != nil {
		h.logger.Error("failed to persist override", "error", err, "service", p.Name)
		writeAdminError(w, http.StatusInternalServerError, "failed to persist override")
		return
	}
	h.table.Put(def)
	writeJSON(w, http.StatusOK, toPayload(def))
}
