package admin

import (
	"net/http"

	"gopkg.in/yaml.v3"
)

// handleConfigExport implements GET /__admin/config: a read-only YAML
// rendering of the live service table, including any overrides the admin
// plane has applied on top of the file-loaded definitions. Unlike the
// override endpoints, this never writes back to disk - the live table is
// the source of truth at runtime, the config file stays untouched per the
// Override documentation on Config.Services.
func (h *Handler) handleConfigExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeAdminError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	defs := h.table.All()
	out := make([]overridePayload, 0, len(defs))
	for _, d := range defs {
		out = append(out, toPayload(d))
	}
	data, err := yaml.Marshal(map[string]interface{}{"services": out})
	if err != nil {
		h.logger.Error("failed to marshal config export", "error", err)
		writeAdminError(w, http.StatusInternalServerError, "failed to render config")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
