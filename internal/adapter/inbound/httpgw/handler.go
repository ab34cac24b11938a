package httpgw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/clawguard/clawguard/internal/domain/audit"
	"github.com/clawguard/clawguard/internal/domain/gwservice"
	"github.com/clawguard/clawguard/internal/domain/proxy"
)

// Handler is the gated reverse proxy's inbound HTTP entry point. It
// resolves routing against the live service table, hands the request to
// the domain pipeline for policy/approval evaluation, and forwards
// approved requests upstream, recording a terminal audit Record either
// way.
type Handler struct {
	table     *gwservice.LiveTable
	pipeline  *proxy.Pipeline
	rp        *ReverseProxy
	store     audit.Store
	allowlist []string
	logger    *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(table *gwservice.LiveTable, pipeline *proxy.Pipeline, rp *ReverseProxy, store audit.Store, allowlist []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{table: table, pipeline: pipeline, rp: rp, store: store, allowlist: allowlist, logger: logger}
}

// Routes returns the Handler itself; it implements http.Handler via
// ServeHTTP.
func (h *Handler) Routes() http.Handler {
	return h
}

// ServeHTTP implements the Proxy Engine's on-request algorithm: route,
// construct and guard the upstream URL, evaluate policy (acquiring
// approval if required), forward, and record the outcome.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	def, byPrefix, err := h.resolve(r.URL.Path, r.Host)
	if err != nil {
		h.logger.Debug("no service matched request", "path", r.URL.Path, "host", r.Host, "error", err)
		h.handleError(w, err)
		return
	}

	forwardPath := r.URL.Path
	if byPrefix {
		forwardPath = proxy.StripServicePrefix(def.Name, r.URL.Path)
	}

	agentAddress := clientAddress(r)
	now := time.Now()

	upstreamURL, err := proxy.BuildUpstreamURL(def, forwardPath, r.URL.RawQuery, h.allowlist)
	if err != nil {
		if isDenialError(err) {
			h.recordDenial(r.Context(), def.Name, r.Method, forwardPath, agentAddress, now)
		}
		h.handleError(w, err)
		return
	}

	if err := h.pipeline.Decide(r.Context(), def, r.Method, forwardPath, agentAddress); err != nil {
		if isDenialError(err) {
			h.recordDenial(r.Context(), def.Name, r.Method, forwardPath, agentAddress, now)
		}
		h.handleError(w, err)
		return
	}

	outcome := h.rp.Forward(r.Context(), w, r, def, upstreamURL)
	h.recordOutcome(r.Context(), def.Name, r.Method, forwardPath, agentAddress, now, outcome)
}

// resolve implements path-prefix-first, host-header-fallback routing. On
// failure it returns an UnknownServiceError naming either the unmatched
// path-prefix candidate or the unmatched Host, per the two 404 messages
// spec §6 distinguishes.
func (h *Handler) resolve(path, host string) (gwservice.Definition, bool, error) {
	if def, ok := proxy.ResolveByPrefix(h.table, path); ok {
		return def, true, nil
	}
	if def, ok := h.table.LookupByHost(hostname(host)); ok {
		return def, false, nil
	}
	if name := firstPathSegment(path); name != "" && !strings.HasPrefix(name, "__") {
		return gwservice.Definition{}, false, proxy.NewUnknownServiceError(fmt.Sprintf("Unknown service: %s", name))
	}
	return gwservice.Definition{}, false, proxy.NewUnknownServiceError("Unknown host. Host header did not match any configured intercept hostname.")
}

// firstPathSegment returns the leading "/<segment>" path component,
// without its slashes, or "" for the root path.
func firstPathSegment(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if idx := strings.IndexByte(trimmed, '/'); idx != -1 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}

func hostname(host string) string {
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	return h
}

func clientAddress(r *http.Request) string {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

func (h *Handler) recordDenial(ctx context.Context, service, method, path, agentAddress string, at time.Time) {
	status := http.StatusForbidden
	if err := h.store.AppendRecord(ctx, audit.Record{
		Timestamp:      at,
		Service:        service,
		Method:         method,
		Path:           path,
		Approved:       false,
		ResponseStatus: &status,
		AgentAddress:   agentAddress,
	}); err != nil {
		h.logger.Error("failed to append denial audit record", "error", err)
	}
}

func (h *Handler) recordOutcome(ctx context.Context, service, method, path, agentAddress string, at time.Time, outcome Outcome) {
	status := outcome.ResponseStatus
	reqBody := outcome.RequestBodySample
	respBody := outcome.ResponseBodySample
	record := audit.Record{
		Timestamp:    at,
		Service:      service,
		Method:       method,
		Path:         path,
		Approved:     true,
		AgentAddress: agentAddress,
	}
	if status != 0 {
		record.ResponseStatus = &status
	}
	if reqBody != "" {
		record.RequestBody = &reqBody
	}
	if respBody != "" {
		record.ResponseBody = &respBody
	}
	if err := h.store.AppendRecord(ctx, record); err != nil {
		h.logger.Error("failed to append audit record", "error", err)
	}
}

// isDenialError reports whether err belongs to the taxonomy's Policy
// violation or Denial categories, the only two that carry an audit row.
// Resolution errors (404) never reach here; Internal errors (500) and
// upstream transport failures (502, recorded by recordOutcome from
// ReverseProxy.Forward's Outcome) do not.
func isDenialError(err error) bool {
	return errors.Is(err, proxy.ErrPolicyBlocked) || errors.Is(err, proxy.ErrApprovalDenied) || errors.Is(err, proxy.ErrRedirectBlocked)
}

func (h *Handler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, proxy.ErrUnknownService):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, proxy.ErrPolicyBlocked):
		h.logger.Info("request blocked by security guard", "error", err)
		writeJSONError(w, http.StatusForbidden, "Request blocked by security policy")
	case errors.Is(err, proxy.ErrApprovalDenied):
		h.logger.Info("request denied by approval coordinator", "error", err)
		writeJSONError(w, http.StatusForbidden, "Approval denied or timed out")
	case errors.Is(err, proxy.ErrRedirectBlocked):
		writeJSONError(w, http.StatusForbidden, "Redirect blocked by security policy")
	case errors.Is(err, proxy.ErrUpstreamUnavailable):
		writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("Upstream error: %s", err))
	default:
		h.logger.Error("internal pipeline error", "error", err)
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Internal error: %s", err))
	}
}

// writeJSONError writes the standard {"error": message} envelope every
// rejection path returns, using the exact literal message spec §6 names
// for each error kind.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
