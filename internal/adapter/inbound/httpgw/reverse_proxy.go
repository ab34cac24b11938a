// Package httpgw is the inbound HTTP adapter for the gated reverse
// proxy: it resolves routing against the live service table, runs the
// domain pipeline's policy/approval decision, then forwards the request
// upstream with credentials injected and hop-by-hop headers stripped.
package httpgw

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/clawguard/clawguard/internal/domain/audit"
	"github.com/clawguard/clawguard/internal/domain/gwservice"
	"github.com/clawguard/clawguard/internal/domain/proxy"
)

// bodySampleLimit bounds how many bytes of request/response body Forward
// tees off for audit logging, independent of the forwarded body itself.
const bodySampleLimit = 8192

// Outcome summarizes a forwarded request for the audit record, without
// requiring the caller to re-read either body.
type Outcome struct {
	ResponseStatus     int
	RequestBodySample  string
	ResponseBodySample string
}

// hopByHopHeaders lists headers that must be removed when forwarding
// requests. These headers are meaningful only for a single
// transport-level connection and must not be forwarded by proxies (RFC
// 2616 Section 13.5.1).
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// maxRequestBodyBytes caps the body ClawGuard will buffer and forward,
// per the request-size rate limit.
const maxRequestBodyBytes = 10 * 1024 * 1024 // 10 MiB

// ReverseProxy forwards one already-approved request to its resolved
// upstream target. It owns the outbound HTTP client; the security
// guard's host/scheme/private-IP checks have already run by the time
// Forward is called, so the redirect re-check here only re-validates a
// Location header the upstream itself returned.
type ReverseProxy struct {
	client    *http.Client
	allowlist []string
	logger    *slog.Logger
}

// NewReverseProxy builds a ReverseProxy. Redirects are never followed
// automatically, per the (c) Open Question resolution: the client sees
// the 3xx and decides whether to issue a follow-up request itself. The
// outbound transport dials through safeDialContext, so a DNS name that
// resolves to a private/reserved address is rejected even though the
// Security Guard's construction-time check already passed it (it only
// sees the literal hostname, before resolution).
func NewReverseProxy(allowlist []string, logger *slog.Logger) *ReverseProxy {
	return newReverseProxy(allowlist, safeDialContext(), logger)
}

// NewReverseProxyWithDialer builds a ReverseProxy that dials upstream
// connections through dial instead of the default SSRF-safe dialer.
// Production code should always use NewReverseProxy; this exists for
// tests that forward to a loopback httptest.Server, which the SSRF
// dialer's private-IP check would otherwise reject.
func NewReverseProxyWithDialer(allowlist []string, dial dialContextFunc, logger *slog.Logger) *ReverseProxy {
	return newReverseProxy(allowlist, dial, logger)
}

func newReverseProxy(allowlist []string, dial dialContextFunc, logger *slog.Logger) *ReverseProxy {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dial
	return &ReverseProxy{
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		allowlist: allowlist,
		logger:    logger,
	}
}

// SetTimeout overrides the default upstream request timeout.
func (rp *ReverseProxy) SetTimeout(d time.Duration) {
	rp.client.Timeout = d
}

// Forward builds the outbound request against upstreamURL, injects
// def's credential recipe, strips the agent's own identity headers and
// any hop-by-hop headers, issues the request, and copies the response
// back to the client. On a redirect response it re-validates the
// Location against the Security Guard before passing the 3xx through
// unfollowed; a Location that fails re-validation is answered with 403
// "Redirect blocked by security policy" instead of being forwarded to the
// agent.
func (rp *ReverseProxy) Forward(ctx context.Context, w http.ResponseWriter, r *http.Request, def gwservice.Definition, upstreamURL *url.URL) Outcome {
	reqSample := &bytes.Buffer{}
	body := io.TeeReader(io.LimitReader(r.Body, maxRequestBodyBytes+1), capWriter{reqSample, bodySampleLimit})
	outReq, err := http.NewRequestWithContext(ctx, r.Method, upstreamURL.String(), body)
	if err != nil {
		rp.logger.Error("failed to build upstream request", "error", err, "url", upstreamURL.String())
		writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("Upstream error: %s", err))
		return Outcome{}
	}

	for key, values := range r.Header {
		for _, v := range values {
			outReq.Header.Add(key, v)
		}
	}
	for _, h := range hopByHopHeaders {
		outReq.Header.Del(h)
	}
	proxy.StripAgentCredential(outReq.Header)

	q := outReq.URL.Query()
	proxy.InjectCredential(outReq.Header, q, def.Recipe)
	outReq.URL.RawQuery = q.Encode()

	clientIP, _, _ := net.SplitHostPort(r.RemoteAddr)
	if clientIP == "" {
		clientIP = r.RemoteAddr
	}
	outReq.Header.Set("X-Forwarded-For", clientIP)
	outReq.Header.Set("X-Forwarded-Host", r.Host)

	resp, err := rp.client.Do(outReq)
	if err != nil {
		rp.logger.Error("upstream request failed", "error", err, "service", def.Name, "url", upstreamURL.String())
		writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("Upstream error: %s", err))
		return Outcome{ResponseStatus: http.StatusBadGateway, RequestBodySample: sampleToString(reqSample, r.ContentLength)}
	}
	defer resp.Body.Close()

	if loc := resp.Header.Get("Location"); loc != "" && resp.StatusCode >= 300 && resp.StatusCode < 400 {
		if _, err := proxy.CheckRedirect(upstreamURL, loc, def, rp.allowlist); err != nil {
			rp.logger.Warn("blocked redirect failed guard re-validation", "error", err, "service", def.Name, "location", loc)
			writeJSONError(w, http.StatusForbidden, "Redirect blocked by security policy")
			return Outcome{ResponseStatus: http.StatusForbidden, RequestBodySample: sampleToString(reqSample, r.ContentLength)}
		}
	}

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	respSample := &bytes.Buffer{}
	tee := io.MultiWriter(w, capWriter{respSample, bodySampleLimit})
	if _, err := io.Copy(tee, resp.Body); err != nil {
		rp.logger.Debug("error copying upstream response body", "error", err)
	}

	return Outcome{
		ResponseStatus:     resp.StatusCode,
		RequestBodySample:  sampleToString(reqSample, r.ContentLength),
		ResponseBodySample: sampleToString(respSample, resp.ContentLength),
	}
}

// capWriter writes at most limit bytes into buf, silently discarding the
// remainder. Used so TeeReader/TeeWriter never grows an audit sample
// buffer past the truncation threshold even for multi-megabyte bodies.
type capWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (c capWriter) Write(p []byte) (int, error) {
	if remaining := c.limit - c.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			c.buf.Write(p[:remaining])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func sampleToString(buf *bytes.Buffer, contentLength int64) string {
	return audit.TruncateBody(buf.Bytes(), contentLength)
}
