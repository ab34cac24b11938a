package httpgw

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clawguard/clawguard/internal/domain/audit"
	"github.com/clawguard/clawguard/internal/domain/gwservice"
	"github.com/clawguard/clawguard/internal/domain/policy"
	"github.com/clawguard/clawguard/internal/domain/proxy"
)

// permissiveDialer skips the SSRF-safe dialer's private-IP check so tests
// can forward to a loopback httptest.Server the way a real upstream would
// be dialed in production.
func permissiveDialer() dialContextFunc {
	dialer := &net.Dialer{}
	return dialer.DialContext
}

type recordingStore struct {
	mu      sync.Mutex
	records []audit.Record
}

func (s *recordingStore) AppendRecord(ctx context.Context, r audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}
func (s *recordingStore) RecentRecords(ctx context.Context, limit int) ([]audit.Record, error) {
	return nil, nil
}
func (s *recordingStore) Stats(ctx context.Context, since time.Time) (audit.Stats, error) {
	return audit.Stats{}, nil
}
func (s *recordingStore) AppendApproval(ctx context.Context, a audit.ApprovalRow) error { return nil }
func (s *recordingStore) MarkRevoked(ctx context.Context, service string) error         { return nil }
func (s *recordingStore) LiveApprovals(ctx context.Context, now time.Time) ([]audit.ApprovalRow, error) {
	return nil, nil
}
func (s *recordingStore) GCExpiredApprovals(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
func (s *recordingStore) Flush(ctx context.Context) error { return nil }
func (s *recordingStore) Close() error                     { return nil }

// localURL rewrites an httptest server's loopback-literal URL to use the
// "localhost" DNS name instead, so it passes the Security Guard's
// private-IP-literal check the same way a real non-literal upstream
// hostname would.
func localURL(serverURL string) string {
	return strings.Replace(serverURL, "127.0.0.1", "localhost", 1)
}

type alwaysApprove struct{}

func (alwaysApprove) Check(ctx context.Context, service, method, path, agentAddress string) (bool, error) {
	return true, nil
}

func TestHandlerForwardsAutoApprovedRequest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer injected-token" {
			t.Errorf("expected injected bearer token, got %q", got)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	table := gwservice.NewLiveTable([]gwservice.Definition{{
		Name:          "github",
		BaseURL:       localURL(upstream.URL),
		Recipe:        gwservice.Recipe{Kind: gwservice.RecipeBearer, Token: "injected-token"},
		DefaultAction: policy.ActionAutoApprove,
	}})
	pipeline := proxy.NewPipeline(nil, alwaysApprove{})
	store := &recordingStore{}
	rp := NewReverseProxyWithDialer(nil, permissiveDialer(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := NewHandler(table, pipeline, rp, store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodGet, "/github/user", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.records) != 1 || !store.records[0].Approved {
		t.Fatalf("expected one approved audit record, got %+v", store.records)
	}
}

func TestHandlerUnknownServiceReturns404(t *testing.T) {
	table := gwservice.NewLiveTable(nil)
	pipeline := proxy.NewPipeline(nil, alwaysApprove{})
	h := NewHandler(table, pipeline, NewReverseProxy(nil, nil), &recordingStore{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodGet, "/nonexistent/x", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

type denyApprover struct{}

func (denyApprover) Check(ctx context.Context, service, method, path, agentAddress string) (bool, error) {
	return false, nil
}

func TestHandlerApprovalDeniedReturns403AndRecordsDenial(t *testing.T) {
	table := gwservice.NewLiveTable([]gwservice.Definition{{
		Name:          "github",
		BaseURL:       "https://api.github.com",
		DefaultAction: policy.ActionRequireApproval,
	}})
	pipeline := proxy.NewPipeline(nil, denyApprover{})
	store := &recordingStore{}
	h := NewHandler(table, pipeline, NewReverseProxy(nil, nil), store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodDelete, "/github/repos/x", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.records) != 1 || store.records[0].Approved {
		t.Fatalf("expected one denied audit record, got %+v", store.records)
	}
}

func TestHandlerHostHeaderRouting(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	table := gwservice.NewLiveTable([]gwservice.Definition{{
		Name:               "slack",
		BaseURL:            localURL(upstream.URL),
		InterceptHostnames: []string{"slack.local"},
		DefaultAction:      policy.ActionAutoApprove,
	}})
	h := NewHandler(table, proxy.NewPipeline(nil, alwaysApprove{}), NewReverseProxyWithDialer(nil, permissiveDialer(), slog.New(slog.NewTextHandler(io.Discard, nil))), &recordingStore{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodGet, "/api/chat.postMessage", nil)
	req.Host = "slack.local"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
