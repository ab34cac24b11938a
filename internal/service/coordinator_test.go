package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/clawguard/clawguard/internal/domain/audit"
	"github.com/clawguard/clawguard/internal/domain/grant"
	"github.com/clawguard/clawguard/internal/domain/notify"
)

type fakeAuditStore struct {
	mu            sync.Mutex
	approvals     []audit.ApprovalRow
	revoked       []string
	onMarkRevoked func(service string)
}

func (f *fakeAuditStore) AppendRecord(ctx context.Context, r audit.Record) error { return nil }
func (f *fakeAuditStore) RecentRecords(ctx context.Context, limit int) ([]audit.Record, error) {
	return nil, nil
}
func (f *fakeAuditStore) Stats(ctx context.Context, since time.Time) (audit.Stats, error) {
	return audit.Stats{}, nil
}
func (f *fakeAuditStore) AppendApproval(ctx context.Context, a audit.ApprovalRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approvals = append(f.approvals, a)
	return nil
}
func (f *fakeAuditStore) MarkRevoked(ctx context.Context, service string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, service)
	if f.onMarkRevoked != nil {
		f.onMarkRevoked(service)
	}
	return nil
}
func (f *fakeAuditStore) LiveApprovals(ctx context.Context, now time.Time) ([]audit.ApprovalRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]audit.ApprovalRow, 0, len(f.approvals))
	for _, a := range f.approvals {
		if !a.Revoked && a.ExpiresAt.After(now) {
			out = append(out, a)
		}
	}
	return out, nil
}
func (f *fakeAuditStore) GCExpiredApprovals(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeAuditStore) Flush(ctx context.Context) error { return nil }
func (f *fakeAuditStore) Close() error                    { return nil }

// fakeNotifier immediately resolves every prompt through the coordinator
// it is wired to, using the given decision, unless respond is false (to
// exercise the deadline-timeout path).
type fakeNotifier struct {
	resolve  func(requestID string, d grant.Decision) bool
	decision grant.Decision
	respond  bool
	promptCh chan notify.Prompt
}

func (f *fakeNotifier) Prompt(p notify.Prompt) error {
	if f.promptCh != nil {
		f.promptCh <- p
	}
	if f.respond {
		go f.resolve(p.RequestID, f.decision)
	}
	return nil
}
func (f *fakeNotifier) Start() error { return nil }
func (f *fakeNotifier) Stop()        {}

func TestCoordinatorCheckApproves(t *testing.T) {
	store := &fakeAuditStore{}
	notifier := &fakeNotifier{respond: true, decision: grant.Decision{Approved: true, TTL: grant.TTL1h, ApprovedBy: "alice"}}
	c := NewCoordinator(store, notifier, 2*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	notifier.resolve = c.Resolve

	ok, err := c.Check(context.Background(), "github", "GET", "/user", "10.0.0.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected approval")
	}

	g, found := c.registry.LiveGrant("github", time.Now())
	if !found || g.ApprovedBy != "alice" {
		t.Fatalf("expected live grant for alice, got %+v found=%v", g, found)
	}

	store.mu.Lock()
	n := len(store.approvals)
	store.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected 1 persisted approval row, got %d", n)
	}
}

func TestCoordinatorCheckDeniedSkipsGrant(t *testing.T) {
	store := &fakeAuditStore{}
	notifier := &fakeNotifier{respond: true, decision: grant.Decision{Approved: false, ApprovedBy: "bob"}}
	c := NewCoordinator(store, notifier, 2*time.Second, nil, nil)
	notifier.resolve = c.Resolve

	ok, err := c.Check(context.Background(), "github", "DELETE", "/repos/x", "10.0.0.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected denial")
	}
	if _, found := c.registry.LiveGrant("github", time.Now()); found {
		t.Fatal("denial must not install a grant")
	}
}

func TestCoordinatorCheckTimesOut(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &fakeAuditStore{}
	notifier := &fakeNotifier{respond: false}
	c := NewCoordinator(store, notifier, 30*time.Millisecond, nil, nil)
	notifier.resolve = c.Resolve

	start := time.Now()
	ok, err := c.Check(context.Background(), "github", "GET", "/user", "10.0.0.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected timeout to deny")
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Fatal("expected Check to have waited for the deadline")
	}
}

func TestCoordinatorCheckUsesLiveGrantShortCircuit(t *testing.T) {
	store := &fakeAuditStore{}
	notifier := &fakeNotifier{respond: false}
	c := NewCoordinator(store, notifier, time.Second, nil, nil)
	c.registry.InstallGrant(grant.Grant{
		Service: "github", ApprovedBy: "alice",
		GrantedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	})

	ok, err := c.Check(context.Background(), "github", "GET", "/user", "10.0.0.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected the live grant to short-circuit approval")
	}

	store.mu.Lock()
	n := len(store.approvals)
	store.mu.Unlock()
	if n != 0 {
		t.Fatalf("short-circuit must not persist a new approval row, got %d", n)
	}
}

func TestCoordinatorRevokeAndRevokeAll(t *testing.T) {
	store := &fakeAuditStore{}
	c := NewCoordinator(store, &fakeNotifier{}, time.Second, nil, nil)
	c.registry.InstallGrant(grant.Grant{Service: "github", GrantedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)})
	c.registry.InstallGrant(grant.Grant{Service: "slack", GrantedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)})

	if !c.Revoke(context.Background(), "github") {
		t.Fatal("expected github grant to exist")
	}
	if _, found := c.registry.LiveGrant("github", time.Now()); found {
		t.Fatal("github grant should be revoked")
	}

	n := c.RevokeAll(context.Background(), []string{"slack"})
	if n != 1 {
		t.Fatalf("expected 1 revoked grant, got %d", n)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.revoked) != 2 {
		t.Fatalf("expected 2 persisted revocations, got %d", len(store.revoked))
	}
}

func TestCoordinatorRevoke_PersistsBeforeDroppingGrant(t *testing.T) {
	store := &fakeAuditStore{}
	c := NewCoordinator(store, &fakeNotifier{}, time.Second, nil, nil)
	c.registry.InstallGrant(grant.Grant{Service: "github", GrantedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)})

	var sawGrantDuringPersist bool
	store.onMarkRevoked = func(service string) {
		_, found := c.registry.LiveGrant(service, time.Now())
		sawGrantDuringPersist = found
	}

	if !c.Revoke(context.Background(), "github") {
		t.Fatal("expected github grant to exist")
	}
	if !sawGrantDuringPersist {
		t.Fatal("expected the durable revocation write to happen while the in-memory grant was still present")
	}
	if _, found := c.registry.LiveGrant("github", time.Now()); found {
		t.Fatal("github grant should be revoked after Revoke returns")
	}
}

func TestCoordinatorRevokeAll_PersistsBeforeDroppingGrants(t *testing.T) {
	store := &fakeAuditStore{}
	c := NewCoordinator(store, &fakeNotifier{}, time.Second, nil, nil)
	c.registry.InstallGrant(grant.Grant{Service: "github", GrantedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)})
	c.registry.InstallGrant(grant.Grant{Service: "slack", GrantedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)})

	var sawGrantDuringPersist bool
	store.onMarkRevoked = func(service string) {
		_, found := c.registry.LiveGrant(service, time.Now())
		sawGrantDuringPersist = sawGrantDuringPersist || found
	}

	n := c.RevokeAll(context.Background(), []string{"github", "slack"})
	if n != 2 {
		t.Fatalf("expected 2 revoked grants, got %d", n)
	}
	if !sawGrantDuringPersist {
		t.Fatal("expected durable revocation writes to happen while in-memory grants were still present")
	}
}

func TestCoordinatorHydrateSeedsLiveGrants(t *testing.T) {
	store := &fakeAuditStore{approvals: []audit.ApprovalRow{
		{Service: "github", ApprovedBy: "alice", Timestamp: time.Now(), ExpiresAt: time.Now().Add(time.Hour)},
		{Service: "slack", ApprovedBy: "bob", Timestamp: time.Now(), Revoked: true, ExpiresAt: time.Now().Add(time.Hour)},
	}}
	c := NewCoordinator(store, &fakeNotifier{}, time.Second, nil, nil)

	if err := c.Hydrate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, found := c.registry.LiveGrant("github", time.Now()); !found {
		t.Fatal("expected github grant to be hydrated")
	}
	if _, found := c.registry.LiveGrant("slack", time.Now()); found {
		t.Fatal("revoked slack row must not be hydrated as live")
	}
}
