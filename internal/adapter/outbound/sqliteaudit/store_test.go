package sqliteaudit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/clawguard/clawguard/internal/domain/audit"
	"github.com/clawguard/clawguard/internal/domain/gwservice"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clawguard.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecentRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	status := 200

	if err := s.AppendRecord(ctx, audit.Record{
		Timestamp: time.Now(), Service: "gh", Method: "GET", Path: "/user",
		Approved: true, ResponseStatus: &status, AgentAddress: "1.2.3.4",
	}); err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}

	records, err := s.RecentRecords(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRecords: %v", err)
	}
	if len(records) != 1 || records[0].Service != "gh" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestAppendRecordDedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ts := time.Now()
	rec := audit.Record{Timestamp: ts, Service: "gh", Method: "GET", Path: "/user", Approved: true, AgentAddress: "1.2.3.4"}

	if err := s.AppendRecord(ctx, rec); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if err := s.AppendRecord(ctx, rec); err != nil {
		t.Fatalf("second append: %v", err)
	}
	records, err := s.RecentRecords(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected dedup to collapse to 1 record, got %d", len(records))
	}
}

func TestApprovalLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.AppendApproval(ctx, audit.ApprovalRow{
		Timestamp: now, Service: "gh", ApprovedBy: "alice", TTLSeconds: 3600, ExpiresAt: now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("AppendApproval: %v", err)
	}

	live, err := s.LiveApprovals(ctx, now)
	if err != nil {
		t.Fatalf("LiveApprovals: %v", err)
	}
	if len(live) != 1 || live[0].Service != "gh" {
		t.Fatalf("unexpected live approvals: %+v", live)
	}

	if err := s.MarkRevoked(ctx, "gh"); err != nil {
		t.Fatalf("MarkRevoked: %v", err)
	}
	live, err = s.LiveApprovals(ctx, now)
	if err != nil {
		t.Fatalf("LiveApprovals after revoke: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("expected no live approvals after revoke, got %+v", live)
	}
}

func TestGCExpiredApprovals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.AppendApproval(ctx, audit.ApprovalRow{
		Timestamp: now, Service: "gh", ApprovedBy: "alice", TTLSeconds: 1, ExpiresAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("AppendApproval: %v", err)
	}
	n, err := s.GCExpiredApprovals(ctx, now)
	if err != nil {
		t.Fatalf("GCExpiredApprovals: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 gc'd row, got %d", n)
	}
}

func TestOverrideRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	o := gwservice.Override{
		ServiceName: "gh",
		Definition:  gwservice.Definition{Name: "gh", BaseURL: "https://api.github.com"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.SaveOverride(ctx, o); err != nil {
		t.Fatalf("SaveOverride: %v", err)
	}

	got, ok, err := s.GetOverride(ctx, "gh")
	if err != nil || !ok {
		t.Fatalf("GetOverride: ok=%v err=%v", ok, err)
	}
	if got.Definition.BaseURL != "https://api.github.com" {
		t.Fatalf("unexpected round-tripped definition: %+v", got.Definition)
	}

	if err := s.DeleteOverride(ctx, "gh"); err != nil {
		t.Fatalf("DeleteOverride: %v", err)
	}
	if _, ok, err := s.GetOverride(ctx, "gh"); err != nil || ok {
		t.Fatalf("expected override removed, ok=%v err=%v", ok, err)
	}
}

func TestPairingRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Pair(ctx, "chat-1", "Alice", time.Now()); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	paired, err := s.IsPaired(ctx, "chat-1")
	if err != nil || !paired {
		t.Fatalf("expected paired, got %v err=%v", paired, err)
	}
	if err := s.Unpair(ctx, "chat-1"); err != nil {
		t.Fatalf("Unpair: %v", err)
	}
	paired, err = s.IsPaired(ctx, "chat-1")
	if err != nil || paired {
		t.Fatalf("expected unpaired, got %v err=%v", paired, err)
	}
}
