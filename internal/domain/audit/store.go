package audit

import (
	"context"
	"time"
)

// Store is the durable sink for the four logical tables: requests,
// approvals, paired_approvers, service_overrides. A single writer process
// is assumed; readers (dashboard, introspection endpoints) run point
// queries concurrently with writes.
type Store interface {
	// AppendRecord stores one terminal-outcome audit row. Must not block
	// the response path for long; failures are logged, never surfaced to
	// the agent.
	AppendRecord(ctx context.Context, r Record) error

	// RecentRecords returns up to limit most recent Records, newest first,
	// for the /__audit introspection endpoint.
	RecentRecords(ctx context.Context, limit int) ([]Record, error)

	// Stats computes the dashboard aggregation queries for records since t.
	Stats(ctx context.Context, since time.Time) (Stats, error)

	// AppendApproval persists a Grant or revocation row. Persist-then-
	// install / persist-first-for-revocation ordering is the caller's
	// responsibility; this call itself is a single durable write.
	AppendApproval(ctx context.Context, a ApprovalRow) error

	// MarkRevoked sets revoked=true on the latest non-revoked approvals
	// row for service.
	MarkRevoked(ctx context.Context, service string) error

	// LiveApprovals returns, per service, the newest non-revoked,
	// non-expired-as-of-now approvals row, for startup hydration.
	LiveApprovals(ctx context.Context, now time.Time) ([]ApprovalRow, error)

	// GCExpiredApprovals deletes approvals rows with expires_at <= now,
	// run once at startup per the hydration algorithm.
	GCExpiredApprovals(ctx context.Context, now time.Time) (int64, error)

	// Flush forces pending writes to storage. The gateway's shutdown path
	// calls Close only, not Flush.
	Flush(ctx context.Context) error

	// Close releases resources (closes the database, releases the
	// advisory lock).
	Close() error
}
