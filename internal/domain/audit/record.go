// Package audit holds the AuditRecord entity and the durable-store
// interfaces the Proxy Engine, Approval Coordinator, and admin plane
// write through and query against. The concrete implementation is a
// sqlite-backed outbound adapter; this package stays storage-agnostic.
package audit

import "time"

// Record is one append-only row: one per terminal request outcome.
type Record struct {
	ID             int64
	Timestamp      time.Time
	Service        string
	Method         string
	Path           string
	Approved       bool
	ResponseStatus *int // nullable: the status returned to the client, including synthesized 403/502 for rows where the request never reached upstream
	AgentAddress   string
	RequestBody    *string // nullable, truncated per maxPayloadLogSize
	ResponseBody   *string // nullable, truncated per maxPayloadLogSize
}

// ApprovalRow is one row of the approvals table: a persisted Grant or
// revocation, independent of the in-memory live Grants map.
type ApprovalRow struct {
	ID         int64
	Timestamp  time.Time
	Service    string
	ApprovedBy string
	TTLSeconds int64
	ExpiresAt  time.Time
	Revoked    bool
}

// Filter pairs a start time with a row limit for audit reads. No Store
// method takes a Filter; RecentRecords takes a plain limit.
type Filter struct {
	Since time.Time
	Limit int // 0 means use the store's default (50)
}

// Stats is the result of the dashboard's aggregation queries, all scoped
// to records since a timestamp T.
type Stats struct {
	Total         int64
	ByService     map[string]int64
	ByHourOfDay   map[int]int64
	Approved      int64
	Denied        int64
	ByMethod      map[string]int64
}
