// Package sqliteaudit implements the Audit Store on modernc.org/sqlite:
// the four logical tables (requests, approvals, paired_approvers,
// service_overrides), the dashboard aggregation queries, and a
// cross-platform advisory file lock over the database directory that
// enforces the single-writer discipline the spec requires at the process
// level, alongside sqlite's own locking.
package sqliteaudit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	_ "modernc.org/sqlite"

	"github.com/clawguard/clawguard/internal/domain/approver"
	"github.com/clawguard/clawguard/internal/domain/audit"
	"github.com/clawguard/clawguard/internal/domain/gwservice"
)

// Store implements audit.Store, approver.Store, and gwservice.OverrideStore
// backed by a single sqlite database file.
type Store struct {
	db   *sql.DB
	lock *dirLock

	seen map[uint64]struct{} // dedup keys already appended this process lifetime
}

// Open opens (creating if absent) the sqlite database at path, enables WAL
// journaling, applies the schema, and acquires the directory advisory
// lock. Callers must call Close when done.
func Open(ctx context.Context, path string) (*Store, error) {
	lock, err := acquireDirLock(path)
	if err != nil {
		return nil, fmt.Errorf("sqliteaudit: acquire lock: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		lock.release()
		return nil, fmt.Errorf("sqliteaudit: open: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer discipline at the connection-pool level too

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			lock.release()
			return nil, fmt.Errorf("sqliteaudit: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, lock: lock, seen: make(map[uint64]struct{})}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		lock.release()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			service TEXT NOT NULL,
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			approved INTEGER NOT NULL,
			response_status INTEGER,
			agent_ip TEXT NOT NULL,
			request_body TEXT,
			response_body TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_timestamp ON requests(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_service ON requests(service)`,
		`CREATE TABLE IF NOT EXISTS approvals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			service TEXT NOT NULL,
			approved_by TEXT NOT NULL,
			ttl_seconds INTEGER NOT NULL,
			expires_at DATETIME NOT NULL,
			revoked INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_approvals_service ON approvals(service)`,
		`CREATE INDEX IF NOT EXISTS idx_approvals_expires ON approvals(expires_at)`,
		`CREATE TABLE IF NOT EXISTS paired_approvers (
			chat_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			paired_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS service_overrides (
			service_name TEXT PRIMARY KEY,
			config_json TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqliteaudit: migrate: %w", err)
		}
	}
	return nil
}

// dedupKey hashes the (service, method, path, timestamp) tuple per
// SPEC_FULL.md's idempotency guard against accidental double-append.
func dedupKey(service, method, path string, ts time.Time) uint64 {
	h := xxhash.New()
	h.WriteString(service)
	h.WriteString("\x00")
	h.WriteString(method)
	h.WriteString("\x00")
	h.WriteString(path)
	h.WriteString("\x00")
	h.WriteString(ts.UTC().Format(time.RFC3339Nano))
	return h.Sum64()
}

// AppendRecord implements audit.Store.
func (s *Store) AppendRecord(ctx context.Context, r audit.Record) error {
	key := dedupKey(r.Service, r.Method, r.Path, r.Timestamp)
	if _, dup := s.seen[key]; dup {
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (timestamp, service, method, path, approved, response_status, agent_ip, request_body, response_body)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Timestamp, r.Service, r.Method, r.Path, boolToInt(r.Approved), r.ResponseStatus, r.AgentAddress, r.RequestBody, r.ResponseBody,
	)
	if err != nil {
		return fmt.Errorf("sqliteaudit: append record: %w", err)
	}
	s.seen[key] = struct{}{}
	return nil
}

// RecentRecords implements audit.Store.
func (s *Store) RecentRecords(ctx context.Context, limit int) ([]audit.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, service, method, path, approved, response_status, agent_ip, request_body, response_body
		 FROM requests ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqliteaudit: recent records: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var r audit.Record
		var approved int
		var status sql.NullInt64
		var reqBody, respBody sql.NullString
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Service, &r.Method, &r.Path, &approved, &status, &r.AgentAddress, &reqBody, &respBody); err != nil {
			return nil, fmt.Errorf("sqliteaudit: scan record: %w", err)
		}
		r.Approved = approved != 0
		if status.Valid {
			v := int(status.Int64)
			r.ResponseStatus = &v
		}
		if reqBody.Valid {
			r.RequestBody = &reqBody.String
		}
		if respBody.Valid {
			r.ResponseBody = &respBody.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats implements audit.Store.
func (s *Store) Stats(ctx context.Context, since time.Time) (audit.Stats, error) {
	stats := audit.Stats{ByService: map[string]int64{}, ByHourOfDay: map[int]int64{}, ByMethod: map[string]int64{}}

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests WHERE timestamp >= ?`, since)
	if err := row.Scan(&stats.Total); err != nil {
		return stats, fmt.Errorf("sqliteaudit: stats total: %w", err)
	}

	if err := scanCounts(ctx, s.db, `SELECT service, COUNT(*) FROM requests WHERE timestamp >= ? GROUP BY service`, since, func(k string, v int64) {
		stats.ByService[k] = v
	}); err != nil {
		return stats, err
	}

	if err := scanCounts(ctx, s.db, `SELECT CAST(strftime('%H', timestamp) AS INTEGER), COUNT(*) FROM requests WHERE timestamp >= ? GROUP BY 1`, since, func(k int, v int64) {
		stats.ByHourOfDay[k] = v
	}); err != nil {
		return stats, err
	}

	if err := scanCounts(ctx, s.db, `SELECT method, COUNT(*) FROM requests WHERE timestamp >= ? GROUP BY method`, since, func(k string, v int64) {
		stats.ByMethod[k] = v
	}); err != nil {
		return stats, err
	}

	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests WHERE timestamp >= ? AND approved = 1`, since)
	if err := row.Scan(&stats.Approved); err != nil {
		return stats, fmt.Errorf("sqliteaudit: stats approved: %w", err)
	}
	stats.Denied = stats.Total - stats.Approved

	return stats, nil
}

func scanCounts[K any](ctx context.Context, db *sql.DB, query string, since time.Time, set func(K, int64)) error {
	rows, err := db.QueryContext(ctx, query, since)
	if err != nil {
		return fmt.Errorf("sqliteaudit: stats query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k K
		var v int64
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("sqliteaudit: stats scan: %w", err)
		}
		set(k, v)
	}
	return rows.Err()
}

// AppendApproval implements audit.Store.
func (s *Store) AppendApproval(ctx context.Context, a audit.ApprovalRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approvals (timestamp, service, approved_by, ttl_seconds, expires_at, revoked) VALUES (?, ?, ?, ?, ?, ?)`,
		a.Timestamp, a.Service, a.ApprovedBy, a.TTLSeconds, a.ExpiresAt, boolToInt(a.Revoked),
	)
	if err != nil {
		return fmt.Errorf("sqliteaudit: append approval: %w", err)
	}
	return nil
}

// MarkRevoked implements audit.Store.
func (s *Store) MarkRevoked(ctx context.Context, service string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE approvals SET revoked = 1 WHERE id = (
			SELECT id FROM approvals WHERE service = ? AND revoked = 0 ORDER BY id DESC LIMIT 1
		)`, service)
	if err != nil {
		return fmt.Errorf("sqliteaudit: mark revoked: %w", err)
	}
	return nil
}

// LiveApprovals implements audit.Store: newest non-revoked,
// non-expired-as-of-now row per service.
func (s *Store) LiveApprovals(ctx context.Context, now time.Time) ([]audit.ApprovalRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, service, approved_by, ttl_seconds, expires_at, revoked
		 FROM approvals WHERE revoked = 0 AND expires_at > ? ORDER BY id DESC`, now)
	if err != nil {
		return nil, fmt.Errorf("sqliteaudit: live approvals: %w", err)
	}
	defer rows.Close()

	seen := map[string]bool{}
	var out []audit.ApprovalRow
	for rows.Next() {
		var a audit.ApprovalRow
		var revoked int
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.Service, &a.ApprovedBy, &a.TTLSeconds, &a.ExpiresAt, &revoked); err != nil {
			return nil, fmt.Errorf("sqliteaudit: scan approval: %w", err)
		}
		a.Revoked = revoked != 0
		if seen[a.Service] {
			continue // latest (by id DESC) supersedes
		}
		seen[a.Service] = true
		out = append(out, a)
	}
	return out, rows.Err()
}

// GCExpiredApprovals implements audit.Store.
func (s *Store) GCExpiredApprovals(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM approvals WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, fmt.Errorf("sqliteaudit: gc expired approvals: %w", err)
	}
	return res.RowsAffected()
}

// Flush is a no-op: writes go straight through database/sql with no
// client-side buffering.
func (s *Store) Flush(ctx context.Context) error { return nil }

// Close closes the database and releases the directory advisory lock.
func (s *Store) Close() error {
	err := s.db.Close()
	s.lock.release()
	return err
}

// --- approver.Store ---

// Pair implements approver.Store.
func (s *Store) Pair(ctx context.Context, chatID, displayName string, pairedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO paired_approvers (chat_id, name, paired_at) VALUES (?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET name = excluded.name, paired_at = excluded.paired_at`,
		chatID, displayName, pairedAt)
	if err != nil {
		return fmt.Errorf("sqliteaudit: pair: %w", err)
	}
	return nil
}

// Unpair implements approver.Store.
func (s *Store) Unpair(ctx context.Context, chatID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM paired_approvers WHERE chat_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("sqliteaudit: unpair: %w", err)
	}
	return nil
}

// Get implements approver.Store.
func (s *Store) Get(ctx context.Context, chatID string) (approver.Paired, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT chat_id, name, paired_at FROM paired_approvers WHERE chat_id = ?`, chatID)
	var p approver.Paired
	if err := row.Scan(&p.ChatID, &p.DisplayName, &p.PairedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return approver.Paired{}, false, nil
		}
		return approver.Paired{}, false, fmt.Errorf("sqliteaudit: get paired approver: %w", err)
	}
	return p, true, nil
}

// IsPaired implements approver.Store.
func (s *Store) IsPaired(ctx context.Context, chatID string) (bool, error) {
	_, ok, err := s.Get(ctx, chatID)
	return ok, err
}

// All implements approver.Store.
func (s *Store) All(ctx context.Context) ([]approver.Paired, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, name, paired_at FROM paired_approvers`)
	if err != nil {
		return nil, fmt.Errorf("sqliteaudit: all paired approvers: %w", err)
	}
	defer rows.Close()

	var out []approver.Paired
	for rows.Next() {
		var p approver.Paired
		if err := rows.Scan(&p.ChatID, &p.DisplayName, &p.PairedAt); err != nil {
			return nil, fmt.Errorf("sqliteaudit: scan paired approver: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- gwservice.OverrideStore ---

// SaveOverride implements gwservice.OverrideStore.
func (s *Store) SaveOverride(ctx context.Context, o gwservice.Override) error {
	payload, err := json.Marshal(o.Definition)
	if err != nil {
		return fmt.Errorf("sqliteaudit: marshal override: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO service_overrides (service_name, config_json, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(service_name) DO UPDATE SET config_json = excluded.config_json, updated_at = excluded.updated_at`,
		o.ServiceName, string(payload), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqliteaudit: save override: %w", err)
	}
	return nil
}

// DeleteOverride implements gwservice.OverrideStore.
func (s *Store) DeleteOverride(ctx context.Context, service string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM service_overrides WHERE service_name = ?`, service)
	if err != nil {
		return fmt.Errorf("sqliteaudit: delete override: %w", err)
	}
	return nil
}

// GetOverride implements gwservice.OverrideStore.
func (s *Store) GetOverride(ctx context.Context, service string) (gwservice.Override, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT service_name, config_json, created_at, updated_at FROM service_overrides WHERE service_name = ?`, service)
	o, err := scanOverride(row)
	if errors.Is(err, sql.ErrNoRows) {
		return gwservice.Override{}, false, nil
	}
	if err != nil {
		return gwservice.Override{}, false, err
	}
	return o, true, nil
}

// AllOverrides implements gwservice.OverrideStore.
func (s *Store) AllOverrides(ctx context.Context) ([]gwservice.Override, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT service_name, config_json, created_at, updated_at FROM service_overrides`)
	if err != nil {
		return nil, fmt.Errorf("sqliteaudit: all overrides: %w", err)
	}
	defer rows.Close()

	var out []gwservice.Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOverride(row scanner) (gwservice.Override, error) {
	var o gwservice.Override
	var payload string
	if err := row.Scan(&o.ServiceName, &payload, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return gwservice.Override{}, err
	}
	if err := json.Unmarshal([]byte(payload), &o.Definition); err != nil {
		return gwservice.Override{}, fmt.Errorf("sqliteaudit: unmarshal override: %w", err)
	}
	return o, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var (
	_ audit.Store             = (*Store)(nil)
	_ approver.Store          = (*Store)(nil)
	_ gwservice.OverrideStore = (*Store)(nil)
)
