package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver, registered as "sqlite"
)

// DefaultAuditRetentionDays is the default retention window.
const DefaultAuditRetentionDays = 90

// SQLiteSink persists audit entries to a local SQLite database, matching
// the "SQLite sink" requirement. Grounded on the file-backed,
// pure-Go-driver idiom used elsewhere in the pack for local SQLite stores
// (modernc.org/sqlite, cgo-free, safe to statically link into the server
// binary and the CLI alike).
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLiteSink opens (creating if absent) the audit database at path and
// ensures its schema exists.
func OpenSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer discipline avoids SQLITE_BUSY.

	if _, err := db.Exec(auditSchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate audit sqlite schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

const auditSchemaDDL = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	event_type TEXT NOT NULL,
	severity TEXT NOT NULL,
	actor_user_id TEXT,
	impersonating_user_id TEXT,
	resource_type TEXT,
	resource_id TEXT,
	action TEXT NOT NULL,
	ip_address TEXT,
	user_agent TEXT,
	details TEXT,
	trace_id TEXT,
	span_id TEXT,
	request_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id);
`

func (s *SQLiteSink) Name() string { return "sqlite" }

// Write persists entry as a row. Columns mirror Entry's fields exactly,
// with severity stored as its snake_case text form.
func (s *SQLiteSink) Write(ctx context.Context, entry Entry) error {
	detailsJSON, err := entry.DetailsJSON()
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	var actorUserID, impersonatingUserID any
	if entry.ActorUserID != nil {
		actorUserID = entry.ActorUserID.String()
	}
	if entry.ImpersonatingUserID != nil {
		impersonatingUserID = entry.ImpersonatingUserID.String()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, timestamp, event_type, severity, actor_user_id, impersonating_user_id,
			resource_type, resource_id, action, ip_address, user_agent, details,
			trace_id, span_id, request_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID.String(),
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
		entry.EventType.String(),
		entry.Severity.String(),
		actorUserID,
		impersonatingUserID,
		nullableStr(entry.ResourceType),
		nullableStr(entry.ResourceID),
		entry.Action,
		derefStr(entry.IPAddress),
		derefStr(entry.UserAgent),
		detailsJSON,
		derefStr(entry.TraceID),
		derefStr(entry.SpanID),
		derefStr(entry.RequestID),
	)
	if err != nil {
		return fmt.Errorf("insert audit log entry: %w", err)
	}
	return nil
}

// SweepRetention deletes rows older than retentionDays, implementing the
// retention policy. Returns the number of rows deleted.
func (s *SQLiteSink) SweepRetention(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultAuditRetentionDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep audit retention: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the underlying database handle.
func (s *SQLiteSink) Close() error { return s.db.Close() }

func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func derefStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
