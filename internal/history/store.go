// Package history keeps a SQLite log of sessions and the fetches they issue.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"github.com/johan-st/tsbrowse/internal/browse"
)

// Store manages the history database.
type Store struct {
	db    *sql.DB
	names *NameGenerator
}

// NewStore opens (creating if needed) history.db under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "history.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// Serialize writers; SQLite allows one at a time anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, names: NewNameGenerator()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_name TEXT,
		public_key_fingerprint TEXT,
		anonymous_name TEXT,
		remote_addr TEXT,
		created_at INTEGER NOT NULL,
		last_active_at INTEGER NOT NULL,
		is_active INTEGER DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user_name ON sessions(user_name);
	CREATE INDEX IF NOT EXISTS idx_sessions_is_active ON sessions(is_active);

	CREATE TABLE IF NOT EXISTS fetch_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		user_name TEXT,
		host TEXT NOT NULL,
		table_name TEXT,
		page INTEGER,
		filter_text TEXT,
		sql_text TEXT,
		row_count INTEGER,
		elapsed_us INTEGER,
		error TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fetch_history_session_id ON fetch_history(session_id);
	CREATE INDEX IF NOT EXISTS idx_fetch_history_host ON fetch_history(host);
	CREATE INDEX IF NOT EXISTS idx_fetch_history_created_at ON fetch_history(created_at);

	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		action TEXT NOT NULL,
		host TEXT,
		details TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_session_id ON audit_log(session_id);
	CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// GenerateAnonymousName returns a fresh name for an anonymous user.
func (s *Store) GenerateAnonymousName() string {
	return s.names.Generate()
}

// CreateSession inserts a session record.
func (s *Store) CreateSession(ctx context.Context, session *Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_name, public_key_fingerprint, anonymous_name, remote_addr, created_at, last_active_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, session.ID, nullString(session.UserName), nullString(session.PublicKeyFingerprint),
		nullString(session.AnonymousName), session.RemoteAddr,
		session.CreatedAt.UnixMilli(), session.LastActiveAt.UnixMilli(), session.IsActive)
	return err
}

// TouchSession updates the last active time of a session.
func (s *Store) TouchSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET last_active_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), sessionID)
	return err
}

// EndSession marks a session inactive.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET is_active = 0, last_active_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), sessionID)
	return err
}

// ListSessions lists sessions, most recently active first.
func (s *Store) ListSessions(ctx context.Context, activeOnly bool, limit int) ([]*Session, error) {
	query := `
		SELECT id, user_name, public_key_fingerprint, anonymous_name, remote_addr, created_at, last_active_at, is_active
		FROM sessions
	`
	var args []any
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY last_active_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var session Session
		var userName, pkFP, anonName sql.NullString
		var created, active int64

		if err := rows.Scan(&session.ID, &userName, &pkFP, &anonName, &session.RemoteAddr,
			&created, &active, &session.IsActive); err != nil {
			return nil, err
		}

		session.UserName = userName.String
		session.PublicKeyFingerprint = pkFP.String
		session.AnonymousName = anonName.String
		session.CreatedAt = time.UnixMilli(created)
		session.LastActiveAt = time.UnixMilli(active)
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}

// RecordFetch stores one fetch. Failures are logged, never returned, so a
// broken history database cannot interrupt browsing.
func (s *Store) RecordFetch(ctx context.Context, rec browse.FetchRecord) {
	var errText string
	if rec.Err != nil {
		errText = rec.Err.Error()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fetch_history (session_id, user_name, host, table_name, page, filter_text, sql_text, row_count, elapsed_us, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, nullString(rec.SessionID), nullString(rec.User), rec.Host, rec.Table, rec.Page,
		nullString(rec.Filter), rec.SQL, rec.Rows, rec.Elapsed.Microseconds(),
		nullString(errText), time.Now().UnixMilli())
	if err != nil {
		log.Warn("failed to record fetch", "host", rec.Host, "err", err)
	}
}

// ListEntries returns recorded fetches, newest first.
func (s *Store) ListEntries(ctx context.Context, q Query) ([]*Entry, error) {
	query := `SELECT id, session_id, user_name, host, table_name, page, filter_text, sql_text, row_count, elapsed_us, error, created_at
		FROM fetch_history WHERE 1=1`
	var args []any

	if q.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, q.SessionID)
	}
	if q.UserName != "" {
		query += " AND user_name = ?"
		args = append(args, q.UserName)
	}
	if q.Host != "" {
		query += " AND host = ?"
		args = append(args, q.Host)
	}
	if !q.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, q.Since.UnixMilli())
	}

	query += " ORDER BY created_at DESC, id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var sessionID, userName, filter, errText sql.NullString
		var elapsedUS, created int64

		if err := rows.Scan(&e.ID, &sessionID, &userName, &e.Host, &e.Table, &e.Page, &filter,
			&e.SQL, &e.Rows, &elapsedUS, &errText, &created); err != nil {
			return nil, err
		}

		e.SessionID = sessionID.String
		e.UserName = userName.String
		e.Filter = filter.String
		e.Error = errText.String
		e.Elapsed = time.Duration(elapsedUS) * time.Microsecond
		e.CreatedAt = time.UnixMilli(created)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// RecordAudit stores an audit event with optional JSON details.
func (s *Store) RecordAudit(ctx context.Context, sessionID, action, host string, details map[string]any) error {
	var detailsJSON string
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		detailsJSON = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (session_id, action, host, details, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, nullString(sessionID), action, nullString(host), nullString(detailsJSON), time.Now().UnixMilli())
	return err
}

// ListAudit lists audit events for a session (all sessions when empty),
// newest first.
func (s *Store) ListAudit(ctx context.Context, sessionID string, limit int) ([]*AuditRecord, error) {
	query := "SELECT id, session_id, action, host, details, created_at FROM audit_log"
	var args []any
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*AuditRecord
	for rows.Next() {
		var r AuditRecord
		var sid, host, details sql.NullString
		var created int64
		if err := rows.Scan(&r.ID, &sid, &r.Action, &host, &details, &created); err != nil {
			return nil, err
		}
		r.SessionID = sid.String
		r.Host = host.String
		r.Details = details.String
		r.CreatedAt = time.UnixMilli(created)
		records = append(records, &r)
	}
	return records, rows.Err()
}

// nullString converts an empty string to sql.NullString.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
