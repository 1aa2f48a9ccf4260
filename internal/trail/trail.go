// CLAUDE:SUMMARY SQLite operation trail — best-effort insert per operation, nil store is a no-op.
// Package trail persists an operation trail (navigations, snapshots,
// actions) to SQLite so automation runs can be inspected after the fact.
package trail

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/dompilot/dbopen"
	"github.com/hazyhaar/dompilot/idgen"
)

const schema = `
CREATE TABLE IF NOT EXISTS trail (
	id          TEXT PRIMARY KEY,
	at          TEXT NOT NULL,
	op          TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_trail_at ON trail(at);
`

// Record is one trail row.
type Record struct {
	ID       string        `json:"id"`
	At       time.Time     `json:"at"`
	Op       string        `json:"op"`
	Detail   string        `json:"detail,omitempty"`
	URL      string        `json:"url,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

// Store writes and reads trail rows. A nil *Store drops records silently, so
// callers can leave the trail unconfigured.
type Store struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
}

// Open creates (or opens) the trail database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("trail: open %s: %w", path, err)
	}
	return NewStore(db, logger), nil
}

// NewStore wraps an already-opened database (tests use dbopen.OpenMemory).
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		newID:  idgen.Prefixed("br-", idgen.UUIDv7()),
		logger: logger,
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record appends one row. Failures are logged, not returned: the trail must
// never break the operation it describes.
func (s *Store) Record(ctx context.Context, op, detail, url string, d time.Duration, opErr error) {
	if s == nil || s.db == nil {
		return
	}
	errText := ""
	if opErr != nil {
		errText = opErr.Error()
	}
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO trail (id, at, op, detail, url, duration_ms, error) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.newID(), time.Now().UTC().Format(time.RFC3339Nano), op, detail, url, d.Milliseconds(), errText)
	if err != nil {
		s.logger.Warn("trail: record failed", "op", op, "error", err)
	}
}

// Recent returns up to limit rows, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, at, op, detail, url, duration_ms, error FROM trail ORDER BY at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("trail: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var at string
		var ms int64
		if err := rows.Scan(&r.ID, &at, &r.Op, &r.Detail, &r.URL, &ms, &r.Err); err != nil {
			return nil, fmt.Errorf("trail: scan: %w", err)
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}
