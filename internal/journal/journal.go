// Package journal keeps an append-only event log in SQLite, shared by
// every project under a workspace root.
//
// The journal is observational: losing it never corrupts project state,
// which lives in the per-project state files. A nil *Journal is valid
// and drops writes silently, so callers need no guards when journaling
// is disabled.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	event      TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_project ON events(project_id, created_at);
`

// Entry is one journal record.
type Entry struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Event     string `json:"event"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Journal is a handle to the shared event log.
type Journal struct {
	db *sql.DB
}

// Path returns the journal database path under a workspace root.
func Path(root string) string {
	return filepath.Join(root, ".drover", "journal.db")
}

// Open opens (creating if needed) the journal under root. WAL mode
// keeps concurrent readers from blocking the single writer.
func Open(root string) (*Journal, error) {
	path := Path(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the database handle. Nil-safe.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record appends one event. Nil-safe: a nil journal drops the entry.
func (j *Journal) Record(projectID, event, detail string) error {
	if j == nil || j.db == nil {
		return nil
	}
	_, err := j.db.Exec(
		"INSERT INTO events (id, project_id, event, detail, created_at) VALUES (?, ?, ?, ?, ?)",
		uuid.NewString(), projectID, event, detail, timeNow().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording journal event: %w", err)
	}
	return nil
}

// Tail returns the most recent entries for a project, newest first.
// An empty projectID tails across all projects.
func (j *Journal) Tail(projectID string, limit int) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	query := "SELECT id, project_id, event, detail, created_at FROM events"
	args := []any{}
	if projectID != "" {
		query += " WHERE project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Event, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// timeNow is a package-level variable for testability.
var timeNow = time.Now
