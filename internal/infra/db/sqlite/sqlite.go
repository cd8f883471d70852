package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// tsLayout sorts lexically, so ORDER BY on the text column is chronological.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Open opens a SQLite database with WAL mode and foreign keys enabled.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// Migrate creates tables if they don't exist
func Migrate(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS medical_documents (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	file_name TEXT NOT NULL,
	media_type TEXT NOT NULL DEFAULT '',
	page_count INTEGER NOT NULL DEFAULT 0,
	icd_parent_codes TEXT NOT NULL DEFAULT '[]',
	icd_specified_codes TEXT NOT NULL DEFAULT '[]',
	cpt_codes TEXT NOT NULL DEFAULT '[]',
	modifiers TEXT NOT NULL DEFAULT '[]',
	hcpcs_codes TEXT NOT NULL DEFAULT '[]',
	artifact_url TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_medical_documents_user_created ON medical_documents(user_id, created_at);

CREATE TABLE IF NOT EXISTS processing_failures (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	file_name TEXT NOT NULL,
	stage TEXT NOT NULL,
	kind TEXT NOT NULL,
	message TEXT NOT NULL,
	details_json TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_processing_failures_user_created ON processing_failures(user_id, created_at);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(tsLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(tsLayout, s)
}
