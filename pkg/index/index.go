package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// LinkIndex maps task keys to the IDs of the rows they were synced to, and keeps a
// short history of reconciliation cycles.
type LinkIndex struct {
	db *sql.DB
}

// NewLinkIndex opens (creating if needed) the index database at path.
func NewLinkIndex(path string) (*LinkIndex, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)

	idx := &LinkIndex{db: db}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *LinkIndex) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS links (
			task_key TEXT PRIMARY KEY,
			record_id TEXT NOT NULL,
			title TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_links_record ON links(record_id);

		CREATE TABLE IF NOT EXISTS cycles (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			lists INTEGER NOT NULL,
			tasks INTEGER NOT NULL,
			records INTEGER NOT NULL,
			created INTEGER NOT NULL,
			archived INTEGER NOT NULL,
			updated INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			aborted TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at);
	`
	if _, err := idx.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate index: %w", err)
	}
	return nil
}

// Close closes the database.
func (idx *LinkIndex) Close() error {
	return idx.db.Close()
}

// Links returns every task key -> row ID link.
func (idx *LinkIndex) Links(ctx context.Context) (map[string]string, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT task_key, record_id FROM links`)
	if err != nil {
		return nil, fmt.Errorf("failed to read links: %w", err)
	}
	defer rows.Close()

	links := make(map[string]string)
	for rows.Next() {
		var key, recordID string
		if err := rows.Scan(&key, &recordID); err != nil {
			return nil, err
		}
		links[key] = recordID
	}
	return links, rows.Err()
}

// Link points taskKey at recordID, replacing any previous link.
func (idx *LinkIndex) Link(ctx context.Context, taskKey, recordID, title string) error {
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO links (task_key, record_id, title, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(task_key) DO UPDATE SET record_id = excluded.record_id, title = excluded.title, updated_at = excluded.updated_at
	`, taskKey, recordID, title, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to link %s: %w", taskKey, err)
	}
	return nil
}

// UnlinkRecord deletes every link pointing at recordID.
func (idx *LinkIndex) UnlinkRecord(ctx context.Context, recordID string) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM links WHERE record_id = ?`, recordID)
	if err != nil {
		return fmt.Errorf("failed to unlink %s: %w", recordID, err)
	}
	return nil
}
