package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// maxCycles bounds the history table.
const maxCycles = 500

// Cycle is a summary of one reconciliation cycle.
type Cycle struct {
	ID       string
	Started  time.Time
	Finished time.Time
	Lists    int
	Tasks    int
	Records  int
	Created  int
	Archived int
	Updated  int
	Failed   int
	Skipped  int
	Aborted  string
}

// RecordCycle stores c and prunes the oldest entries beyond maxCycles.
func (idx *LinkIndex) RecordCycle(ctx context.Context, c Cycle) error {
	var aborted sql.NullString
	if c.Aborted != "" {
		aborted = sql.NullString{String: c.Aborted, Valid: true}
	}
	_, err := idx.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cycles
			(id, started_at, finished_at, lists, tasks, records, created, archived, updated, failed, skipped, aborted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Started.UTC(), c.Finished.UTC(), c.Lists, c.Tasks, c.Records,
		c.Created, c.Archived, c.Updated, c.Failed, c.Skipped, aborted)
	if err != nil {
		return fmt.Errorf("failed to record cycle %s: %w", c.ID, err)
	}

	_, err = idx.db.ExecContext(ctx, `
		DELETE FROM cycles WHERE id NOT IN (
			SELECT id FROM cycles ORDER BY started_at DESC LIMIT ?
		)
	`, maxCycles)
	return err
}

// RecentCycles returns up to n cycles, newest first.
func (idx *LinkIndex) RecentCycles(ctx context.Context, n int) ([]Cycle, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, lists, tasks, records, created, archived, updated, failed, skipped, aborted
		FROM cycles ORDER BY started_at DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to read cycles: %w", err)
	}
	defer rows.Close()

	var cycles []Cycle
	for rows.Next() {
		var c Cycle
		var aborted sql.NullString
		if err := rows.Scan(&c.ID, &c.Started, &c.Finished, &c.Lists, &c.Tasks, &c.Records,
			&c.Created, &c.Archived, &c.Updated, &c.Failed, &c.Skipped, &aborted); err != nil {
			return nil, err
		}
		c.Aborted = aborted.String
		cycles = append(cycles, c)
	}
	return cycles, rows.Err()
}
