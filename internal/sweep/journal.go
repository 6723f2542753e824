package sweep

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Journal records every sweep file action in SQLite so a run can be
// audited or resumed after an interruption.
type Journal struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS sweep_actions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    phase TEXT NOT NULL,
    bucket TEXT NOT NULL,
    src TEXT NOT NULL,
    dest TEXT NOT NULL,
    executed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sweep_actions_run ON sweep_actions(run_id);
`

// OpenJournal initializes or connects to the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sweep journal: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	journal := &Journal{db: db, path: path}
	if err := journal.execWithRetry(context.Background(), journalSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init journal schema: %w", err)
	}
	return journal, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record appends one executed action.
func (j *Journal) Record(ctx context.Context, runID string, phase string, bucket Bucket, src, dest string) error {
	return j.execWithRetry(ctx,
		`INSERT INTO sweep_actions (run_id, phase, bucket, src, dest, executed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, phase, string(bucket), src, dest, time.Now().UTC().Format(time.RFC3339Nano))
}

// PhaseCounts returns the number of journaled actions per phase for a run.
func (j *Journal) PhaseCounts(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT phase, COUNT(*) FROM sweep_actions WHERE run_id = ? GROUP BY phase`, runID)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var phase string
		var count int
		if err := rows.Scan(&phase, &count); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		counts[phase] = count
	}
	return counts, rows.Err()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func (j *Journal) execWithRetry(ctx context.Context, query string, args ...any) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		_, lastErr = j.db.ExecContext(ctx, query, args...)
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
