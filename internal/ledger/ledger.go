package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Ledger records the start/finish of every sync pass; `list` reports the
// finish date of the most recent completed one. It shares one *sql.DB, capped to a single
// connection (the teacher's sole-writer pattern for its action_queue
// ledger) — a sync pass is already single-threaded (spec.md §5), so there
// is never contention to arbitrate.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or migrates the SQLite database at path and returns a
// ready-to-use Ledger.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: opening %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Ledger{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// PassRecord is one row of sync-pass history.
type PassRecord struct {
	ID                int64
	CycleID           string
	StartedAt         time.Time
	FinishedAt        *time.Time
	ObjectsReconciled int
	ObjectsFailed     int
	ErrorMsg          string
}

// StartPass inserts a new in-progress pass row and returns its generated
// cycle id (spec.md GLOSSARY addition: "Cycle ID") and database row id.
func (l *Ledger) StartPass(ctx context.Context) (passID int64, cycleID string, err error) {
	cycleID = uuid.NewString()

	result, err := l.db.ExecContext(ctx,
		`INSERT INTO sync_passes (cycle_id, started_at) VALUES (?, ?)`,
		cycleID, time.Now().Unix())
	if err != nil {
		return 0, "", fmt.Errorf("ledger: starting pass: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, "", fmt.Errorf("ledger: reading new pass id: %w", err)
	}

	return id, cycleID, nil
}

// FinishPass records the outcome of a previously started pass.
func (l *Ledger) FinishPass(ctx context.Context, passID int64, reconciled, failed int, errMsg string) error {
	var errArg any
	if errMsg != "" {
		errArg = errMsg
	}

	_, err := l.db.ExecContext(ctx,
		`UPDATE sync_passes SET finished_at = ?, objects_reconciled = ?, objects_failed = ?, error_msg = ?
		 WHERE id = ?`,
		time.Now().Unix(), reconciled, failed, errArg, passID)
	if err != nil {
		return fmt.Errorf("ledger: finishing pass %d: %w", passID, err)
	}

	return nil
}

// RecentPasses returns the most recent limit passes, newest first.
func (l *Ledger) RecentPasses(ctx context.Context, limit int) ([]PassRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, cycle_id, started_at, finished_at, objects_reconciled, objects_failed, error_msg
		 FROM sync_passes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: querying recent passes: %w", err)
	}
	defer rows.Close()

	var out []PassRecord

	for rows.Next() {
		var (
			rec        PassRecord
			started    int64
			finished   sql.NullInt64
			errMsg     sql.NullString
		)

		if err := rows.Scan(&rec.ID, &rec.CycleID, &started, &finished, &rec.ObjectsReconciled, &rec.ObjectsFailed, &errMsg); err != nil {
			return nil, fmt.Errorf("ledger: scanning pass row: %w", err)
		}

		rec.StartedAt = time.Unix(started, 0)
		if finished.Valid {
			t := time.Unix(finished.Int64, 0)
			rec.FinishedAt = &t
		}
		rec.ErrorMsg = errMsg.String

		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterating pass rows: %w", err)
	}

	return out, nil
}
