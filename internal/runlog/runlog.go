// Package runlog records pipeline stage runs in a SQLite ledger.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Stage names.
const (
	StageFetch     = "fetch"
	StageAggregate = "aggregate"
	StageWindow    = "window"
)

// Entry statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// Entry is one row of the sync_log table.
type Entry struct {
	ID          int64          `json:"id"`
	RunID       string         `json:"run_id"`
	Stage       string         `json:"stage"`
	Subject     string         `json:"subject"`
	Status      string         `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Rows        int64          `json:"rows"`
	Files       int            `json:"files"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Result holds the outcome of a stage, passed to Complete.
type Result struct {
	Rows     int64          `json:"rows"`
	Files    int            `json:"files"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	RunID  string
	Stage  string
	Status string
	Limit  int
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// Store is the SQLite-backed ledger.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "runlog: exec %s", pragma)
		}
	}
	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS sync_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	stage        TEXT NOT NULL,
	subject      TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	rows         INTEGER NOT NULL DEFAULT 0,
	files        INTEGER NOT NULL DEFAULT 0,
	error        TEXT,
	metadata     TEXT
);

CREATE INDEX IF NOT EXISTS idx_sync_log_run_id ON sync_log(run_id);
CREATE INDEX IF NOT EXISTS idx_sync_log_stage ON sync_log(stage, subject);
`

// Migrate creates the sync_log table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "runlog: migrate")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Start records the beginning of a stage and returns its entry ID.
func (s *Store) Start(ctx context.Context, runID, stage, subject string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_log (run_id, stage, subject, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		runID, stage, subject, StatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "runlog: start %s %s", stage, subject)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "runlog: last insert id")
	}
	return id, nil
}

// Complete marks an entry as successfully finished.
func (s *Store) Complete(ctx context.Context, id int64, result *Result) error {
	var rows int64
	var files int
	var meta sql.NullString
	if result != nil {
		rows, files = result.Rows, result.Files
		if result.Metadata != nil {
			b, err := json.Marshal(result.Metadata)
			if err != nil {
				return eris.Wrap(err, "runlog: marshal metadata")
			}
			meta = sql.NullString{String: string(b), Valid: true}
		}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_log SET status = ?, completed_at = ?, rows = ?, files = ?, metadata = ? WHERE id = ?`,
		StatusComplete, time.Now().UTC(), rows, files, meta, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete %d", id)
	}
	return checkRowsAffected(res, id)
}

// Fail marks an entry as failed with the given message.
func (s *Store) Fail(ctx context.Context, id int64, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sync_log SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		StatusFailed, time.Now().UTC(), errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail %d", id)
	}
	return checkRowsAffected(res, id)
}

// LastSuccess returns when the stage last completed for subject, or nil if
// it never has.
func (s *Store) LastSuccess(ctx context.Context, stage, subject string) (*time.Time, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT started_at FROM sync_log
		 WHERE stage = ? AND subject = ? AND status = ?
		 ORDER BY started_at DESC, id DESC LIMIT 1`,
		stage, subject, StatusComplete,
	).Scan(&t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: last success for %s %s", stage, subject)
	}
	return &t, nil
}

// List returns entries matching filter, most recent first. The default limit
// is 100.
func (s *Store) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `SELECT id, run_id, stage, subject, status, started_at, completed_at, rows, files, error, metadata
		FROM sync_log WHERE 1=1`
	var args []any

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, filter.Stage)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY started_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list")
	}
	defer rows.Close() //nolint:errcheck

	var entries []Entry
	for rows.Next() {
		var e Entry
		var completedAt sql.NullTime
		var errStr, meta sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Stage, &e.Subject, &e.Status, &e.StartedAt,
			&completedAt, &e.Rows, &e.Files, &errStr, &meta); err != nil {
			return nil, eris.Wrap(err, "runlog: scan entry")
		}
		if completedAt.Valid {
			e.CompletedAt = &completedAt.Time
		}
		e.Error = errStr.String
		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				return nil, eris.Wrapf(err, "runlog: unmarshal metadata %d", e.ID)
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "runlog: list iterate")
}

func checkRowsAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "runlog: rows affected")
	}
	if n == 0 {
		return eris.Errorf("runlog: entry %d not found", id)
	}
	return nil
}
