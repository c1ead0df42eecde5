package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(ns sql.NullString) time.Time {
	if !ns.Valid || ns.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// SqlLedger implements Ledger with SQLite.
type SqlLedger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger at path and brings its schema current.
func Open(path string) (*SqlLedger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; concurrent verification tasks report through the pipeline.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	l := &SqlLedger{db: db, now: time.Now}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SqlLedger) migrate() error {
	var tables int
	err := l.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tables)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tables == 0 {
		if _, err := l.db.Exec(schemaV1); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := l.db.Exec("INSERT INTO schema_version(version) VALUES(?)", currentSchemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}

	var v int
	if err := l.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != currentSchemaVersion {
		return fmt.Errorf("unknown ledger schema version %d", v)
	}
	return nil
}

// Close closes the database.
func (l *SqlLedger) Close() error { return l.db.Close() }

func (l *SqlLedger) StartRun(command, chainMode, policy string) (int64, error) {
	res, err := l.db.Exec(
		"INSERT INTO runs(command, chain_mode, policy, started_at) VALUES(?, ?, ?, ?)",
		command, chainMode, policy, formatTime(l.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

func (l *SqlLedger) RecordContribution(c Contribution) error {
	_, err := l.db.Exec(`INSERT INTO contribution_results
		(run_id, number, contributor, anchor, status, failed_kind, failure, invocations, duration_ms, log_path, error)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.RunID, c.Number, c.Contributor, c.Anchor, c.Status, c.FailedKind, c.Failure,
		c.Invocations, c.Duration.Milliseconds(), c.LogPath, c.Error,
	)
	if err != nil {
		return fmt.Errorf("insert contribution %04d: %w", c.Number, err)
	}
	return nil
}

func (l *SqlLedger) FinishRun(runID int64, t RunTotals) error {
	res, err := l.db.Exec(`UPDATE runs SET finished_at = ?, verified = ?, failed = ?, errored = ?,
		fetched = ?, sync_failed = ?, exit_code = ? WHERE id = ?`,
		formatTime(l.now()), t.Verified, t.Failed, t.Errored, t.Fetched, t.SyncFailed, t.ExitCode, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %d: %w", runID, ErrRunNotFound)
	}
	return nil
}

const runColumns = `id, command, chain_mode, policy, started_at, finished_at,
	verified, failed, errored, fetched, sync_failed, exit_code`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var r Run
	var started, finished sql.NullString
	err := s.Scan(&r.ID, &r.Command, &r.ChainMode, &r.Policy, &started, &finished,
		&r.Verified, &r.Failed, &r.Errored, &r.Fetched, &r.SyncFailed, &r.ExitCode)
	if err != nil {
		return nil, err
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	return &r, nil
}

func (l *SqlLedger) GetRun(runID int64) (*Run, error) {
	r, err := scanRun(l.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %d: %w", runID, err)
	}
	return r, nil
}

// ListRuns returns the newest runs first. limit <= 0 means all.
func (l *SqlLedger) ListRuns(limit int) ([]*Run, error) {
	q := "SELECT " + runColumns + " FROM runs ORDER BY id DESC"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := l.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListContributions returns a run's outcomes ordered by contribution number.
func (l *SqlLedger) ListContributions(runID int64) ([]*Contribution, error) {
	rows, err := l.db.Query(`SELECT run_id, number, contributor, anchor, status, failed_kind, failure,
		invocations, duration_ms, log_path, error
		FROM contribution_results WHERE run_id = ? ORDER BY number, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()
	var out []*Contribution
	for rows.Next() {
		var c Contribution
		var anchor, failedKind, failure, logPath, errText sql.NullString
		var ms int64
		if err := rows.Scan(&c.RunID, &c.Number, &c.Contributor, &anchor, &c.Status, &failedKind, &failure,
			&c.Invocations, &ms, &logPath, &errText); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		c.Anchor = nullStr(anchor)
		c.FailedKind = nullStr(failedKind)
		c.Failure = nullStr(failure)
		c.LogPath = nullStr(logPath)
		c.Error = nullStr(errText)
		c.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, &c)
	}
	return out, rows.Err()
}
