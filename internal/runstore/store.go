// Package runstore keeps a local SQLite history of publish runs so operators
// can audit what the dispatcher did to each record and when.
package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"reelpress/internal/config"
)

// Store manages run history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
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

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
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

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the run history database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "runs.db"))
}

// OpenPath opens the run history database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS publish_runs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL UNIQUE,
        record_identity TEXT NOT NULL,
        account TEXT NOT NULL,
        source_path TEXT NOT NULL,
        dest_path TEXT,
        status TEXT NOT NULL,
        reason TEXT,
        exit_code INTEGER NOT NULL DEFAULT 0,
        host TEXT NOT NULL,
        started_at TEXT NOT NULL,
        finished_at TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_publish_runs_account ON publish_runs(account);
    CREATE INDEX IF NOT EXISTS idx_publish_runs_record ON publish_runs(record_identity);`

	if _, err := s.execWithRetry(ctx, schema); err != nil {
		return fmt.Errorf("init run schema: %w", err)
	}
	return nil
}

// Begin records the start of a run and returns it with a fresh run id.
func (s *Store) Begin(ctx context.Context, recordIdentity, account, sourcePath, destPath, host string) (*Run, error) {
	run := &Run{
		RunID:          uuid.NewString(),
		RecordIdentity: recordIdentity,
		Account:        account,
		SourcePath:     sourcePath,
		DestPath:       destPath,
		Status:         StatusRunning,
		Host:           host,
		StartedAt:      time.Now().UTC(),
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO publish_runs (
            run_id, record_identity, account, source_path, dest_path,
            status, exit_code, host, started_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		run.RecordIdentity,
		run.Account,
		run.SourcePath,
		nullableString(run.DestPath),
		run.Status,
		0,
		run.Host,
		run.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	if run.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return run, nil
}

// Finish marks a run terminal with its outcome and runner exit code.
func (s *Store) Finish(ctx context.Context, runID string, status Status, reason string, exitCode int) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE publish_runs
            SET status = ?, reason = ?, exit_code = ?, finished_at = ?
          WHERE run_id = ?`,
		status,
		nullableString(reason),
		exitCode,
		time.Now().UTC().Format(time.RFC3339Nano),
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// List returns the most recent runs, newest first. An empty account matches
// all accounts; limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, account string, limit int) ([]*Run, error) {
	ctx = ensureContext(ctx)

	query := `SELECT id, run_id, record_identity, account, source_path, dest_path,
            status, reason, exit_code, host, started_at, finished_at
        FROM publish_runs`
	args := []any{}
	if account != "" {
		query += " WHERE account = ?"
		args = append(args, account)
	}
	query += " ORDER BY started_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// GetByRunID loads one run.
func (s *Store) GetByRunID(ctx context.Context, runID string) (*Run, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, run_id, record_identity, account, source_path, dest_path,
            status, reason, exit_code, host, started_at, finished_at
        FROM publish_runs WHERE run_id = ?`,
		runID,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// Stats aggregates run counts. An empty account matches all accounts.
func (s *Store) Stats(ctx context.Context, account string) (Stats, error) {
	ctx = ensureContext(ctx)

	query := `SELECT status, COUNT(*) FROM publish_runs`
	args := []any{}
	if account != "" {
		query += " WHERE account = ?"
		args = append(args, account)
	}
	query += " GROUP BY status"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Stats{}, fmt.Errorf("query run stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, fmt.Errorf("scan run stats: %w", err)
		}
		stats.Total += count
		switch status {
		case StatusSucceeded:
			stats.Succeeded = count
		case StatusFailed:
			stats.Failed = count
		case StatusRunning:
			stats.Running = count
		}
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		destPath   sql.NullString
		reason     sql.NullString
		startedAt  string
		finishedAt sql.NullString
	)
	if err := row.Scan(
		&run.ID, &run.RunID, &run.RecordIdentity, &run.Account, &run.SourcePath,
		&destPath, &run.Status, &reason, &run.ExitCode, &run.Host,
		&startedAt, &finishedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.DestPath = destPath.String
	run.Reason = reason.String

	var err error
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt.Valid {
		if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt.String); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	return &run, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
