package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"ldseq/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; operators clear the ledger database after schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Run statuses recorded in the ledger.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run summarizes one pipeline invocation.
type Run struct {
	ID           string
	Command      string
	Status       string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Discovered   int
	Skipped      int
	Completed    int
	Failed       int
	ErrorMessage string
}

// SampleResult records how one sample finished within a run.
type SampleResult struct {
	RunID        string
	Base         string
	Outcome      string
	FailedStage  string
	Cause        string
	ErrorMessage string
	Stages       string
	Duration     time.Duration
	CreatedAt    time.Time
}

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

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// Open initializes or connects to the run ledger database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureStateDir(); err != nil {
		return nil, fmt.Errorf("ensure state dir: %w", err)
	}

	dbPath := cfg.LedgerPath()
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

// Path returns the database location for diagnostics.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		return nil
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

// BeginRun inserts a run row in the running state.
func (s *Store) BeginRun(ctx context.Context, id, command string, discovered, skipped int) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("run id must not be empty")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := s.execWithRetry(ctx,
		`INSERT INTO runs (id, command, status, started_at, discovered, skipped)
         VALUES (?, ?, ?, ?, ?, ?)`,
		id, command, RunStatusRunning, now, discovered, skipped,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun closes out a run row with final counts and status.
func (s *Store) FinishRun(ctx context.Context, id string, completed, failed int, status, errorMessage string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := s.execWithRetry(ctx,
		`UPDATE runs
         SET status = ?, finished_at = ?, completed = ?, failed = ?, error_message = ?
         WHERE id = ?`,
		status, now, completed, failed, nullableString(errorMessage), id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// RecordSample appends one sample outcome to a run.
func (s *Store) RecordSample(ctx context.Context, result SampleResult) error {
	if strings.TrimSpace(result.RunID) == "" {
		return errors.New("sample result requires a run id")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := s.execWithRetry(ctx,
		`INSERT INTO sample_results (run_id, base, outcome, failed_stage, cause, error_message, stages, duration_ms, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID,
		result.Base,
		result.Outcome,
		nullableString(result.FailedStage),
		nullableString(result.Cause),
		nullableString(result.ErrorMessage),
		nullableString(result.Stages),
		result.Duration.Milliseconds(),
		now,
	)
	if err != nil {
		return fmt.Errorf("record sample: %w", err)
	}
	return nil
}

const runColumns = "id, command, status, started_at, finished_at, discovered, skipped, completed, failed, error_message"

// GetRun fetches a run by identifier, returning nil when absent.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// LatestRun returns the most recently started run, or nil when the ledger
// is empty.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs ordered newest first, up to limit (all when limit
// is non-positive).
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// SampleResults returns the per-sample outcomes for a run in insertion order.
func (s *Store) SampleResults(ctx context.Context, runID string) ([]SampleResult, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT run_id, base, outcome, failed_stage, cause, error_message, stages, duration_ms, created_at
         FROM sample_results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list sample results: %w", err)
	}
	defer rows.Close()

	var results []SampleResult
	for rows.Next() {
		var (
			result      SampleResult
			failedStage sql.NullString
			cause       sql.NullString
			message     sql.NullString
			stages      sql.NullString
			durationMS  int64
			createdRaw  string
		)
		if err := rows.Scan(&result.RunID, &result.Base, &result.Outcome, &failedStage, &cause, &message, &stages, &durationMS, &createdRaw); err != nil {
			return nil, err
		}
		result.FailedStage = failedStage.String
		result.Cause = cause.String
		result.ErrorMessage = message.String
		result.Stages = stages.String
		result.Duration = time.Duration(durationMS) * time.Millisecond
		if created, err := parseTimeString(createdRaw); err == nil {
			result.CreatedAt = created
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// PruneRuns deletes runs older than the cutoff, returning how many were
// removed. Sample results follow through the foreign key cascade.
func (s *Store) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx,
			`DELETE FROM runs WHERE started_at < ?`,
			cutoff.UTC().Format(time.RFC3339Nano))
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run          Run
		startedRaw   string
		finishedRaw  sql.NullString
		errorMessage sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Command,
		&run.Status,
		&startedRaw,
		&finishedRaw,
		&run.Discovered,
		&run.Skipped,
		&run.Completed,
		&run.Failed,
		&errorMessage,
	); err != nil {
		return nil, err
	}
	run.ErrorMessage = errorMessage.String
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			run.FinishedAt = &finished
		}
	}
	return &run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
