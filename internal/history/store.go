package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"steamfetch/internal/queue"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped on incompatible schema changes; users clear the
// database after a bump.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by a different
// version of the schema.
var ErrSchemaMismatch = errors.New("history schema version mismatch")

// Entry is one persisted terminal job record.
type Entry struct {
	ID              int64                 `json:"id"`
	JobID           string                `json:"job_id"`
	AppID           int64                 `json:"app_id"`
	Title           string                `json:"title,omitempty"`
	AuthMode        string                `json:"auth_mode"`
	TargetDir       string                `json:"target_dir"`
	FinalState      queue.State           `json:"final_state"`
	Attempts        int                   `json:"attempts"`
	BytesDownloaded int64                 `json:"bytes_downloaded"`
	ErrorLog        []queue.FailureRecord `json:"error_log,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	StartedAt       *time.Time            `json:"started_at,omitempty"`
	FinishedAt      *time.Time            `json:"finished_at,omitempty"`
	RecordedAt      time.Time             `json:"recorded_at"`
}

// Store manages history persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
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

	store := &Store{db: db, path: path}
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
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("write schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version.Int64 != schemaVersion:
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version.Int64, schemaVersion, s.path)
	default:
		return nil
	}
}

// Record persists one terminal job snapshot. A job is recorded once; a
// duplicate id is a no-op. Satisfies queue.Recorder.
func (s *Store) Record(ctx context.Context, job queue.Job) error {
	if !job.State.Terminal() {
		return fmt.Errorf("job %s is not terminal (%s)", job.ID, job.State)
	}

	errorLog, err := marshalErrorLog(job.ErrorLog)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO download_history (
            job_id, app_id, title, auth_mode, target_dir, final_state,
            attempts, bytes_downloaded, error_log,
            created_at, started_at, finished_at, recorded_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(job_id) DO NOTHING`,
		job.ID,
		job.AppID,
		nullableString(job.Title),
		string(job.AuthMode),
		job.TargetDir,
		string(job.State),
		job.AttemptCount,
		job.Progress.BytesDownloaded,
		errorLog,
		formatTime(job.CreatedAt),
		nullableTime(job.StartedAt),
		nullableTime(job.FinishedAt),
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return fmt.Errorf("insert history record: %w", err)
	}
	return nil
}

const entryColumns = "id, job_id, app_id, title, auth_mode, target_dir, final_state, attempts, bytes_downloaded, error_log, created_at, started_at, finished_at, recorded_at"

// List returns history entries newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := "SELECT " + entryColumns + " FROM download_history ORDER BY recorded_at DESC, id DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, 16)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Clear deletes entries in the given final states, or everything when no
// state is named. Returns the number of deleted rows.
func (s *Store) Clear(ctx context.Context, states ...queue.State) (int64, error) {
	query := "DELETE FROM download_history"
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		placeholders := make([]string, len(states))
		for i, state := range states {
			placeholders[i] = "?"
			args = append(args, string(state))
		}
		query += " WHERE final_state IN (" + strings.Join(placeholders, ", ") + ")"
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count cleared rows: %w", err)
	}
	return deleted, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id          int64
		jobID       string
		appID       int64
		title       sql.NullString
		authMode    string
		targetDir   string
		finalState  string
		attempts    int
		bytes       int64
		errorLog    sql.NullString
		createdRaw  string
		startedRaw  sql.NullString
		finishedRaw sql.NullString
		recordedRaw string
	)
	if err := scanner.Scan(
		&id, &jobID, &appID, &title, &authMode, &targetDir, &finalState,
		&attempts, &bytes, &errorLog, &createdRaw, &startedRaw, &finishedRaw, &recordedRaw,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:              id,
		JobID:           jobID,
		AppID:           appID,
		Title:           title.String,
		AuthMode:        authMode,
		TargetDir:       targetDir,
		FinalState:      queue.State(finalState),
		Attempts:        attempts,
		BytesDownloaded: bytes,
	}
	if errorLog.Valid && errorLog.String != "" {
		if err := json.Unmarshal([]byte(errorLog.String), &entry.ErrorLog); err != nil {
			return nil, fmt.Errorf("decode error log: %w", err)
		}
	}
	if created, err := parseTime(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	if startedRaw.Valid {
		if started, err := parseTime(startedRaw.String); err == nil {
			entry.StartedAt = &started
		}
	}
	if finishedRaw.Valid {
		if finished, err := parseTime(finishedRaw.String); err == nil {
			entry.FinishedAt = &finished
		}
	}
	if recorded, err := parseTime(recordedRaw); err == nil {
		entry.RecordedAt = recorded
	}
	return entry, nil
}

func marshalErrorLog(records []queue.FailureRecord) (any, error) {
	if len(records) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode error log: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}
