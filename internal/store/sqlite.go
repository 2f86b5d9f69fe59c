package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/modeld/internal/model"

	_ "modernc.org/sqlite"
)

const createTasksTable = `
CREATE TABLE IF NOT EXISTS tasks (
    id            TEXT PRIMARY KEY,
    task_id       TEXT NOT NULL,
    email_address TEXT NOT NULL,
    model_name    TEXT NOT NULL,
    model_version TEXT NOT NULL,
    failure_count INTEGER NOT NULL DEFAULT 0,
    parameters    TEXT NOT NULL,
    state         TEXT NOT NULL,
    error         TEXT NOT NULL DEFAULT '',
    subject       TEXT NOT NULL DEFAULT '',
    attachments   TEXT NOT NULL DEFAULT '[]',
    duration_ms   INTEGER,
    created_at    DATETIME NOT NULL,
    started_at    DATETIME,
    finished_at   DATETIME
)`

const createTaskIDIndex = `CREATE INDEX IF NOT EXISTS tasks_task_id ON tasks (task_id)`

const createLogLinesTable = `
CREATE TABLE IF NOT EXISTS log_lines (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id     TEXT NOT NULL,
    seq        INTEGER NOT NULL,
    line       TEXT NOT NULL,
    created_at DATETIME NOT NULL
)`

const createLogLinesIndex = `CREATE INDEX IF NOT EXISTS log_lines_run_id ON log_lines (run_id, seq)`

const taskColumns = `id, task_id, email_address, model_name, model_version, failure_count,
	parameters, state, error, subject, attachments, duration_ms,
	created_at, started_at, finished_at`

// ErrNotFound is returned when a task run is not found.
var ErrNotFound = errors.New("task not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A :memory: database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createTasksTable, createTaskIDIndex, createLogLinesTable, createLogLinesIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateTask inserts a new task run.
func (s *SQLiteStore) CreateTask(ctx context.Context, r *model.TaskRun) error {
	params, attachments, err := encodeCollections(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TaskID, r.EmailAddress, r.ModelName, r.ModelVersion, r.FailureCount,
		params, r.State, r.Error, r.Subject, attachments, r.DurationMS,
		r.CreatedAt, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask retrieves a task run by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*model.TaskRun, error) {
	r, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return r, nil
}

// ListTasks returns a paginated list of task runs ordered by created_at DESC,
// along with the total count of all runs.
func (s *SQLiteStore) ListTasks(ctx context.Context, limit, offset int) ([]*model.TaskRun, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var runs []*model.TaskRun
	for rows.Next() {
		r, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan task: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tasks: %w", err)
	}

	return runs, total, nil
}

// UpdateTaskState moves a task run to state. Entering running sets
// started_at; entering a terminal state sets finished_at.
func (s *SQLiteStore) UpdateTaskState(ctx context.Context, id string, state model.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := checkTransition(ctx, tx, id, state); err != nil {
		return err
	}

	now := time.Now().UTC()
	switch {
	case state == model.StateRunning:
		_, err = tx.ExecContext(ctx, "UPDATE tasks SET state = ?, started_at = ? WHERE id = ?", state, now, id)
	case state.Terminal():
		_, err = tx.ExecContext(ctx, "UPDATE tasks SET state = ?, finished_at = ? WHERE id = ?", state, now, id)
	default:
		_, err = tx.ExecContext(ctx, "UPDATE tasks SET state = ? WHERE id = ?", state, id)
	}
	if err != nil {
		return fmt.Errorf("update task state: %w", err)
	}

	return tx.Commit()
}

// UpdateTask writes every mutable field of r. A state change must be a valid
// transition; writing the current state again is allowed.
func (s *SQLiteStore) UpdateTask(ctx context.Context, r *model.TaskRun) error {
	_, attachments, err := encodeCollections(r)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current model.State
	err = tx.QueryRowContext(ctx, "SELECT state FROM tasks WHERE id = ?", r.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get task state: %w", err)
	}
	if current != r.State && !model.ValidTransition(current, r.State) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current, r.State)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE tasks SET state = ?, error = ?, subject = ?, attachments = ?,
			duration_ms = ?, started_at = ?, finished_at = ?
		WHERE id = ?`,
		r.State, r.Error, r.Subject, attachments,
		r.DurationMS, r.StartedAt, r.FinishedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	return tx.Commit()
}

// GetTaskStats returns counts by state and model and the average duration of
// runs that recorded one.
func (s *SQLiteStore) GetTaskStats(ctx context.Context) (*TaskStats, error) {
	stats := &TaskStats{
		CountByState: make(map[string]int),
		CountByModel: make(map[string]int),
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(AVG(duration_ms), 0) FROM tasks",
	).Scan(&stats.Total, &stats.AvgDurationMS); err != nil {
		return nil, fmt.Errorf("task totals: %w", err)
	}

	if err := s.countBy(ctx, "state", stats.CountByState); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "model_name", stats.CountByModel); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *SQLiteStore) countBy(ctx context.Context, column string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM tasks GROUP BY "+column)
	if err != nil {
		return fmt.Errorf("count tasks by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan %s count: %w", column, err)
		}
		into[key] = n
	}
	return rows.Err()
}

// InsertLogLine stores one line of run output.
func (s *SQLiteStore) InsertLogLine(ctx context.Context, runID string, seq int, line string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO log_lines (run_id, seq, line, created_at) VALUES (?, ?, ?, ?)",
		runID, seq, line, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert log line: %w", err)
	}
	return nil
}

// GetLogLines returns the output of a run ordered by seq. It never returns a
// nil slice.
func (s *SQLiteStore) GetLogLines(ctx context.Context, runID string) ([]model.LogLine, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_id, seq, line, created_at FROM log_lines WHERE run_id = ? ORDER BY seq ASC",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get log lines: %w", err)
	}
	defer rows.Close()

	lines := []model.LogLine{}
	for rows.Next() {
		var l model.LogLine
		if err := rows.Scan(&l.ID, &l.RunID, &l.Seq, &l.Line, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate log lines: %w", err)
	}
	return lines, nil
}

func checkTransition(ctx context.Context, tx *sql.Tx, id string, to model.State) error {
	var current model.State
	err := tx.QueryRowContext(ctx, "SELECT state FROM tasks WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get task state: %w", err)
	}
	if !model.ValidTransition(current, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current, to)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.TaskRun, error) {
	r := &model.TaskRun{}
	var params, attachments string
	if err := row.Scan(
		&r.ID, &r.TaskID, &r.EmailAddress, &r.ModelName, &r.ModelVersion, &r.FailureCount,
		&params, &r.State, &r.Error, &r.Subject, &attachments, &r.DurationMS,
		&r.CreatedAt, &r.StartedAt, &r.FinishedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(params), &r.Parameters); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	if err := json.Unmarshal([]byte(attachments), &r.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	return r, nil
}

func encodeCollections(r *model.TaskRun) (params, attachments string, err error) {
	p := r.Parameters
	if p == nil {
		p = map[string]string{}
	}
	pb, err := json.Marshal(p)
	if err != nil {
		return "", "", fmt.Errorf("encode parameters: %w", err)
	}
	a := r.Attachments
	if a == nil {
		a = []string{}
	}
	ab, err := json.Marshal(a)
	if err != nil {
		return "", "", fmt.Errorf("encode attachments: %w", err)
	}
	return string(pb), string(ab), nil
}
