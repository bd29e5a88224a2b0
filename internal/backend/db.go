// Package backend implements the reference backend service the sync
// layer runs against: the task table (source of truth) and the
// realtime change feed.
//
// The database runs embedded using SQLite with WAL mode for concurrent
// reads. Clients never touch it directly; they go through the HTTP API
// served by Server, which is what the gateway client speaks.
package backend

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/careloop/careloop/internal/task"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite connection holding the task table.
type DB struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

// OpenDB creates a database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent
// reads and created along with its schema if it doesn't exist.
// The caller MUST call Close() when done.
func OpenDB(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path, now: time.Now}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := db.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection after checkpointing the WAL.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// initSchema creates the task table and indexes. Idempotent.
func (db *DB) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		time TEXT NOT NULL DEFAULT '',
		completed INTEGER NOT NULL DEFAULT 0,
		user_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_user_created ON tasks(user_id, created_at);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// FetchAll returns every task owned by userID, ordered by created_at
// ascending.
func (db *DB) FetchAll(ctx context.Context, userID string) ([]task.Task, error) {
	query := `
	SELECT id, title, time, completed, user_id, created_at, updated_at
	FROM tasks
	WHERE user_id = ?
	ORDER BY created_at ASC
	`

	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// UpsertTask inserts or updates a task.
//
// updated_at is stamped with the current server time at the moment of
// the call. created_at is set on first insert and never rewritten on
// update, regardless of what the client sent.
func (db *DB) UpsertTask(ctx context.Context, t task.Task) (task.Task, error) {
	if err := t.Validate(); err != nil {
		return task.Task{}, fmt.Errorf("invalid task: %w", err)
	}

	now := db.now().UTC()
	t.UpdatedAt = now
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}

	query := `
	INSERT INTO tasks (id, title, time, completed, user_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		time = excluded.time,
		completed = excluded.completed,
		user_id = excluded.user_id,
		updated_at = excluded.updated_at
	`

	_, err := db.conn.ExecContext(ctx, query,
		t.ID,
		t.Title,
		t.Time,
		boolToInt(t.Completed),
		t.UserID,
		t.CreatedAt.Format(time.RFC3339Nano),
		t.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return task.Task{}, fmt.Errorf("failed to upsert task: %w", err)
	}

	// Re-read so the caller sees the stored record, including a
	// preserved created_at when the row already existed.
	stored, err := db.GetTask(ctx, t.ID)
	if err != nil {
		return task.Task{}, err
	}
	return *stored, nil
}

// UpsertTasks applies UpsertTask as a batch inside one transaction.
// Any record failing fails the whole batch.
func (db *DB) UpsertTasks(ctx context.Context, tasks []task.Task) ([]task.Task, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := db.now().UTC()
	query := `
	INSERT INTO tasks (id, title, time, completed, user_id, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		time = excluded.time,
		completed = excluded.completed,
		user_id = excluded.user_id,
		updated_at = excluded.updated_at
	`

	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("invalid task %s: %w", t.ID, err)
		}
		createdAt := t.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := tx.ExecContext(ctx, query,
			t.ID,
			t.Title,
			t.Time,
			boolToInt(t.Completed),
			t.UserID,
			createdAt.Format(time.RFC3339Nano),
			now.Format(time.RFC3339Nano),
		); err != nil {
			return nil, fmt.Errorf("failed to upsert task %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch: %w", err)
	}

	out := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		stored, err := db.GetTask(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, *stored)
	}
	return out, nil
}

// DeleteTask removes a task. Returns nil if it doesn't exist.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// GetTask retrieves a single task by id.
// Returns sql.ErrNoRows if the task is not found.
func (db *DB) GetTask(ctx context.Context, id string) (*task.Task, error) {
	query := `
	SELECT id, title, time, completed, user_id, created_at, updated_at
	FROM tasks
	WHERE id = ?
	`

	row := db.conn.QueryRowContext(ctx, query, id)

	var t task.Task
	var completed int
	var createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.Title, &t.Time, &completed, &t.UserID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Completed = completed != 0
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

// TaskCount returns the total number of tasks in the table.
func (db *DB) TaskCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

func scanTasks(rows *sql.Rows) ([]task.Task, error) {
	var tasks []task.Task
	for rows.Next() {
		var t task.Task
		var completed int
		var createdAt, updatedAt string

		if err := rows.Scan(&t.ID, &t.Title, &t.Time, &completed, &t.UserID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.Completed = completed != 0
		t.CreatedAt = parseTime(createdAt)
		t.UpdatedAt = parseTime(updatedAt)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// parseTime decodes a stored RFC3339 timestamp. A malformed value
// yields the zero time, which loses every LWW comparison.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
