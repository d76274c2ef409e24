package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"taskboard-api/domain"
)

var (
	// ErrNotFound is returned when no task with the requested id exists.
	ErrNotFound = errors.New("task not found")
	// ErrVersionConflict is returned when a compare-and-swap update loses a
	// version race. It is always distinguishable from ErrNotFound.
	ErrVersionConflict = errors.New("task version conflict")
	// ErrDuplicateID is returned when creating a task whose id already exists.
	ErrDuplicateID = errors.New("task id already exists")
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	column_name TEXT NOT NULL CHECK (column_name IN ('todo', 'in-progress', 'done')),
	order_index REAL NOT NULL,
	version INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_column_order ON tasks (column_name, order_index);
`

// taskColumns is the canonical SELECT column list for tasks.
const taskColumns = `id, title, description, column_name, order_index, version, created_at, updated_at`

const timeLayout = time.RFC3339Nano

// Storage persists tasks in a SQLite database.
type Storage struct {
	db *sql.DB
}

// New opens the SQLite database at the given path, creating the parent
// directory and schema as needed. ":memory:" opens an in-memory database.
func New(path string) (*Storage, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	// busy_timeout is per-connection, so both pragmas ride the DSN and apply
	// to every connection the pool opens. WAL keeps readers unblocked while
	// a write transaction commits.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetAll returns every task ordered by (column, order).
func (s *Storage) GetAll(ctx context.Context) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks ORDER BY column_name, order_index`)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return tasks, nil
}

// GetByID returns the task with the given id or ErrNotFound.
func (s *Storage) GetByID(ctx context.Context, id string) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("reading task %s: %w", id, err)
	}
	return t, nil
}

// Create persists a new task, assigning both timestamps to the current time.
func (s *Storage) Create(ctx context.Context, t domain.Task) (domain.Task, error) {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.Version == 0 {
		t.Version = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, string(t.Column), t.Order, t.Version,
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.Task{}, fmt.Errorf("inserting task %s: %w", t.ID, ErrDuplicateID)
		}
		return domain.Task{}, fmt.Errorf("inserting task: %w", err)
	}
	return t, nil
}

// Update applies the supplied fields to the task iff its stored version still
// equals expectedVersion, bumping the version by one and refreshing updatedAt.
// The compare-and-swap is a single UPDATE statement; on zero affected rows the
// task is re-probed to tell ErrNotFound apart from ErrVersionConflict. No
// partial application is ever observable.
func (s *Storage) Update(ctx context.Context, id string, fields domain.TaskFields, expectedVersion int64) (domain.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, fmt.Errorf("beginning update transaction: %w", err)
	}
	defer tx.Rollback()

	set := make([]string, 0, 6)
	args := make([]any, 0, 8)
	if fields.Title != nil {
		set = append(set, "title = ?")
		args = append(args, *fields.Title)
	}
	if fields.Description != nil {
		set = append(set, "description = ?")
		args = append(args, *fields.Description)
	}
	if fields.Column != nil {
		set = append(set, "column_name = ?")
		args = append(args, string(*fields.Column))
	}
	if fields.Order != nil {
		set = append(set, "order_index = ?")
		args = append(args, *fields.Order)
	}
	set = append(set, "version = version + 1", "updated_at = ?")
	args = append(args, time.Now().UTC().Format(timeLayout), id, expectedVersion)

	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET `+strings.Join(set, ", ")+` WHERE id = ? AND version = ?`, args...)
	if err != nil {
		return domain.Task{}, fmt.Errorf("updating task %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Task{}, fmt.Errorf("updating task %s: %w", id, err)
	}
	if affected == 0 {
		var v int64
		probeErr := tx.QueryRowContext(ctx, `SELECT version FROM tasks WHERE id = ?`, id).Scan(&v)
		if errors.Is(probeErr, sql.ErrNoRows) {
			return domain.Task{}, ErrNotFound
		}
		if probeErr != nil {
			return domain.Task{}, fmt.Errorf("probing task %s: %w", id, probeErr)
		}
		return domain.Task{}, ErrVersionConflict
	}

	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		return domain.Task{}, fmt.Errorf("reading updated task %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, fmt.Errorf("committing update: %w", err)
	}
	return t, nil
}

// Delete removes the task unconditionally and reports whether a row existed.
// There is deliberately no version gate here: deletion always wins.
func (s *Storage) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("deleting task %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deleting task %s: %w", id, err)
	}
	return affected > 0, nil
}

// MaxOrderInColumn returns the highest order value in the column, or 0 when
// the column is empty.
func (s *Storage) MaxOrderInColumn(ctx context.Context, column domain.Column) (float64, error) {
	var max float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(order_index), 0) FROM tasks WHERE column_name = ?`,
		string(column)).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("reading max order for %s: %w", column, err)
	}
	return max, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var column, createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &column, &t.Order, &t.Version, &createdAt, &updatedAt); err != nil {
		return domain.Task{}, err
	}
	t.Column = domain.Column(column)
	var err error
	if t.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return domain.Task{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return domain.Task{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return t, nil
}
