// Package sqlstore implements store.TaskStore on database/sql. The engine
// specifics (placeholders, constraint errors, migrations) come from a Dialect
// supplied by the postgres and sqlite packages.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/goalq/internal/domain"
	"github.com/phrazzld/goalq/internal/store"
)

const taskColumns = `id, goal, max_steps, state, created_at, started_at, finished_at, result`

// TaskStore implements store.TaskStore against a SQL database.
type TaskStore struct {
	db      *sql.DB
	dialect Dialect
}

var _ store.TaskStore = (*TaskStore)(nil)

// New returns a TaskStore using db. The schema must already be migrated.
func New(db *sql.DB, dialect Dialect) *TaskStore {
	return &TaskStore{db: db, dialect: dialect}
}

// DB exposes the underlying handle for health checks.
func (s *TaskStore) DB() *sql.DB {
	return s.db
}

// Create implements store.TaskStore.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if task.State != domain.TaskStateQueued {
		return fmt.Errorf("%w: new tasks must be queued", domain.ErrInvalidTransition)
	}

	query := s.dialect.Rebind(`INSERT INTO tasks (id, goal, max_steps, state, created_at) VALUES (?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.Goal,
		task.MaxSteps,
		string(task.State),
		task.CreatedAt.UnixNano(),
	)
	if err != nil {
		mapped := s.dialect.MapError(err)
		if store.IsDuplicateError(mapped) {
			return store.ErrTaskExists
		}
		return mapped
	}
	return nil
}

// Get implements store.TaskStore.
func (s *TaskStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	task, err := s.get(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, s.dialect.MapError(err)
	}
	return task, nil
}

func (s *TaskStore) get(ctx context.Context, db store.DBTX, id string) (*domain.Task, error) {
	query := s.dialect.Rebind(`SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`)
	return scanTask(db.QueryRowContext(ctx, query, id))
}

// List implements store.TaskStore. A single SELECT is a consistent snapshot.
func (s *TaskStore) List(ctx context.Context, opts store.ListOptions) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any

	if opts.State != "" {
		query += ` WHERE state = ?`
		args = append(args, string(opts.State))
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, store.Unavailable("list", err)
	}
	defer rows.Close()

	tasks := []*domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, store.Unavailable("list", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("list", err)
	}
	return tasks, nil
}

// Move implements store.TaskStore. The UPDATE carries the expected source
// state in its WHERE clause, so concurrent movers serialize on the row and
// every one but the first updates nothing.
func (s *TaskStore) Move(ctx context.Context, m store.Move) (*domain.Task, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	set, args := s.moveAssignments(m)
	query := s.dialect.Rebind(`UPDATE tasks SET ` + set + ` WHERE id = ? AND state = ?`)
	args = append(args, m.TaskID, string(m.From))

	var moved *domain.Task
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return store.Unavailable("move", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return store.Unavailable("move", err)
		}

		current, err := s.get(ctx, tx, m.TaskID)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrTaskNotFound
		}
		if err != nil {
			return store.Unavailable("move", err)
		}
		if n == 0 {
			return store.ErrStateConflict
		}

		moved = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return moved, nil
}

// moveAssignments builds the SET clause. Timestamps are clamped in SQL the
// same way domain.Task.Transition clamps them.
func (s *TaskStore) moveAssignments(m store.Move) (string, []any) {
	at := m.At.UTC().UnixNano()
	g := s.dialect.Greatest

	switch m.To {
	case domain.TaskStateProcessing:
		return `state = ?, started_at = ` + g + `(?, created_at)`, []any{string(m.To), at}
	case domain.TaskStateCancelled:
		return `state = ?, finished_at = ` + g + `(?, created_at)`, []any{string(m.To), at}
	default:
		var result any
		if m.Result != nil {
			result = string(m.Result)
		}
		return `state = ?, finished_at = ` + g + `(?, COALESCE(started_at, created_at)), result = ?`,
			[]any{string(m.To), at, result}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task       domain.Task
		state      string
		createdAt  int64
		startedAt  sql.NullInt64
		finishedAt sql.NullInt64
		result     sql.NullString
	)

	if err := row.Scan(&task.ID, &task.Goal, &task.MaxSteps, &state, &createdAt, &startedAt, &finishedAt, &result); err != nil {
		return nil, err
	}

	task.State = domain.TaskState(state)
	task.CreatedAt = time.Unix(0, createdAt).UTC()
	if startedAt.Valid {
		t := time.Unix(0, startedAt.Int64).UTC()
		task.StartedAt = &t
	}
	if finishedAt.Valid {
		t := time.Unix(0, finishedAt.Int64).UTC()
		task.FinishedAt = &t
	}
	if result.Valid {
		task.Result = json.RawMessage(result.String)
	}
	return &task, nil
}
