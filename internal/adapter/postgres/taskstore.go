package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/RuleForge/internal/domain/task"
)

// TaskStore implements taskstore.Store using PostgreSQL.
type TaskStore struct {
	pool *pgxpool.Pool
}

// NewTaskStore creates a new TaskStore backed by the given connection pool.
func NewTaskStore(pool *pgxpool.Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

// taskColumns is the SELECT column list for tasks queries.
const taskColumns = `id, title, description, priority, labels, assignee, status, policy_id, event_id, version, created_at, updated_at`

func scanTask(row scannable) (task.Task, error) {
	var t task.Task
	err := row.Scan(
		&t.ID, &t.Title, &t.Description, &t.Priority, &t.Labels, &t.Assignee,
		&t.Status, &t.PolicyID, &t.EventID, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

// CreateTask persists a new task built from req.
func (s *TaskStore) CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO tasks (title, description, priority, labels, assignee, policy_id, event_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING %s`, taskColumns),
		req.Title, req.Description, req.Priority, pgTextArray(req.Labels),
		req.Assignee, req.PolicyID, req.EventID)

	t, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &t, nil
}

// UpdateTask applies req to the stored task.
func (s *TaskStore) UpdateTask(ctx context.Context, id string, req task.UpdateRequest) (*task.Task, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	req.Apply(t)

	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`UPDATE tasks
		 SET title = $2, description = $3, priority = $4, labels = $5, assignee = $6, status = $7,
		     version = version + 1, updated_at = now()
		 WHERE id = $1
		 RETURNING %s`, taskColumns),
		id, t.Title, t.Description, t.Priority, pgTextArray(t.Labels), t.Assignee, string(t.Status))

	updated, err := scanTask(row)
	if err != nil {
		return nil, notFoundWrap(err, "update task %s", id)
	}
	return &updated, nil
}

// GetTask returns the task with the given id.
func (s *TaskStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM tasks WHERE id = $1`, taskColumns), id)

	t, err := scanTask(row)
	if err != nil {
		return nil, notFoundWrap(err, "get task %s", id)
	}
	return &t, nil
}

// ListTasks returns tasks, newest first, up to limit (0 means all).
func (s *TaskStore) ListTasks(ctx context.Context, limit int) ([]task.Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM tasks ORDER BY created_at DESC`, taskColumns)
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
