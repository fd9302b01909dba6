// Package taskstore defines the persistence port for tasks. Policy
// actions reach it only through capability functions, never directly.
package taskstore

import (
	"context"

	"github.com/Strob0t/RuleForge/internal/domain/task"
)

// Store is the port interface for task persistence.
type Store interface {
	// CreateTask persists a new task built from req.
	CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error)

	// UpdateTask applies req to the stored task, or returns
	// domain.ErrNotFound.
	UpdateTask(ctx context.Context, id string, req task.UpdateRequest) (*task.Task, error)

	// GetTask returns the task with the given id.
	GetTask(ctx context.Context, id string) (*task.Task, error)

	// ListTasks returns tasks, newest first, up to limit (0 means all).
	ListTasks(ctx context.Context, limit int) ([]task.Task, error)
}
