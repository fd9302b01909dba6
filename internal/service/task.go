package service

import (
	"context"
	"fmt"

	"github.com/Strob0t/RuleForge/internal/domain"
	"github.com/Strob0t/RuleForge/internal/domain/task"
	"github.com/Strob0t/RuleForge/internal/port/taskstore"
)

// TaskService exposes the task store to the API surface. Policy
// actions write tasks through capability functions; this service is
// the read/write path for humans.
type TaskService struct {
	store taskstore.Store
}

// NewTaskService creates a new TaskService.
func NewTaskService(store taskstore.Store) *TaskService {
	return &TaskService{store: store}
}

// List returns the most recent tasks, newest first. A limit of zero
// returns everything.
func (s *TaskService) List(ctx context.Context, limit int) ([]task.Task, error) {
	return s.store.ListTasks(ctx, limit)
}

// Get returns a task by ID.
func (s *TaskService) Get(ctx context.Context, id string) (*task.Task, error) {
	return s.store.GetTask(ctx, id)
}

// Create validates and persists a task.
func (s *TaskService) Create(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}
	return s.store.CreateTask(ctx, req)
}

// Update applies a partial update to a task.
func (s *TaskService) Update(ctx context.Context, id string, req task.UpdateRequest) (*task.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}
	return s.store.UpdateTask(ctx, id, req)
}
