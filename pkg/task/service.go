// Package task implements the durable task scheduler: persisted task
// records, the in-memory worker registry and the background sweeper.
package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/store"
)

// Service is the task scheduler. Task records outlive the process in the
// storage collaborator; workers live in memory only and must be
// re-registered after a restart before persisted tasks can resolve again.
type Service struct {
	store  store.Store
	rt     core.Runtime
	logger *slog.Logger

	mu      sync.RWMutex
	workers map[string]*core.TaskWorker
}

// ServiceOption configures the task service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a task scheduler over the given store. The runtime
// is used to emit lifecycle events and is handed to executing workers.
func NewService(st store.Store, rt core.Runtime, opts ...ServiceOption) *Service {
	s := &Service{
		store:   st,
		rt:      rt,
		logger:  slog.Default(),
		workers: make(map[string]*core.TaskWorker),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterWorker binds a worker to its task name; re-registration
// overwrites.
func (s *Service) RegisterWorker(worker *core.TaskWorker) {
	if worker == nil || worker.Name == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers[worker.Name] = worker
}

// Worker returns the registered worker for a task name.
func (s *Service) Worker(name string) (*core.TaskWorker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[name]
	return w, ok
}

// CreateTask persists a task and emits TASK_CREATED. A missing ID is
// assigned.
func (s *Service) CreateTask(ctx context.Context, task *core.Task) (uuid.UUID, error) {
	if task == nil || task.Name == "" {
		return uuid.Nil, errors.New(errors.CodeInvalidInput, "task requires a name", nil)
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = time.Now().UTC()
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return uuid.Nil, errors.New(errors.CodeStoreError, "create task", err).
			WithContext("task", task.Name)
	}

	s.logger.Info("task.created", "task", task.Name, "id", task.ID, "tags", task.Tags)
	s.emit(ctx, core.EventTaskCreated, task, map[string]any{
		"task_id": task.ID.String(),
		"task":    task.Name,
	})
	return task.ID, nil
}

// GetTask returns the task with the given id, or nil when absent.
func (s *Service) GetTask(ctx context.Context, id uuid.UUID) (*core.Task, error) {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "get task", err)
	}
	return task, nil
}

// Tasks returns tasks matching the query.
func (s *Service) Tasks(ctx context.Context, query core.TaskQuery) ([]core.Task, error) {
	tasks, err := s.store.Tasks(ctx, query)
	if err != nil {
		return nil, errors.New(errors.CodeStoreError, "list tasks", err)
	}
	return tasks, nil
}

// UpdateTask replaces a persisted task record.
func (s *Service) UpdateTask(ctx context.Context, task *core.Task) error {
	if task == nil || task.ID == uuid.Nil {
		return errors.New(errors.CodeInvalidInput, "task requires an id", nil)
	}
	if err := s.store.UpdateTask(ctx, task); err != nil {
		return errors.New(errors.CodeStoreError, "update task", err).
			WithContext("task", task.Name)
	}
	return nil
}

// DeleteTask removes a persisted task. Deleting a missing task is a
// no-op.
func (s *Service) DeleteTask(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return errors.New(errors.CodeStoreError, "delete task", err)
	}
	return nil
}

// Resolve invokes the registered worker for the task. A task whose worker
// is not registered is stalled: Resolve reports it without touching the
// record, and the task resolves normally once the worker is back.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, opts map[string]any) error {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if task == nil {
		return errors.Newf(errors.CodeNotFound, "task not found: %s", id)
	}

	worker, ok := s.Worker(task.Name)
	if !ok {
		return errors.Newf(errors.CodeTaskError, "task %q is stalled: no worker registered for %q", id, task.Name).
			WithContext("task", task.Name)
	}

	if worker.Validate != nil {
		msg, _ := opts["message"].(*core.Memory)
		valid, err := worker.Validate(ctx, s.rt, msg, nil)
		if err != nil {
			return errors.New(errors.CodeTaskError, "task validate failed", err).
				WithContext("task", task.Name)
		}
		if !valid {
			return errors.Newf(errors.CodeUnauthorized, "resolution of task %q rejected", task.Name)
		}
	}

	if err := worker.Execute(ctx, s.rt, opts, task); err != nil {
		return errors.New(errors.CodeTaskError, "task execute failed", err).
			WithContext("task", task.Name)
	}

	s.logger.Info("task.resolved", "task", task.Name, "id", task.ID)
	s.emit(ctx, core.EventTaskResolved, task, map[string]any{
		"task_id": task.ID.String(),
		"task":    task.Name,
		"option":  opts["option"],
	})
	return nil
}

func (s *Service) emit(ctx context.Context, name core.EventType, task *core.Task, data map[string]any) {
	if s.rt == nil {
		return
	}
	s.rt.EmitEvent(ctx, []core.EventType{name},
		core.NewEventPayload(name, s.rt.AgentID(), task.RoomID, nil, data))
}
