package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TagQueue marks a task for periodic execution by the background sweeper.
const TagQueue = "queue"

// TaskOption is one allowed resolution of a pending-choice task.
type TaskOption struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// TaskMetadata holds the scheduling and resolution contract of a task.
// Options, when present, is the menu of allowed resolutions; the bound
// worker validates the chosen option against it.
type TaskMetadata struct {
	UpdateInterval time.Duration  `json:"update_interval,omitempty"`
	Options        []TaskOption   `json:"options,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// Option returns the menu entry with the given name.
func (m TaskMetadata) Option(name string) (TaskOption, bool) {
	for _, opt := range m.Options {
		if opt.Name == name {
			return opt, true
		}
	}
	return TaskOption{}, false
}

// Task is a durable unit of deferred work. It exists from creation until
// its worker completes and deletes it, or until explicit deletion. Name
// binds the task to a registered TaskWorker; a persisted task whose worker
// is not currently registered is stalled, not broken.
type Task struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	RoomID      uuid.UUID    `json:"room_id,omitempty"`
	WorldID     uuid.UUID    `json:"world_id,omitempty"`
	EntityID    uuid.UUID    `json:"entity_id,omitempty"`
	Description string       `json:"description,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Metadata    TaskMetadata `json:"metadata,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// HasTag reports whether the task carries the given tag.
func (t *Task) HasTag(tag string) bool {
	for _, have := range t.Tags {
		if have == tag {
			return true
		}
	}
	return false
}

// TaskWorker executes tasks whose Name matches its own. Workers live in
// memory only: after a restart the hosting plugin must re-register them
// before persisted tasks can resolve again.
type TaskWorker struct {
	Name string

	// Execute resolves the task. opts carries the caller's resolution
	// input; when the task has an options menu, opts["option"] must name
	// the chosen entry. The worker validates the choice and deletes the
	// task itself once it reaches a terminal option.
	Execute func(ctx context.Context, rt Runtime, opts map[string]any, task *Task) error

	// Validate optionally restricts who may resolve the task. It is a
	// capability check on the resolving message, independent of the
	// persisted task state.
	Validate Validator
}

// TaskQuery selects tasks by scope and tags. All fields are optional;
// empty values match everything.
type TaskQuery struct {
	RoomID uuid.UUID
	Name   string
	Tags   []string
}

// TaskService is the durable task scheduler: CRUD over task records plus
// the in-memory worker registry and resolution entry point.
type TaskService interface {
	RegisterWorker(worker *TaskWorker)
	Worker(name string) (*TaskWorker, bool)
	CreateTask(ctx context.Context, task *Task) (uuid.UUID, error)
	GetTask(ctx context.Context, id uuid.UUID) (*Task, error)
	Tasks(ctx context.Context, query TaskQuery) ([]Task, error)
	UpdateTask(ctx context.Context, task *Task) error
	DeleteTask(ctx context.Context, id uuid.UUID) error

	// Resolve invokes the registered worker for the task with the given
	// options. It fails when the worker is not registered (the task is
	// stalled) or when the worker's Validate gate rejects the caller.
	Resolve(ctx context.Context, id uuid.UUID, opts map[string]any) error
}
