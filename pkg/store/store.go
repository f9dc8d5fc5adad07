// Package store defines the storage collaborator behind the memory facade
// and the task scheduler.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/telos/pkg/core"
)

// Store is the durable backend for memories, tasks and the embedding
// cache. Memories are partitioned by logical table name; tasks live in a
// single namespace.
type Store interface {
	// Memories
	CreateMemory(ctx context.Context, table string, memory *core.Memory) error
	GetMemoryByID(ctx context.Context, table string, id uuid.UUID) (*core.Memory, error)
	GetMemories(ctx context.Context, table string, query core.MemoryQuery) ([]core.Memory, error)
	SearchMemories(ctx context.Context, table string, search core.MemorySearch) ([]core.Memory, error)
	MemoriesWithEmbeddings(ctx context.Context, table string, limit int) ([]core.Memory, error)
	DeleteMemory(ctx context.Context, table string, id uuid.UUID) error
	CountMemories(ctx context.Context, table string, roomID uuid.UUID, unique bool) (int, error)

	// Tasks
	CreateTask(ctx context.Context, task *core.Task) error
	GetTask(ctx context.Context, id uuid.UUID) (*core.Task, error)
	Tasks(ctx context.Context, query core.TaskQuery) ([]core.Task, error)
	UpdateTask(ctx context.Context, task *core.Task) error
	DeleteTask(ctx context.Context, id uuid.UUID) error

	// Embedding cache, keyed by content hash. Expired entries are treated
	// as absent.
	GetCache(ctx context.Context, key string) ([]byte, bool, error)
	SetCache(ctx context.Context, key string, value []byte, expiresAt time.Time) error
	DeleteCache(ctx context.Context, key string) error

	Close() error
}
