package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MemoryType classifies a stored memory record.
type MemoryType string

const (
	MemoryTypeMessage     MemoryType = "message"
	MemoryTypeDocument    MemoryType = "document"
	MemoryTypeFragment    MemoryType = "fragment"
	MemoryTypeDescription MemoryType = "description"
	MemoryTypeCustom      MemoryType = "custom"
)

// MemoryMetadata carries the typed portion of a memory record. Extra is
// the open extension slot for plugin-defined fields.
type MemoryMetadata struct {
	Type       MemoryType     `json:"type,omitempty"`
	Source     string         `json:"source,omitempty"`
	Scope      string         `json:"scope,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	DocumentID *uuid.UUID     `json:"document_id,omitempty"`
	Position   int            `json:"position,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Memory is a content record owned by an entity within a room, optionally
// tagged with an embedding vector. Similarity is the score attached by
// search results; it is not persisted.
type Memory struct {
	ID         uuid.UUID      `json:"id"`
	EntityID   uuid.UUID      `json:"entity_id"`
	AgentID    uuid.UUID      `json:"agent_id"`
	RoomID     uuid.UUID      `json:"room_id"`
	WorldID    uuid.UUID      `json:"world_id,omitempty"`
	Content    Content        `json:"content"`
	Embedding  []float32      `json:"embedding,omitempty"`
	Unique     bool           `json:"unique,omitempty"`
	Metadata   MemoryMetadata `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	Similarity float32        `json:"similarity,omitempty"`
}

// MemoryQuery selects memories by scope and recency.
type MemoryQuery struct {
	RoomID   uuid.UUID
	EntityID uuid.UUID
	Unique   bool
	Count    int
	Start    time.Time
	End      time.Time
}

// MemorySearch selects memories by embedding similarity.
type MemorySearch struct {
	Embedding      []float32
	RoomID         uuid.UUID
	MatchThreshold float32
	Count          int
	Unique         bool
}

// EmbeddingCacheHit is a previously computed embedding whose source text
// approximately matches a query. Score is a normalized similarity in
// [0, 1]; the caller decides the cutoff.
type EmbeddingCacheHit struct {
	MemoryID  uuid.UUID
	Text      string
	Embedding []float32
	Score     float32
}

// MemoryManager is the per-table facade over the storage collaborator.
// Implementations embed content on write when an embedder is configured
// and attach similarity scores on search.
type MemoryManager interface {
	Table() string
	CreateMemory(ctx context.Context, memory *Memory, unique bool) (uuid.UUID, error)
	GetMemoryByID(ctx context.Context, id uuid.UUID) (*Memory, error)
	GetMemories(ctx context.Context, query MemoryQuery) ([]Memory, error)
	SearchMemories(ctx context.Context, search MemorySearch) ([]Memory, error)
	GetCachedEmbeddings(ctx context.Context, text string) ([]EmbeddingCacheHit, error)
	DeleteMemory(ctx context.Context, id uuid.UUID) error
	CountMemories(ctx context.Context, roomID uuid.UUID, unique bool) (int, error)
}
