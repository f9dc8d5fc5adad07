package core

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Runtime is the capability surface handed to every provider, action,
// evaluator, event handler and task worker. It is an owned runtime-context
// object passed by injection, never a package-level singleton, so several
// runtimes can coexist in one process.
type Runtime interface {
	// AgentID identifies the hosted agent.
	AgentID() uuid.UUID

	// Character returns the hosted persona. Never nil.
	Character() *Character

	// Setting reads a flat configuration value, checking plugin config
	// before character settings. Missing keys return "".
	Setting(key string) string

	// UseModel dispatches a request to the handler registered for the
	// model type. It fails with a NOT_FOUND error when no handler is
	// registered. Concurrent calls for the same type may interleave.
	UseModel(ctx context.Context, model ModelType, params map[string]any) (any, error)

	// Service returns the live service instance for the type, or nil.
	Service(serviceType string) Service

	// Memories returns the memory manager for a table, creating it on
	// first use.
	Memories(table string) MemoryManager

	// Tasks returns the task scheduler.
	Tasks() TaskService

	// EmitEvent notifies every handler registered for each given event
	// name. Handler failures are isolated; EmitEvent never fails because
	// a handler failed.
	EmitEvent(ctx context.Context, names []EventType, payload EventPayload)

	// Logger returns the runtime's structured logger.
	Logger() *slog.Logger
}
