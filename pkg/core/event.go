package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a runtime lifecycle event.
type EventType string

const (
	EventMessageReceived    EventType = "MESSAGE_RECEIVED"
	EventMessageSent        EventType = "MESSAGE_SENT"
	EventRunStarted         EventType = "RUN_STARTED"
	EventRunEnded           EventType = "RUN_ENDED"
	EventRunTimeout         EventType = "RUN_TIMEOUT"
	EventActionStarted      EventType = "ACTION_STARTED"
	EventActionCompleted    EventType = "ACTION_COMPLETED"
	EventEvaluatorStarted   EventType = "EVALUATOR_STARTED"
	EventEvaluatorCompleted EventType = "EVALUATOR_COMPLETED"
	EventTaskCreated        EventType = "TASK_CREATED"
	EventTaskResolved       EventType = "TASK_RESOLVED"
)

// EventPayload is delivered to every handler registered for an event
// name. Data carries event-specific fields (action name, elapsed time,
// error text) keyed by convention.
type EventPayload struct {
	Name    EventType
	AgentID uuid.UUID
	RoomID  uuid.UUID
	Message *Memory
	Data    map[string]any
	At      time.Time
}

// EventHandler observes one event name. Dispatch is fire-and-forget: a
// handler error is logged and isolated, never surfaced to the emitter.
type EventHandler func(ctx context.Context, payload EventPayload) error

// NewEventPayload builds a payload stamped with the current UTC time.
func NewEventPayload(name EventType, agentID, roomID uuid.UUID, msg *Memory, data map[string]any) EventPayload {
	return EventPayload{
		Name:    name,
		AgentID: agentID,
		RoomID:  roomID,
		Message: msg,
		Data:    data,
		At:      time.Now().UTC(),
	}
}
