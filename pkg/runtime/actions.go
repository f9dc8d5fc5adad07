package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/telemetry"
)

// ProcessActions dispatches the actions named by each response memory, in
// order. Unknown action names are logged and skipped; a false or failing
// Validate skips the handler; a handler failure or panic is isolated so
// the remaining actions still run. ACTION_STARTED and ACTION_COMPLETED
// fire around every handler invocation, the latter carrying elapsed time
// and the error text when the handler failed.
func (r *Runtime) ProcessActions(ctx context.Context, msg *core.Memory, responses []*core.Memory, state *core.State, cb core.HandlerCallback) {
	ctx, span := r.tracer.Start(ctx, "Runtime.ProcessActions", trace.WithAttributes(
		attribute.String(telemetry.AttrAgentID, r.agentID.String()),
	))
	defer span.End()

	for _, response := range responses {
		if response == nil {
			continue
		}
		for _, name := range response.Content.Actions {
			action := r.findAction(name)
			if action == nil {
				r.logger.Warn("runtime.action.unknown", "action", name)
				continue
			}

			if action.Validate != nil {
				valid, err := action.Validate(ctx, r, msg, state)
				if err != nil {
					r.logger.Warn("runtime.action.validate.error",
						"action", action.Name, "error", err.Error())
					continue
				}
				if !valid {
					r.logger.Debug("runtime.action.skipped", "action", action.Name)
					continue
				}
			}

			r.runAction(ctx, action, msg, responses, state, cb)
		}
	}
}

// findAction resolves an action by exact name first, then by simile.
// Matching is case-insensitive.
func (r *Runtime) findAction(name string) *core.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if action, ok := r.actions[name]; ok {
		return action
	}
	for _, action := range r.actionList {
		if strings.EqualFold(action.Name, name) {
			return action
		}
		for _, simile := range action.Similes {
			if strings.EqualFold(simile, name) {
				return action
			}
		}
	}
	return nil
}

func (r *Runtime) runAction(ctx context.Context, action *core.Action, msg *core.Memory, responses []*core.Memory, state *core.State, cb core.HandlerCallback) {
	roomID := r.agentID
	if msg != nil {
		roomID = msg.RoomID
	}

	r.EmitEvent(ctx, []core.EventType{core.EventActionStarted},
		core.NewEventPayload(core.EventActionStarted, r.agentID, roomID, msg, map[string]any{
			"action": action.Name,
		}))

	ctx, span := r.tracer.Start(ctx, "Runtime.Action", trace.WithAttributes(
		attribute.String(telemetry.AttrActionName, action.Name),
	))

	start := time.Now()
	err := r.invokeHandler(ctx, action.Handler, msg, state, cb, responses)
	durationMs := float64(time.Since(start).Seconds() * 1000)

	data := map[string]any{
		"action":      action.Name,
		"duration_ms": durationMs,
	}
	if err != nil {
		data["error"] = err.Error()
		span.RecordError(err)
		r.logger.Error("runtime.action.error",
			"action", action.Name,
			"duration_ms", durationMs,
			"error", err.Error(),
		)
	} else {
		r.logger.Info("runtime.action.complete",
			"action", action.Name,
			"duration_ms", durationMs,
		)
	}
	span.SetAttributes(telemetry.HandlerAttributes(action.Name, durationMs, err == nil)...)
	span.End()
	r.metrics.RecordAction(ctx, action.Name, durationMs, err == nil)
	if err != nil {
		r.metrics.RecordError(ctx, err, "action")
	}

	r.EmitEvent(ctx, []core.EventType{core.EventActionCompleted},
		core.NewEventPayload(core.EventActionCompleted, r.agentID, roomID, msg, data))
}

// invokeHandler runs a handler with panic isolation.
func (r *Runtime) invokeHandler(ctx context.Context, handler core.Handler, msg *core.Memory, state *core.State, cb core.HandlerCallback, responses []*core.Memory) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	if handler == nil {
		return nil
	}
	return handler(ctx, r, msg, state, nil, cb, responses)
}
