package runtime

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/telemetry"
)

// RegisterEvent appends a handler to the event type's list. Handlers
// run in registration order when the event fires.
func (r *Runtime) RegisterEvent(event core.EventType, handler core.EventHandler) {
	if event == "" || handler == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event] = append(r.events[event], handler)
}

// EmitEvent fires the payload at every handler registered for each of
// the named event types, sequentially and in registration order.
// Dispatch is fire and forget: handler errors and panics are logged and
// counted but never reach the emitter, and a failing handler does not
// stop the ones after it. Events with no handlers are dropped silently.
func (r *Runtime) EmitEvent(ctx context.Context, events []core.EventType, payload core.EventPayload) {
	for _, event := range events {
		r.mu.RLock()
		handlers := append([]core.EventHandler(nil), r.events[event]...)
		r.mu.RUnlock()

		if len(handlers) == 0 {
			continue
		}

		ctx, span := r.tracer.Start(ctx, "Runtime.EmitEvent", trace.WithAttributes(
			telemetry.EventAttributes(string(event), len(handlers))...,
		))

		for _, handler := range handlers {
			err := r.invokeEventHandler(ctx, handler, payload)
			r.metrics.RecordEvent(ctx, string(event), err == nil)
			if err != nil {
				span.RecordError(err)
				r.logger.Warn("runtime.event.handler.error",
					"event", string(event),
					"error", err.Error(),
				)
			}
		}
		span.End()
	}
}

func (r *Runtime) invokeEventHandler(ctx context.Context, handler core.EventHandler, payload core.EventPayload) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("event handler panic: %v", rec)
		}
	}()
	return handler(ctx, payload)
}
