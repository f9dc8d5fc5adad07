package runtime

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/telemetry"
)

// Evaluate runs the post-turn reflection pass and returns the
// evaluators that executed. An evaluator is a candidate when the agent
// responded this turn or the evaluator is marked AlwaysRun; candidates
// then pass through their Validate gate. Handlers run sequentially in
// registration order, each isolated from the others: a failure or panic
// is logged, the pass continues, and the failed evaluator still counts
// as ran.
func (r *Runtime) Evaluate(ctx context.Context, msg *core.Memory, state *core.State, didRespond bool, cb core.HandlerCallback, responses []*core.Memory) []*core.Evaluator {
	r.mu.RLock()
	evaluators := append([]*core.Evaluator(nil), r.evaluators...)
	r.mu.RUnlock()

	ctx, span := r.tracer.Start(ctx, "Runtime.Evaluate", trace.WithAttributes(
		attribute.String(telemetry.AttrAgentID, r.agentID.String()),
		attribute.Bool("telos.turn.responded", didRespond),
	))
	defer span.End()

	var ran []*core.Evaluator
	for _, evaluator := range evaluators {
		if !didRespond && !evaluator.AlwaysRun {
			continue
		}
		if evaluator.Validate != nil {
			valid, err := evaluator.Validate(ctx, r, msg, state)
			if err != nil {
				r.logger.Warn("runtime.evaluator.validate.error",
					"evaluator", evaluator.Name, "error", err.Error())
				continue
			}
			if !valid {
				continue
			}
		}
		r.runEvaluator(ctx, evaluator, msg, state, cb, responses)
		ran = append(ran, evaluator)
	}
	return ran
}

func (r *Runtime) runEvaluator(ctx context.Context, evaluator *core.Evaluator, msg *core.Memory, state *core.State, cb core.HandlerCallback, responses []*core.Memory) {
	roomID := r.agentID
	if msg != nil {
		roomID = msg.RoomID
	}

	r.EmitEvent(ctx, []core.EventType{core.EventEvaluatorStarted},
		core.NewEventPayload(core.EventEvaluatorStarted, r.agentID, roomID, msg, map[string]any{
			"evaluator": evaluator.Name,
		}))

	ctx, span := r.tracer.Start(ctx, "Runtime.Evaluator", trace.WithAttributes(
		attribute.String(telemetry.AttrEvaluatorName, evaluator.Name),
	))

	start := time.Now()
	err := r.invokeHandler(ctx, evaluator.Handler, msg, state, cb, responses)
	durationMs := float64(time.Since(start).Seconds() * 1000)

	data := map[string]any{
		"evaluator":   evaluator.Name,
		"duration_ms": durationMs,
	}
	if err != nil {
		data["error"] = err.Error()
		span.RecordError(err)
		r.logger.Warn("runtime.evaluator.error",
			"evaluator", evaluator.Name,
			"duration_ms", durationMs,
			"error", err.Error(),
		)
	} else {
		r.logger.Debug("runtime.evaluator.complete",
			"evaluator", evaluator.Name,
			"duration_ms", durationMs,
		)
	}
	span.End()
	r.metrics.RecordEvaluator(ctx, evaluator.Name, err == nil)

	r.EmitEvent(ctx, []core.EventType{core.EventEvaluatorCompleted},
		core.NewEventPayload(core.EventEvaluatorCompleted, r.agentID, roomID, msg, data))
}
