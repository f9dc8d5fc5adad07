package runtime

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/telemetry"
)

// RegisterModel binds a handler to a model type; re-registration
// overwrites, so the last plugin loaded wins.
func (r *Runtime) RegisterModel(model core.ModelType, handler core.ModelHandler) {
	if model == "" || handler == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[model] = handler
}

// UseModel dispatches an inference call to the handler registered for
// the model type. An unregistered type fails immediately; retry and
// timeout behavior belongs to the handlers themselves.
func (r *Runtime) UseModel(ctx context.Context, model core.ModelType, params map[string]any) (any, error) {
	r.mu.RLock()
	handler, ok := r.models[model]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.CodeNotFound, "model not registered: %s", model).
			WithContext("model", string(model))
	}

	ctx, span := r.tracer.Start(ctx, "Runtime.UseModel", trace.WithAttributes(
		telemetry.ModelAttributes(string(model), "", "")...,
	))
	defer span.End()

	start := time.Now()
	out, err := handler(ctx, r, params)
	durationMs := float64(time.Since(start).Seconds() * 1000)

	r.metrics.RecordModel(ctx, string(model), err == nil)
	if err != nil {
		span.RecordError(err)
		r.metrics.RecordError(ctx, err, "model")
		r.logger.Warn("runtime.model.error",
			"model", string(model),
			"duration_ms", durationMs,
			"error", err.Error(),
		)
		return nil, err
	}

	r.logger.Debug("runtime.model.complete",
		"model", string(model),
		"duration_ms", durationMs,
	)
	return out, nil
}
