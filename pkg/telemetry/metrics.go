// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/telos/pkg/errors"
)

// RuntimeMetrics tracks dispatch counts and latencies for the agent runtime.
type RuntimeMetrics struct {
	// actionCounter tracks action handler invocations by name and outcome
	actionCounter metric.Int64Counter

	// actionLatency tracks action handler latency in milliseconds
	actionLatency metric.Float64Histogram

	// evaluatorCounter tracks evaluator invocations by name and outcome
	evaluatorCounter metric.Int64Counter

	// providerLatency tracks provider Get latency in milliseconds
	providerLatency metric.Float64Histogram

	// modelCounter tracks UseModel dispatches by model type and outcome
	modelCounter metric.Int64Counter

	// eventCounter tracks event handler invocations by event name and outcome
	eventCounter metric.Int64Counter

	// taskCounter tracks task executions by worker name and outcome
	taskCounter metric.Int64Counter

	// errorCounter tracks errors by code and component
	errorCounter metric.Int64Counter

	mu sync.RWMutex
}

// NewRuntimeMetrics creates a runtime metrics tracker with OTEL meters.
func NewRuntimeMetrics(ctx context.Context) (*RuntimeMetrics, error) {
	meter := otel.Meter("telos/runtime")

	actionCounter, err := meter.Int64Counter(
		"telos.actions.total",
		metric.WithDescription("Action handler invocations by name and outcome"),
	)
	if err != nil {
		return nil, err
	}

	actionLatency, err := meter.Float64Histogram(
		"telos.actions.latency_ms",
		metric.WithDescription("Action handler latency in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	evaluatorCounter, err := meter.Int64Counter(
		"telos.evaluators.total",
		metric.WithDescription("Evaluator invocations by name and outcome"),
	)
	if err != nil {
		return nil, err
	}

	providerLatency, err := meter.Float64Histogram(
		"telos.providers.latency_ms",
		metric.WithDescription("Provider Get latency in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	modelCounter, err := meter.Int64Counter(
		"telos.models.total",
		metric.WithDescription("Model dispatches by model type and outcome"),
	)
	if err != nil {
		return nil, err
	}

	eventCounter, err := meter.Int64Counter(
		"telos.events.total",
		metric.WithDescription("Event handler invocations by event name and outcome"),
	)
	if err != nil {
		return nil, err
	}

	taskCounter, err := meter.Int64Counter(
		"telos.tasks.total",
		metric.WithDescription("Task executions by worker name and outcome"),
	)
	if err != nil {
		return nil, err
	}

	errorCounter, err := meter.Int64Counter(
		"telos.errors.total",
		metric.WithDescription("Total errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	return &RuntimeMetrics{
		actionCounter:    actionCounter,
		actionLatency:    actionLatency,
		evaluatorCounter: evaluatorCounter,
		providerLatency:  providerLatency,
		modelCounter:     modelCounter,
		eventCounter:     eventCounter,
		taskCounter:      taskCounter,
		errorCounter:     errorCounter,
	}, nil
}

func outcome(success bool) string {
	if success {
		return "ok"
	}
	return "error"
}

// RecordAction records an action handler invocation with its latency.
func (rm *RuntimeMetrics) RecordAction(ctx context.Context, name string, durationMs float64, success bool) {
	if rm == nil {
		return
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()

	attrs := metric.WithAttributes(
		attribute.String(AttrActionName, name),
		attribute.String("outcome", outcome(success)),
	)
	rm.actionCounter.Add(ctx, 1, attrs)
	rm.actionLatency.Record(ctx, durationMs, attrs)
}

// RecordEvaluator records an evaluator invocation.
func (rm *RuntimeMetrics) RecordEvaluator(ctx context.Context, name string, success bool) {
	if rm == nil {
		return
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()

	rm.evaluatorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(AttrEvaluatorName, name),
			attribute.String("outcome", outcome(success)),
		),
	)
}

// RecordProvider records a provider Get latency.
func (rm *RuntimeMetrics) RecordProvider(ctx context.Context, name string, durationMs float64) {
	if rm == nil {
		return
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()

	rm.providerLatency.Record(ctx, durationMs,
		metric.WithAttributes(
			attribute.String(AttrProviderName, name),
		),
	)
}

// RecordModel records a UseModel dispatch.
func (rm *RuntimeMetrics) RecordModel(ctx context.Context, modelType string, success bool) {
	if rm == nil {
		return
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()

	rm.modelCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(AttrModelType, modelType),
			attribute.String("outcome", outcome(success)),
		),
	)
}

// RecordEvent records an event handler invocation.
func (rm *RuntimeMetrics) RecordEvent(ctx context.Context, eventName string, success bool) {
	if rm == nil {
		return
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()

	rm.eventCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(AttrEventName, eventName),
			attribute.String("outcome", outcome(success)),
		),
	)
}

// RecordTask records a task execution by worker name.
func (rm *RuntimeMetrics) RecordTask(ctx context.Context, workerName string, success bool) {
	if rm == nil {
		return
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()

	rm.taskCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(AttrTaskName, workerName),
			attribute.String("outcome", outcome(success)),
		),
	)
}

// RecordError increments the error counter for the given error and component.
func (rm *RuntimeMetrics) RecordError(ctx context.Context, err error, component string) {
	if rm == nil || err == nil {
		return
	}

	rm.mu.RLock()
	defer rm.mu.RUnlock()

	code := "UNKNOWN"
	recoverable := "unknown"
	if te, ok := err.(*errors.Error); ok {
		code = string(te.Code)
		if te.Recoverable {
			recoverable = "true"
		} else {
			recoverable = "false"
		}
	}
	rm.errorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error.code", code),
			attribute.String("component", component),
			attribute.String("recoverable", recoverable),
		),
	)
}
