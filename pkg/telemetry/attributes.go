// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for Telos runtime telemetry.
// These follow OpenTelemetry naming conventions where applicable.
const (
	// Agent attributes
	AttrAgentID    = "telos.agent.id"
	AttrAgentName  = "telos.agent.name"
	AttrAgentRunID = "telos.agent.run_id"

	// Room / turn attributes
	AttrRoomID    = "telos.room.id"
	AttrMessageID = "telos.message.id"

	// Provider attributes
	AttrProviderName     = "telos.provider.name"
	AttrProviderPosition = "telos.provider.position"
	AttrProviderCount    = "telos.provider.count"

	// Action / evaluator attributes
	AttrActionName     = "telos.action.name"
	AttrActionValid    = "telos.action.valid"
	AttrEvaluatorName  = "telos.evaluator.name"
	AttrHandlerSuccess = "telos.handler.success"
	AttrDurationMs     = "telos.handler.duration_ms"

	// Model attributes (extending standard gen_ai conventions)
	AttrModelType     = "telos.model.type"
	AttrLLMModel      = "gen_ai.request.model"
	AttrLLMProvider   = "gen_ai.system"
	AttrLLMDurationMs = "gen_ai.duration_ms"

	// Memory attributes
	AttrMemoryTable     = "telos.memory.table"
	AttrMemoryRetrieved = "telos.memory.retrieved_count"
	AttrMemoryThreshold = "telos.memory.match_threshold"

	// Task attributes
	AttrTaskID     = "telos.task.id"
	AttrTaskName   = "telos.task.name"
	AttrTaskOption = "telos.task.option"
	AttrTaskTags   = "telos.task.tags"

	// Event attributes
	AttrEventName     = "telos.event.name"
	AttrEventHandlers = "telos.event.handler_count"

	// Service attributes
	AttrServiceType = "telos.service.type"
)

// TurnAttributes returns common attributes for per-turn spans.
func TurnAttributes(agentID, roomID, messageID, runID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentID, agentID),
		attribute.String(AttrAgentRunID, runID),
	}
	if roomID != "" {
		attrs = append(attrs, attribute.String(AttrRoomID, roomID))
	}
	if messageID != "" {
		attrs = append(attrs, attribute.String(AttrMessageID, messageID))
	}
	return attrs
}

// ProviderAttributes returns attributes for a provider invocation span.
func ProviderAttributes(name string, position int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrProviderName, name),
		attribute.Int(AttrProviderPosition, position),
	}
}

// HandlerAttributes returns attributes for action/evaluator handler spans.
func HandlerAttributes(name string, durationMs float64, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrActionName, name),
		attribute.Float64(AttrDurationMs, durationMs),
		attribute.Bool(AttrHandlerSuccess, success),
	}
}

// ModelAttributes returns attributes for model dispatch spans.
func ModelAttributes(modelType, model, provider string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrModelType, modelType),
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrLLMModel, model))
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	return attrs
}

// MemoryAttributes returns attributes for memory facade operations.
func MemoryAttributes(table string, retrieved int, threshold float64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrMemoryTable, table),
	}
	if retrieved > 0 {
		attrs = append(attrs, attribute.Int(AttrMemoryRetrieved, retrieved))
	}
	if threshold > 0 {
		attrs = append(attrs, attribute.Float64(AttrMemoryThreshold, threshold))
	}
	return attrs
}

// TaskAttributes returns attributes for task scheduler spans.
func TaskAttributes(taskID, name string, tags []string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if taskID != "" {
		attrs = append(attrs, attribute.String(AttrTaskID, taskID))
	}
	if name != "" {
		attrs = append(attrs, attribute.String(AttrTaskName, name))
	}
	if len(tags) > 0 {
		attrs = append(attrs, attribute.StringSlice(AttrTaskTags, tags))
	}
	return attrs
}

// EventAttributes returns attributes for event bus dispatch.
func EventAttributes(name string, handlerCount int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrEventName, name),
		attribute.Int(AttrEventHandlers, handlerCount),
	}
}
