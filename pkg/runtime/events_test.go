package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/jllopis/telos/pkg/core"
)

func TestEmitEventDelivers(t *testing.T) {
	rt := newTestRuntime(t)
	events := &recorder{}
	rt.RegisterEvent(core.EventRunStarted, events.handler())

	rt.EmitEvent(context.Background(), []core.EventType{core.EventRunStarted},
		core.NewEventPayload(core.EventRunStarted, rt.AgentID(), rt.AgentID(), nil, nil))

	names := events.names()
	if len(names) != 1 || names[0] != core.EventRunStarted {
		t.Errorf("events = %v, want [RUN_STARTED]", names)
	}
}

func TestEmitEventNoHandlersIsNoop(t *testing.T) {
	rt := newTestRuntime(t)
	// Must not panic or error.
	rt.EmitEvent(context.Background(), []core.EventType{core.EventRunEnded},
		core.NewEventPayload(core.EventRunEnded, rt.AgentID(), rt.AgentID(), nil, nil))
}

func TestEmitEventHandlerErrorIsolated(t *testing.T) {
	rt := newTestRuntime(t)
	secondCalled := false
	rt.RegisterEvent(core.EventMessageSent, func(ctx context.Context, payload core.EventPayload) error {
		return errors.New("handler failed")
	})
	rt.RegisterEvent(core.EventMessageSent, func(ctx context.Context, payload core.EventPayload) error {
		secondCalled = true
		return nil
	})

	// EmitEvent has no error return; a handler failure must not escape.
	rt.EmitEvent(context.Background(), []core.EventType{core.EventMessageSent},
		core.NewEventPayload(core.EventMessageSent, rt.AgentID(), rt.AgentID(), nil, nil))

	if !secondCalled {
		t.Error("handler after the failing one was not invoked")
	}
}

func TestEmitEventHandlerPanicIsolated(t *testing.T) {
	rt := newTestRuntime(t)
	secondCalled := false
	rt.RegisterEvent(core.EventRunTimeout, func(ctx context.Context, payload core.EventPayload) error {
		panic("handler exploded")
	})
	rt.RegisterEvent(core.EventRunTimeout, func(ctx context.Context, payload core.EventPayload) error {
		secondCalled = true
		return nil
	})

	rt.EmitEvent(context.Background(), []core.EventType{core.EventRunTimeout},
		core.NewEventPayload(core.EventRunTimeout, rt.AgentID(), rt.AgentID(), nil, nil))

	if !secondCalled {
		t.Error("handler after the panicking one was not invoked")
	}
}

func TestEmitEventMultipleNames(t *testing.T) {
	rt := newTestRuntime(t)
	events := &recorder{}
	rt.RegisterEvent(core.EventRunStarted, events.handler())
	rt.RegisterEvent(core.EventMessageReceived, events.handler())

	rt.EmitEvent(context.Background(),
		[]core.EventType{core.EventRunStarted, core.EventMessageReceived},
		core.NewEventPayload(core.EventRunStarted, rt.AgentID(), rt.AgentID(), nil, nil))

	if got := len(events.names()); got != 2 {
		t.Errorf("expected delivery under both names, got %d payloads", got)
	}
}

func TestEmitEventPayloadData(t *testing.T) {
	rt := newTestRuntime(t)
	var got core.EventPayload
	rt.RegisterEvent(core.EventTaskCreated, func(ctx context.Context, payload core.EventPayload) error {
		got = payload
		return nil
	})

	rt.EmitEvent(context.Background(), []core.EventType{core.EventTaskCreated},
		core.NewEventPayload(core.EventTaskCreated, rt.AgentID(), rt.AgentID(), nil,
			map[string]any{"task": "REMIND"}))

	if got.Data["task"] != "REMIND" {
		t.Errorf("payload data lost in dispatch: %v", got.Data)
	}
	if got.At.IsZero() {
		t.Error("payload timestamp not set")
	}
}
