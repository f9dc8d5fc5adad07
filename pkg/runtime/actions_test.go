package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/jllopis/telos/pkg/core"
)

// recorder collects event payloads so tests can assert on dispatch order.
type recorder struct {
	mu       sync.Mutex
	payloads []core.EventPayload
}

func (r *recorder) handler() core.EventHandler {
	return func(ctx context.Context, payload core.EventPayload) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.payloads = append(r.payloads, payload)
		return nil
	}
}

func (r *recorder) names() []core.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.EventType, len(r.payloads))
	for i, p := range r.payloads {
		out[i] = p.Name
	}
	return out
}

func responseWith(actions ...string) []*core.Memory {
	return []*core.Memory{{
		ID:      uuid.New(),
		Content: core.Content{Actions: actions},
	}}
}

func TestProcessActionsRunsHandler(t *testing.T) {
	rt := newTestRuntime(t)
	ran := false
	rt.RegisterAction(&core.Action{
		Name: "REPLY",
		Handler: func(ctx context.Context, r core.Runtime, msg *core.Memory, state *core.State, opts map[string]any, cb core.HandlerCallback, responses []*core.Memory) error {
			ran = true
			return nil
		},
	})

	rt.ProcessActions(context.Background(), nil, responseWith("REPLY"), core.NewState(), nil)
	if !ran {
		t.Error("handler did not run")
	}
}

func TestProcessActionsUnknownNameSkipped(t *testing.T) {
	rt := newTestRuntime(t)
	ran := false
	rt.RegisterAction(&core.Action{
		Name: "KNOWN",
		Handler: func(ctx context.Context, r core.Runtime, msg *core.Memory, state *core.State, opts map[string]any, cb core.HandlerCallback, responses []*core.Memory) error {
			ran = true
			return nil
		},
	})

	rt.ProcessActions(context.Background(), nil, responseWith("NO_SUCH_ACTION", "KNOWN"), core.NewState(), nil)
	if !ran {
		t.Error("an unknown name must not block the actions after it")
	}
}

func TestProcessActionsSimileLookup(t *testing.T) {
	rt := newTestRuntime(t)
	ran := false
	rt.RegisterAction(&core.Action{
		Name:    "REPLY",
		Similes: []string{"RESPOND", "ANSWER"},
		Handler: func(ctx context.Context, r core.Runtime, msg *core.Memory, state *core.State, opts map[string]any, cb core.HandlerCallback, responses []*core.Memory) error {
			ran = true
			return nil
		},
	})

	rt.ProcessActions(context.Background(), nil, responseWith("answer"), core.NewState(), nil)
	if !ran {
		t.Error("simile lookup failed")
	}
}

func TestProcessActionsValidateGate(t *testing.T) {
	rt := newTestRuntime(t)
	ran := false
	rt.RegisterAction(&core.Action{
		Name: "GATED",
		Validate: func(ctx context.Context, r core.Runtime, msg *core.Memory, state *core.State) (bool, error) {
			return false, nil
		},
		Handler: func(ctx context.Context, r core.Runtime, msg *core.Memory, state *core.State, opts map[string]any, cb core.HandlerCallback, responses []*core.Memory) error {
			ran = true
			return nil
		},
	})

	rt.ProcessActions(context.Background(), nil, responseWith("GATED"), core.NewState(), nil)
	if ran {
		t.Error("handler ran despite Validate returning false")
	}
}

func TestProcessActionsValidateErrorSkips(t *testing.T) {
	rt := newTestRuntime(t)
	ran := false
	rt.RegisterAction(&core.Action{
		Name: "BROKEN_GATE",
		Validate: func(ctx context.Context, r core.Runtime, msg *core.Memory, state *core.State) (bool, error) {
			return true, errors.New("gate error")
		},
		Handler: func(ctx context.Context, r core.Runtime, msg *core.Memory, state *core.State, opts map[string]any, cb core.HandlerCallback, responses []*core.Memory) error {
			ran = true
			return nil
		},
	})

	rt.ProcessActions(context.Background(), nil, responseWith("BROKEN_GATE"), core.NewState(), nil)
	if ran {
		t.Error("a failing Validate must skip the handler")
	}
}

func TestProcessActionsFailureIsolation(t *testing.T) {
	rt := newTestRuntime(t)
	events := &recorder{}
	rt.RegisterEvent(core.EventActionCompleted, events.handler())

	rt.RegisterAction(&core.Action{
		Name: "EXPLODE",
		Handler: func(ctx context.Context, r core.Runtime, msg *core.Memory, state *core.State, opts map[string]any, cb core.HandlerCallback, responses []*core.Memory) error {
			panic("action exploded")
		},
	})
	secondRan := false
	rt.RegisterAction(&core.Action{
		Name: "SURVIVOR",
		Handler: func(ctx context.Context, r core.Runtime, msg *core.Memory, state *core.State, opts map[string]any, cb core.HandlerCallback, responses []*core.Memory) error {
			secondRan = true
			return nil
		},
	})

	rt.ProcessActions(context.Background(), nil, responseWith("EXPLODE", "SURVIVOR"), core.NewState(), nil)
	if !secondRan {
		t.Fatal("action after the panicking one did not run")
	}

	// Both actions get a completion event; the first carries the error.
	events.mu.Lock()
	defer events.mu.Unlock()
	if len(events.payloads) != 2 {
		t.Fatalf("expected 2 ACTION_COMPLETED events, got %d", len(events.payloads))
	}
	if _, ok := events.payloads[0].Data["error"]; !ok {
		t.Error("failed action's completion event missing error text")
	}
	if _, ok := events.payloads[1].Data["error"]; ok {
		t.Error("successful action's completion event carries an error")
	}
}

func TestProcessActionsLifecycleEvents(t *testing.T) {
	rt := newTestRuntime(t)
	events := &recorder{}
	rt.RegisterEvent(core.EventActionStarted, events.handler())
	rt.RegisterEvent(core.EventActionCompleted, events.handler())

	rt.RegisterAction(&core.Action{
		Name: "NOOP",
		Handler: func(ctx context.Context, r core.Runtime, msg *core.Memory, state *core.State, opts map[string]any, cb core.HandlerCallback, responses []*core.Memory) error {
			return nil
		},
	})

	rt.ProcessActions(context.Background(), nil, responseWith("NOOP"), core.NewState(), nil)

	names := events.names()
	want := []core.EventType{core.EventActionStarted, core.EventActionCompleted}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestProcessActionsCallbackThreading(t *testing.T) {
	rt := newTestRuntime(t)
	var got string
	cb := func(ctx context.Context, content core.Content) ([]core.Memory, error) {
		got = content.Text
		return nil, nil
	}
	rt.RegisterAction(&core.Action{
		Name: "SPEAK",
		Handler: func(ctx context.Context, r core.Runtime, msg *core.Memory, state *core.State, opts map[string]any, cb core.HandlerCallback, responses []*core.Memory) error {
			_, err := cb(ctx, core.Content{Text: "hello"})
			return err
		},
	})

	rt.ProcessActions(context.Background(), nil, responseWith("SPEAK"), core.NewState(), cb)
	if got != "hello" {
		t.Errorf("callback not threaded through: got %q", got)
	}
}
