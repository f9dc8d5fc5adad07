package runtime

import (
	"context"
	"testing"

	"github.com/jllopis/telos/pkg/core"
)

func countingEvaluator(name string, alwaysRun bool, count *int) *core.Evaluator {
	return &core.Evaluator{
		Name:      name,
		AlwaysRun: alwaysRun,
		Handler: func(ctx context.Context, rt core.Runtime, msg *core.Memory, state *core.State, opts map[string]any, cb core.HandlerCallback, responses []*core.Memory) error {
			*count++
			return nil
		},
	}
}

func TestEvaluateSkipsWhenNoResponse(t *testing.T) {
	rt := newTestRuntime(t)
	ran := 0
	rt.RegisterEvaluator(countingEvaluator("reflection", false, &ran))

	executed := rt.Evaluate(context.Background(), nil, core.NewState(), false, nil, nil)
	if ran != 0 {
		t.Error("non-AlwaysRun evaluator ran on a turn without a response")
	}
	if len(executed) != 0 {
		t.Errorf("expected empty result on a turn without a response, got %d", len(executed))
	}

	executed = rt.Evaluate(context.Background(), nil, core.NewState(), true, nil, nil)
	if ran != 1 {
		t.Errorf("evaluator should run after a response, ran %d times", ran)
	}
	if len(executed) != 1 || executed[0].Name != "reflection" {
		t.Errorf("expected [reflection] in the result, got %v", evaluatorNames(executed))
	}
}

func evaluatorNames(evaluators []*core.Evaluator) []string {
	var names []string
	for _, e := range evaluators {
		names = append(names, e.Name)
	}
	return names
}

func TestEvaluateAlwaysRun(t *testing.T) {
	rt := newTestRuntime(t)
	ran := 0
	rt.RegisterEvaluator(countingEvaluator("audit", true, &ran))

	rt.Evaluate(context.Background(), nil, core.NewState(), false, nil, nil)
	if ran != 1 {
		t.Errorf("AlwaysRun evaluator should run without a response, ran %d times", ran)
	}
}

func TestEvaluateValidateGate(t *testing.T) {
	rt := newTestRuntime(t)
	ran := 0
	ev := countingEvaluator("gated", false, &ran)
	ev.Validate = func(ctx context.Context, rt core.Runtime, msg *core.Memory, state *core.State) (bool, error) {
		return false, nil
	}
	rt.RegisterEvaluator(ev)

	executed := rt.Evaluate(context.Background(), nil, core.NewState(), true, nil, nil)
	if ran != 0 {
		t.Error("evaluator ran despite Validate returning false")
	}
	if len(executed) != 0 {
		t.Errorf("gated-out evaluator reported as executed: %v", evaluatorNames(executed))
	}
}

func TestEvaluateFailureIsolation(t *testing.T) {
	rt := newTestRuntime(t)
	events := &recorder{}
	rt.RegisterEvent(core.EventEvaluatorCompleted, events.handler())

	rt.RegisterEvaluator(&core.Evaluator{
		Name: "explode",
		Handler: func(ctx context.Context, r core.Runtime, msg *core.Memory, state *core.State, opts map[string]any, cb core.HandlerCallback, responses []*core.Memory) error {
			panic("evaluator exploded")
		},
	})
	ran := 0
	rt.RegisterEvaluator(countingEvaluator("survivor", false, &ran))

	executed := rt.Evaluate(context.Background(), nil, core.NewState(), true, nil, nil)
	if ran != 1 {
		t.Fatal("evaluator after the panicking one did not run")
	}
	if got := len(events.names()); got != 2 {
		t.Errorf("expected 2 EVALUATOR_COMPLETED events, got %d", got)
	}
	if names := evaluatorNames(executed); len(names) != 2 || names[0] != "explode" || names[1] != "survivor" {
		t.Errorf("failed evaluator should still count as executed, got %v", names)
	}
}

func TestEvaluateRegistrationOrder(t *testing.T) {
	rt := newTestRuntime(t)
	var order []string
	mk := func(name string) *core.Evaluator {
		return &core.Evaluator{
			Name: name,
			Handler: func(ctx context.Context, r core.Runtime, msg *core.Memory, state *core.State, opts map[string]any, cb core.HandlerCallback, responses []*core.Memory) error {
				order = append(order, name)
				return nil
			},
		}
	}
	rt.RegisterEvaluator(mk("first"))
	rt.RegisterEvaluator(mk("second"))

	rt.Evaluate(context.Background(), nil, core.NewState(), true, nil, nil)
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("evaluators ran out of order: %v", order)
	}
}
