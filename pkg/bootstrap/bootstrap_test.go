package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/runtime"
)

func newHost(t *testing.T) *runtime.Runtime {
	t.Helper()
	rt := runtime.New(
		runtime.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		runtime.WithCharacter(&core.Character{
			Name: "ada",
			Bio:  []string{"A pragmatic assistant."},
		}),
	)
	if err := rt.RegisterPlugin(context.Background(), Plugin()); err != nil {
		t.Fatalf("RegisterPlugin: %v", err)
	}
	return rt
}

func registerEchoModels(rt *runtime.Runtime) {
	echo := func(ctx context.Context, r core.Runtime, params map[string]any) (any, error) {
		prompt, _ := params["prompt"].(string)
		return "echo: " + prompt, nil
	}
	rt.RegisterModel(core.ModelTextSmall, echo)
	rt.RegisterModel(core.ModelTextLarge, echo)
}

func userMessage(text string) *core.Memory {
	return &core.Memory{
		ID:       uuid.New(),
		EntityID: uuid.New(),
		RoomID:   uuid.New(),
		Content:  core.Content{Text: text},
	}
}

func TestComposeWithBootstrapProviders(t *testing.T) {
	rt := newHost(t)

	state, err := rt.ComposeState(context.Background(), userMessage("hello"))
	if err != nil {
		t.Fatalf("ComposeState: %v", err)
	}
	if got, _ := state.Value("agent_name"); got != "ada" {
		t.Errorf("agent_name = %v", got)
	}
	if _, ok := state.Value("time"); !ok {
		t.Error("time provider did not contribute")
	}
	if !strings.Contains(state.Text, "You are ada.") {
		t.Errorf("persona missing from text: %q", state.Text)
	}
}

func TestRecentMessagesProviderRendersHistory(t *testing.T) {
	rt := newHost(t)
	ctx := context.Background()
	roomID := uuid.New()

	first := &core.Memory{
		EntityID: uuid.New(),
		RoomID:   roomID,
		Content:  core.Content{Text: "my name is Grace"},
	}
	if _, err := rt.Memories(MessagesTable).CreateMemory(ctx, first, false); err != nil {
		t.Fatal(err)
	}

	msg := userMessage("what is my name?")
	msg.RoomID = roomID
	state, err := rt.ComposeState(ctx, msg)
	if err != nil {
		t.Fatalf("ComposeState: %v", err)
	}
	if !strings.Contains(state.Text, "my name is Grace") {
		t.Errorf("history missing from state text: %q", state.Text)
	}
}

func TestReplyActionUsesModelAndCallback(t *testing.T) {
	rt := newHost(t)
	registerEchoModels(rt)

	var delivered core.Content
	cb := func(ctx context.Context, content core.Content) ([]core.Memory, error) {
		delivered = content
		return nil, nil
	}

	msg := userMessage("hi there")
	response := &core.Memory{Content: core.Content{Actions: []string{"REPLY"}}}
	rt.ProcessActions(context.Background(), msg, []*core.Memory{response}, core.NewState(), cb)

	if delivered.Text != "echo: hi there" {
		t.Errorf("reply = %q", delivered.Text)
	}
	if delivered.InReplyTo == nil || *delivered.InReplyTo != msg.ID {
		t.Error("reply should reference the triggering message")
	}
}

func TestIgnoreActionProducesNothing(t *testing.T) {
	rt := newHost(t)

	called := false
	cb := func(ctx context.Context, content core.Content) ([]core.Memory, error) {
		called = true
		return nil, nil
	}
	response := &core.Memory{Content: core.Content{Actions: []string{"IGNORE"}}}
	rt.ProcessActions(context.Background(), userMessage("spam"), []*core.Memory{response}, core.NewState(), cb)

	if called {
		t.Error("IGNORE must not produce a reply")
	}
}

func TestPublishCreatesConfirmationTask(t *testing.T) {
	rt := newHost(t)
	ctx := context.Background()

	var delivered core.Content
	cb := func(c context.Context, content core.Content) ([]core.Memory, error) {
		delivered = content
		return nil, nil
	}
	msg := userMessage("announce the release")
	response := &core.Memory{Content: core.Content{Actions: []string{"PUBLISH"}}}
	rt.ProcessActions(ctx, msg, []*core.Memory{response}, core.NewState(), cb)

	tasks, err := rt.Tasks().Tasks(ctx, core.TaskQuery{Name: ChooseOptionTask})
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected one pending task, got %d", len(tasks))
	}
	task := tasks[0]
	if _, ok := task.Metadata.Option(OptionPost); !ok {
		t.Error("post option missing from menu")
	}
	if _, ok := task.Metadata.Option(OptionCancel); !ok {
		t.Error("cancel option missing from menu")
	}
	if task.Metadata.Extra["draft"] != "announce the release" {
		t.Errorf("draft = %v", task.Metadata.Extra["draft"])
	}
	if delivered.Text == "" {
		t.Error("publish should prompt for confirmation")
	}
}

func TestChooseOptionPostPublishesAndDeletes(t *testing.T) {
	rt := newHost(t)
	ctx := context.Background()

	msg := userMessage("announce the release")
	response := &core.Memory{Content: core.Content{Actions: []string{"PUBLISH"}}}
	rt.ProcessActions(ctx, msg, []*core.Memory{response}, core.NewState(),
		func(c context.Context, content core.Content) ([]core.Memory, error) { return nil, nil })

	tasks, err := rt.Tasks().Tasks(ctx, core.TaskQuery{Name: ChooseOptionTask})
	if err != nil || len(tasks) != 1 {
		t.Fatalf("pending task lookup: %v (%d tasks)", err, len(tasks))
	}
	taskID := tasks[0].ID

	var confirmation core.Content
	cb := core.HandlerCallback(func(c context.Context, content core.Content) ([]core.Memory, error) {
		confirmation = content
		return nil, nil
	})
	err = rt.Tasks().Resolve(ctx, taskID, map[string]any{
		"option":   OptionPost,
		"callback": cb,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if !strings.Contains(confirmation.Text, "announce the release") {
		t.Errorf("confirmation = %q", confirmation.Text)
	}

	// The published memory landed in the messages table.
	published, err := rt.Memories(MessagesTable).GetMemories(ctx, core.MemoryQuery{RoomID: msg.RoomID})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, m := range published {
		if m.Content.Source == "publish" && m.Content.Text == "announce the release" {
			found = true
		}
	}
	if !found {
		t.Error("published memory not stored")
	}

	// Terminal option deletes the task.
	got, err := rt.Tasks().GetTask(ctx, taskID)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("resolved task should be deleted")
	}
}

func TestChooseOptionRejectsOffMenuChoice(t *testing.T) {
	rt := newHost(t)
	ctx := context.Background()

	id, err := rt.Tasks().CreateTask(ctx, &core.Task{
		Name:   ChooseOptionTask,
		RoomID: uuid.New(),
		Metadata: core.TaskMetadata{
			Options: []core.TaskOption{{Name: OptionPost}, {Name: OptionCancel}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	err = rt.Tasks().Resolve(ctx, id, map[string]any{"option": "maybe"})
	if !errors.IsCode(err, errors.CodeTaskError) {
		t.Errorf("expected TASK_ERROR, got %v", err)
	}

	// A rejected choice leaves the task pending.
	got, err := rt.Tasks().GetTask(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Error("task deleted despite rejected option")
	}
}

func TestChooseOptionCancelDiscards(t *testing.T) {
	rt := newHost(t)
	ctx := context.Background()

	id, err := rt.Tasks().CreateTask(ctx, &core.Task{
		Name:   ChooseOptionTask,
		RoomID: uuid.New(),
		Metadata: core.TaskMetadata{
			Options: []core.TaskOption{{Name: OptionPost}, {Name: OptionCancel}},
			Extra:   map[string]any{"draft": "never mind"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := rt.Tasks().Resolve(ctx, id, map[string]any{"option": OptionCancel}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got, err := rt.Tasks().GetTask(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("cancelled task should be deleted")
	}
}

func TestReflectionStoresUniqueFacts(t *testing.T) {
	rt := newHost(t)
	ctx := context.Background()
	rt.RegisterModel(core.ModelTextSmall, func(c context.Context, r core.Runtime, params map[string]any) (any, error) {
		return `["Grace prefers tea over coffee"]`, nil
	})

	msg := userMessage("I prefer tea over coffee")
	rt.Evaluate(ctx, msg, core.NewState(), true, nil, nil)

	facts, err := rt.Memories(FactsTable).GetMemories(ctx, core.MemoryQuery{RoomID: msg.RoomID})
	if err != nil {
		t.Fatal(err)
	}
	if len(facts) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(facts))
	}
	if facts[0].Content.Text != "Grace prefers tea over coffee" {
		t.Errorf("fact = %q", facts[0].Content.Text)
	}
	if !facts[0].Unique {
		t.Error("facts should be written unique")
	}
}

func TestParseFacts(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{`["a", "b"]`, 2},
		{"Here you go:\n```json\n[\"a\"]\n```", 1},
		{`[]`, 0},
		{`not json`, 0},
		{`[" padded ", ""]`, 1},
	}
	for _, tc := range cases {
		if got := parseFacts(tc.in); len(got) != tc.want {
			t.Errorf("parseFacts(%q) = %v, want %d facts", tc.in, got, tc.want)
		}
	}
}
