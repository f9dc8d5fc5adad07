package bootstrap

import (
	"context"
	"time"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
)

// Task and option names for the publish confirmation flow.
const (
	ChooseOptionTask = "CHOOSE_OPTION"

	OptionPost   = "post"
	OptionCancel = "cancel"
)

// ReplyAction generates a response with the large text model and
// delivers it through the callback.
func ReplyAction() *core.Action {
	return &core.Action{
		Name:        "REPLY",
		Similes:     []string{"RESPOND", "ANSWER"},
		Description: "Generate and send a reply to the current message",
		Validate: func(ctx context.Context, rt core.Runtime, msg *core.Memory, state *core.State) (bool, error) {
			return msg != nil && msg.Content.Text != "", nil
		},
		Handler: func(ctx context.Context, rt core.Runtime, msg *core.Memory, state *core.State, opts map[string]any, cb core.HandlerCallback, responses []*core.Memory) error {
			if cb == nil {
				return nil
			}
			params := map[string]any{
				"prompt": msg.Content.Text,
			}
			if state != nil && state.Text != "" {
				params["system"] = state.Text
			}
			out, err := rt.UseModel(ctx, core.ModelTextLarge, params)
			if err != nil {
				return err
			}
			text, ok := out.(string)
			if !ok {
				return errors.Newf(errors.CodeModelError, "text model returned %T, want string", out)
			}

			_, err = cb(ctx, core.Content{
				Text:      text,
				Actions:   []string{"REPLY"},
				InReplyTo: &msg.ID,
			})
			return err
		},
	}
}

// IgnoreAction deliberately produces nothing. The agent chooses it when
// the conversation does not call for a response.
func IgnoreAction() *core.Action {
	return &core.Action{
		Name:        "IGNORE",
		Similes:     []string{"NONE", "SKIP"},
		Description: "Take no action and send no reply",
		Handler: func(ctx context.Context, rt core.Runtime, msg *core.Memory, state *core.State, opts map[string]any, cb core.HandlerCallback, responses []*core.Memory) error {
			return nil
		},
	}
}

// PublishAction defers an outward-facing post behind a confirmation
// task. It never publishes directly: it creates a pending-choice task
// whose CHOOSE_OPTION worker performs or discards the publication when
// a later message resolves it.
func PublishAction() *core.Action {
	return &core.Action{
		Name:        "PUBLISH",
		Similes:     []string{"POST", "ANNOUNCE"},
		Description: "Queue content for publication pending user confirmation",
		Validate: func(ctx context.Context, rt core.Runtime, msg *core.Memory, state *core.State) (bool, error) {
			return msg != nil && msg.Content.Text != "", nil
		},
		Handler: func(ctx context.Context, rt core.Runtime, msg *core.Memory, state *core.State, opts map[string]any, cb core.HandlerCallback, responses []*core.Memory) error {
			draft, _ := opts["draft"].(string)
			if draft == "" {
				draft = msg.Content.Text
			}

			task := &core.Task{
				Name:        ChooseOptionTask,
				RoomID:      msg.RoomID,
				EntityID:    msg.EntityID,
				Description: "Pending publication awaiting confirmation",
				Metadata: core.TaskMetadata{
					Options: []core.TaskOption{
						{Name: OptionPost, Description: "Publish the draft"},
						{Name: OptionCancel, Description: "Discard the draft"},
					},
					Extra: map[string]any{"draft": draft},
				},
			}
			id, err := rt.Tasks().CreateTask(ctx, task)
			if err != nil {
				return err
			}

			if cb != nil {
				if _, err := cb(ctx, core.Content{
					Text:      "Draft ready. Reply \"post\" to publish or \"cancel\" to discard.",
					InReplyTo: &msg.ID,
					Extra:     map[string]any{"task_id": id.String()},
				}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// ChooseOptionWorker resolves pending-choice tasks. The chosen option
// must be on the task's menu; both menu entries are terminal, so the
// worker deletes the task after handling either.
func ChooseOptionWorker() *core.TaskWorker {
	return &core.TaskWorker{
		Name: ChooseOptionTask,
		Execute: func(ctx context.Context, rt core.Runtime, opts map[string]any, task *core.Task) error {
			choice, _ := opts["option"].(string)
			option, ok := task.Metadata.Option(choice)
			if !ok {
				return errors.Newf(errors.CodeInvalidInput, "option %q is not offered by task %q", choice, task.Name).
					WithContext("task_id", task.ID.String())
			}

			cb, _ := opts["callback"].(core.HandlerCallback)
			switch option.Name {
			case OptionPost:
				draft, _ := task.Metadata.Extra["draft"].(string)
				published := &core.Memory{
					EntityID: rt.AgentID(),
					AgentID:  rt.AgentID(),
					RoomID:   task.RoomID,
					Content: core.Content{
						Text:   draft,
						Source: "publish",
					},
					CreatedAt: time.Now().UTC(),
				}
				if _, err := rt.Memories(MessagesTable).CreateMemory(ctx, published, false); err != nil {
					return err
				}
				if cb != nil {
					if _, err := cb(ctx, core.Content{Text: "Published: " + draft}); err != nil {
						return err
					}
				}
			case OptionCancel:
				if cb != nil {
					if _, err := cb(ctx, core.Content{Text: "Draft discarded."}); err != nil {
						return err
					}
				}
			}

			return rt.Tasks().DeleteTask(ctx, task.ID)
		},
	}
}
