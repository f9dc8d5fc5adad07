package bootstrap

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jllopis/telos/pkg/core"
)

// ReflectionEvaluator extracts durable facts from the finished turn with
// the small text model and stores them as unique memories. Near-duplicate
// facts collapse onto the existing record through the unique write path.
func ReflectionEvaluator() *core.Evaluator {
	return &core.Evaluator{
		Name:        "reflection",
		Description: "Extract and remember facts stated during the conversation",
		Validate: func(ctx context.Context, rt core.Runtime, msg *core.Memory, state *core.State) (bool, error) {
			return msg != nil && msg.Content.Text != "", nil
		},
		Handler: func(ctx context.Context, rt core.Runtime, msg *core.Memory, state *core.State, opts map[string]any, cb core.HandlerCallback, responses []*core.Memory) error {
			out, err := rt.UseModel(ctx, core.ModelTextSmall, map[string]any{
				"system": "Extract standalone facts from the message. Reply with a JSON array of short fact strings. Reply [] when there is nothing worth remembering.",
				"prompt": msg.Content.Text,
			})
			if err != nil {
				return err
			}
			text, ok := out.(string)
			if !ok {
				return nil
			}

			facts := parseFacts(text)
			if len(facts) == 0 {
				return nil
			}

			store := rt.Memories(FactsTable)
			for _, fact := range facts {
				memory := &core.Memory{
					EntityID: msg.EntityID,
					AgentID:  rt.AgentID(),
					RoomID:   msg.RoomID,
					Content: core.Content{
						Text:   fact,
						Source: "reflection",
					},
					Metadata: core.MemoryMetadata{
						Type:   core.MemoryTypeDescription,
						Source: "reflection",
					},
					CreatedAt: time.Now().UTC(),
				}
				if _, err := store.CreateMemory(ctx, memory, true); err != nil {
					return err
				}
			}
			rt.Logger().Debug("bootstrap.reflection.facts", "count", len(facts))
			return nil
		},
	}
}

// parseFacts reads the model output as a JSON string array, tolerating
// surrounding prose and code fences.
func parseFacts(text string) []string {
	text = strings.TrimSpace(text)
	if start := strings.Index(text, "["); start >= 0 {
		if end := strings.LastIndex(text, "]"); end > start {
			text = text[start : end+1]
		}
	}

	var facts []string
	if err := json.Unmarshal([]byte(text), &facts); err != nil {
		return nil
	}

	out := facts[:0]
	for _, fact := range facts {
		fact = strings.TrimSpace(fact)
		if fact != "" {
			out = append(out, fact)
		}
	}
	return out
}
