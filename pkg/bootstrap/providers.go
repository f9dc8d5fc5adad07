// Package bootstrap is the built-in plugin: the baseline providers,
// actions, evaluators and task workers an agent needs before any third
// party plugin loads.
package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jllopis/telos/pkg/core"
)

const (
	// MessagesTable is where conversation turns are persisted.
	MessagesTable = "messages"

	// FactsTable is where the reflection evaluator stores extracted facts.
	FactsTable = "facts"

	recentMessageCount = 10
)

// TimeProvider contributes the current time. It runs first so later
// providers can read it from the partial state.
func TimeProvider() *core.Provider {
	return &core.Provider{
		Name:        "time",
		Description: "Current date and time",
		Position:    0,
		Get: func(ctx context.Context, rt core.Runtime, msg *core.Memory, partial *core.State) (*core.ProviderResult, error) {
			now := time.Now().UTC()
			return &core.ProviderResult{
				Values: map[string]any{
					"time": now.Format(time.RFC1123),
					"date": now.Format("2006-01-02"),
				},
				Text: "The current time is " + now.Format(time.RFC1123) + ".",
			}, nil
		},
	}
}

// CharacterProvider contributes the agent persona.
func CharacterProvider() *core.Provider {
	return &core.Provider{
		Name:        "character",
		Description: "Agent persona, bio and style",
		Position:    10,
		Get: func(ctx context.Context, rt core.Runtime, msg *core.Memory, partial *core.State) (*core.ProviderResult, error) {
			ch := rt.Character()
			var b strings.Builder
			fmt.Fprintf(&b, "You are %s.", ch.Name)
			if len(ch.Bio) > 0 {
				b.WriteString("\n" + strings.Join(ch.Bio, " "))
			}
			if len(ch.Style) > 0 {
				b.WriteString("\nStyle: " + strings.Join(ch.Style, "; "))
			}
			if len(ch.Topics) > 0 {
				b.WriteString("\nTopics: " + strings.Join(ch.Topics, ", "))
			}
			return &core.ProviderResult{
				Values: map[string]any{"agent_name": ch.Name},
				Text:   b.String(),
			}, nil
		},
	}
}

// RecentMessagesProvider contributes the latest turns of the
// conversation, oldest first.
func RecentMessagesProvider() *core.Provider {
	return &core.Provider{
		Name:        "recent_messages",
		Description: "Recent conversation history for the room",
		Position:    20,
		Get: func(ctx context.Context, rt core.Runtime, msg *core.Memory, partial *core.State) (*core.ProviderResult, error) {
			if msg == nil || msg.RoomID == uuid.Nil {
				return nil, nil
			}
			memories, err := rt.Memories(MessagesTable).GetMemories(ctx, core.MemoryQuery{
				RoomID: msg.RoomID,
				Count:  recentMessageCount,
			})
			if err != nil {
				return nil, err
			}
			if len(memories) == 0 {
				return nil, nil
			}

			// Newest first from the store; render oldest first.
			var lines []string
			for i := len(memories) - 1; i >= 0; i-- {
				m := memories[i]
				if m.Content.Text == "" {
					continue
				}
				speaker := "user"
				if m.EntityID == rt.AgentID() {
					speaker = rt.Character().Name
				}
				lines = append(lines, speaker+": "+m.Content.Text)
			}
			return &core.ProviderResult{
				Data: map[string]any{"recent_messages": memories},
				Text: "Recent conversation:\n" + strings.Join(lines, "\n"),
			}, nil
		},
	}
}
