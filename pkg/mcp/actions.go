package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
)

// ToolCaller abstracts MCP tool execution for action adapters.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)
}

// ToolAction wraps an MCP tool as a runtime action. The action name is
// the upper-cased tool name; invoking it calls the tool on the server and
// delivers the textual result through the handler callback.
func ToolAction(tool mcp.Tool, caller ToolCaller) (*core.Action, error) {
	if tool.Name == "" {
		return nil, errors.New(errors.CodeInvalidInput, "mcp tool name is required", nil)
	}
	if caller == nil {
		return nil, errors.New(errors.CodeInvalidInput, "tool caller is required", nil)
	}

	return &core.Action{
		Name:        ActionName(tool.Name),
		Similes:     []string{tool.Name},
		Description: tool.Description,
		Handler: func(ctx context.Context, rt core.Runtime, msg *core.Memory, state *core.State, opts map[string]any, cb core.HandlerCallback, responses []*core.Memory) error {
			args, err := toolArgs(tool, msg, opts)
			if err != nil {
				return err
			}
			if err := validateRequiredArgs(tool, args); err != nil {
				return err
			}

			result, err := caller.CallTool(ctx, tool.Name, args)
			if err != nil {
				return errors.New(errors.CodePluginError, "mcp tool call failed", err).
					WithContext("tool", tool.Name).
					WithRecoverable(true)
			}
			output, err := toolResultToOutput(result)
			if err != nil {
				return err
			}

			if cb != nil {
				text, ok := output.(string)
				if !ok {
					encoded, err := json.Marshal(output)
					if err != nil {
						return errors.New(errors.CodeInternal, "encode mcp tool output", err)
					}
					text = string(encoded)
				}
				if _, err := cb(ctx, core.Content{Text: text, Source: "mcp:" + tool.Name}); err != nil {
					return err
				}
			}
			return nil
		},
	}, nil
}

// ActionName maps an MCP tool name to the action registry convention.
func ActionName(toolName string) string {
	name := strings.ToUpper(toolName)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, ".", "_")
	return name
}

// toolArgs assembles the tool arguments for one invocation. Explicit
// caller options win; otherwise the message's extra fields are tried, and
// as a last resort the message text itself.
func toolArgs(tool mcp.Tool, msg *core.Memory, opts map[string]any) (map[string]interface{}, error) {
	if raw, ok := opts["args"]; ok {
		return normalizeToolArgs(raw)
	}
	if msg != nil {
		if raw, ok := msg.Content.Extra["args"]; ok {
			return normalizeToolArgs(raw)
		}
		if msg.Content.Text != "" {
			return normalizeToolArgs(msg.Content.Text)
		}
	}
	return map[string]interface{}{}, nil
}

func normalizeToolArgs(input any) (map[string]interface{}, error) {
	switch value := input.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return value, nil
	case json.RawMessage:
		var decoded map[string]interface{}
		if err := json.Unmarshal(value, &decoded); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "mcp tool args: invalid JSON", err)
		}
		return decoded, nil
	case []byte:
		var decoded map[string]interface{}
		if err := json.Unmarshal(value, &decoded); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "mcp tool args: invalid JSON", err)
		}
		return decoded, nil
	case string:
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return map[string]interface{}{}, nil
		}
		if strings.HasPrefix(trimmed, "{") {
			var decoded map[string]interface{}
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				return decoded, nil
			}
		}
		return map[string]interface{}{"input": value}, nil
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, errors.Newf(errors.CodeInvalidInput, "mcp tool args: unsupported type %T", input)
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal(encoded, &decoded); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "mcp tool args: invalid JSON after marshal", err)
		}
		return decoded, nil
	}
}

func validateRequiredArgs(tool mcp.Tool, args map[string]interface{}) error {
	schema := tool.InputSchema
	if schema.Type != "" && schema.Type != "object" {
		return nil
	}
	for _, key := range schema.Required {
		if _, ok := args[key]; !ok {
			return errors.Newf(errors.CodeInvalidInput, "mcp tool args: missing required field %q", key)
		}
	}
	return nil
}

func toolResultToOutput(result *mcp.CallToolResult) (any, error) {
	if result == nil {
		return nil, errors.New(errors.CodePluginError, "mcp tool result is nil", nil)
	}

	if result.IsError {
		return nil, errors.Newf(errors.CodePluginError, "mcp tool returned error: %s", extractTextContent(result.Content))
	}

	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}

	if text := extractTextContent(result.Content); text != "" {
		return text, nil
	}

	return fmt.Sprintf("%v", result), nil
}

func extractTextContent(items []mcp.Content) string {
	if len(items) == 0 {
		return ""
	}
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}
