package llm

import (
	"context"
	"time"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/memory"
	"github.com/jllopis/telos/pkg/resilience"
)

// HandlerConfig shapes the model handlers built by Handlers.
type HandlerConfig struct {
	Model       string
	Temperature float64
	Retry       resilience.RetryConfig
	Timeout     time.Duration
}

// DefaultHandlerConfig returns handler defaults with standard retry.
func DefaultHandlerConfig(model string) HandlerConfig {
	return HandlerConfig{
		Model:   model,
		Retry:   resilience.DefaultRetryConfig(),
		Timeout: 2 * time.Minute,
	}
}

// Handlers builds the model handler set backed by a chat provider and an
// optional embedder. Retries and timeouts live here, inside the handlers,
// so the runtime's UseModel stays a pure dispatch.
func Handlers(provider Provider, embedder memory.Embedder, cfg HandlerConfig) map[core.ModelType]core.ModelHandler {
	handlers := map[core.ModelType]core.ModelHandler{
		core.ModelTextSmall: chatHandler(provider, cfg),
		core.ModelTextLarge: chatHandler(provider, cfg),
	}
	if embedder != nil {
		handlers[core.ModelTextEmbedding] = embeddingHandler(embedder, cfg)
	}
	return handlers
}

func chatHandler(provider Provider, cfg HandlerConfig) core.ModelHandler {
	return func(ctx context.Context, rt core.Runtime, params map[string]any) (any, error) {
		req, err := chatRequestFromParams(cfg, params)
		if err != nil {
			return nil, err
		}

		result, err := cfg.Retry.DoWithResult(ctx, func() (interface{}, error) {
			return resilience.WithTimeoutResult(ctx, resilience.TimeoutConfig{Duration: cfg.Timeout},
				func() (interface{}, error) {
					return provider.Chat(ctx, req)
				})
		})
		if err != nil {
			return nil, errors.New(errors.CodeModelError, "chat completion failed", err).
				WithContext("model", req.Model)
		}
		resp := result.(*ChatResponse)
		return resp.Content, nil
	}
}

func embeddingHandler(embedder memory.Embedder, cfg HandlerConfig) core.ModelHandler {
	return func(ctx context.Context, rt core.Runtime, params map[string]any) (any, error) {
		text, _ := params["text"].(string)
		if text == "" {
			return nil, errors.New(errors.CodeInvalidInput, "embedding requires params[\"text\"]", nil)
		}

		result, err := cfg.Retry.DoWithResult(ctx, func() (interface{}, error) {
			return resilience.WithTimeoutResult(ctx, resilience.TimeoutConfig{Duration: cfg.Timeout},
				func() (interface{}, error) {
					return embedder.Embed(ctx, text)
				})
		})
		if err != nil {
			return nil, errors.New(errors.CodeModelError, "embedding failed", err)
		}
		return result.([]float32), nil
	}
}

// chatRequestFromParams assembles a ChatRequest from handler params.
// Accepts either params["messages"] ([]Message) or params["prompt"]
// (string) with an optional params["system"] preamble.
func chatRequestFromParams(cfg HandlerConfig, params map[string]any) (ChatRequest, error) {
	req := ChatRequest{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
	}
	if model, ok := params["model"].(string); ok && model != "" {
		req.Model = model
	}
	if temp, ok := params["temperature"].(float64); ok {
		req.Temperature = temp
	}

	if messages, ok := params["messages"].([]Message); ok && len(messages) > 0 {
		req.Messages = messages
		return req, nil
	}

	prompt, _ := params["prompt"].(string)
	if prompt == "" {
		return ChatRequest{}, errors.New(errors.CodeInvalidInput,
			"chat requires params[\"prompt\"] or params[\"messages\"]", nil)
	}
	if system, ok := params["system"].(string); ok && system != "" {
		req.Messages = append(req.Messages, Message{Role: RoleSystem, Content: system})
	}
	req.Messages = append(req.Messages, Message{Role: RoleUser, Content: prompt})
	return req, nil
}
