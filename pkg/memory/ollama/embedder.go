// Package ollama provides a memory.Embedder backed by a local Ollama
// server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jllopis/telos/pkg/errors"
)

const defaultBaseURL = "http://localhost:11434"

// Embedder computes text embeddings through Ollama's /api/embed
// endpoint.
type Embedder struct {
	baseURL string
	model   string
	client  *http.Client
}

// EmbedderOption configures an Embedder.
type EmbedderOption func(*Embedder)

// WithHTTPClient replaces the HTTP client, e.g. to share transports or
// inject a test double.
func WithHTTPClient(client *http.Client) EmbedderOption {
	return func(e *Embedder) {
		if client != nil {
			e.client = client
		}
	}
}

// WithTimeout bounds a single embedding call.
func WithTimeout(timeout time.Duration) EmbedderOption {
	return func(e *Embedder) {
		if timeout > 0 {
			e.client.Timeout = timeout
		}
	}
}

// NewEmbedder creates an Embedder for the given server and model. An
// empty baseURL targets the local default.
func NewEmbedder(baseURL, model string, opts ...EmbedderOption) *Embedder {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	e := &Embedder{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed converts text into a vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.model == "" {
		return nil, errors.New(errors.CodeInvalidInput, "embedding model not configured", nil)
	}

	body, err := json.Marshal(embedRequest{Model: e.model, Input: []string{text}})
	if err != nil {
		return nil, errors.New(errors.CodeModelError, "marshal embed request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(errors.CodeModelError, "build embed request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, errors.New(errors.CodeModelError, "embed call failed", err).
			WithContext("model", e.model)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Newf(errors.CodeModelError, "embed call returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet))).
			WithContext("model", e.model)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.New(errors.CodeModelError, "decode embed response", err)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, errors.New(errors.CodeModelError, "embed response carried no vector", nil).
			WithContext("model", e.model)
	}
	return out.Embeddings[0], nil
}
