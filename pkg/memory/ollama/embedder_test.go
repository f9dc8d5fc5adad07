package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jllopis/telos/pkg/errors"
)

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("path = %q, want /api/embed", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Input) != 1 || req.Input[0] != "hello" {
			t.Errorf("input = %v", req.Input)
		}
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0.1, 0.2, 0.3}}})
	}))
	defer srv.Close()

	e := NewEmbedder(srv.URL, "nomic-embed-text")
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[2] != 0.3 {
		t.Errorf("vector = %v", vec)
	}
}

func TestEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewEmbedder(srv.URL, "missing")
	_, err := e.Embed(context.Background(), "hello")
	if !errors.IsCode(err, errors.CodeModelError) {
		t.Fatalf("error code = %v, want MODEL_ERROR", err)
	}
}

func TestEmbedEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{})
	}))
	defer srv.Close()

	e := NewEmbedder(srv.URL, "nomic-embed-text")
	if _, err := e.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected an error for a response without a vector")
	}
}

func TestEmbedRequiresModel(t *testing.T) {
	e := NewEmbedder("", "")
	if _, err := e.Embed(context.Background(), "hello"); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("error code = %v, want INVALID_INPUT", err)
	}
}
