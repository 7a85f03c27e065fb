package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewProviderDefaults(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for unset provider")
	}
	if _, err := New(Config{Provider: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if _, err := New(Config{Provider: "custom"}); err == nil {
		t.Fatal("custom provider requires a base url")
	}
	if _, err := New(Config{Provider: "ollama", Model: "llama3"}); err != nil {
		t.Fatalf("ollama should default its base url: %v", err)
	}
}

func TestChat(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model": "test-model-1",
			"choices": []map[string]any{
				{"message": map[string]any{"content": "hello back"}},
			},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 3},
		})
	}))
	defer srv.Close()

	p, err := New(Config{Provider: "custom", Model: "test-model", BaseURL: srv.URL, APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages:    []Message{{Role: "user", Content: "hello"}},
		Temperature: 0.1,
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if gotPath != "/v1/chat/completions" {
		t.Fatalf("wrong path %s", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("wrong auth header %q", gotAuth)
	}
	if gotBody.Model != "test-model" {
		t.Fatalf("config model not used as fallback: %q", gotBody.Model)
	}
	if resp.Content != "hello back" || resp.Model != "test-model-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.PromptTokens != 12 || resp.CompletionTokens != 3 {
		t.Fatalf("usage not mapped: %+v", resp)
	}
}

func TestChatErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	p, err := New(Config{Provider: "custom", Model: "m", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}
	if _, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "x"}}}); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("wrong path %s", r.URL.Path)
		}
		// Out-of-order data entries are re-sorted by index.
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"index": 1, "embedding": []float32{0.3, 0.4}},
				{"index": 0, "embedding": []float32{0.1, 0.2}},
			},
		})
	}))
	defer srv.Close()

	p, err := New(Config{Provider: "custom", Model: "embed-model", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}
	vecs, err := p.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
	if vecs[0][0] != 0.1 || vecs[1][0] != 0.3 {
		t.Fatalf("vectors not ordered by index: %v", vecs)
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{0.1}}},
		})
	}))
	defer srv.Close()

	p, err := New(Config{Provider: "custom", Model: "m", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}
	if _, err := p.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error for embedding count mismatch")
	}
}
