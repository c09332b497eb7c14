package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/responsa-ai/responsa/pkg/config"
	"github.com/responsa-ai/responsa/pkg/fault"
)

func openAIConfig(url string) config.InferenceConfig {
	return config.InferenceConfig{
		Provider:  "openai",
		APIKey:    "sk-test",
		BaseURL:   url + "/v1",
		Model:     "gpt-4o",
		MaxTokens: 256,
		Timeout:   2 * time.Second,
	}
}

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing auth header")
		}

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "There are 42 decisions."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 100, "completion_tokens": 12, "total_tokens": 112}
		}`)
	}))
	t.Cleanup(srv.Close)

	p := newOpenAI(openAIConfig(srv.URL))
	res, err := p.Complete(context.Background(), "you answer questions", "how many decisions?")
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "There are 42 decisions." {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Usage.TotalTokens != 112 {
		t.Errorf("TotalTokens = %d", res.Usage.TotalTokens)
	}
}

func TestOpenAIAuthFailureIsInference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`)
	}))
	t.Cleanup(srv.Close)

	p := newOpenAI(openAIConfig(srv.URL))
	_, err := p.Complete(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error")
	}
	if fault.KindOf(err) != fault.KindInference {
		t.Errorf("expected inference kind for 401, got %v", fault.KindOf(err))
	}
}

func TestOpenAIOutageIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error": {"message": "The server is overloaded", "type": "server_error"}}`)
	}))
	t.Cleanup(srv.Close)

	p := newOpenAI(openAIConfig(srv.URL))
	_, err := p.Complete(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error")
	}
	if fault.KindOf(err) != fault.KindUpstream {
		t.Errorf("expected upstream kind for 503, got %v", fault.KindOf(err))
	}
}

func TestOpenAIUnreachableIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	p := newOpenAI(openAIConfig(srv.URL))
	_, err := p.Complete(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error")
	}
	if fault.KindOf(err) != fault.KindUpstream {
		t.Errorf("expected upstream kind, got %v", fault.KindOf(err))
	}
}

func TestOpenAIEmptyContentIsInference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id": "chatcmpl-2", "object": "chat.completion", "model": "gpt-4o",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "   "}, "finish_reason": "stop"}]}`)
	}))
	t.Cleanup(srv.Close)

	p := newOpenAI(openAIConfig(srv.URL))
	_, err := p.Complete(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error")
	}
	if fault.KindOf(err) != fault.KindInference {
		t.Errorf("expected inference kind, got %v", fault.KindOf(err))
	}
}

func TestOpenAIProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object": "list", "data": [{"id": "gpt-4o", "object": "model"}]}`)
	}))
	t.Cleanup(srv.Close)

	p := newOpenAI(openAIConfig(srv.URL))
	if err := p.Probe(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestOpenAIEmbedBatchesAndOrders(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		calls++
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "text-embedding-3-small" {
			t.Errorf("model = %s", req.Model)
		}

		type datum struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		out := struct {
			Object string  `json:"object"`
			Data   []datum `json:"data"`
		}{Object: "list"}
		for i := range req.Input {
			out.Data = append(out.Data, datum{
				Object:    "embedding",
				Embedding: []float32{float32(len(req.Input[i]))},
				Index:     i,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)

	p := newOpenAI(openAIConfig(srv.URL)).WithEmbeddingModel("text-embedding-3-small")
	vecs, err := p.Embed(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, want := range []float32{1, 2, 3} {
		if vecs[i][0] != want {
			t.Errorf("vecs[%d] = %v, want [%v]", i, vecs[i], want)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 call for a small batch, got %d", calls)
	}
}

func TestNewFactory(t *testing.T) {
	if _, err := New(config.InferenceConfig{Provider: "openai", APIKey: "k", Model: "m", Timeout: time.Second}); err != nil {
		t.Errorf("openai: %v", err)
	}
	if _, err := New(config.InferenceConfig{Provider: "anthropic", APIKey: "k", Model: "m", Timeout: time.Second}); err != nil {
		t.Errorf("anthropic: %v", err)
	}
	_, err := New(config.InferenceConfig{Provider: "cohere"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if fault.KindOf(err) != fault.KindConfig {
		t.Errorf("expected config kind, got %v", fault.KindOf(err))
	}
}
