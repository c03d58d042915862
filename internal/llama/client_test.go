package llama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientCompletion(t *testing.T) {
	var got completionPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/completion" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"content":          "The weather is nice.",
			"tokens_evaluated": 12,
			"tokens_predicted": 7,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "llama-2-functionary")
	res, err := client.Completion(context.Background(), CompletionRequest{
		Prompt: "[INST] how's the weather? [/INST]",
		Stop:   []string{"user:", "</s>"},
		Params: DefaultSamplingParams(),
	})
	if err != nil {
		t.Fatalf("Completion: %v", err)
	}

	if got.Prompt != "[INST] how's the weather? [/INST]" {
		t.Errorf("prompt not forwarded: %q", got.Prompt)
	}
	if len(got.Stop) != 2 || got.Stop[0] != "user:" || got.Stop[1] != "</s>" {
		t.Errorf("stop sequences not forwarded: %v", got.Stop)
	}
	if got.Stream {
		t.Error("stream must always be false on the engine call")
	}
	if got.NPredict != -1 {
		t.Errorf("expected n_predict -1 for unlimited generation, got %d", got.NPredict)
	}
	if got.Temperature != 0.2 || got.TopK != 40 {
		t.Errorf("sampling params not forwarded: %+v", got)
	}

	if !strings.HasPrefix(res.ID, "cmpl-") {
		t.Errorf("expected cmpl- id prefix, got %q", res.ID)
	}
	if res.Text() != "The weather is nice." {
		t.Errorf("unexpected text %q", res.Text())
	}
	if res.Model != "llama-2-functionary" {
		t.Errorf("unexpected model %q", res.Model)
	}
	if res.Usage.PromptTokens != 12 || res.Usage.CompletionTokens != 7 || res.Usage.TotalTokens != 19 {
		t.Errorf("unexpected usage %+v", res.Usage)
	}
}

func TestClientCompletionMaxTokens(t *testing.T) {
	var got completionPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got) //nolint:errcheck
		json.NewEncoder(w).Encode(map[string]any{"content": "ok"}) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "m")
	params := DefaultSamplingParams()
	params.MaxTokens = 64
	if _, err := client.Completion(context.Background(), CompletionRequest{Prompt: "p", Params: params}); err != nil {
		t.Fatalf("Completion: %v", err)
	}
	if got.NPredict != 64 {
		t.Errorf("expected n_predict 64, got %d", got.NPredict)
	}
}

func TestClientCompletionEngineFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "m")
	_, err := client.Completion(context.Background(), CompletionRequest{Prompt: "p"})
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "model not loaded") {
		t.Errorf("error should carry status and body: %v", err)
	}
}

func TestClientEmbedding(t *testing.T) {
	var contents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embedding" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
		contents = append(contents, body["content"])
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"embedding": []float64{0.1, 0.2, 0.3},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "llama-2-functionary")
	res, err := client.Embedding(context.Background(), EmbeddingRequest{
		Input: []string{"first", "second"},
	})
	if err != nil {
		t.Fatalf("Embedding: %v", err)
	}

	if len(contents) != 2 || contents[0] != "first" || contents[1] != "second" {
		t.Errorf("inputs not issued one per call: %v", contents)
	}
	if res.Object != "list" {
		t.Errorf("unexpected object %q", res.Object)
	}
	if len(res.Data) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(res.Data))
	}
	for i, d := range res.Data {
		if d.Index != i || d.Object != "embedding" || len(d.Embedding) != 3 {
			t.Errorf("vector %d malformed: %+v", i, d)
		}
	}
	if res.Model != "llama-2-functionary" {
		t.Errorf("unexpected model %q", res.Model)
	}
}

func TestNewClientTrimsTrailingSlash(t *testing.T) {
	client := NewClient("http://localhost:8080/", "m")
	if client.baseURL != "http://localhost:8080" {
		t.Errorf("unexpected baseURL %q", client.baseURL)
	}
}

func TestNewClientDefaultBaseURL(t *testing.T) {
	client := NewClient("", "m")
	if client.baseURL != DefaultBaseURL {
		t.Errorf("unexpected baseURL %q", client.baseURL)
	}
}
