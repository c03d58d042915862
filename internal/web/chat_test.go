package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
)

func userMessage(content string) map[string]any {
	return map[string]any{"role": "user", "content": content}
}

func weatherToolJSON() map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        "weather",
			"description": "Get the current weather",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"location": map[string]any{"type": "string"},
				},
				"required": []string{"location"},
			},
		},
	}
}

func TestChatCompletionPlainText(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/chat/completions", map[string]any{
		"messages": []any{userMessage("how's the weather?")},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Role    string  `json:"role"`
				Content *string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.ID != "chatcmpl-test" || resp.Object != "chat.completion" {
		t.Errorf("unexpected envelope: id=%q object=%q", resp.ID, resp.Object)
	}
	if resp.Model != "llama-2-functionary" {
		t.Errorf("unexpected model %q", resp.Model)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("expected 1 choice, got %d", len(resp.Choices))
	}
	choice := resp.Choices[0]
	if choice.Message.Role != "assistant" || choice.Message.Content == nil || *choice.Message.Content != "Hello!" {
		t.Errorf("unexpected message: %+v", choice.Message)
	}
	if choice.FinishReason != "stop" {
		t.Errorf("unexpected finish_reason %q", choice.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("usage not passed through: %+v", resp.Usage)
	}
}

func TestChatCompletionToolCall(t *testing.T) {
	env := newTestEnv(t)
	env.engine.text = `{"function":"weather","arguments":{"location":"Tokyo"}}`

	rec := env.do(t, http.MethodPost, "/v1/chat/completions", map[string]any{
		"messages": []any{userMessage("weather in Tokyo?")},
		"tools":    []any{weatherToolJSON()},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Decode into loose maps so a null content field is distinguishable from
	// an absent one.
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	choices := resp["choices"].([]any)
	message := choices[0].(map[string]any)["message"].(map[string]any)

	if content, present := message["content"]; !present || content != nil {
		t.Errorf("content should be present and null, got %v (present=%v)", content, present)
	}

	calls, ok := message["tool_calls"].([]any)
	if !ok || len(calls) != 1 {
		t.Fatalf("expected 1 tool call: %v", message["tool_calls"])
	}
	call := calls[0].(map[string]any)
	if call["id"] != "weather" || call["type"] != "function" {
		t.Errorf("unexpected tool call envelope: %v", call)
	}
	fn := call["function"].(map[string]any)
	if fn["name"] != "weather" {
		t.Errorf("unexpected function name %v", fn["name"])
	}
	if fn["arguments"] != "{\n  \"location\": \"Tokyo\"\n}" {
		t.Errorf("unexpected arguments %q", fn["arguments"])
	}

	legacy, ok := message["function_call"].(map[string]any)
	if !ok || legacy["name"] != "weather" {
		t.Errorf("legacy function_call mirror missing: %v", message["function_call"])
	}
}

func TestChatCompletionStreamRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/chat/completions", map[string]any{
		"messages": []any{userMessage("hi")},
		"stream":   true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.engine.completions != 0 {
		t.Error("engine must not be called for streaming requests")
	}

	var resp OpenAIError
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Error.Code != "streaming_unsupported" {
		t.Errorf("unexpected error code %q", resp.Error.Code)
	}
}

func TestChatCompletionValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body any
	}{
		{"invalid json", `{not json`},
		{"empty messages", map[string]any{"messages": []any{}}},
		{"unknown role", map[string]any{
			"messages": []any{map[string]any{"role": "narrator", "content": "meanwhile"}},
		}},
		{"missing content", map[string]any{
			"messages": []any{map[string]any{"role": "user"}},
		}},
		{"call on non-assistant", map[string]any{
			"messages": []any{map[string]any{
				"role":          "user",
				"function_call": map[string]any{"name": "weather", "arguments": "{}"},
			}},
		}},
		{"required not declared", map[string]any{
			"messages": []any{userMessage("hi")},
			"tools": []any{map[string]any{
				"type": "function",
				"function": map[string]any{
					"name": "weather",
					"parameters": map[string]any{
						"type":     "object",
						"required": []string{"location"},
					},
				},
			}},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/v1/chat/completions", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
	if env.engine.completions != 0 {
		t.Error("engine must not be called for invalid requests")
	}
}

func TestChatCompletionEngineFailure(t *testing.T) {
	env := newTestEnv(t)
	env.engine.err = errors.New("connection refused")

	rec := env.do(t, http.MethodPost, "/v1/chat/completions", map[string]any{
		"messages": []any{userMessage("hi")},
	})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}

	var resp OpenAIError
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Error.Code != "engine_error" {
		t.Errorf("unexpected error code %q", resp.Error.Code)
	}
}

func TestChatCompletionAccounting(t *testing.T) {
	env := newTestEnv(t)
	env.engine.text = `{"function":"weather","arguments":{"location":"Tokyo"}}`

	rec := env.do(t, http.MethodPost, "/v1/chat/completions", map[string]any{
		"messages": []any{userMessage("weather in Tokyo?")},
		"tools":    []any{weatherToolJSON()},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	got, err := env.db.GetRequest("chatcmpl-test")
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got == nil {
		t.Fatal("expected an accounting row for the served completion")
	}
	if got.TotalTokens != 15 || got.FinishReason != "stop" {
		t.Errorf("unexpected accounting row: %+v", got)
	}
	if got.ToolCall == nil || *got.ToolCall != "weather" {
		t.Errorf("tool call not recorded: %v", got.ToolCall)
	}
}

func TestEmbeddingsStringInput(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/embeddings", map[string]any{
		"model": "llama-2-functionary",
		"input": "hello world",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Object string `json:"object"`
		Data   []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Object != "list" || len(resp.Data) != 1 || len(resp.Data[0].Embedding) != 3 {
		t.Errorf("unexpected embeddings response: %s", rec.Body.String())
	}
}

func TestEmbeddingsArrayInput(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/embeddings", map[string]any{
		"input": []string{"first", "second"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Data []struct {
			Index int `json:"index"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 2 || resp.Data[1].Index != 1 {
		t.Errorf("unexpected embeddings response: %s", rec.Body.String())
	}
}

func TestEmbeddingsInvalidInput(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/embeddings", map[string]any{
		"input": 42,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.engine.embeddings != 0 {
		t.Error("engine must not be called for invalid input")
	}
}
