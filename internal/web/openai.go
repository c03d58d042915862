package web

// OpenAI-compatible wire structs for the /v1 endpoints. Message, tool, and
// completion shapes live in internal/chat; this file holds the request
// bodies and the error envelope.

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/localforge/llamaserve/internal/chat"
	"github.com/localforge/llamaserve/internal/llama"
)

// ChatRequest is the chat completion request body.
type ChatRequest struct {
	Model            string         `json:"model"`
	Messages         []chat.Message `json:"messages"`
	Tools            []chat.Tool    `json:"tools,omitempty"`
	Stream           bool           `json:"stream,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	TopP             *float64       `json:"top_p,omitempty"`
	TopK             *int           `json:"top_k,omitempty"`
	MinP             *float64       `json:"min_p,omitempty"`
	MaxTokens        int            `json:"max_tokens,omitempty"`
	PresencePenalty  *float64       `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64       `json:"frequency_penalty,omitempty"`
	RepeatPenalty    *float64       `json:"repeat_penalty,omitempty"`
}

// samplingParams merges request overrides onto the format defaults.
func (r *ChatRequest) samplingParams() llama.SamplingParams {
	p := llama.DefaultSamplingParams()
	if r.Temperature != nil {
		p.Temperature = *r.Temperature
	}
	if r.TopP != nil {
		p.TopP = *r.TopP
	}
	if r.TopK != nil {
		p.TopK = *r.TopK
	}
	if r.MinP != nil {
		p.MinP = *r.MinP
	}
	if r.PresencePenalty != nil {
		p.PresencePenalty = *r.PresencePenalty
	}
	if r.FrequencyPenalty != nil {
		p.FrequencyPenalty = *r.FrequencyPenalty
	}
	if r.RepeatPenalty != nil {
		p.RepeatPenalty = *r.RepeatPenalty
	}
	p.MaxTokens = r.MaxTokens
	p.Stream = r.Stream
	return p
}

// EmbeddingsRequest is the embeddings request body. Input is a string or a
// list of strings.
type EmbeddingsRequest struct {
	Model          string          `json:"model"`
	Input          json.RawMessage `json:"input"`
	EncodingFormat string          `json:"encoding_format,omitempty"`
}

// inputs normalizes the union input field.
func (r *EmbeddingsRequest) inputs() ([]string, error) {
	var single string
	if err := json.Unmarshal(r.Input, &single); err == nil {
		return []string{single}, nil
	}
	var many []string
	if err := json.Unmarshal(r.Input, &many); err == nil {
		return many, nil
	}
	return nil, fmt.Errorf("input must be a string or an array of strings")
}

// OpenAIError is the top-level error response wrapper.
type OpenAIError struct {
	Error OpenAIErrorDetail `json:"error"`
}

// OpenAIErrorDetail holds the error message, type, and code.
type OpenAIErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// writeError writes an OpenAI-format error response.
func writeError(w http.ResponseWriter, status int, message, errType, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(OpenAIError{
		Error: OpenAIErrorDetail{
			Message: message,
			Type:    errType,
			Code:    code,
		},
	})
}
