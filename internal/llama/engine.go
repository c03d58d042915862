package llama

import (
	"context"

	"github.com/localforge/llamaserve/internal/chat"
)

// SamplingParams are generation-time controls. Start from
// DefaultSamplingParams; the zero value disables sampling entirely.
type SamplingParams struct {
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	TopK             int     `json:"top_k"`
	MinP             float64 `json:"min_p"`
	TypicalP         float64 `json:"typical_p"`
	MaxTokens        int     `json:"max_tokens,omitempty"`
	PresencePenalty  float64 `json:"presence_penalty"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	RepeatPenalty    float64 `json:"repeat_penalty"`
	Stream           bool    `json:"stream"`
}

// DefaultSamplingParams returns the llama-2 generation defaults.
func DefaultSamplingParams() SamplingParams {
	return SamplingParams{
		Temperature:   0.2,
		TopP:          0.95,
		TopK:          40,
		MinP:          0.05,
		TypicalP:      1.0,
		RepeatPenalty: 1.1,
	}
}

// CompletionRequest is one text-completion call into the engine. Stop
// sequences are hard truncation points: the engine must cut generation
// before echoing them.
type CompletionRequest struct {
	Prompt string
	Stop   []string
	Model  string
	Params SamplingParams
}

// CompletionChoice is one generated alternative.
type CompletionChoice struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// CompletionResult is the engine's text-completion envelope.
type CompletionResult struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   chat.Usage         `json:"usage"`
}

// Text returns the first choice's text, or "" when there are no choices.
func (r *CompletionResult) Text() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Text
}

// EmbeddingRequest asks for one vector per input string.
type EmbeddingRequest struct {
	Model string
	Input []string
}

// EmbeddingData is one embedding vector in the OpenAI response shape.
type EmbeddingData struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// EmbeddingResult is the engine's embedding envelope, returned to clients
// verbatim.
type EmbeddingResult struct {
	Object string          `json:"object"`
	Data   []EmbeddingData `json:"data"`
	Model  string          `json:"model"`
	Usage  chat.Usage      `json:"usage"`
}

// Engine is the inference collaborator: an opaque capability that turns a
// prompt into text and input into vectors. Completion may block for the full
// generation; no timeout is imposed at this layer.
type Engine interface {
	Completion(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
	Embedding(ctx context.Context, req EmbeddingRequest) (*EmbeddingResult, error)
}
