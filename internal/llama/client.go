package llama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/localforge/llamaserve/internal/chat"
)

// DefaultBaseURL is where most people run llama-server locally.
const DefaultBaseURL = "http://127.0.0.1:8080"

// Client speaks the native llama-server HTTP API (POST /completion and
// POST /embedding). It translates between this server's engine contract and
// llama-server's request/response shapes.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
}

var _ Engine = (*Client)(nil)

// NewClient creates a Client for the llama-server at baseURL. The model name
// is reported back in results; llama-server itself serves a single model.
// No client timeout is set: a completion call may legitimately block for the
// full generation duration.
func NewClient(baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{},
	}
}

// completionPayload is the llama-server /completion request body.
type completionPayload struct {
	Prompt           string   `json:"prompt"`
	Stop             []string `json:"stop,omitempty"`
	Stream           bool     `json:"stream"`
	NPredict         int      `json:"n_predict"`
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p"`
	TopK             int      `json:"top_k"`
	MinP             float64  `json:"min_p"`
	TypicalP         float64  `json:"typical_p"`
	PresencePenalty  float64  `json:"presence_penalty"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
	RepeatPenalty    float64  `json:"repeat_penalty"`
}

// completionReply is the subset of the llama-server /completion response
// this client consumes.
type completionReply struct {
	Content         string `json:"content"`
	Model           string `json:"model"`
	TokensEvaluated int    `json:"tokens_evaluated"`
	TokensPredicted int    `json:"tokens_predicted"`
}

// Completion sends a single blocking completion to llama-server.
func (c *Client) Completion(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	nPredict := req.Params.MaxTokens
	if nPredict == 0 {
		nPredict = -1 // llama-server: generate until EOS or a stop sequence
	}
	payload := completionPayload{
		Prompt:           req.Prompt,
		Stop:             req.Stop,
		Stream:           false,
		NPredict:         nPredict,
		Temperature:      req.Params.Temperature,
		TopP:             req.Params.TopP,
		TopK:             req.Params.TopK,
		MinP:             req.Params.MinP,
		TypicalP:         req.Params.TypicalP,
		PresencePenalty:  req.Params.PresencePenalty,
		FrequencyPenalty: req.Params.FrequencyPenalty,
		RepeatPenalty:    req.Params.RepeatPenalty,
	}

	var reply completionReply
	if err := c.post(ctx, "/completion", payload, &reply); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	if reply.Model != "" {
		model = reply.Model
	}

	return &CompletionResult{
		ID:      "cmpl-" + uuid.New().String(),
		Object:  "text_completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []CompletionChoice{{Index: 0, Text: reply.Content, FinishReason: "stop"}},
		Usage: chat.Usage{
			PromptTokens:     reply.TokensEvaluated,
			CompletionTokens: reply.TokensPredicted,
			TotalTokens:      reply.TokensEvaluated + reply.TokensPredicted,
		},
	}, nil
}

// embeddingReply is the llama-server /embedding response.
type embeddingReply struct {
	Embedding []float64 `json:"embedding"`
}

// Embedding requests one vector per input string. llama-server embeds one
// content string per call, so inputs are issued sequentially.
func (c *Client) Embedding(ctx context.Context, req EmbeddingRequest) (*EmbeddingResult, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	result := &EmbeddingResult{
		Object: "list",
		Model:  model,
		Data:   make([]EmbeddingData, 0, len(req.Input)),
	}
	for i, input := range req.Input {
		var reply embeddingReply
		if err := c.post(ctx, "/embedding", map[string]string{"content": input}, &reply); err != nil {
			return nil, err
		}
		result.Data = append(result.Data, EmbeddingData{
			Object:    "embedding",
			Index:     i,
			Embedding: reply.Embedding,
		})
	}
	return result, nil
}

// post issues one JSON request against the llama-server API and decodes the
// JSON response into out.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("llama-server %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("llama-server %s: %s: %s", path, resp.Status, strings.TrimSpace(string(detail)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
