package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/localforge/llamaserve/internal/chat"
	"github.com/localforge/llamaserve/internal/chatformat"
	"github.com/localforge/llamaserve/internal/db"
	"github.com/localforge/llamaserve/internal/llama"
)

// handleChatCompletions handles POST /v1/chat/completions: validate the
// request into the chat-turn model, dispatch to the handler for the
// configured chat format, and encode the completion.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "invalid_request_error", "invalid_request")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty", "invalid_request_error", "invalid_request")
		return
	}
	for i := range req.Messages {
		if err := req.Messages[i].Validate(); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("messages[%d]: %s", i, err), "invalid_request_error", "invalid_request")
			return
		}
	}
	for i := range req.Tools {
		if err := req.Tools[i].Validate(); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("tools[%d]: %s", i, err), "invalid_request_error", "invalid_request")
			return
		}
	}

	handler, err := s.registry.Resolve(s.cfg.ChatFormat)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), "server_error", "chat_format_not_registered")
		return
	}

	model := req.Model
	if model == "" {
		model = s.cfg.Model
	}

	start := time.Now()
	completion, err := handler.Handle(r.Context(), chatformat.Request{
		Model:    model,
		Messages: req.Messages,
		Tools:    req.Tools,
		Params:   req.samplingParams(),
	})
	if err != nil {
		writeHandleError(w, err)
		return
	}

	s.logRequest(completion, time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(completion); err != nil {
		log.Printf("encode chat completion: %v", err)
	}
}

// writeHandleError maps handler failures onto OpenAI-style error responses.
func writeHandleError(w http.ResponseWriter, err error) {
	var verr *chat.ValidationError
	switch {
	case errors.Is(err, chatformat.ErrStreamingUnsupported):
		writeError(w, http.StatusBadRequest, "Streaming is not supported", "invalid_request_error", "streaming_unsupported")
	case errors.Is(err, chat.ErrUnknownRole):
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request_error", "invalid_request")
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error(), "invalid_request_error", "invalid_request")
	default:
		writeError(w, http.StatusBadGateway, err.Error(), "server_error", "engine_error")
	}
}

// handleEmbeddings handles POST /v1/embeddings. The engine's result is
// returned to the client verbatim.
func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req EmbeddingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "invalid_request_error", "invalid_request")
		return
	}
	inputs, err := req.inputs()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request_error", "invalid_request")
		return
	}

	result, err := s.engine.Embedding(r.Context(), llama.EmbeddingRequest{
		Model: req.Model,
		Input: inputs,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error(), "server_error", "engine_error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.Printf("encode embeddings: %v", err)
	}
}

// logRequest records usage accounting for a served completion. Failures are
// logged, never surfaced to the client.
func (s *Server) logRequest(c *chat.Completion, elapsed time.Duration) {
	if s.db == nil {
		return
	}
	rec := &db.Request{
		ID:               c.ID,
		Model:            c.Model,
		ChatFormat:       s.cfg.ChatFormat,
		PromptTokens:     c.Usage.PromptTokens,
		CompletionTokens: c.Usage.CompletionTokens,
		TotalTokens:      c.Usage.TotalTokens,
		DurationMs:       elapsed.Milliseconds(),
	}
	if len(c.Choices) > 0 {
		rec.FinishReason = c.Choices[0].FinishReason
		if calls := c.Choices[0].Message.ToolCalls; len(calls) > 0 {
			name := calls[0].Function.Name
			rec.ToolCall = &name
		}
	}
	if err := s.db.InsertRequest(rec); err != nil {
		log.Printf("request log: %v", err)
	}
}
