package llama

import (
	"context"
	"sync"
)

// Serialized wraps an Engine with a mutex so at most one generation is in
// flight. The underlying engine holds a single model context and is not
// safe for concurrent generation.
type Serialized struct {
	mu     sync.Mutex
	engine Engine
}

var _ Engine = (*Serialized)(nil)

// NewSerialized wraps engine so all calls into it are serialized.
func NewSerialized(engine Engine) *Serialized {
	return &Serialized{engine: engine}
}

// Completion forwards to the wrapped engine, one caller at a time. Once a
// call is issued it runs to completion; there is no cancellation of the
// generation itself beyond what the wrapped engine honors.
func (s *Serialized) Completion(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Completion(ctx, req)
}

// Embedding forwards to the wrapped engine, one caller at a time.
func (s *Serialized) Embedding(ctx context.Context, req EmbeddingRequest) (*EmbeddingResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Embedding(ctx, req)
}
