// Package chatformat translates between the vendor-neutral chat wire format
// and model-specific prompt grammars. Each supported grammar is a Handler
// registered under its format name; the serving layer dispatches to the
// handler matching the configured model's chat format.
package chatformat

import (
	"context"
	"errors"

	"github.com/localforge/llamaserve/internal/chat"
	"github.com/localforge/llamaserve/internal/llama"
)

// Request is a chat-completion request after gateway validation.
type Request struct {
	Model    string
	Messages []chat.Message
	Tools    []chat.Tool
	Params   llama.SamplingParams
}

// Handler turns a chat request into a completion response for one prompt
// grammar: compile the prompt, run the engine, parse the output.
type Handler interface {
	Handle(ctx context.Context, req Request) (*chat.Completion, error)
}

// ErrStreamingUnsupported is returned for stream=true requests. The guard
// fires before any engine call is made.
var ErrStreamingUnsupported = errors.New("streaming is not supported")
