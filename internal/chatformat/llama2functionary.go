package chatformat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/localforge/llamaserve/internal/chat"
	"github.com/localforge/llamaserve/internal/llama"
)

// FormatLlama2Functionary is the registry key for the Llama-2 functionary
// prompt grammar.
const FormatLlama2Functionary = "llama-2-functionary"

// completionStop are the hard stop sequences passed to the engine for this
// format. The engine must truncate before echoing them.
var completionStop = []string{"user:", "</s>"}

// Llama2Functionary handles chat completions for function-calling Llama-2
// model variants: tool declarations go into a <FUNCTIONS> header, turns are
// grouped into [INST] blocks, and model output that decodes as a
// {"function":...,"arguments":{...}} object comes back as a tool call.
type Llama2Functionary struct {
	engine llama.Engine
}

var _ Handler = (*Llama2Functionary)(nil)

// NewLlama2Functionary creates the handler around an inference engine.
func NewLlama2Functionary(engine llama.Engine) *Llama2Functionary {
	return &Llama2Functionary{engine: engine}
}

// Handle runs one chat completion: guard, compile, generate, parse,
// assemble. The engine call blocks for the full generation duration.
func (h *Llama2Functionary) Handle(ctx context.Context, req Request) (*chat.Completion, error) {
	if req.Params.Stream {
		return nil, ErrStreamingUnsupported
	}

	prompt, err := CompilePrompt(req.Messages, req.Tools)
	if err != nil {
		return nil, err
	}

	res, err := h.engine.Completion(ctx, llama.CompletionRequest{
		Prompt: prompt,
		Stop:   completionStop,
		Model:  req.Model,
		Params: req.Params,
	})
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}

	msg := chat.ResponseMessage{Role: chat.RoleAssistant}
	switch parsed := ParseCompletion(res.Text()).(type) {
	case FunctionCall:
		call := chat.ToolCall{
			ID:   parsed.Name,
			Type: "function",
			Function: chat.FunctionCall{
				Name:      parsed.Name,
				Arguments: parsed.ArgumentsJSON,
			},
		}
		msg.ToolCalls = []chat.ToolCall{call}
		// Mirror into the legacy single function-call field for clients
		// that predate tool_calls.
		msg.FunctionCall = &call.Function
	case PlainMessage:
		text := parsed.Text
		msg.Content = &text
	}

	return &chat.Completion{
		ID:      "chat" + res.ID,
		Object:  "chat.completion",
		Created: res.Created,
		Model:   res.Model,
		Choices: []chat.Choice{{Index: 0, Message: msg, FinishReason: "stop"}},
		Usage:   res.Usage,
	}, nil
}

// CompilePrompt renders an ordered turn sequence plus tool declarations into
// a single prompt string in the Llama-2 functionary grammar. An unknown role
// aborts with chat.ErrUnknownRole and no partial output.
func CompilePrompt(messages []chat.Message, tools []chat.Tool) (string, error) {
	header, err := toolHeader(tools)
	if err != nil {
		return "", err
	}

	var state promptState
	for _, msg := range messages {
		content, err := turnContent(&msg)
		if err != nil {
			return "", err
		}
		switch msg.Role {
		case chat.RoleUser, chat.RoleFunction:
			state.set(&state.user, content)
		case chat.RoleSystem:
			state.set(&state.system, content)
		case chat.RoleAssistant:
			state.set(&state.assistant, content)
		default:
			return "", fmt.Errorf("%w: %q", chat.ErrUnknownRole, msg.Role)
		}
	}
	state.flush()

	return header + strings.Join(state.lines, "\n"), nil
}

// toolHeader renders the <FUNCTIONS> block: a 4-space-indented JSON array of
// {function, description, arguments} entries. Empty tools produce an empty
// string. Required-ness is not part of this projection; the grammar only
// carries name and type per argument.
func toolHeader(tools []chat.Tool) (string, error) {
	if len(tools) == 0 {
		return "", nil
	}

	type headerArg struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	type headerTool struct {
		Function    string      `json:"function"`
		Description string      `json:"description"`
		Arguments   []headerArg `json:"arguments"`
	}

	entries := make([]headerTool, 0, len(tools))
	for _, t := range tools {
		entry := headerTool{
			Function:    t.Function.Name,
			Description: t.Function.Description,
		}
		// Arguments appear in the property declaration order.
		if props := t.Function.Parameters.Properties; props != nil {
			for pair := props.Oldest(); pair != nil; pair = pair.Next() {
				entry.Arguments = append(entry.Arguments, headerArg{Name: pair.Key, Type: pair.Value.Type})
			}
		}
		entries = append(entries, entry)
	}

	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encode tool header: %w", err)
	}
	return "<FUNCTIONS>" + string(data) + "</FUNCTIONS>\n\n", nil
}

// promptState accumulates at most one pending value per slot. It is created
// empty per compilation, mutated turn by turn, and discarded when
// compilation returns.
type promptState struct {
	system    *string
	user      *string
	assistant *string
	lines     []string
}

// set stores content into a slot, flushing first when that slot is already
// occupied. The flush is keyed by the target slot, not by role equality: a
// function turn landing in an occupied user slot flushes just the same.
func (s *promptState) set(slot **string, content string) {
	if *slot != nil {
		s.flush()
	}
	*slot = &content
}

// flush renders the pending slots as one block and resets them; a flush with
// every slot empty emits nothing. When user is unset, pending system content
// is dropped with the block — the upstream grammar behaves the same way, so
// this is kept as documented behavior.
func (s *promptState) flush() {
	if s.system == nil && s.user == nil && s.assistant == nil {
		return
	}

	var system string
	if s.system != nil {
		system = "<<SYS>>\n" + *s.system + "\n<</SYS>>\n\n"
	}

	var prompt string
	if s.user != nil {
		prompt = "[INST] " + system + *s.user + " [/INST]"
	}
	if s.assistant != nil {
		prompt = "<s>" + prompt + " " + *s.assistant + "</s>"
	}

	s.lines = append(s.lines, prompt)
	s.system, s.user, s.assistant = nil, nil, nil
}

// turnContent derives the slot content for one turn: assistant function
// calls render as a compact JSON object, function results get the literal
// response wrapper, everything else is the content verbatim.
func turnContent(msg *chat.Message) (string, error) {
	if msg.Role == chat.RoleAssistant {
		if call := msg.Call(); call != nil {
			return formatFunctionCall(call)
		}
	}

	var content string
	if msg.Content != nil {
		content = *msg.Content
	}
	if msg.Role == chat.RoleFunction {
		return "Here is the response to that function call:\n\n\"" + content + "\"", nil
	}
	return content, nil
}

// formatFunctionCall re-encodes an assistant function call as the
// {"function":...,"arguments":{...}} object the grammar expects. The
// arguments string is decoded here, which is where malformed argument JSON
// surfaces as a ValidationError.
func formatFunctionCall(call *chat.FunctionCall) (string, error) {
	args, err := call.DecodeArguments()
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(struct {
		Function  string         `json:"function"`
		Arguments map[string]any `json:"arguments"`
	}{Function: call.Name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("encode function call: %w", err)
	}
	return string(data), nil
}
