package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Role tags a chat turn. Only the four recognized values are valid.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

// Valid reports whether r is one of the recognized roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleFunction:
		return true
	}
	return false
}

// ErrUnknownRole is returned when a turn carries a role outside the four
// recognized values. Prompt compilation aborts on it with no partial output.
var ErrUnknownRole = errors.New("unknown role")

// ValidationError describes a malformed message or tool declaration. The
// gateway maps it to a client error before any inference work happens.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// FunctionCall is a request to invoke a named function. Arguments is a
// JSON-encoded object string; it is validated lazily by DecodeArguments at
// the point of consumption, not at construction.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// DecodeArguments parses the JSON-encoded arguments string.
func (fc *FunctionCall) DecodeArguments() (map[string]any, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
		return nil, validationErrorf("function call %q: arguments are not valid JSON: %v", fc.Name, err)
	}
	return args, nil
}

// Message is one turn in a conversation. Content is a pointer so an absent
// field stays distinct from an empty string: content may be absent only when
// a function-call payload is present.
type Message struct {
	Role         Role          `json:"role"`
	Content      *string       `json:"content"`
	Name         string        `json:"name,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
}

// Call returns the function-call payload of an assistant turn, preferring
// the tool_calls form over the legacy function_call field. Nil when the
// turn carries no call.
func (m *Message) Call() *FunctionCall {
	if len(m.ToolCalls) > 0 {
		return &m.ToolCalls[0].Function
	}
	return m.FunctionCall
}

// Validate enforces the one-payload-per-turn invariant: plain content, a
// function call on an assistant turn, or function-result content on a
// function turn.
func (m *Message) Validate() error {
	if !m.Role.Valid() {
		return validationErrorf("unknown role %q", m.Role)
	}
	if call := m.Call(); call != nil {
		if m.Role != RoleAssistant {
			return validationErrorf("%s message cannot carry a function call", m.Role)
		}
		if call.Name == "" {
			return validationErrorf("function call is missing a name")
		}
		if call.Arguments == "" {
			return validationErrorf("function call %q is missing arguments", call.Name)
		}
		return nil
	}
	if m.Content == nil {
		return validationErrorf("%s message has no content and no function call", m.Role)
	}
	return nil
}

// Text is a convenience constructor for a plain content turn.
func Text(role Role, content string) Message {
	return Message{Role: role, Content: &content}
}
