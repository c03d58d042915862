package chatformat

import "encoding/json"

// Parsed is the interpretation of raw model output: either a plain
// assistant message or a structured function call. Exactly one variant.
type Parsed interface {
	parsedCompletion()
}

// PlainMessage is conversational text, carried verbatim.
type PlainMessage struct {
	Text string
}

// FunctionCall is a structured request to invoke a named function.
// ArgumentsJSON is the 2-space-indented encoding of the arguments object.
type FunctionCall struct {
	Name          string
	ArgumentsJSON string
}

func (PlainMessage) parsedCompletion() {}
func (FunctionCall) parsedCompletion() {}

// ParseCompletion interprets raw model output. Output that is not a JSON
// object of the shape {"function": string, "arguments": object} is the
// expected plain-text path, not an error; nothing here fails.
func ParseCompletion(raw string) Parsed {
	var probe struct {
		Function  string          `json:"function"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return PlainMessage{Text: raw}
	}
	if probe.Function == "" || len(probe.Arguments) == 0 {
		return PlainMessage{Text: raw}
	}

	var args map[string]any
	if err := json.Unmarshal(probe.Arguments, &args); err != nil || args == nil {
		return PlainMessage{Text: raw}
	}

	pretty, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return PlainMessage{Text: raw}
	}
	return FunctionCall{Name: probe.Function, ArgumentsJSON: string(pretty)}
}
