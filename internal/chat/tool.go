package chat

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Tool declares a callable capability offered to the model so it may request
// an invocation instead of producing free text.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the function portion of a tool declaration.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  ToolParameters `json:"parameters"`
}

// ToolParameters is the JSON-schema-like parameter spec. Properties is an
// ordered map because the prompt header projects arguments in declaration
// order, so decoding must preserve the JSON key order.
type ToolParameters struct {
	Type       string                                       `json:"type"`
	Title      string                                       `json:"title,omitempty"`
	Required   []string                                     `json:"required,omitempty"`
	Properties *orderedmap.OrderedMap[string, PropertySpec] `json:"properties"`
}

// PropertySpec describes a single tool parameter.
type PropertySpec struct {
	Title string `json:"title,omitempty"`
	Type  string `json:"type"`
}

// Validate checks that the declaration names a function and that every
// required name is a declared property.
func (t *Tool) Validate() error {
	fn := &t.Function
	if fn.Name == "" {
		return validationErrorf("tool is missing a function name")
	}
	for _, name := range fn.Parameters.Required {
		if fn.Parameters.Properties == nil {
			return validationErrorf("tool %q requires %q but declares no properties", fn.Name, name)
		}
		if _, ok := fn.Parameters.Properties.Get(name); !ok {
			return validationErrorf("tool %q requires %q but does not declare it", fn.Name, name)
		}
	}
	return nil
}
