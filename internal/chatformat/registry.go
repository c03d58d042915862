package chatformat

import (
	"fmt"
	"sort"

	"github.com/localforge/llamaserve/internal/llama"
)

// Registry maps chat-format names to Handlers. It is built once at startup,
// passed by reference into the serving layer, and read-only afterwards.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates a Registry with the built-in formats registered
// against the given engine.
func NewRegistry(engine llama.Engine) *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	r.Register(FormatLlama2Functionary, NewLlama2Functionary(engine))
	return r
}

// Register adds or replaces a handler in the registry.
func (r *Registry) Register(name string, h Handler) {
	r.handlers[name] = h
}

// Resolve returns the handler registered under the given format name.
func (r *Registry) Resolve(name string) (Handler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("chat format %q is not registered", name)
	}
	return h, nil
}

// Formats returns the registered format names, sorted.
func (r *Registry) Formats() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
