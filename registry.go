package vigil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolHandler executes a tool call. Handlers return result maps with a
// "status" key ("success" or "error"); error results carry a "message".
// Handlers never need to worry about timeouts or panics; the registry
// wrapper converts both into error results.
type ToolHandler func(ctx context.Context, args map[string]any) map[string]any

// ToolRegistry holds tool name -> (schema, handler) mappings.
//
// Every handler is wrapped at registration time with a wall-clock timeout
// and panic capture, so callers can invoke handlers without their own
// recovery. The registry is built once at startup and cloned per
// orchestrator so instance-scoped tools do not leak across events.
type ToolRegistry struct {
	timeout  time.Duration
	specs    map[string]ToolDefinition
	handlers map[string]ToolHandler
	schemas  map[string]*jsonschema.Schema
}

// NewToolRegistry creates an empty registry with the given per-tool timeout.
// A zero or negative timeout defaults to 60 seconds.
func NewToolRegistry(timeout time.Duration) *ToolRegistry {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ToolRegistry{
		timeout:  timeout,
		specs:    make(map[string]ToolDefinition),
		handlers: make(map[string]ToolHandler),
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool with its JSON-Schema parameters. The schema is
// compiled eagerly; invalid schemas are rejected here rather than at
// dispatch time. Registering an existing name replaces it.
func (r *ToolRegistry) Register(name, description string, parameters json.RawMessage, h ToolHandler) error {
	if name == "" {
		return fmt.Errorf("registry: tool name is required")
	}
	if h == nil {
		return fmt.Errorf("registry: tool %s: handler is required", name)
	}
	params := parameters
	if len(params) == 0 {
		params = json.RawMessage(`{"type":"object"}`)
	}
	schema, err := jsonschema.CompileString(name+".schema.json", string(params))
	if err != nil {
		return fmt.Errorf("registry: tool %s: compile schema: %w", name, err)
	}
	r.specs[name] = ToolDefinition{Name: name, Description: description, Parameters: params}
	r.handlers[name] = r.wrap(name, h)
	r.schemas[name] = schema
	return nil
}

// Handler returns the wrapped handler for a tool, or false if unknown.
func (r *ToolRegistry) Handler(name string) (ToolHandler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Schema returns the tool definition for a tool, or false if unknown.
func (r *ToolRegistry) Schema(name string) (ToolDefinition, bool) {
	s, ok := r.specs[name]
	return s, ok
}

// Validate checks decoded arguments against the tool's parameter schema.
func (r *ToolRegistry) Validate(name string, args map[string]any) error {
	schema, ok := r.schemas[name]
	if !ok {
		return fmt.Errorf("no such tool named %s", name)
	}
	// jsonschema validates any, but args decoded from JSON are already
	// the map/slice/scalar shapes it expects.
	return schema.Validate(anyMap(args))
}

// Definitions returns all tool definitions, sorted by name so the tool
// list sent to the LLM is deterministic.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(r.specs))
	for _, d := range r.specs {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Clone returns a copy with independent maps. Registrations on the clone
// do not mutate the original, and vice versa.
func (r *ToolRegistry) Clone() *ToolRegistry {
	c := NewToolRegistry(r.timeout)
	for k, v := range r.specs {
		c.specs[k] = v
	}
	for k, v := range r.handlers {
		c.handlers[k] = v
	}
	for k, v := range r.schemas {
		c.schemas[k] = v
	}
	return c
}

// Timeout returns the per-tool wall-clock cap.
func (r *ToolRegistry) Timeout() time.Duration { return r.timeout }

// wrap bounds a handler with the registry timeout and converts panics
// into error results. The wrapped handler never blocks past the timeout:
// the underlying goroutine may still be running, but its result is
// discarded once the deadline passes.
func (r *ToolRegistry) wrap(name string, h ToolHandler) ToolHandler {
	timeout := r.timeout
	return func(ctx context.Context, args map[string]any) map[string]any {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		done := make(chan map[string]any, 1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					done <- map[string]any{
						"status":  "error",
						"message": fmt.Sprintf("tool %s panicked: %v", name, p),
					}
				}
			}()
			done <- h(ctx, args)
		}()

		select {
		case result := <-done:
			if result == nil {
				result = map[string]any{"status": "success"}
			}
			return result
		case <-ctx.Done():
			return map[string]any{
				"status":  "error",
				"message": fmt.Sprintf("Tool %s timed out after %ds", name, int(timeout.Seconds())),
			}
		}
	}
}

// anyMap converts map[string]any into the any value jsonschema expects.
// A nil map validates as an empty object.
func anyMap(args map[string]any) any {
	if args == nil {
		return map[string]any{}
	}
	return args
}
