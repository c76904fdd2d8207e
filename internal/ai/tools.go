package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"
	"unicode/utf8"
)

const (
	// Max JSON output length before truncation (~8KB, keeps token usage low)
	maxOutputLen = 8192
	// Per-tool execution timeout
	toolTimeout = 30 * time.Second
)

// ParamSchema describes tool parameters using JSON Schema conventions.
type ParamSchema struct {
	Type        string                  `json:"type"`
	Description string                  `json:"description,omitempty"`
	Properties  map[string]*ParamSchema `json:"properties,omitempty"`
	Required    []string                `json:"required,omitempty"`
	Enum        []string                `json:"enum,omitempty"`
	Items       *ParamSchema            `json:"items,omitempty"`
}

// Tool is a single function the model can call. Execute returns a value and
// never touches conversation history.
type Tool interface {
	Name() string
	Description() string
	Parameters() *ParamSchema
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// ToolSchema is what gets advertised to the model for one tool.
type ToolSchema struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Parameters  *ParamSchema `json:"parameters"`
}

// Registry holds all registered tools. Register everything before the
// registry is shared; it is not safe for concurrent registration.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t. A later tool with the same name replaces the earlier one.
func (r *Registry) Register(t Tool) {
	if _, ok := r.tools[t.Name()]; ok {
		log.Printf("tool: %s registered twice, replacing previous definition", t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Len() int { return len(r.tools) }

// Schemas returns every tool's advertised schema, sorted by name.
func (r *Registry) Schemas() []ToolSchema {
	schemas := make([]ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		p := t.Parameters()
		if p == nil {
			p = &ParamSchema{Type: "object", Properties: map[string]*ParamSchema{}}
		}
		schemas = append(schemas, ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  p,
		})
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// Execute runs the named tool with a timeout. An unknown name returns
// ErrUnknownTool; a failing tool is not an error here, its failure comes back
// as a structured error payload for the model.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}

	toolCtx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	start := time.Now()
	result, err := runTool(toolCtx, t, args)
	log.Printf("tool: %s completed in %dms", name, time.Since(start).Milliseconds())

	if err != nil {
		te := ClassifyError(err)
		log.Printf("tool: %s failed (%s): %s", name, te.Type, te.RawError)
		return te.Payload(), nil
	}
	if result == nil {
		result = map[string]any{}
	}
	return truncateOutput(result), nil
}

// runTool converts a panicking tool into an error.
func runTool(ctx context.Context, t Tool, args map[string]any) (result map[string]any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tool %s panicked: %v", t.Name(), p)
		}
	}()
	return t.Execute(ctx, args)
}

// ParseArgs decodes the model's JSON arguments. Malformed or empty input
// yields an empty map so tools fall back to zero values.
func ParseArgs(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		log.Printf("tool: ignoring malformed arguments %q: %v", raw, err)
		return map[string]any{}
	}
	return args
}

func truncateOutput(result map[string]any) map[string]any {
	data, err := json.Marshal(result)
	if err != nil || len(data) <= maxOutputLen {
		return result
	}

	// cut on a rune boundary
	cut := maxOutputLen
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	log.Printf("tool: output truncated from %d to %d bytes", len(data), cut)
	return map[string]any{
		"_truncated": true,
		"_summary":   string(data[:cut]),
	}
}
