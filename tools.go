package cadagent

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolSpec is the declarative tool schema exposed to the model.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is the normalized tool call.
type ToolCall struct {
	CallID   string
	Name     string
	ArgsJSON json.RawMessage
}

// Args are decoded tool arguments, keyed by parameter name.
type Args map[string]any

// Decode re-encodes the arguments into a typed struct.
func (a Args) Decode(v any) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// String returns the argument as a string, or "" when absent.
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Tool is an executable capability. Execute may return an Envelope to
// signal its own partial-failure semantics; any other value is wrapped as
// successful data, and a returned error becomes an error envelope.
type Tool interface {
	Spec() ToolSpec
	Execute(ctx context.Context, args Args) (any, error)
}

// ToolFunc adapts a function to the Tool interface.
type ToolFunc struct {
	ToolSpec
	Fn func(ctx context.Context, args Args) (any, error)
}

var _ Tool = ToolFunc{}

func (t ToolFunc) Spec() ToolSpec { return t.ToolSpec }

func (t ToolFunc) Execute(ctx context.Context, args Args) (any, error) {
	if t.Fn == nil {
		return nil, fmt.Errorf("tool %s has no implementation", t.Name)
	}
	return t.Fn(ctx, args)
}

// ObjectSchema builds a JSON object schema from property definitions.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	if properties == nil {
		properties = map[string]any{}
	}
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func decodeArgs(raw json.RawMessage) (Args, error) {
	if len(raw) == 0 {
		return Args{}, nil
	}
	var args Args
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if args == nil {
		args = Args{}
	}
	return args, nil
}
