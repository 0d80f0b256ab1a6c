package cadagent

import "context"

// ToolChoice is the tool-selection policy sent with a completion request:
// ToolChoiceAuto, ToolChoiceNone, ToolChoiceRequired, or the name of a tool
// the model is forced to call.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// Forced reports the tool name the choice forces, if any.
func (c ToolChoice) Forced() (string, bool) {
	switch c {
	case "", ToolChoiceAuto, ToolChoiceNone, ToolChoiceRequired:
		return "", false
	default:
		return string(c), true
	}
}

// CompletionRequest is the provider-agnostic completion input. Messages
// starts with the system message when there is one.
type CompletionRequest struct {
	Messages          []Message
	Tools             []ToolSpec
	ToolChoice        ToolChoice
	ParallelToolCalls bool
}

// CompletionResponse is the provider-agnostic completion output.
type CompletionResponse struct {
	Message    AssistantMessage
	StopReason StopReason
	Usage      *Usage
}

// Provider is the completion endpoint. Any returned error is treated as a
// transport failure and aborts the dialog.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

func (f ProviderFunc) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return f(ctx, req)
}
