package chatcompletion

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/inspirepan/cadagent"
	"github.com/openai/openai-go/v3"
)

// ParseCompletion converts the first choice of a completion into an
// assistant message.
func ParseCompletion(c *openai.ChatCompletion) (*cadagent.CompletionResponse, error) {
	if c == nil || len(c.Choices) == 0 {
		return nil, errors.New("chatcompletion: response has no choices")
	}
	choice := c.Choices[0]

	var parts []cadagent.Part
	if choice.Message.Content != "" {
		parts = append(parts, cadagent.TextPart{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		parts = append(parts, cadagent.ToolCallPart{
			CallID:   tc.ID,
			Name:     tc.Function.Name,
			ArgsJSON: json.RawMessage(args),
		})
	}

	var usage *cadagent.Usage
	if c.Usage.TotalTokens > 0 {
		usage = &cadagent.Usage{
			InputTokens:      int(c.Usage.PromptTokens),
			OutputTokens:     int(c.Usage.CompletionTokens),
			CachedReadTokens: int(c.Usage.PromptTokensDetails.CachedTokens),
			TotalTokens:      int(c.Usage.TotalTokens),
		}
	}

	reason := mapFinishReason(string(choice.FinishReason))
	return &cadagent.CompletionResponse{
		Message: cadagent.AssistantMessage{
			Parts:      parts,
			Timestamp:  time.Now().UnixMilli(),
			Usage:      usage,
			StopReason: reason,
		},
		StopReason: reason,
		Usage:      usage,
	}, nil
}

func mapFinishReason(reason string) cadagent.StopReason {
	switch reason {
	case "stop":
		return cadagent.StopStop
	case "length":
		return cadagent.StopLength
	case "tool_calls", "function_call":
		return cadagent.StopToolUse
	case "content_filter":
		return cadagent.StopError
	default:
		return cadagent.StopStop
	}
}
