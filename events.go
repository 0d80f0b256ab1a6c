package cadagent

import "encoding/json"

// EventType represents dialog lifecycle updates.
type EventType string

const (
	EventRoundStart EventType = "round_start"
	EventAssistant  EventType = "assistant"
	EventToolStart  EventType = "tool_start"
	EventToolEnd    EventType = "tool_end"
	EventDialogEnd  EventType = "dialog_end"
)

// Event is delivered synchronously to Dialog.OnEvent. Only the fields
// relevant to Type are set.
type Event struct {
	Type  EventType
	RunID string
	Round int

	Assistant *AssistantMessage

	ToolCallID string
	ToolName   string
	ToolArgs   json.RawMessage
	ToolResult *Envelope

	Final *DialogResult
}
