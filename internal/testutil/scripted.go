package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/inspirepan/cadagent"
)

// ScriptedProvider replays a fixed list of assistant turns and records every
// request it receives. Running past the script is an error.
type ScriptedProvider struct {
	mu       sync.Mutex
	turns    []cadagent.AssistantMessage
	requests []cadagent.CompletionRequest
	// Err, when set, is returned instead of the next turn.
	Err error
}

func NewScriptedProvider(turns ...cadagent.AssistantMessage) *ScriptedProvider {
	return &ScriptedProvider{turns: turns}
}

func (p *ScriptedProvider) Complete(_ context.Context, req cadagent.CompletionRequest) (*cadagent.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if p.Err != nil {
		return nil, p.Err
	}
	idx := len(p.requests) - 1
	if idx >= len(p.turns) {
		return nil, fmt.Errorf("scripted provider: no turn %d", idx+1)
	}
	msg := p.turns[idx]
	reason := cadagent.StopStop
	if len(msg.ToolCalls()) > 0 {
		reason = cadagent.StopToolUse
	}
	return &cadagent.CompletionResponse{
		Message:    msg,
		StopReason: reason,
		Usage:      &cadagent.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}, nil
}

// Requests returns the requests received so far.
func (p *ScriptedProvider) Requests() []cadagent.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]cadagent.CompletionRequest(nil), p.requests...)
}

// Calls reports how many completions were requested.
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Answer builds a final assistant turn.
func Answer(text string) cadagent.AssistantMessage {
	return cadagent.AssistantMessage{Parts: []cadagent.Part{cadagent.TextPart{Text: text}}}
}

// Call builds a tool-call part with JSON-encoded arguments.
func Call(id, name string, args any) cadagent.ToolCallPart {
	raw, err := json.Marshal(args)
	if err != nil {
		panic(err)
	}
	return cadagent.ToolCallPart{CallID: id, Name: name, ArgsJSON: raw}
}

// CallTools builds an assistant turn that requests the given calls.
func CallTools(calls ...cadagent.ToolCallPart) cadagent.AssistantMessage {
	parts := make([]cadagent.Part, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, c)
	}
	return cadagent.AssistantMessage{Parts: parts}
}
