// Package testutil provides common testing utilities for providers and dialogs.
package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/inspirepan/cadagent"
)

const DefaultTimeout = 60 * time.Second

// SkipIfNoEnv skips the test if the environment variable is not set.
func SkipIfNoEnv(t *testing.T, envVar string) {
	t.Helper()
	if os.Getenv(envVar) == "" {
		t.Skipf("skipping: %s not set", envVar)
	}
}

// TestConfig holds configuration for a live provider run.
type TestConfig struct {
	Provider cadagent.Provider
	Timeout  time.Duration
}

// DefaultConfig returns a TestConfig with default timeout.
func DefaultConfig(provider cadagent.Provider) TestConfig {
	return TestConfig{
		Provider: provider,
		Timeout:  DefaultTimeout,
	}
}

// User builds a text-only user message.
func User(text string) cadagent.UserMessage {
	return cadagent.UserMessage{Parts: []cadagent.Part{cadagent.TextPart{Text: text}}}
}

// TestBasicTextGeneration checks that the provider answers plain text.
func TestBasicTextGeneration(t *testing.T, cfg TestConfig) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	resp, err := cfg.Provider.Complete(ctx, cadagent.CompletionRequest{
		Messages: []cadagent.Message{User("Write a haiku about a lathe")},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Message.Text() == "" {
		t.Error("expected non-empty text response")
	}
	if resp.Usage == nil {
		t.Log("warning: usage info not returned")
	} else if resp.Usage.OutputTokens == 0 {
		t.Error("expected non-zero output tokens")
	}
	t.Logf("response: %q", resp.Message.Text())
}

// OpenFileSpec is a single-argument tool used by the live tool-calling check.
var OpenFileSpec = cadagent.ToolSpec{
	Name:        "cad_open_file",
	Description: "Open a CAD part file by path",
	Parameters: cadagent.ObjectSchema(map[string]any{
		"filePath": map[string]any{"type": "string", "description": "Path of the file to open"},
	}, "filePath"),
}

// TestToolCalling checks that the provider emits a tool call when asked to.
func TestToolCalling(t *testing.T, cfg TestConfig) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	resp, err := cfg.Provider.Complete(ctx, cadagent.CompletionRequest{
		Messages: []cadagent.Message{
			cadagent.SystemMessage{Text: "You operate a CAD program. Use the tools provided."},
			User("Please open part.prt"),
		},
		Tools:      []cadagent.ToolSpec{OpenFileSpec},
		ToolChoice: cadagent.ToolChoiceAuto,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	calls := resp.Message.ToolCalls()
	if len(calls) == 0 {
		t.Fatal("expected at least one tool call")
	}
	if calls[0].Name != OpenFileSpec.Name {
		t.Errorf("expected tool name %q, got %q", OpenFileSpec.Name, calls[0].Name)
	}
	if !strings.Contains(string(calls[0].ArgsJSON), "part.prt") {
		t.Errorf("expected arguments to mention part.prt, got %s", calls[0].ArgsJSON)
	}
}

// TestMultiTurn checks that earlier turns are visible to the model.
func TestMultiTurn(t *testing.T, cfg TestConfig) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	resp, err := cfg.Provider.Complete(ctx, cadagent.CompletionRequest{
		Messages: []cadagent.Message{
			User("My part number is PX-42."),
			cadagent.AssistantMessage{Parts: []cadagent.Part{cadagent.TextPart{Text: "Noted, PX-42."}}},
			User("What is my part number?"),
		},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if !strings.Contains(resp.Message.Text(), "PX-42") {
		t.Errorf("expected response to contain PX-42, got: %s", resp.Message.Text())
	}
}
