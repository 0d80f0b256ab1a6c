package cadagent

import (
	"errors"
	"fmt"
)

var (
	ErrNoProvider    = errors.New("cadagent: provider is required")
	ErrToolNotFound  = errors.New("cadagent: tool not found")
	ErrDuplicateTool = errors.New("cadagent: tool already registered")
	ErrEmptyResponse = errors.New("cadagent: provider returned no assistant message")
)

// TransportError reports a failure talking to the completion endpoint.
// It is the only error a dialog returns; tool failures stay in the transcript.
type TransportError struct {
	Round int
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("cadagent: completion request failed in round %d: %v", e.Round, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
