package cadagent

import (
	"errors"
	"time"
)

// Transcript is an ordered message list in which a system message, if
// present, appears exactly once and first.
type Transcript struct {
	msgs []Message
}

// NewTranscript starts a transcript from an optional system prompt, prior
// history and the new user input. History may carry its own leading system
// message only when system is empty.
func NewTranscript(system string, history []Message, input []Part) (*Transcript, error) {
	t := &Transcript{}
	if system != "" {
		t.msgs = append(t.msgs, SystemMessage{Text: system, Timestamp: time.Now().UnixMilli()})
	}
	for _, m := range history {
		if err := t.Append(m); err != nil {
			return nil, err
		}
	}
	if len(input) > 0 {
		if err := t.Append(UserMessage{Parts: input, Timestamp: time.Now().UnixMilli()}); err != nil {
			return nil, err
		}
	}
	return t, nil
}

var errMisplacedSystem = errors.New("cadagent: system message must be first and appear once")

// Append adds m, rejecting a system message anywhere but the first slot.
func (t *Transcript) Append(m Message) error {
	if m == nil {
		return errors.New("cadagent: nil message")
	}
	if RoleOf(m) == RoleSystem && len(t.msgs) > 0 {
		return errMisplacedSystem
	}
	t.msgs = append(t.msgs, m)
	return nil
}

// Messages returns a copy of the transcript.
func (t *Transcript) Messages() []Message {
	return append([]Message(nil), t.msgs...)
}

func (t *Transcript) Len() int { return len(t.msgs) }
