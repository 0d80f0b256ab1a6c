package base

import (
	"sync"
	"time"

	"github.com/inspirepan/cadagent/internal/jsonl"
)

// DebugLogger writes provider traffic as JSONL. The file is opened on the
// first record; a nil or path-less logger records nothing.
// It is safe for concurrent use.
type DebugLogger struct {
	provider string
	model    string
	path     string

	once sync.Once
	w    *jsonl.Writer
	err  error
}

// NewDebugLogger creates a debug logger for one provider/model pair.
// If path is empty, returns nil (debug logging disabled).
func NewDebugLogger(path, provider, model string) *DebugLogger {
	if path == "" {
		return nil
	}
	return &DebugLogger{provider: provider, model: model, path: path}
}

// Log writes one record of the given type.
func (l *DebugLogger) Log(recordType string, data any) error {
	if l == nil {
		return nil
	}
	l.once.Do(func() { l.w, l.err = jsonl.Open(l.path) })
	if l.err != nil {
		return l.err
	}
	rec := NewDebugRecord(recordType, data)
	rec.Provider = l.provider
	rec.Model = l.model
	return l.w.Write(rec)
}

func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}
	return l.w.Close()
}

// DebugRecord is a normalized JSONL entry.
type DebugRecord struct {
	Time     string `json:"time"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Type     string `json:"type"`
	Data     any    `json:"data,omitempty"`
}

func NewDebugRecord(recordType string, data any) DebugRecord {
	return DebugRecord{
		Time: time.Now().UTC().Format(time.RFC3339Nano),
		Type: recordType,
		Data: data,
	}
}
