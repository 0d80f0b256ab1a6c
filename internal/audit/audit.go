// Package audit records tool invocations as an append-only JSONL trail.
// Audit writes never fail the caller: errors are logged and dropped.
package audit

import (
	"io"
	"time"

	"github.com/inspirepan/cadagent/internal/jsonl"
	"go.uber.org/zap"
)

// EventKind names an audit record.
type EventKind string

const (
	ToolStart EventKind = "tool_start"
	ToolEnd   EventKind = "tool_end"
)

// Record is one line of the audit log.
type Record struct {
	Time       string    `json:"ts"`
	Event      EventKind `json:"event"`
	RunID      string    `json:"run_id,omitempty"`
	CallID     string    `json:"tool_call_id"`
	Name       string    `json:"name"`
	Args       any       `json:"args,omitempty"`
	Result     any       `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"dur_ms,omitempty"`
}

// Log is shared process-wide; a nil *Log records nothing.
type Log struct {
	w      *jsonl.Writer
	logger *zap.Logger
	now    func() time.Time
}

// Open appends to the audit file at path.
func Open(path string, logger *zap.Logger) (*Log, error) {
	w, err := jsonl.Open(path)
	if err != nil {
		return nil, err
	}
	return newLog(w, logger), nil
}

// New writes audit records to w.
func New(w io.Writer, logger *zap.Logger) *Log {
	return newLog(jsonl.NewWriter(w), logger)
}

func newLog(w *jsonl.Writer, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{w: w, logger: logger, now: time.Now}
}

// Start records the beginning of a tool call.
func (l *Log) Start(runID, callID, name string, args any) {
	if l == nil {
		return
	}
	l.write(Record{
		Event:  ToolStart,
		RunID:  runID,
		CallID: callID,
		Name:   name,
		Args:   args,
	})
}

// End records the outcome of a tool call. errMsg is empty on success.
func (l *Log) End(runID, callID, name string, result any, errMsg string, dur time.Duration) {
	if l == nil {
		return
	}
	rec := Record{
		Event:      ToolEnd,
		RunID:      runID,
		CallID:     callID,
		Name:       name,
		Error:      errMsg,
		DurationMs: dur.Milliseconds(),
	}
	if errMsg == "" {
		rec.Result = result
	}
	l.write(rec)
}

func (l *Log) write(rec Record) {
	rec.Time = l.now().UTC().Format(time.RFC3339Nano)
	if err := l.w.Write(rec); err != nil {
		l.logger.Warn("audit write failed",
			zap.String("event", string(rec.Event)),
			zap.String("call_id", rec.CallID),
			zap.Error(err))
	}
}

func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.w.Close()
}
