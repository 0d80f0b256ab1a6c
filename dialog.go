package cadagent

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultMaxRounds bounds a dialog when Dialog.MaxRounds is unset.
	DefaultMaxRounds = 100

	// RoundsExhaustedResponse is the response text of a dialog that ran out
	// of rounds while the model was still calling tools.
	RoundsExhaustedResponse = "(tool-call round limit reached)"
)

// Status is the terminal state of a dialog.
type Status string

const (
	StatusAnswered  Status = "answered"
	StatusExhausted Status = "exhausted"
)

// ResultHook post-processes a tool result before it is appended to the
// transcript. Hooks must not panic for expected failures; they fold them
// into the returned envelope instead.
type ResultHook interface {
	Apply(ctx context.Context, call ToolCall, env Envelope) Envelope
}

// ResultHookFunc adapts a function to the ResultHook interface.
type ResultHookFunc func(ctx context.Context, call ToolCall, env Envelope) Envelope

func (f ResultHookFunc) Apply(ctx context.Context, call ToolCall, env Envelope) Envelope {
	return f(ctx, call, env)
}

// Dialog runs the bounded model/tool loop. A Dialog holds no per-run state
// and may be reused, but not concurrently against the same Registry.
type Dialog struct {
	Provider Provider
	Registry *Registry
	Invoker  *Invoker
	Hooks    []ResultHook

	MaxRounds         int
	ParallelToolCalls bool
	ToolChoice        ToolChoice

	// OnEvent, when set, is called synchronously from the dialog goroutine.
	OnEvent func(Event)
	Logger  *zap.Logger
}

// DialogRequest is the input of one dialog run.
type DialogRequest struct {
	SystemPrompt string
	History      []Message
	Input        []Part
}

// DialogResult is the full outcome of a run.
type DialogResult struct {
	Messages []Message
	Response string
	Status   Status
	Rounds   int
	RunID    string
	Usage    Usage
}

// Run drives the dialog until the model answers without tool calls or the
// round budget is spent. Tool failures stay in the transcript; the only
// error returned is a *TransportError from the provider (or a malformed
// request).
func (d *Dialog) Run(ctx context.Context, req DialogRequest) (*DialogResult, error) {
	if d.Provider == nil {
		return nil, ErrNoProvider
	}
	tr, err := NewTranscript(req.SystemPrompt, req.History, req.Input)
	if err != nil {
		return nil, err
	}

	res := &DialogResult{RunID: uuid.NewString()}
	ctx = WithRunID(ctx, res.RunID)
	logger := d.logger().With(zap.String("run_id", res.RunID))
	specs := d.Registry.Specs()
	maxRounds := d.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}

	for round := 1; round <= maxRounds; round++ {
		res.Rounds = round
		d.emit(Event{Type: EventRoundStart, RunID: res.RunID, Round: round})

		resp, err := d.Provider.Complete(ctx, CompletionRequest{
			Messages:          tr.Messages(),
			Tools:             specs,
			ToolChoice:        d.ToolChoice,
			ParallelToolCalls: d.ParallelToolCalls,
		})
		if err == nil && resp == nil {
			err = ErrEmptyResponse
		}
		if err != nil {
			logger.Warn("completion failed", zap.Int("round", round), zap.Error(err))
			return nil, &TransportError{Round: round, Err: err}
		}

		msg := resp.Message
		if msg.StopReason == "" {
			msg.StopReason = resp.StopReason
		}
		if msg.Usage == nil {
			msg.Usage = resp.Usage
		}
		if msg.Timestamp == 0 {
			msg.Timestamp = time.Now().UnixMilli()
		}
		res.Usage.Add(msg.Usage)
		if err := tr.Append(msg); err != nil {
			return nil, err
		}
		d.emit(Event{Type: EventAssistant, RunID: res.RunID, Round: round, Assistant: &msg})

		calls := msg.ToolCalls()
		if len(calls) == 0 {
			res.Response = msg.Text()
			res.Status = StatusAnswered
			return d.finish(res, tr, logger), nil
		}

		logger.Debug("executing tool calls", zap.Int("round", round), zap.Int("count", len(calls)))
		for _, call := range calls {
			d.emit(Event{Type: EventToolStart, RunID: res.RunID, Round: round,
				ToolCallID: call.CallID, ToolName: call.Name, ToolArgs: call.ArgsJSON})

			env := d.Invoker.Call(ctx, d.Registry, call)
			env = d.applyHooks(ctx, call, env, logger)

			d.emit(Event{Type: EventToolEnd, RunID: res.RunID, Round: round,
				ToolCallID: call.CallID, ToolName: call.Name, ToolArgs: call.ArgsJSON, ToolResult: &env})

			if err := tr.Append(ToolResultMessage{
				CallID:    call.CallID,
				Name:      call.Name,
				Result:    env,
				Timestamp: time.Now().UnixMilli(),
			}); err != nil {
				return nil, err
			}
		}
	}

	res.Response = RoundsExhaustedResponse
	res.Status = StatusExhausted
	logger.Info("round budget exhausted", zap.Int("max_rounds", maxRounds))
	return d.finish(res, tr, logger), nil
}

func (d *Dialog) finish(res *DialogResult, tr *Transcript, logger *zap.Logger) *DialogResult {
	res.Messages = tr.Messages()
	logger.Debug("dialog finished",
		zap.String("status", string(res.Status)),
		zap.Int("rounds", res.Rounds),
		zap.Int("messages", len(res.Messages)))
	d.emit(Event{Type: EventDialogEnd, RunID: res.RunID, Round: res.Rounds, Final: res})
	return res
}

// applyHooks runs each hook in order. A panicking hook degrades the result
// to an error envelope rather than aborting the round.
func (d *Dialog) applyHooks(ctx context.Context, call ToolCall, env Envelope, logger *zap.Logger) Envelope {
	for _, h := range d.Hooks {
		if h == nil {
			continue
		}
		env = applyHook(ctx, h, call, env, logger)
	}
	return env
}

func applyHook(ctx context.Context, h ResultHook, call ToolCall, env Envelope, logger *zap.Logger) (out Envelope) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("result hook panicked", zap.String("tool", call.Name), zap.Any("panic", r))
			out = Envelope{OK: false, Error: fmt.Sprintf("result hook panic: %v", r), Trace: string(debug.Stack())}
		}
	}()
	return h.Apply(ctx, call, env)
}

func (d *Dialog) emit(ev Event) {
	if d.OnEvent != nil {
		d.OnEvent(ev)
	}
}

func (d *Dialog) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}
