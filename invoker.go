package cadagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/inspirepan/cadagent/internal/audit"
	"go.uber.org/zap"
)

// Invoker runs tools and converts every outcome into an Envelope. It never
// returns an error and never lets a tool panic escape.
//
// The zero value is usable: no audit trail, no timeout, no logging.
type Invoker struct {
	Audit   *audit.Log
	Logger  *zap.Logger
	Timeout time.Duration
}

// Call resolves call.Name in reg and invokes it. An unknown name yields a
// "tool not found" envelope, which is audited like any other call.
func (inv *Invoker) Call(ctx context.Context, reg *Registry, call ToolCall) Envelope {
	tool, ok := reg.Get(call.Name)
	if !ok {
		return inv.Invoke(ctx, nil, call)
	}
	return inv.Invoke(ctx, tool, call)
}

// Invoke executes tool with the call's arguments. A nil tool is reported as
// not found.
func (inv *Invoker) Invoke(ctx context.Context, tool Tool, call ToolCall) Envelope {
	runID := RunIDFromContext(ctx)
	logger := inv.logger().With(
		zap.String("call_id", call.CallID),
		zap.String("tool", call.Name),
	)

	inv.auditLog().Start(runID, call.CallID, call.Name, auditArgs(call.ArgsJSON))
	start := time.Now()

	env := inv.run(ctx, tool, call)
	if !env.OK && env.Error == "" {
		env.Error = call.Name + ": failed"
	}

	dur := time.Since(start)
	inv.auditLog().End(runID, call.CallID, call.Name, env.Data, env.Error, dur)
	if env.OK {
		logger.Debug("tool finished", zap.Duration("dur", dur))
	} else {
		logger.Info("tool failed", zap.Duration("dur", dur), zap.String("error", env.Error))
	}
	return env
}

func (inv *Invoker) run(ctx context.Context, tool Tool, call ToolCall) Envelope {
	if tool == nil {
		return Failuref("tool not found: %s", call.Name)
	}

	args, err := decodeArgs(call.ArgsJSON)
	if err != nil {
		return Failuref("%s: %v", call.Name, err)
	}

	if inv != nil && inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	res, trace, err := execute(ctx, tool, args)
	if trace != "" {
		return Envelope{OK: false, Error: err.Error(), Trace: trace}
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && inv != nil && inv.Timeout > 0 {
			return Failuref("%s: timed out after %s", call.Name, inv.Timeout)
		}
		return Failure(err.Error())
	}
	return normalizeResult(res)
}

// execute calls the tool, converting a panic into an error plus stack trace.
func execute(ctx context.Context, tool Tool, args Args) (res any, trace string, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("panic: %v", r)
			trace = string(debug.Stack())
		}
	}()
	res, err = tool.Execute(ctx, args)
	return res, "", err
}

func (inv *Invoker) logger() *zap.Logger {
	if inv == nil || inv.Logger == nil {
		return zap.NewNop()
	}
	return inv.Logger
}

func (inv *Invoker) auditLog() *audit.Log {
	if inv == nil {
		return nil
	}
	return inv.Audit
}

// auditArgs keeps well-formed arguments structured in the audit record and
// falls back to the raw text otherwise.
func auditArgs(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	if json.Valid(raw) {
		return raw
	}
	return string(raw)
}

type runIDKey struct{}

// WithRunID tags ctx with a dialog run id, which the Invoker copies into
// audit records.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the run id set by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
