// Package autodim runs the auto-dimension sub-agent. A Trigger is installed
// as a result hook on the outer dialog; when the dimensioning-view tool
// reports that follow-up is required, it waits for the view's artifacts and
// runs a nested dialog that dimensions the view.
package autodim

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/inspirepan/cadagent"
	"github.com/inspirepan/cadagent/artifact"
	"github.com/inspirepan/cadagent/transcript"
)

const (
	// DefaultSentinel is the tool whose result may start the sub-agent.
	DefaultSentinel = "cad_create_view_for_dimensioning"

	// DefaultMaxRounds bounds the nested dialog.
	DefaultMaxRounds = 30

	// DefaultTranscriptPrefix names exported sub-agent transcripts.
	DefaultTranscriptPrefix = "dimension_flow"

	// FollowUpStatus is the status code meaning the view needs dimensioning.
	FollowUpStatus = 1
)

// Keys the trigger adds to the outer tool result data.
const (
	KeyResult = "auto_dimension"
	KeyError  = "auto_dimension_error"
)

// FailurePrefix starts the error of a result whose sub-agent run failed.
const FailurePrefix = "auto_dim_failed: "

// Trigger is a cadagent.ResultHook that runs the auto-dimension sub-agent.
type Trigger struct {
	Provider cadagent.Provider
	// Registry holds the tools offered to the nested dialog.
	Registry *cadagent.Registry
	Invoker  *cadagent.Invoker
	Exchange *artifact.Exchange

	// Sentinel defaults to DefaultSentinel.
	Sentinel     string
	SystemPrompt string
	MaxRounds    int
	// WaitTimeout bounds the wait for the ready marker; zero uses the
	// exchange's default.
	WaitTimeout time.Duration

	// TranscriptDir receives the nested transcript; empty disables export.
	TranscriptDir    string
	TranscriptPrefix string

	// OnEvent receives the nested dialog's events.
	OnEvent func(cadagent.Event)
	Logger  *zap.Logger

	now func() time.Time
}

var _ cadagent.ResultHook = (*Trigger)(nil)

// Matches reports whether a result of the named tool starts the sub-agent.
func (t *Trigger) Matches(name string, env cadagent.Envelope) bool {
	if name != t.sentinel() || !env.OK {
		return false
	}
	code, ok := env.StatusCode()
	return ok && code == FollowUpStatus
}

// Apply runs the sub-agent for matching results and merges its outcome into
// the envelope. Other results pass through unchanged.
func (t *Trigger) Apply(ctx context.Context, call cadagent.ToolCall, env cadagent.Envelope) (out cadagent.Envelope) {
	if t == nil || !t.Matches(call.Name, env) {
		return env
	}
	logger := t.logger().With(zap.String("call_id", call.CallID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("auto-dimension panicked", zap.Any("panic", r))
			out = cadagent.Envelope{OK: false, Error: fmt.Sprintf("%spanic: %v", FailurePrefix, r), Trace: string(debug.Stack())}
		}
	}()

	merged, err := t.run(ctx, env, logger)
	if err != nil {
		logger.Warn("auto-dimension failed", zap.Error(err))
		return cadagent.Failure(FailurePrefix + err.Error())
	}
	return merged
}

func (t *Trigger) run(ctx context.Context, env cadagent.Envelope, logger *zap.Logger) (cadagent.Envelope, error) {
	if t.Provider == nil {
		return cadagent.Envelope{}, cadagent.ErrNoProvider
	}
	bundle, err := artifact.BundleFromData(env.Data)
	if err != nil {
		return cadagent.Envelope{}, err
	}

	start := time.Now()
	arts, err := t.exchange().Load(ctx, bundle, t.WaitTimeout)
	if errors.Is(err, artifact.ErrTimeout) {
		logger.Warn("view artifacts not ready", zap.String("marker", bundle.ReadyMarkerPath), zap.Error(err))
		return env.WithData(KeyError, fmt.Sprintf("auto-dimension skipped: %v", err)), nil
	}
	if err != nil {
		return cadagent.Envelope{}, err
	}
	logger.Debug("view artifacts loaded",
		zap.Int("geometry_bytes", len(arts.Geometry)),
		zap.Duration("wait", time.Since(start)))

	d := &cadagent.Dialog{
		Provider:          t.Provider,
		Registry:          t.Registry,
		Invoker:           t.Invoker,
		MaxRounds:         t.maxRounds(),
		ParallelToolCalls: false,
		ToolChoice:        cadagent.ToolChoiceAuto,
		OnEvent:           t.OnEvent,
		Logger:            logger.Named("autodim"),
	}
	res, err := d.Run(ctx, cadagent.DialogRequest{
		SystemPrompt: t.systemPrompt(),
		Input:        UserParts(arts.Geometry, arts.ImageMIME, arts.ImageB64),
	})
	if err != nil {
		return cadagent.Envelope{}, err
	}
	logger.Info("auto-dimension finished",
		zap.String("status", string(res.Status)),
		zap.Int("rounds", res.Rounds),
		zap.String("run_id", res.RunID))

	result := map[string]any{
		"response": res.Response,
		"json":     ExtractJSON(res.Response),
		"messages": res.Messages,
		"status":   string(res.Status),
		"rounds":   res.Rounds,
	}
	if t.TranscriptDir != "" {
		files, err := transcript.Export(t.TranscriptDir, t.transcriptPrefix(), res.Messages, t.clock())
		if err != nil {
			return cadagent.Envelope{}, err
		}
		result["transcript"] = files.JSON
	}
	return env.WithData(KeyResult, result), nil
}

// SubRegistry selects the nested dialog's tools. With share set the outer
// registry is used as-is; otherwise a registry holding only the named tools
// is built from it.
func SubRegistry(outer *cadagent.Registry, share bool, names ...string) (*cadagent.Registry, error) {
	if share {
		return outer, nil
	}
	return outer.Subset(names...)
}

func (t *Trigger) sentinel() string {
	if t.Sentinel == "" {
		return DefaultSentinel
	}
	return t.Sentinel
}

func (t *Trigger) systemPrompt() string {
	if t.SystemPrompt == "" {
		return SystemPrompt
	}
	return t.SystemPrompt
}

func (t *Trigger) maxRounds() int {
	if t.MaxRounds <= 0 {
		return DefaultMaxRounds
	}
	return t.MaxRounds
}

func (t *Trigger) transcriptPrefix() string {
	if t.TranscriptPrefix == "" {
		return DefaultTranscriptPrefix
	}
	return t.TranscriptPrefix
}

func (t *Trigger) exchange() *artifact.Exchange {
	if t.Exchange == nil {
		return &artifact.Exchange{Logger: t.Logger}
	}
	return t.Exchange
}

func (t *Trigger) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

func (t *Trigger) logger() *zap.Logger {
	if t.Logger == nil {
		return zap.NewNop()
	}
	return t.Logger
}
