// Package cad drives the CAD program through its remote-command executable
// and exposes the commands as tools.
package cad

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultExecutable = "zw3dremote"
	DefaultEndpoint   = "local"
)

const waitDelay = 500 * time.Millisecond

// ErrCommandFailed reports a command that could not be run at all, as
// opposed to one that ran and exited non-zero.
var ErrCommandFailed = errors.New("cad: command failed")

var commandName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Client issues `<executable> -r <endpoint> cmd=~<COMMAND>(<json>)`.
type Client struct {
	Executable string
	Endpoint   string
	// Timeout bounds each command; zero means no limit beyond ctx.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Result is the outcome of one remote command.
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
}

// Data renders the result as tool result data.
func (r *Result) Data() map[string]any {
	return map[string]any{
		"stdout":    r.Stdout,
		"stderr":    r.Stderr,
		"exit_code": r.ExitCode,
	}
}

// Args builds the argument vector for command with params.
func (c *Client) Args(command string, params any) ([]string, error) {
	if !commandName.MatchString(command) {
		return nil, fmt.Errorf("cad: invalid command name %q", command)
	}
	if params == nil {
		params = map[string]any{}
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("cad: encode params: %w", err)
	}
	return []string{"-r", c.endpoint(), fmt.Sprintf("cmd=~%s(%s)", command, payload)}, nil
}

// Run executes command. A non-zero exit is reported in Result.ExitCode with
// a nil error; the error is reserved for commands that could not complete
// (missing executable, timeout, cancellation).
func (c *Client) Run(ctx context.Context, command string, params any) (*Result, error) {
	args, err := c.Args(command, params)
	if err != nil {
		return nil, err
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	logger := c.logger().With(zap.String("command", command))
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.executable(), args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children of the executable may hold the output pipes open after it is
	// killed.
	cmd.WaitDelay = waitDelay

	start := time.Now()
	runErr := cmd.Run()
	res := &Result{
		Command: command,
		Stdout:  strings.TrimSpace(stdout.String()),
		Stderr:  strings.TrimSpace(stderr.String()),
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
	case ctx.Err() != nil:
		logger.Warn("cad command interrupted", zap.Duration("dur", time.Since(start)), zap.Error(ctx.Err()))
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s timed out after %s", ErrCommandFailed, command, time.Since(start).Round(time.Millisecond))
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrCommandFailed, command, ctx.Err())
	case errors.As(runErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		logger.Warn("cad command could not start", zap.Error(runErr))
		return nil, fmt.Errorf("%w: %s: %v", ErrCommandFailed, command, runErr)
	}

	logger.Debug("cad command finished",
		zap.Int("exit_code", res.ExitCode),
		zap.Duration("dur", time.Since(start)))
	return res, nil
}

func (c *Client) executable() string {
	if c.Executable == "" {
		return DefaultExecutable
	}
	return c.Executable
}

func (c *Client) endpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	return c.Endpoint
}

func (c *Client) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
