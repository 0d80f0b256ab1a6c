package cadagent_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/inspirepan/cadagent"
	"github.com/inspirepan/cadagent/internal/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func auditRecords(t *testing.T, buf *bytes.Buffer) []audit.Record {
	t.Helper()
	var recs []audit.Record
	sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for sc.Scan() {
		var rec audit.Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		recs = append(recs, rec)
	}
	require.NoError(t, sc.Err())
	return recs
}

func countEvents(recs []audit.Record, callID string) (starts, ends int) {
	for _, r := range recs {
		if r.CallID != callID {
			continue
		}
		switch r.Event {
		case audit.ToolStart:
			starts++
		case audit.ToolEnd:
			ends++
		}
	}
	return starts, ends
}

func TestInvokerUnknownTool(t *testing.T) {
	var buf bytes.Buffer
	inv := &cadagent.Invoker{Audit: audit.New(&buf, nil)}
	reg, err := cadagent.NewRegistry(namedTool("known"))
	require.NoError(t, err)

	env := inv.Call(context.Background(), reg, cadagent.ToolCall{CallID: "c1", Name: "nope", ArgsJSON: json.RawMessage(`{}`)})

	assert.False(t, env.OK)
	assert.Equal(t, "tool not found: nope", env.Error)
	starts, ends := countEvents(auditRecords(t, &buf), "c1")
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
}

func TestInvokerConvertsFailures(t *testing.T) {
	tests := []struct {
		name      string
		fn        func(context.Context, cadagent.Args) (any, error)
		args      string
		wantError string
		wantTrace bool
	}{
		{
			name:      "error",
			fn:        func(context.Context, cadagent.Args) (any, error) { return nil, errors.New("file missing") },
			args:      `{}`,
			wantError: "file missing",
		},
		{
			name:      "empty error",
			fn:        func(context.Context, cadagent.Args) (any, error) { return nil, errors.New("") },
			args:      `{}`,
			wantError: "t: failed",
		},
		{
			name:      "failure envelope without message",
			fn:        func(context.Context, cadagent.Args) (any, error) { return map[string]any{"ok": false}, nil },
			args:      `{}`,
			wantError: "t: failed",
		},
		{
			name:      "panic",
			fn:        func(context.Context, cadagent.Args) (any, error) { panic("index out of range") },
			args:      `{}`,
			wantError: "panic: index out of range",
			wantTrace: true,
		},
		{
			name:      "bad arguments",
			fn:        func(context.Context, cadagent.Args) (any, error) { return "unreachable", nil },
			args:      `[1,2]`,
			wantError: "arguments are not a JSON object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			inv := &cadagent.Invoker{Audit: audit.New(&buf, nil)}
			tool := cadagent.ToolFunc{ToolSpec: cadagent.ToolSpec{Name: "t"}, Fn: tt.fn}

			env := inv.Invoke(context.Background(), tool, cadagent.ToolCall{CallID: "c-" + tt.name, Name: "t", ArgsJSON: json.RawMessage(tt.args)})

			assert.False(t, env.OK)
			assert.Contains(t, env.Error, tt.wantError)
			assert.Equal(t, tt.wantTrace, env.Trace != "")

			recs := auditRecords(t, &buf)
			starts, ends := countEvents(recs, "c-"+tt.name)
			assert.Equal(t, 1, starts)
			assert.Equal(t, 1, ends)
			assert.NotEmpty(t, recs[len(recs)-1].Error)
		})
	}
}

func TestInvokerSuccessIsAudited(t *testing.T) {
	var buf bytes.Buffer
	inv := &cadagent.Invoker{Audit: audit.New(&buf, nil)}

	env := inv.Invoke(cadagent.WithRunID(context.Background(), "run-1"), namedTool("open"),
		cadagent.ToolCall{CallID: "c1", Name: "open", ArgsJSON: json.RawMessage(`{"filePath":"part.prt"}`)})

	require.True(t, env.OK)
	assert.Equal(t, map[string]any{"tool": "open"}, env.Data)

	recs := auditRecords(t, &buf)
	require.Len(t, recs, 2)
	assert.Equal(t, audit.ToolStart, recs[0].Event)
	assert.Equal(t, "run-1", recs[0].RunID)
	assert.Equal(t, map[string]any{"filePath": "part.prt"}, recs[0].Args)
	assert.Equal(t, audit.ToolEnd, recs[1].Event)
	assert.Equal(t, map[string]any{"tool": "open"}, recs[1].Result)
	assert.NotEmpty(t, recs[1].Time)
}

func TestInvokerTimeout(t *testing.T) {
	inv := &cadagent.Invoker{Timeout: 20 * time.Millisecond}
	slow := cadagent.ToolFunc{
		ToolSpec: cadagent.ToolSpec{Name: "slow"},
		Fn: func(ctx context.Context, _ cadagent.Args) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	env := inv.Invoke(context.Background(), slow, cadagent.ToolCall{CallID: "c1", Name: "slow"})
	assert.False(t, env.OK)
	assert.Contains(t, env.Error, "timed out")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestInvokerSwallowsAuditFailures(t *testing.T) {
	inv := &cadagent.Invoker{Audit: audit.New(failingWriter{}, nil)}
	env := inv.Invoke(context.Background(), namedTool("open"), cadagent.ToolCall{CallID: "c1", Name: "open"})
	assert.True(t, env.OK)
}

func TestNilInvoker(t *testing.T) {
	var inv *cadagent.Invoker
	env := inv.Call(context.Background(), nil, cadagent.ToolCall{CallID: "c1", Name: "x"})
	assert.False(t, env.OK)
}
