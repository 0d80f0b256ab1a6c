package anthropic_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/inspirepan/cadagent"
	"github.com/inspirepan/cadagent/internal/testutil"
	anth "github.com/inspirepan/cadagent/providers/anthropic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const envKey = "ANTHROPIC_API_KEY"

func TestAnthropic_ToolCalling(t *testing.T) {
	testutil.SkipIfNoEnv(t, envKey)

	provider := anth.New("claude-haiku-4-5")
	testutil.TestToolCalling(t, testutil.DefaultConfig(provider))
}

const toolUseReply = `{
  "id": "msg_1",
  "type": "message",
  "role": "assistant",
  "model": "claude-test",
  "content": [
    {"type": "text", "text": "Opening the part."},
    {"type": "tool_use", "id": "toolu_1", "name": "cad_open_file", "input": {"filePath": "part.prt"}}
  ],
  "stop_reason": "tool_use",
  "stop_sequence": null,
  "usage": {"input_tokens": 12, "output_tokens": 7}
}`

func TestCompleteRoundTrip(t *testing.T) {
	var mu sync.Mutex
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/messages") {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = string(b)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, toolUseReply)
	}))
	defer srv.Close()

	p := anth.New("claude-test", anth.WithAPIKey("k"), anth.WithBaseURL(srv.URL), anth.WithMaxRetries(0))

	resp, err := p.Complete(context.Background(), cadagent.CompletionRequest{
		Messages: []cadagent.Message{
			cadagent.SystemMessage{Text: "You operate a CAD program."},
			testutil.User("open part.prt then export"),
			testutil.CallTools(
				testutil.Call("toolu_0", "cad_new_file", map[string]any{}),
				testutil.Call("toolu_00", "cad_activate_file", map[string]any{}),
			),
			cadagent.ToolResultMessage{CallID: "toolu_0", Name: "cad_new_file", Result: cadagent.Success(nil)},
			cadagent.ToolResultMessage{CallID: "toolu_00", Name: "cad_activate_file", Result: cadagent.Failure("no file")},
		},
		Tools: []cadagent.ToolSpec{testutil.OpenFileSpec},
	})
	require.NoError(t, err)

	assert.Equal(t, "Opening the part.", resp.Message.Text())
	calls := resp.Message.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "toolu_1", calls[0].CallID)
	assert.JSONEq(t, `{"filePath":"part.prt"}`, string(calls[0].ArgsJSON))
	assert.Equal(t, cadagent.StopToolUse, resp.StopReason)
	assert.Equal(t, 19, resp.Usage.TotalTokens)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "You operate a CAD program.", gjson.Get(body, "system.0.text").String())
	msgs := gjson.Get(body, "messages").Array()
	require.Len(t, msgs, 3)
	assert.Equal(t, "assistant", msgs[1].Get("role").String())
	assert.Equal(t, "tool_use", msgs[1].Get("content.0.type").String())

	results := msgs[2].Get("content").Array()
	require.Len(t, results, 2)
	assert.Equal(t, "toolu_0", results[0].Get("tool_use_id").String())
	assert.True(t, results[1].Get("is_error").Bool())

	assert.Equal(t, "object", gjson.Get(body, "tools.0.input_schema.type").String())
	assert.Equal(t, "filePath", gjson.Get(body, "tools.0.input_schema.required.0").String())
	assert.Equal(t, "auto", gjson.Get(body, "tool_choice.type").String())
	assert.True(t, gjson.Get(body, "tool_choice.disable_parallel_tool_use").Bool())
	assert.Equal(t, int64(anth.DefaultMaxTokens), gjson.Get(body, "max_tokens").Int())
}

func TestBuildParamsForcedTool(t *testing.T) {
	params := anth.BuildParams(cadagent.CompletionRequest{
		Tools:             []cadagent.ToolSpec{testutil.OpenFileSpec},
		ToolChoice:        "cad_open_file",
		ParallelToolCalls: true,
	})
	require.NotNil(t, params.ToolChoice.OfTool)
	assert.Equal(t, "cad_open_file", params.ToolChoice.OfTool.Name)
	assert.False(t, params.ToolChoice.OfTool.DisableParallelToolUse.Value)
}
