package cad_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/inspirepan/cadagent"
	"github.com/inspirepan/cadagent/cad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeScript = `#!/bin/sh
printf '%s\n' "$@" > "$FAKE_CAD_ARGS"
if [ -n "$FAKE_CAD_SLEEP" ]; then sleep "$FAKE_CAD_SLEEP"; fi
if [ -n "$FAKE_CAD_TOUCH" ]; then : > "$FAKE_CAD_TOUCH"; fi
if [ -n "$FAKE_CAD_STDOUT" ]; then printf '%s' "$FAKE_CAD_STDOUT"; fi
if [ -n "$FAKE_CAD_STDERR" ]; then printf '%s' "$FAKE_CAD_STDERR" >&2; fi
exit ${FAKE_CAD_EXIT:-0}
`

type fakeCAD struct {
	client   *cad.Client
	argsFile string
}

func newFakeCAD(t *testing.T) *fakeCAD {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake CAD executable is a shell script")
	}
	dir := t.TempDir()
	exe := filepath.Join(dir, "zw3dremote")
	require.NoError(t, os.WriteFile(exe, []byte(fakeScript), 0o755))

	argsFile := filepath.Join(dir, "args.txt")
	t.Setenv("FAKE_CAD_ARGS", argsFile)
	t.Setenv("FAKE_CAD_EXIT", "0")
	t.Setenv("FAKE_CAD_STDOUT", "")
	t.Setenv("FAKE_CAD_STDERR", "")
	t.Setenv("FAKE_CAD_SLEEP", "")
	t.Setenv("FAKE_CAD_TOUCH", "")
	return &fakeCAD{client: &cad.Client{Executable: exe, Endpoint: "local"}, argsFile: argsFile}
}

func (f *fakeCAD) args(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.argsFile)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestClientArgs(t *testing.T) {
	c := &cad.Client{}
	args, err := c.Args("FILEOPEN", map[string]any{"filePath": "part.prt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"-r", "local", `cmd=~FILEOPEN({"filePath":"part.prt"})`}, args)

	args, err = c.Args("FILESAVE", nil)
	require.NoError(t, err)
	assert.Equal(t, "cmd=~FILESAVE({})", args[2])

	_, err = c.Args("FILEOPEN); rm -rf /", nil)
	assert.Error(t, err)
}

func TestClientRun(t *testing.T) {
	f := newFakeCAD(t)
	t.Setenv("FAKE_CAD_STDOUT", "  opened  ")
	t.Setenv("FAKE_CAD_STDERR", "warn")

	res, err := f.client.Run(context.Background(), "FILEOPEN", map[string]any{"filePath": "part.prt"})
	require.NoError(t, err)
	assert.Equal(t, "opened", res.Stdout)
	assert.Equal(t, "warn", res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, []string{"-r", "local", `cmd=~FILEOPEN({"filePath":"part.prt"})`}, f.args(t))
}

func TestClientRunNonZeroExit(t *testing.T) {
	f := newFakeCAD(t)
	t.Setenv("FAKE_CAD_EXIT", "3")

	res, err := f.client.Run(context.Background(), "FILEOPEN", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestClientRunMissingExecutable(t *testing.T) {
	c := &cad.Client{Executable: filepath.Join(t.TempDir(), "does-not-exist")}
	_, err := c.Run(context.Background(), "FILEOPEN", nil)
	assert.True(t, errors.Is(err, cad.ErrCommandFailed))
}

func TestClientRunTimeout(t *testing.T) {
	f := newFakeCAD(t)
	t.Setenv("FAKE_CAD_SLEEP", "5")
	f.client.Timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := f.client.Run(context.Background(), "FILEOPEN", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, cad.ErrCommandFailed)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 4*time.Second)
}

func invoke(t *testing.T, tool cadagent.Tool, args any) cadagent.Envelope {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	inv := &cadagent.Invoker{}
	return inv.Invoke(context.Background(), tool, cadagent.ToolCall{CallID: "c1", Name: tool.Spec().Name, ArgsJSON: raw})
}

func toolByName(t *testing.T, tools []cadagent.Tool, name string) cadagent.Tool {
	t.Helper()
	reg, err := cadagent.NewRegistry(tools...)
	require.NoError(t, err)
	tool, ok := reg.Get(name)
	require.True(t, ok, name)
	return tool
}

func TestToolsRegisterWithoutConflicts(t *testing.T) {
	tools := cad.Tools(&cad.Client{}, t.TempDir())
	reg, err := cadagent.NewRegistry(tools...)
	require.NoError(t, err)

	_, err = reg.Subset(cad.DimensionToolNames...)
	require.NoError(t, err)
	for _, spec := range reg.Specs() {
		assert.NotEmpty(t, spec.Description, spec.Name)
		assert.Equal(t, "object", spec.Parameters["type"], spec.Name)
	}
}

func TestOpenFileTool(t *testing.T) {
	f := newFakeCAD(t)
	t.Setenv("FAKE_CAD_STDOUT", `{"fileId":7}`)
	tool := toolByName(t, cad.Tools(f.client, t.TempDir()), cad.ToolOpenFile)

	env := invoke(t, tool, map[string]any{"filePath": "part.prt"})
	require.True(t, env.OK, env.Error)
	assert.Equal(t, 0, env.Data["exit_code"])
	assert.Equal(t, map[string]any{"fileId": float64(7)}, env.Data["output"])
	assert.Equal(t, `cmd=~FILEOPEN({"filePath":"part.prt"})`, f.args(t)[2])
}

func TestToolFailures(t *testing.T) {
	f := newFakeCAD(t)
	tool := toolByName(t, cad.Tools(f.client, t.TempDir()), cad.ToolExportPDF)

	env := invoke(t, tool, map[string]any{"pdfType": 2})
	assert.False(t, env.OK)
	assert.Contains(t, env.Error, `missing required argument "path"`)

	t.Setenv("FAKE_CAD_EXIT", "2")
	t.Setenv("FAKE_CAD_STDERR", "no active drawing")
	env = invoke(t, tool, map[string]any{"path": "out.pdf", "pdfType": 2})
	assert.False(t, env.OK)
	assert.Equal(t, "EXPPDF exited with code 2: no active drawing", env.Error)

	missing := toolByName(t, cad.Tools(&cad.Client{Executable: filepath.Join(t.TempDir(), "nope")}, t.TempDir()), cad.ToolOpenFile)
	env = invoke(t, missing, map[string]any{"filePath": "a.prt"})
	assert.False(t, env.OK)
	assert.Contains(t, env.Error, "cad: command failed")
}

func TestCommandTool(t *testing.T) {
	f := newFakeCAD(t)
	tool := cad.CommandTool(f.client)

	env := invoke(t, tool, map[string]any{"command": "EXPPDF", "params": map[string]any{"path": "a.pdf", "pdfType": 2}})
	require.True(t, env.OK, env.Error)
	assert.Equal(t, `cmd=~EXPPDF({"path":"a.pdf","pdfType":2})`, f.args(t)[2])

	env = invoke(t, tool, map[string]any{"command": "bad name"})
	assert.False(t, env.OK)
}

func TestDimensioningViewTool(t *testing.T) {
	f := newFakeCAD(t)
	dir := t.TempDir()
	stale := filepath.Join(dir, cad.MarkerFile)
	require.NoError(t, os.WriteFile(stale, nil, 0o644))
	t.Setenv("FAKE_CAD_EXIT", "1")

	env := invoke(t, cad.DimensioningViewTool(f.client, dir), map[string]any{"viewType": "front"})
	require.True(t, env.OK, env.Error)

	code, ok := env.StatusCode()
	require.True(t, ok)
	assert.Equal(t, 1, code)
	assert.Equal(t, filepath.Join(dir, cad.GeometryFile), env.Data["geometry_path"])
	assert.Equal(t, filepath.Join(dir, cad.ImageFile), env.Data["image_path"])
	assert.Equal(t, stale, env.Data["ready_marker_path"])
	assert.NoFileExists(t, stale)

	var params map[string]any
	arg := f.args(t)[2]
	require.True(t, strings.HasPrefix(arg, "cmd=~STDVUCRTDIM("))
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSuffix(strings.TrimPrefix(arg, "cmd=~STDVUCRTDIM("), ")")), &params))
	assert.Equal(t, "front", params["viewType"])
	assert.Equal(t, stale, params["donePath"])
}

func TestDimensioningViewToolStdoutPaths(t *testing.T) {
	f := newFakeCAD(t)
	t.Setenv("FAKE_CAD_STDOUT", `{"geom_data":"/cad/out/g.json","img_path":"/cad/out/p.png","done_path":"/cad/out/done"}`)

	env := invoke(t, cad.DimensioningViewTool(f.client, t.TempDir()), map[string]any{"viewType": "top"})
	require.True(t, env.OK, env.Error)
	assert.Equal(t, "/cad/out/g.json", env.Data["geometry_path"])
	assert.Equal(t, "/cad/out/p.png", env.Data["image_path"])
	assert.Equal(t, "/cad/out/done", env.Data["ready_marker_path"])
	assert.Equal(t, 0, env.Data["status_code"])
}

func TestDimensioningViewToolRemovesStaleReportedMarker(t *testing.T) {
	f := newFakeCAD(t)
	out := t.TempDir()
	marker := filepath.Join(out, "done")
	require.NoError(t, os.WriteFile(marker, nil, 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(marker, old, old))
	t.Setenv("FAKE_CAD_EXIT", "1")
	t.Setenv("FAKE_CAD_STDOUT", `{"done_path":"`+marker+`"}`)

	env := invoke(t, cad.DimensioningViewTool(f.client, t.TempDir()), map[string]any{"viewType": "front"})
	require.True(t, env.OK, env.Error)
	assert.Equal(t, marker, env.Data["ready_marker_path"])
	assert.NoFileExists(t, marker)
}

func TestDimensioningViewToolKeepsFreshReportedMarker(t *testing.T) {
	f := newFakeCAD(t)
	marker := filepath.Join(t.TempDir(), "done")
	t.Setenv("FAKE_CAD_EXIT", "1")
	t.Setenv("FAKE_CAD_TOUCH", marker)
	t.Setenv("FAKE_CAD_STDOUT", `{"done_path":"`+marker+`"}`)

	env := invoke(t, cad.DimensioningViewTool(f.client, t.TempDir()), map[string]any{"viewType": "front"})
	require.True(t, env.OK, env.Error)
	assert.Equal(t, marker, env.Data["ready_marker_path"])
	assert.FileExists(t, marker)
}

func TestDimensioningViewToolArguments(t *testing.T) {
	f := newFakeCAD(t)
	tool := cad.DimensioningViewTool(f.client, t.TempDir())

	env := invoke(t, tool, map[string]any{"viewType": 3})
	assert.False(t, env.OK)
	assert.Contains(t, env.Error, cad.ToolCreateDimensioningView)
	assert.Contains(t, env.Error, "invalid arguments")

	env = invoke(t, tool, map[string]any{"scale": 2})
	assert.False(t, env.OK)
	assert.Contains(t, env.Error, `missing required argument "viewType"`)

	_, err := os.Stat(f.argsFile)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDimensioningViewToolError(t *testing.T) {
	f := newFakeCAD(t)
	t.Setenv("FAKE_CAD_EXIT", "4")

	env := invoke(t, cad.DimensioningViewTool(f.client, t.TempDir()), map[string]any{"viewType": "top"})
	assert.False(t, env.OK)
	assert.Contains(t, env.Error, "exited with code 4")
}
