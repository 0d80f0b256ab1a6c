package artifact_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/inspirepan/cadagent/artifact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestAwaitReadyExistingMarker(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "done")
	writeFile(t, marker, "")

	x := &artifact.Exchange{}
	require.NoError(t, x.AwaitReady(context.Background(), marker, time.Second))
}

func TestAwaitReadyLateMarker(t *testing.T) {
	for _, noWatch := range []bool{false, true} {
		t.Run(map[bool]string{false: "watch", true: "poll"}[noWatch], func(t *testing.T) {
			dir := t.TempDir()
			marker := filepath.Join(dir, "done")

			x := &artifact.Exchange{PollInterval: 10 * time.Millisecond, NoWatch: noWatch}
			done := make(chan error, 1)
			go func() { done <- x.AwaitReady(context.Background(), marker, 2*time.Second) }()

			time.Sleep(30 * time.Millisecond)
			writeFile(t, marker, "")
			require.NoError(t, <-done)
		})
	}
}

func TestAwaitReadyTimeout(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "done")
	x := &artifact.Exchange{PollInterval: 5 * time.Millisecond}

	start := time.Now()
	err := x.AwaitReady(context.Background(), marker, 40*time.Millisecond)
	assert.True(t, errors.Is(err, artifact.ErrTimeout))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestAwaitReadyCancelled(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "done")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := (&artifact.Exchange{}).AwaitReady(ctx, marker, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadWhenReadyConsumesOnce(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "view.json")
	marker := filepath.Join(dir, "done")
	writeFile(t, data, `{"entities":[]}`)
	writeFile(t, marker, "")

	x := &artifact.Exchange{PollInterval: 5 * time.Millisecond}
	got, err := x.ReadWhenReady(context.Background(), data, marker, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, `{"entities":[]}`, string(got))
	assert.NoFileExists(t, marker)

	_, err = x.ReadWhenReady(context.Background(), data, marker, 50*time.Millisecond)
	assert.ErrorIs(t, err, artifact.ErrTimeout)
}

func TestConsumeMissingData(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "done")
	writeFile(t, marker, "")

	_, err := (&artifact.Exchange{}).Consume(filepath.Join(dir, "missing.json"), marker)
	assert.Error(t, err)
	assert.FileExists(t, marker)
}

func TestBundleFromData(t *testing.T) {
	b, err := artifact.BundleFromData(map[string]any{
		"geometry_path":     "/tmp/v.json",
		"image_path":        "/tmp/v.png",
		"ready_marker_path": "/tmp/done",
		"status_code":       float64(1),
	})
	require.NoError(t, err)
	assert.Equal(t, artifact.Bundle{GeometryPath: "/tmp/v.json", ImagePath: "/tmp/v.png", ReadyMarkerPath: "/tmp/done", StatusCode: 1}, b)
	assert.Equal(t, "/tmp/done", b.Data()["ready_marker_path"])

	_, err = artifact.BundleFromData(map[string]any{"geometry_path": "/tmp/v.json"})
	assert.ErrorContains(t, err, "image_path")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	b := artifact.Bundle{
		GeometryPath:    filepath.Join(dir, "view.json"),
		ImagePath:       filepath.Join(dir, "view.png"),
		ReadyMarkerPath: filepath.Join(dir, "done"),
	}
	writeFile(t, b.GeometryPath, `{"views":1}`)
	writeFile(t, b.ImagePath, "png-bytes")
	writeFile(t, b.ReadyMarkerPath, "")

	got, err := (&artifact.Exchange{}).Load(context.Background(), b, time.Second)
	require.NoError(t, err)
	assert.Equal(t, `{"views":1}`, string(got.Geometry))
	assert.Equal(t, "image/png", got.ImageMIME)
	assert.Equal(t, "cG5nLWJ5dGVz", got.ImageB64)
	assert.NoFileExists(t, b.ReadyMarkerPath)
}
