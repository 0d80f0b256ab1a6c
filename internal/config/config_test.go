package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CADAGENT_PROVIDER", "CADAGENT_MODEL", "MODEL_NAME",
		"CADAGENT_CAD_EXECUTABLE", "CADAGENT_CAD_ENDPOINT",
		"AUTO_DIM_TOOL_LOG", "CADAGENT_DB",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cadagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider:
  name: anthropic
  model: claude-sonnet-4-5
  temperature: 0.2
dialog:
  max_rounds: 12
  parallel_tool_calls: true
autodim:
  share_registry: true
  wait_timeout: 2s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Provider.Model)
	require.NotNil(t, cfg.Provider.Temperature)
	assert.InDelta(t, 0.2, *cfg.Provider.Temperature, 1e-9)
	assert.Equal(t, 12, cfg.Dialog.MaxRounds)
	assert.True(t, cfg.Dialog.ParallelToolCalls)
	assert.True(t, cfg.AutoDim.ShareRegistry)
	assert.Equal(t, 2*time.Second, cfg.AutoDim.GetWaitTimeout())

	// untouched sections keep their defaults
	assert.True(t, cfg.AutoDim.Enabled)
	assert.Equal(t, "zw3dremote", cfg.CAD.Executable)
	assert.Equal(t, 50*time.Millisecond, cfg.AutoDim.GetPollInterval())
	assert.Equal(t, "tool_calls.jsonl", cfg.Audit.Path)
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestEnvOverrides(t *testing.T) {
	t.Run("CADAGENT_MODEL wins over MODEL_NAME", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MODEL_NAME", "gpt-4.1")
		t.Setenv("CADAGENT_MODEL", "gpt-5-mini")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "gpt-5-mini", cfg.Provider.Model)
	})

	t.Run("MODEL_NAME alone", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MODEL_NAME", "gpt-4.1")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "gpt-4.1", cfg.Provider.Model)
	})

	t.Run("cad and paths", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CADAGENT_PROVIDER", "google")
		t.Setenv("CADAGENT_CAD_EXECUTABLE", "/opt/zw3d/zw3dremote")
		t.Setenv("CADAGENT_CAD_ENDPOINT", "10.0.0.5")
		t.Setenv("AUTO_DIM_TOOL_LOG", "/var/log/tools.jsonl")
		t.Setenv("CADAGENT_DB", "/tmp/sessions.db")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "google", cfg.Provider.Name)
		assert.Equal(t, "/opt/zw3d/zw3dremote", cfg.CAD.Executable)
		assert.Equal(t, "10.0.0.5", cfg.CAD.Endpoint)
		assert.Equal(t, "/var/log/tools.jsonl", cfg.Audit.Path)
		assert.Equal(t, "/tmp/sessions.db", cfg.History.Path)
	})

	t.Run("applied without a config file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CADAGENT_PROVIDER", "anthropic")

		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "anthropic", cfg.Provider.Name)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"alias provider", func(c *Config) { c.Provider.Name = "Gemini" }, ""},
		{"unknown provider", func(c *Config) { c.Provider.Name = "deepseek" }, "invalid provider"},
		{"no model", func(c *Config) { c.Provider.Model = "" }, "model is required"},
		{"negative rounds", func(c *Config) { c.Dialog.MaxRounds = -1 }, "dialog.max_rounds"},
		{"negative autodim rounds", func(c *Config) { c.AutoDim.MaxRounds = -2 }, "autodim.max_rounds"},
		{"no executable", func(c *Config) { c.CAD.Executable = "" }, "cad.executable"},
		{"bad duration", func(c *Config) { c.AutoDim.WaitTimeout = "five seconds" }, "autodim.wait_timeout"},
		{"negative duration", func(c *Config) { c.CAD.CommandTimeout = "-1s" }, "cad.command_timeout"},
		{"empty duration", func(c *Config) { c.Dialog.ToolTimeout = "" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "cadagent.yaml")

	cfg := DefaultConfig()
	cfg.Provider.Name = "anthropic"
	cfg.Dialog.ToolTimeout = "90s"
	cfg.AutoDim.Enabled = false
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 120*time.Second, cfg.Provider.BaseConfig().RequestTimeout)
	assert.Equal(t, time.Duration(0), cfg.Dialog.GetToolTimeout())
	assert.Equal(t, 60*time.Second, cfg.CAD.GetCommandTimeout())
	assert.Equal(t, 5*time.Second, cfg.AutoDim.GetWaitTimeout())

	cfg.CAD.CommandTimeout = "garbage"
	assert.Equal(t, 60*time.Second, cfg.CAD.GetCommandTimeout())
	cfg.Dialog.ToolTimeout = "1m30s"
	assert.Equal(t, 90*time.Second, cfg.Dialog.GetToolTimeout())
}

func TestBaseConfig(t *testing.T) {
	retries := 3
	p := ProviderConfig{
		APIKey:         "sk-test",
		BaseURL:        "http://localhost:8080/v1",
		RequestTimeout: "30s",
		MaxRetries:     &retries,
		DebugPath:      "debug.jsonl",
	}
	b := p.BaseConfig()
	assert.Equal(t, "sk-test", b.APIKey)
	assert.Equal(t, "http://localhost:8080/v1", b.BaseURL)
	assert.Equal(t, 30*time.Second, b.RequestTimeout)
	assert.Equal(t, &retries, b.MaxRetries)
	assert.Equal(t, "debug.jsonl", b.DebugPath)
}
