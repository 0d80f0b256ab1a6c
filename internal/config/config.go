// Package config loads the cadagent configuration from a YAML file, a .env
// file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/inspirepan/cadagent"
	"github.com/inspirepan/cadagent/providers"
	"github.com/inspirepan/cadagent/providers/base"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "cadagent.yaml"

// Config is the full cadagent configuration.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Dialog   DialogConfig   `yaml:"dialog"`
	CAD      CADConfig      `yaml:"cad"`
	AutoDim  AutoDimConfig  `yaml:"autodim"`
	Audit    AuditConfig    `yaml:"audit"`
	History  HistoryConfig  `yaml:"history"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ProviderConfig selects and tunes the completion endpoint.
type ProviderConfig struct {
	Name            string   `yaml:"name"`
	Model           string   `yaml:"model"`
	APIKey          string   `yaml:"api_key,omitempty"`
	BaseURL         string   `yaml:"base_url,omitempty"`
	RequestTimeout  string   `yaml:"request_timeout"`
	MaxRetries      *int     `yaml:"max_retries,omitempty"`
	Temperature     *float64 `yaml:"temperature,omitempty"`
	MaxOutputTokens *int     `yaml:"max_output_tokens,omitempty"`
	DebugPath       string   `yaml:"debug_path,omitempty"`
}

// DialogConfig bounds the main tool-calling loop.
type DialogConfig struct {
	SystemPrompt      string `yaml:"system_prompt,omitempty"`
	MaxRounds         int    `yaml:"max_rounds"`
	ParallelToolCalls bool   `yaml:"parallel_tool_calls"`
	ToolChoice        string `yaml:"tool_choice"`
	ToolTimeout       string `yaml:"tool_timeout,omitempty"`
}

// CADConfig locates the CAD remote-command executable.
type CADConfig struct {
	Executable     string `yaml:"executable"`
	Endpoint       string `yaml:"endpoint"`
	CommandTimeout string `yaml:"command_timeout"`
	ArtifactDir    string `yaml:"artifact_dir,omitempty"`
}

// AutoDimConfig configures the auto-dimension sub-agent.
type AutoDimConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Sentinel      string `yaml:"sentinel"`
	MaxRounds     int    `yaml:"max_rounds"`
	WaitTimeout   string `yaml:"wait_timeout"`
	PollInterval  string `yaml:"poll_interval"`
	ShareRegistry bool   `yaml:"share_registry"`
	TranscriptDir string `yaml:"transcript_dir"`
}

// AuditConfig locates the tool-call audit log. An empty path disables it.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// HistoryConfig locates the chat session database.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures the operational logger.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:           "openai",
			Model:          "gpt-5",
			RequestTimeout: "120s",
		},
		Dialog: DialogConfig{
			MaxRounds:  cadagent.DefaultMaxRounds,
			ToolChoice: string(cadagent.ToolChoiceAuto),
		},
		CAD: CADConfig{
			Executable:     "zw3dremote",
			Endpoint:       "local",
			CommandTimeout: "60s",
		},
		AutoDim: AutoDimConfig{
			Enabled:       true,
			Sentinel:      "cad_create_view_for_dimensioning",
			MaxRounds:     30,
			WaitTimeout:   "5s",
			PollInterval:  "50ms",
			TranscriptDir: "transcripts",
		},
		Audit:   AuditConfig{Path: "tool_calls.jsonl"},
		History: HistoryConfig{Path: "cadagent.db"},
		Logging: LoggingConfig{Level: "warn"},
	}
}

// Load reads path on top of the defaults. A missing file yields the
// defaults. The .env file, when present, is loaded before environment
// overrides are applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	_ = godotenv.Load()
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if name := os.Getenv("CADAGENT_PROVIDER"); name != "" {
		c.Provider.Name = name
	}
	if model := os.Getenv("MODEL_NAME"); model != "" {
		c.Provider.Model = model
	}
	if model := os.Getenv("CADAGENT_MODEL"); model != "" {
		c.Provider.Model = model
	}
	if exe := os.Getenv("CADAGENT_CAD_EXECUTABLE"); exe != "" {
		c.CAD.Executable = exe
	}
	if ep := os.Getenv("CADAGENT_CAD_ENDPOINT"); ep != "" {
		c.CAD.Endpoint = ep
	}
	if path := os.Getenv("AUTO_DIM_TOOL_LOG"); path != "" {
		c.Audit.Path = path
	}
	if path := os.Getenv("CADAGENT_DB"); path != "" {
		c.History.Path = path
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if !slices.Contains(providerNames, strings.ToLower(c.Provider.Name)) {
		return fmt.Errorf("invalid provider: %q (valid: %v)", c.Provider.Name, providers.Names)
	}
	if c.Provider.Model == "" {
		return errors.New("provider model is required")
	}
	if c.Dialog.MaxRounds < 0 {
		return fmt.Errorf("dialog.max_rounds must not be negative, got %d", c.Dialog.MaxRounds)
	}
	if c.AutoDim.MaxRounds < 0 {
		return fmt.Errorf("autodim.max_rounds must not be negative, got %d", c.AutoDim.MaxRounds)
	}
	if c.CAD.Executable == "" {
		return errors.New("cad.executable is required")
	}
	durations := []struct{ key, value string }{
		{"provider.request_timeout", c.Provider.RequestTimeout},
		{"dialog.tool_timeout", c.Dialog.ToolTimeout},
		{"cad.command_timeout", c.CAD.CommandTimeout},
		{"autodim.wait_timeout", c.AutoDim.WaitTimeout},
		{"autodim.poll_interval", c.AutoDim.PollInterval},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		if v, err := time.ParseDuration(d.value); err != nil || v < 0 {
			return fmt.Errorf("%s: invalid duration %q", d.key, d.value)
		}
	}
	return nil
}

var providerNames = append([]string{"chatcompletion", "gemini"}, providers.Names...)

// BaseConfig converts the provider section for the provider constructors.
func (p ProviderConfig) BaseConfig() base.Config {
	return base.Config{
		APIKey:          p.APIKey,
		BaseURL:         p.BaseURL,
		DebugPath:       p.DebugPath,
		RequestTimeout:  duration(p.RequestTimeout, 0),
		MaxRetries:      p.MaxRetries,
		MaxOutputTokens: p.MaxOutputTokens,
		Temperature:     p.Temperature,
	}
}

// GetToolTimeout returns the per-call tool deadline; zero means none.
func (d DialogConfig) GetToolTimeout() time.Duration {
	return duration(d.ToolTimeout, 0)
}

// GetCommandTimeout returns the CAD command timeout.
func (c CADConfig) GetCommandTimeout() time.Duration {
	return duration(c.CommandTimeout, 60*time.Second)
}

// GetWaitTimeout returns the artifact marker wait bound.
func (a AutoDimConfig) GetWaitTimeout() time.Duration {
	return duration(a.WaitTimeout, 5*time.Second)
}

// GetPollInterval returns the artifact marker poll interval.
func (a AutoDimConfig) GetPollInterval() time.Duration {
	return duration(a.PollInterval, 50*time.Millisecond)
}

func duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
