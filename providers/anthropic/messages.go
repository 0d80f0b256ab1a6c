package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/inspirepan/cadagent"
	"github.com/inspirepan/cadagent/providers/base"
)

const (
	providerName = "anthropic"

	// DefaultMaxTokens is sent when no max output tokens are configured;
	// the Messages API requires the field.
	DefaultMaxTokens = 4096
)

// Config configures Anthropic Messages API provider.
type Config struct {
	base.Config
}

// Option is a functional option for this provider.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithTemperature sets the temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = &t }
}

// WithMaxOutputTokens sets the max output tokens.
func WithMaxOutputTokens(n int) Option {
	return func(c *Config) { c.MaxOutputTokens = &n }
}

// WithRequestTimeout bounds each completion request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) { c.RequestTimeout = d }
}

// WithMaxRetries sets how often the client retries a failed request.
func WithMaxRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = &n }
}

// WithDebug enables JSONL debug logging to the specified file path.
func WithDebug(path string) Option {
	return func(c *Config) { c.DebugPath = path }
}

// WithExtraHeader adds a custom header to requests.
func WithExtraHeader(key, value string) Option {
	return func(c *Config) {
		if c.ExtraHeaders == nil {
			c.ExtraHeaders = make(map[string]string)
		}
		c.ExtraHeaders[key] = value
	}
}

// New creates a Provider using Anthropic Messages API.
// It reads ANTHROPIC_API_KEY and ANTHROPIC_BASE_URL from environment if not explicitly set.
func New(model string, opts ...Option) cadagent.Provider {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	// SDK auto-reads env vars; only override if explicitly set
	var clientOpts []option.RequestOption
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.RequestTimeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(cfg.RequestTimeout))
	}
	if cfg.MaxRetries != nil {
		clientOpts = append(clientOpts, option.WithMaxRetries(*cfg.MaxRetries))
	}
	for k, v := range cfg.ExtraHeaders {
		clientOpts = append(clientOpts, option.WithHeader(k, v))
	}
	client := anthropic.NewClient(clientOpts...)
	return &provider{
		model:  model,
		cfg:    cfg,
		client: client,
		debug:  base.NewDebugLogger(cfg.DebugPath, providerName, model),
	}
}

type provider struct {
	model  string
	cfg    Config
	client anthropic.Client
	debug  *base.DebugLogger
}

func (p *provider) Complete(ctx context.Context, req cadagent.CompletionRequest) (*cadagent.CompletionResponse, error) {
	params := BuildParams(req)
	params.Model = anthropic.Model(p.model)
	params.MaxTokens = DefaultMaxTokens
	if p.cfg.MaxOutputTokens != nil {
		params.MaxTokens = int64(*p.cfg.MaxOutputTokens)
	}
	if p.cfg.Temperature != nil {
		params.Temperature = anthropic.Float(*p.cfg.Temperature)
	}

	_ = p.debug.Log("request", params)
	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		_ = p.debug.Log("error", err.Error())
		return nil, err
	}
	_ = p.debug.Log("response", msg)

	return ParseMessage(msg)
}

// BuildParams converts a completion request to Messages API params. Model
// and MaxTokens are left for the caller to set.
func BuildParams(req cadagent.CompletionRequest) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{}

	// Consecutive tool results are sent back as one user turn.
	var pendingResults []anthropic.ContentBlockParamUnion
	flush := func() {
		if len(pendingResults) > 0 {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range req.Messages {
		switch m := msg.(type) {
		case cadagent.SystemMessage:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Text})
		case cadagent.UserMessage:
			flush()
			params.Messages = append(params.Messages, anthropic.NewUserMessage(convertUserParts(m.Parts)...))
		case cadagent.AssistantMessage:
			flush()
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(convertAssistantParts(m)...))
		case cadagent.ToolResultMessage:
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(m.CallID, m.Content(), !m.Result.OK))
		}
	}
	flush()

	for _, spec := range req.Tools {
		params.Tools = append(params.Tools, convertToolSpec(spec))
	}
	if len(params.Tools) > 0 {
		params.ToolChoice = convertToolChoice(req.ToolChoice, req.ParallelToolCalls)
	}

	return params
}

func convertUserParts(parts []cadagent.Part) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	for _, part := range parts {
		switch p := part.(type) {
		case cadagent.TextPart:
			blocks = append(blocks, anthropic.NewTextBlock(p.Text))
		case cadagent.ImagePart:
			blocks = append(blocks, anthropic.NewImageBlockBase64(p.MimeType, p.DataB64))
		}
	}
	if len(blocks) == 0 {
		blocks = append(blocks, anthropic.NewTextBlock(""))
	}
	return blocks
}

func convertAssistantParts(m cadagent.AssistantMessage) []anthropic.ContentBlockParamUnion {
	var blocks []anthropic.ContentBlockParamUnion
	if text := m.Text(); text != "" {
		blocks = append(blocks, anthropic.NewTextBlock(text))
	}
	for _, call := range m.ToolCalls() {
		input := call.ArgsJSON
		if len(input) == 0 || !json.Valid(input) {
			input = json.RawMessage("{}")
		}
		blocks = append(blocks, anthropic.NewToolUseBlock(call.CallID, input, call.Name))
	}
	return blocks
}

func convertToolSpec(spec cadagent.ToolSpec) anthropic.ToolUnionParam {
	schema := anthropic.ToolInputSchemaParam{Properties: spec.Parameters["properties"]}
	switch req := spec.Parameters["required"].(type) {
	case []string:
		schema.Required = req
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
		Name:        spec.Name,
		Description: anthropic.String(spec.Description),
		InputSchema: schema,
	}}
}

func convertToolChoice(choice cadagent.ToolChoice, parallel bool) anthropic.ToolChoiceUnionParam {
	disable := anthropic.Bool(!parallel)
	if name, ok := choice.Forced(); ok {
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{
			Name:                   name,
			DisableParallelToolUse: disable,
		}}
	}
	switch choice {
	case cadagent.ToolChoiceNone:
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	case cadagent.ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{DisableParallelToolUse: disable}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{DisableParallelToolUse: disable}}
	}
}

// ParseMessage converts a Messages API response into an assistant message.
func ParseMessage(msg *anthropic.Message) (*cadagent.CompletionResponse, error) {
	if msg == nil {
		return nil, errors.New("anthropic: empty response")
	}

	var parts []cadagent.Part
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			parts = append(parts, cadagent.TextPart{Text: block.Text})
		case "tool_use":
			args := json.RawMessage(block.Input)
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			parts = append(parts, cadagent.ToolCallPart{CallID: block.ID, Name: block.Name, ArgsJSON: args})
		}
	}

	usage := &cadagent.Usage{
		InputTokens:      int(msg.Usage.InputTokens),
		OutputTokens:     int(msg.Usage.OutputTokens),
		CachedReadTokens: int(msg.Usage.CacheReadInputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	reason := mapStopReason(string(msg.StopReason))
	return &cadagent.CompletionResponse{
		Message: cadagent.AssistantMessage{
			Parts:      parts,
			Timestamp:  time.Now().UnixMilli(),
			Usage:      usage,
			StopReason: reason,
		},
		StopReason: reason,
		Usage:      usage,
	}, nil
}

func mapStopReason(reason string) cadagent.StopReason {
	switch reason {
	case "max_tokens":
		return cadagent.StopLength
	case "tool_use":
		return cadagent.StopToolUse
	case "refusal":
		return cadagent.StopError
	default:
		return cadagent.StopStop
	}
}
