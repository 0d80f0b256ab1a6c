package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/inspirepan/cadagent"
	"github.com/inspirepan/cadagent/providers/base"
	"google.golang.org/genai"
)

const providerName = "google"

// Config configures Google Generative AI API provider.
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

// WithDebug enables JSONL debug logging to the specified file path.
func WithDebug(path string) Option {
	return func(c *Config) { c.DebugPath = path }
}

// New creates a Provider using Google Generative AI API.
// It reads GEMINI_API_KEY (or GOOGLE_API_KEY) and GEMINI_BASE_URL from environment if not explicitly set.
// The client is created on first use.
func New(model string, opts ...Option) cadagent.Provider {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	base.ApplyEnvDefaults(&cfg.Config, "GEMINI_API_KEY", "GEMINI_BASE_URL")
	if cfg.APIKey == "" {
		base.ApplyEnvDefaults(&cfg.Config, "GOOGLE_API_KEY", "")
	}
	return &provider{
		model: model,
		cfg:   cfg,
		debug: base.NewDebugLogger(cfg.DebugPath, providerName, model),
	}
}

type provider struct {
	model string
	cfg   Config
	debug *base.DebugLogger

	client *genai.Client
}

func (p *provider) getClient(ctx context.Context) (*genai.Client, error) {
	if p.client != nil {
		return p.client, nil
	}
	cc := &genai.ClientConfig{
		APIKey:  p.cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if p.cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = p.cfg.BaseURL
	}
	if p.cfg.RequestTimeout > 0 {
		timeout := p.cfg.RequestTimeout
		cc.HTTPOptions.Timeout = &timeout
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}
	p.client = client
	return client, nil
}

func (p *provider) Complete(ctx context.Context, req cadagent.CompletionRequest) (*cadagent.CompletionResponse, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}

	contents, config, err := BuildRequest(req)
	if err != nil {
		return nil, err
	}
	if p.cfg.Temperature != nil {
		t := float32(*p.cfg.Temperature)
		config.Temperature = &t
	}
	if p.cfg.MaxOutputTokens != nil {
		config.MaxOutputTokens = int32(*p.cfg.MaxOutputTokens)
	}

	_ = p.debug.Log("request", map[string]any{"contents": contents, "config": config})
	resp, err := client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		_ = p.debug.Log("error", err.Error())
		return nil, err
	}
	_ = p.debug.Log("response", resp)

	return ParseResponse(resp)
}

// BuildRequest converts a completion request to genai contents and config.
// Gemini has no parallel-call switch, so ParallelToolCalls is not sent.
func BuildRequest(req cadagent.CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	config := &genai.GenerateContentConfig{}
	var contents []*genai.Content

	var pending []*genai.Part
	flush := func() {
		if len(pending) > 0 {
			contents = append(contents, genai.NewContentFromParts(pending, genai.RoleUser))
			pending = nil
		}
	}

	for _, msg := range req.Messages {
		switch m := msg.(type) {
		case cadagent.SystemMessage:
			config.SystemInstruction = genai.NewContentFromText(m.Text, genai.RoleUser)
		case cadagent.UserMessage:
			flush()
			parts, err := convertUserParts(m.Parts)
			if err != nil {
				return nil, nil, err
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
		case cadagent.AssistantMessage:
			flush()
			contents = append(contents, genai.NewContentFromParts(convertAssistantParts(m), genai.RoleModel))
		case cadagent.ToolResultMessage:
			pending = append(pending, convertToolResult(m))
		}
	}
	flush()

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, spec := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 spec.Name,
				Description:          spec.Description,
				ParametersJsonSchema: spec.Parameters,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		config.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: convertToolChoice(req.ToolChoice)}
	}

	return contents, config, nil
}

func convertUserParts(parts []cadagent.Part) ([]*genai.Part, error) {
	var out []*genai.Part
	for _, part := range parts {
		switch p := part.(type) {
		case cadagent.TextPart:
			out = append(out, genai.NewPartFromText(p.Text))
		case cadagent.ImagePart:
			data, err := base64.StdEncoding.DecodeString(p.DataB64)
			if err != nil {
				return nil, fmt.Errorf("google: decode image: %w", err)
			}
			out = append(out, genai.NewPartFromBytes(data, p.MimeType))
		}
	}
	if len(out) == 0 {
		out = append(out, genai.NewPartFromText(""))
	}
	return out, nil
}

func convertAssistantParts(m cadagent.AssistantMessage) []*genai.Part {
	var out []*genai.Part
	if text := m.Text(); text != "" {
		out = append(out, genai.NewPartFromText(text))
	}
	for _, call := range m.ToolCalls() {
		var args map[string]any
		if len(call.ArgsJSON) > 0 {
			_ = json.Unmarshal(call.ArgsJSON, &args)
		}
		part := genai.NewPartFromFunctionCall(call.Name, args)
		part.FunctionCall.ID = call.CallID
		out = append(out, part)
	}
	return out
}

func convertToolResult(m cadagent.ToolResultMessage) *genai.Part {
	var response map[string]any
	if err := json.Unmarshal([]byte(m.Content()), &response); err != nil {
		response = map[string]any{"ok": false, "error": err.Error()}
	}
	part := genai.NewPartFromFunctionResponse(m.Name, response)
	part.FunctionResponse.ID = m.CallID
	return part
}

func convertToolChoice(choice cadagent.ToolChoice) *genai.FunctionCallingConfig {
	if name, ok := choice.Forced(); ok {
		return &genai.FunctionCallingConfig{
			Mode:                 genai.FunctionCallingConfigModeAny,
			AllowedFunctionNames: []string{name},
		}
	}
	switch choice {
	case cadagent.ToolChoiceNone:
		return &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeNone}
	case cadagent.ToolChoiceRequired:
		return &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAny}
	default:
		return &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto}
	}
}

// ParseResponse converts the first candidate into an assistant message.
// Function calls without an id get a generated one so tool results can be
// correlated.
func ParseResponse(resp *genai.GenerateContentResponse) (*cadagent.CompletionResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("google: response has no candidates")
	}
	cand := resp.Candidates[0]

	var parts []cadagent.Part
	for _, part := range cand.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil || part.FunctionCall.Args == nil {
				args = []byte("{}")
			}
			id := part.FunctionCall.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			parts = append(parts, cadagent.ToolCallPart{CallID: id, Name: part.FunctionCall.Name, ArgsJSON: args})
		case part.Text != "" && !part.Thought:
			parts = append(parts, cadagent.TextPart{Text: part.Text})
		}
	}

	var usage *cadagent.Usage
	if u := resp.UsageMetadata; u != nil {
		usage = &cadagent.Usage{
			InputTokens:      int(u.PromptTokenCount),
			OutputTokens:     int(u.CandidatesTokenCount),
			CachedReadTokens: int(u.CachedContentTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}

	reason := cadagent.StopStop
	switch {
	case len(resp.FunctionCalls()) > 0:
		reason = cadagent.StopToolUse
	case cand.FinishReason == genai.FinishReasonMaxTokens:
		reason = cadagent.StopLength
	case cand.FinishReason == genai.FinishReasonSafety:
		reason = cadagent.StopError
	}

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
