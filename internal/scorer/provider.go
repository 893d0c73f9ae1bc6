package scorer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"policy-audit/internal/config"
)

// OpenAI-compatible endpoints for the hosted providers. Gemini and Groq
// both expose the chat-completions surface, so a single client covers the
// whole chain.
const (
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	groqBaseURL   = "https://api.groq.com/openai/v1"
)

// Provider scores prompts through one remote LLM endpoint with a bounded
// per-call timeout.
type Provider struct {
	name    string
	llm     llms.Model
	model   string
	timeout time.Duration
}

// NewProvider returns nil when the provider is not configured (no key),
// which the router treats as "skip".
func NewProvider(name string, cfg config.LLMConfig, timeout time.Duration) *Provider {
	if cfg.Key == "" {
		return nil
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		switch name {
		case "gemini":
			baseURL = geminiBaseURL
		case "groq":
			baseURL = groqBaseURL
		}
	}
	opts := []openai.Option{
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil
	}
	return &Provider{name: name, llm: llm, model: cfg.Model, timeout: timeout}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Available() bool { return p != nil && p.llm != nil }

func (p *Provider) Score(ctx context.Context, prompt string) (*Result, error) {
	return p.generate(ctx, prompt, nil)
}

func (p *Provider) ScoreStream(ctx context.Context, prompt string, onDelta func(string)) (*Result, error) {
	return p.generate(ctx, prompt, onDelta)
}

func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	return p.complete(ctx, prompt, nil)
}

func (p *Provider) generate(ctx context.Context, prompt string, onDelta func(string)) (*Result, error) {
	raw, err := p.complete(ctx, prompt, onDelta)
	if err != nil {
		return nil, err
	}
	return Parse(raw, p.name, p.model)
}

func (p *Provider) complete(ctx context.Context, prompt string, onDelta func(string)) (string, error) {
	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	opts := []llms.CallOption{llms.WithTemperature(0.2)}
	if onDelta != nil {
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			onDelta(string(chunk))
			return nil
		}))
	}

	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}
	resp, err := p.llm.GenerateContent(callCtx, messages, opts...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", &TimeoutError{Provider: p.name, Err: err}
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &ScoreParseError{Reason: "provider returned no choices"}
	}
	return resp.Choices[0].Content, nil
}
