// Package llmprovider is the request/response LLM oracle collaborator used
// by the llm reranker tier and the multi-query expander. It intentionally
// drops streaming, tool-calling, and image generation: callers here only
// ever need "send messages, get text back, know what it cost."
package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/openai/openai-go/v2"
	oaioption "github.com/openai/openai-go/v2/option"

	"github.com/vectorlane/memquery/internal/config"
	"github.com/vectorlane/memquery/internal/telemetry"
)

// logFailedCall emits a redacted debug line so a failed completion call can
// be diagnosed without ever putting a raw API key into the logs.
func logFailedCall(ctx context.Context, backend string, msgs []Message, err error) {
	raw, mErr := json.Marshal(msgs)
	if mErr != nil {
		return
	}
	telemetry.LoggerWithTrace(ctx).Debug().
		Str("backend", backend).
		RawJSON("messages", telemetry.RedactJSON(raw)).
		Err(err).
		Msg("llmprovider: completion call failed")
}

// Message mirrors the teacher's llm.Message shape, trimmed to the fields a
// plain completion call needs.
type Message struct {
	Role    string
	Content string
}

// Usage carries token counts for one completion call, named after the
// teacher's llm.Usage struct.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CostCents converts a Usage into a dollar-cent cost using the configured
// per-thousand-token rates, for the rate limiter's cost dimension and the
// multi-query expander's usage accounting.
func (u Usage) CostCents(costPerKIn, costPerKOut float64) float64 {
	return (float64(u.PromptTokens)/1000.0)*costPerKIn*100 + (float64(u.CompletionTokens)/1000.0)*costPerKOut*100
}

// Completion is the result of one Complete call.
type Completion struct {
	Content string
	Usage   Usage
}

// Provider is the narrow oracle contract: turn messages into a reply plus
// its token cost. Real backends wrap openai-go/v2 or anthropic-sdk-go;
// tests use the in-package Fake.
type Provider interface {
	Complete(ctx context.Context, msgs []Message, maxTokens int, temperature float64) (Completion, error)
}

// New constructs a Provider from configuration, selecting the OpenAI or
// Anthropic backend by LLMConfig.Provider.
func New(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return newOpenAIProvider(cfg), nil
	case "anthropic":
		return newAnthropicProvider(cfg), nil
	default:
		return nil, fmt.Errorf("llmprovider: unknown provider %q", cfg.Provider)
	}
}

// ---- OpenAI backend ----

type openAIProvider struct {
	client openai.Client
	model  string
}

func newOpenAIProvider(cfg config.LLMConfig) *openAIProvider {
	opts := []oaioption.RequestOption{oaioption.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, oaioption.WithBaseURL(cfg.BaseURL))
	}
	return &openAIProvider{client: openai.NewClient(opts...), model: cfg.Model}
}

func (p *openAIProvider) Complete(ctx context.Context, msgs []Message, maxTokens int, temperature float64) (Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.model),
		Messages:    adaptMessages(msgs),
		MaxTokens:   openai.Int(int64(maxTokens)),
		Temperature: openai.Float(temperature),
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logFailedCall(ctx, "openai", msgs, err)
		return Completion{}, fmt.Errorf("llmprovider: openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("llmprovider: openai completion returned no choices")
	}
	return Completion{
		Content: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func adaptMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// ---- Anthropic backend ----

type anthropicProvider struct {
	client anthropic.Client
	model  string
}

func newAnthropicProvider(cfg config.LLMConfig) *anthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicProvider{client: anthropic.NewClient(opts...), model: cfg.Model}
}

func (p *anthropicProvider) Complete(ctx context.Context, msgs []Message, maxTokens int, _ float64) (Completion, error) {
	var system string
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
	}
	for _, m := range msgs {
		if m.Role == "system" {
			system += m.Content + "\n"
			continue
		}
		role := anthropic.MessageParamRoleUser
		if m.Role == "assistant" {
			role = anthropic.MessageParamRoleAssistant
		}
		params.Messages = append(params.Messages, anthropic.MessageParam{
			Role:    role,
			Content: []anthropic.ContentBlockParamUnion{{OfText: &anthropic.TextBlockParam{Text: m.Content}}},
		})
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		logFailedCall(ctx, "anthropic", msgs, err)
		return Completion{}, fmt.Errorf("llmprovider: anthropic completion: %w", err)
	}
	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	return Completion{
		Content: content,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}
