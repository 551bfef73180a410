// Package llm adapts hosted model APIs to a single system+user completion call.
package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"reportjudge/internal/config"
	"reportjudge/internal/httpx"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "gpt-4o"
const defaultGeminiModel = "gemini-2.5-flash"

type Usage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

// Completer sends one system+user prompt and returns the first text reply.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error)
	// Name identifies provider and model for logs.
	Name() string
}

// NewCompleter builds the completer selected by cfg.LLMProvider.
func NewCompleter(ctx context.Context, cfg config.Config, logger *zap.Logger) (Completer, error) {
	if err := cfg.ValidateLLM(); err != nil {
		return nil, err
	}
	model := strings.TrimSpace(cfg.LLMModel)
	switch cfg.LLMProvider {
	case "openai":
		if model == "" {
			model = defaultOpenAIModel
		}
		return &OpenAI{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       model,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
			HTTPClient:  httpx.ExternalHTTPClient(),
			Logger:      logger,
		}, nil
	case "gemini":
		if model == "" {
			model = defaultGeminiModel
		}
		return NewGemini(ctx, cfg.GeminiAPIKey, model, cfg.LLMMaxTokens, cfg.LLMTemperature, logger)
	case "anthropic":
		if model == "" {
			model = defaultAnthropicModel
		}
		return NewAnthropic(cfg.AnthropicAPIKey, model, cfg.LLMMaxTokens, cfg.LLMTemperature, logger), nil
	default:
		return nil, fmt.Errorf("unsupported llm_provider %q", cfg.LLMProvider)
	}
}
