package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"reportjudge/internal/httpx"
)

type Anthropic struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	logger      *zap.Logger
}

// NewAnthropic disables the SDK's own retries; the oracle owns the retry budget.
func NewAnthropic(apiKey, model string, maxTokens int, temperature float64, logger *zap.Logger, opts ...option.RequestOption) *Anthropic {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpx.ExternalHTTPClient()),
		option.WithMaxRetries(0),
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Anthropic{
		client:      anthropic.NewClient(append(base, opts...)...),
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: temperature,
		logger:      logger,
	}
}

func (a *Anthropic) Name() string {
	return "anthropic/" + a.model
}

func (a *Anthropic) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		Temperature: anthropic.Float(a.temperature),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		a.logger.Warn("llm anthropic error", zap.String("model", a.model), zap.Error(err))
		return "", Usage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			a.logger.Debug("llm anthropic response",
				zap.Int("size", len(block.Text)),
				zap.Int64("tokens_in", usage.InputTokens),
				zap.Int64("tokens_out", usage.OutputTokens),
				zap.Int64("cache_read", usage.CacheReadInputTokens))
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}
