package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"reportjudge/internal/httpx"
)

type Gemini struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
	logger      *zap.Logger
}

func NewGemini(ctx context.Context, apiKey, model string, maxTokens int, temperature float64, logger *zap.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpx.ExternalHTTPClient(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gemini{
		client:      client,
		model:       model,
		maxTokens:   int32(maxTokens),
		temperature: float32(temperature),
		logger:      logger,
	}, nil
}

func (g *Gemini) Name() string {
	return "gemini/" + g.model
}

func (g *Gemini) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	resp, err := g.client.Models.GenerateContent(ctx,
		g.model,
		genai.Text(userPrompt),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
			Temperature:       genai.Ptr(g.temperature),
			MaxOutputTokens:   g.maxTokens,
		},
	)
	if err != nil {
		g.logger.Warn("llm gemini error", zap.String("model", g.model), zap.Error(err))
		return "", Usage{}, fmt.Errorf("Gemini API error: %w", err)
	}

	usage := Usage{}
	if resp.UsageMetadata != nil {
		usage.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	text := resp.Text()
	if text == "" {
		return "", usage, fmt.Errorf("no text content in Gemini response")
	}
	g.logger.Debug("llm gemini response",
		zap.Int("size", len(text)),
		zap.Int64("tokens_in", usage.InputTokens),
		zap.Int64("tokens_out", usage.OutputTokens))
	return text, usage, nil
}
