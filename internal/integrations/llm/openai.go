package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (o *OpenAI) Name() string {
	return "openai/" + o.Model
}

func (o *OpenAI) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

func (o *OpenAI) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	reqBody := openAIRequest{
		Model: o.Model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   o.MaxTokens,
		Temperature: o.Temperature,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := strings.TrimRight(o.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", Usage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)

	client := o.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		o.logger().Warn("llm openai error", zap.String("model", o.Model), zap.Error(err))
		return "", Usage{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Usage{}, fmt.Errorf("reading response: %w", err)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return "", Usage{}, fmt.Errorf("parsing OpenAI response (status %d): %w", resp.StatusCode, err)
	}

	if openAIResp.Error != nil {
		o.logger().Warn("llm openai api error", zap.String("message", openAIResp.Error.Message))
		return "", Usage{}, fmt.Errorf("OpenAI API error: %s", openAIResp.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", Usage{}, fmt.Errorf("OpenAI API status %d", resp.StatusCode)
	}

	if len(openAIResp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("no choices in OpenAI response")
	}
	usage := Usage{}
	if openAIResp.Usage != nil {
		usage.InputTokens = openAIResp.Usage.PromptTokens
		usage.OutputTokens = openAIResp.Usage.CompletionTokens
	}

	o.logger().Debug("llm openai response",
		zap.Int("size", len(openAIResp.Choices[0].Message.Content)),
		zap.Int64("tokens_in", usage.InputTokens),
		zap.Int64("tokens_out", usage.OutputTokens))
	return openAIResp.Choices[0].Message.Content, usage, nil
}
