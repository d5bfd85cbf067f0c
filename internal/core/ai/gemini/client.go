package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"composition-resolver/internal/core/ai/provider"
	"composition-resolver/internal/infrastructure/config"
	"composition-resolver/internal/pkg/common"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.0-flash"

// Client Google Gemini 供應商
type Client struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewClient 以設定建立客戶端
func NewClient(ctx context.Context, cfg config.GeminiConfig) (*Client, error) {
	return newClient(ctx, cfg.APIKey, cfg)
}

// NewFactory 回傳以呼叫端金鑰建立客戶端的工廠
func NewFactory(cfg config.GeminiConfig) provider.Factory {
	return func(apiKey string) (provider.Provider, error) {
		return newClient(context.Background(), apiKey, cfg)
	}
}

func newClient(ctx context.Context, apiKey string, cfg config.GeminiConfig) (*Client, error) {
	model, timeout := cfg.Model, cfg.Timeout
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if model == "" {
		model = defaultModel
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Client{
		client:  client,
		model:   model,
		timeout: timeout,
	}, nil
}

// Name 供應商名稱
func (c *Client) Name() string {
	return provider.NameGemini
}

// Timeout 單次調用超時
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Complete 發送 prompt 並回傳文字
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	temperature := float32(0.2)
	resp, err := c.client.Models.GenerateContent(ctx,
		c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Temperature:      &temperature,
			ResponseMIMEType: "application/json",
		},
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	content := strings.TrimSpace(resp.Text())
	if content == "" {
		return "", fmt.Errorf("empty content in Gemini response")
	}

	common.LogDebug("Successfully generated response from Gemini",
		zap.String("model", c.model),
		zap.Int("content_length", len(content)),
	)
	return content, nil
}
