package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"composition-resolver/internal/core/ai/provider"
	"composition-resolver/internal/infrastructure/config"
	"composition-resolver/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// Client OpenRouter API 客戶端（OpenAI 相容的 chat completions）
type Client struct {
	client    *resty.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// Message 消息結構
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request 表示 API 請求
type Request struct {
	Messages       []Message       `json:"messages"`
	Model          string          `json:"model,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ResponseFormat 要求模型回傳 JSON
type ResponseFormat struct {
	Type string `json:"type"`
}

// Response OpenRouter 響應結構
type Response struct {
	ID      string    `json:"id"`
	Choices []Choice  `json:"choices"`
	Usage   UsageInfo `json:"usage"`
}

// Choice 選擇結構
type Choice struct {
	Message Message `json:"message"`
}

// UsageInfo 使用量信息
type UsageInfo struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// apiError 表示 API 錯誤
type apiError struct {
	Error struct {
		Message string      `json:"message"`
		Type    string      `json:"type"`
		Code    interface{} `json:"code"`
	} `json:"error"`
}

// NewClient 以設定建立客戶端
func NewClient(cfg config.OpenRouterConfig) *Client {
	return newClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.Timeout)
}

// NewFactory 回傳以呼叫端金鑰建立客戶端的工廠，其他參數沿用設定
func NewFactory(cfg config.OpenRouterConfig) provider.Factory {
	return func(apiKey string) (provider.Provider, error) {
		if strings.TrimSpace(apiKey) == "" {
			return nil, fmt.Errorf("openrouter: api key is required")
		}
		return newClient(cfg.BaseURL, apiKey, cfg.Model, cfg.MaxTokens, cfg.Timeout), nil
	}
}

func newClient(baseURL, apiKey, model string, maxTokens int, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", apiKey)).
		SetHeader("Content-Type", "application/json").
		SetHeader("HTTP-Referer", "https://composition-resolver.local").
		SetHeader("X-Title", "Composition Resolver")

	return &Client{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
	}
}

// Name 供應商名稱
func (c *Client) Name() string {
	return provider.NameOpenRouter
}

// Timeout 單次調用超時
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Complete 發送 prompt 並回傳第一個 choice 的內容
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	req := &Request{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: "You are a product composition analyst. Answer with one JSON object only."},
			{Role: "user", Content: prompt},
		},
		MaxTokens:      c.maxTokens,
		Temperature:    0.2,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	}

	common.LogDebug("Sending request to OpenRouter",
		zap.String("model", req.Model),
		zap.Int("prompt_length", len(prompt)),
	)

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("failed to send request to OpenRouter: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("OpenRouter API error (status %d): %s", resp.StatusCode(), apiErr.Error.Message)
		}
		return "", fmt.Errorf("OpenRouter API error (status %d): %s", resp.StatusCode(), common.Truncate(resp.String(), 300))
	}

	var result Response
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", fmt.Errorf("failed to parse OpenRouter response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices in OpenRouter response")
	}

	content := strings.TrimSpace(result.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty content in OpenRouter response")
	}

	common.LogDebug("Successfully generated response from OpenRouter",
		zap.String("model", req.Model),
		zap.Int("content_length", len(content)),
		zap.Int("total_tokens", result.Usage.TotalTokens),
	)

	return content, nil
}

// Close 關閉客戶端
func (c *Client) Close() error {
	c.client.GetClient().CloseIdleConnections()
	return nil
}
