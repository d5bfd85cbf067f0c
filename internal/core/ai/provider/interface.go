package provider

import (
	"context"
	"strings"
	"time"
)

// 已知的供應商名稱
const (
	NameOpenRouter = "openrouter"
	NameGemini     = "gemini"
)

// Provider 定義模型供應商介面：輸入單一 prompt，回傳應包含 JSON 物件的自由文字
type Provider interface {
	// Name 供應商名稱（小寫）
	Name() string

	// Complete 嘗試完成一次 prompt
	Complete(ctx context.Context, prompt string) (string, error)

	// Timeout 單次調用超時時間
	Timeout() time.Duration
}

// Closer 可選，需要釋放連線的供應商實作此介面
type Closer interface {
	Close() error
}

// Factory 以呼叫端提供的金鑰建立供應商
type Factory func(apiKey string) (Provider, error)

// Hint 呼叫端指定的供應商偏好
type Hint struct {
	Name   string
	APIKey string
}

// Normalize 統一名稱格式
func (h Hint) Normalize() Hint {
	return Hint{
		Name:   NormalizeName(h.Name),
		APIKey: strings.TrimSpace(h.APIKey),
	}
}

// IsZero 是否未指定
func (h Hint) IsZero() bool {
	return h.Name == "" && h.APIKey == ""
}

// NormalizeName 統一供應商名稱，支援常見別名
func NormalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "google", "google-genai", "genai", "gemini":
		return NameGemini
	case "open-router", "openrouter", "or":
		return NameOpenRouter
	}
	return n
}
