package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"composition-resolver/internal/infrastructure/config"
)

// ErrCacheMiss 快取未命中
var ErrCacheMiss = errors.New("cache miss")

// Store 模型回應快取
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Stats() map[string]interface{}
	Close() error
}

// Key 以供應商鏈與 prompt 產生快取鍵
func Key(providers []string, prompt string) string {
	hash := sha256.Sum256([]byte(strings.Join(providers, ",") + "\x00" + prompt))
	return "composition:llm:" + hex.EncodeToString(hash[:])
}

// New 依設定選擇快取後端，停用時回傳 nil
func New(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemoryStore(cfg), nil
	case "redis":
		return NewRedisStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
