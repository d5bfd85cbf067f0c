package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"composition-resolver/internal/core/ai/cache"
	"composition-resolver/internal/core/ai/provider"
	"composition-resolver/internal/core/ai/queue"
	"composition-resolver/internal/infrastructure/metrics"
	"composition-resolver/internal/pkg/common"

	"go.uber.org/zap"
)

// ErrAllProvidersFailed 所有供應商皆失敗或回應無法解析
var ErrAllProvidersFailed = errors.New("all providers failed")

// Response 供應商回應
type Response struct {
	Content  string
	Provider string
	CacheHit bool
}

// AcceptFunc 檢查回應內容，回傳錯誤時改試下一個供應商
type AcceptFunc func(content string) error

// Options 服務依賴
type Options struct {
	// Providers 伺服器金鑰設定的供應商，依偏好順序
	Providers []provider.Provider
	// Factories 以呼叫端金鑰建立供應商
	Factories map[string]provider.Factory
	// DefaultProvider 呼叫端只給金鑰時使用的供應商
	DefaultProvider string
	CallTimeout     time.Duration
	Cache           cache.Store
	Queue           *queue.Manager
	Metrics         *metrics.Metrics
}

// Service 依序嘗試模型供應商
type Service struct {
	providers       []provider.Provider
	factories       map[string]provider.Factory
	defaultProvider string
	callTimeout     time.Duration
	cache           cache.Store
	queue           *queue.Manager
	metrics         *metrics.Metrics
}

// NewService 創建 AI 服務
func NewService(opts Options) *Service {
	def := provider.NormalizeName(opts.DefaultProvider)
	if def == "" && len(opts.Providers) > 0 {
		def = opts.Providers[0].Name()
	}
	if def == "" {
		def = provider.NameOpenRouter
	}
	factories := make(map[string]provider.Factory, len(opts.Factories))
	for name, f := range opts.Factories {
		factories[provider.NormalizeName(name)] = f
	}
	return &Service{
		providers:       opts.Providers,
		factories:       factories,
		defaultProvider: def,
		callTimeout:     opts.CallTimeout,
		cache:           opts.Cache,
		queue:           opts.Queue,
		metrics:         opts.Metrics,
	}
}

// ProviderNames 已設定的供應商名稱
func (s *Service) ProviderNames() []string {
	names := make([]string, 0, len(s.providers))
	for _, p := range s.providers {
		names = append(names, p.Name())
	}
	return names
}

// Complete 依序調用供應商直到某個回應通過 accept
func (s *Service) Complete(ctx context.Context, prompt string, hint provider.Hint, accept AcceptFunc) (*Response, error) {
	chain, owned := s.chain(hint.Normalize())
	defer closeAll(owned)
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: no provider configured", ErrAllProvidersFailed)
	}

	names := make([]string, len(chain))
	for i, p := range chain {
		names[i] = p.Name()
	}
	key := cache.Key(names, prompt)

	if resp := s.fromCache(ctx, key, accept); resp != nil {
		return resp, nil
	}

	if s.queue != nil {
		if err := s.queue.Acquire(ctx); err != nil {
			return nil, err
		}
		defer s.queue.Release()
	}

	var errs []string
	for _, p := range chain {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err().Error())
			break
		}

		content, err := s.attempt(ctx, p, prompt)
		if err == nil && accept != nil {
			if aerr := accept(content); aerr != nil {
				err = aerr
				s.metrics.ObserveProvider(p.Name(), metrics.OutcomeFailure, 0)
				common.LogWarn("Provider returned unusable content",
					zap.String("provider", p.Name()),
					zap.Error(aerr),
				)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", p.Name(), err))
			continue
		}

		if s.cache != nil {
			if cerr := s.cache.Set(ctx, key, content); cerr != nil {
				common.LogWarn("Failed to cache provider response", zap.Error(cerr))
			}
		}
		return &Response{Content: content, Provider: p.Name()}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrAllProvidersFailed, strings.Join(errs, "; "))
}

// attempt 以單次超時調用一個供應商
func (s *Service) attempt(ctx context.Context, p provider.Provider, prompt string) (string, error) {
	timeout := p.Timeout()
	if s.callTimeout > 0 && (timeout <= 0 || s.callTimeout < timeout) {
		timeout = s.callTimeout
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	content, err := p.Complete(callCtx, prompt)
	duration := time.Since(start)
	common.LogProviderCall(p.Name(), duration, err)

	switch {
	case err == nil:
		s.metrics.ObserveProvider(p.Name(), metrics.OutcomeSuccess, duration)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
		s.metrics.ObserveProvider(p.Name(), metrics.OutcomeTimeout, duration)
	default:
		s.metrics.ObserveProvider(p.Name(), metrics.OutcomeFailure, duration)
	}
	return content, err
}

// fromCache 命中且內容可用時回傳
func (s *Service) fromCache(ctx context.Context, key string, accept AcceptFunc) *Response {
	if s.cache == nil {
		return nil
	}
	content, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			common.LogWarn("Cache lookup failed", zap.Error(err))
		}
		common.LogCacheMiss("llm")
		return nil
	}
	if accept != nil && accept(content) != nil {
		return nil
	}
	common.LogCacheHit("llm")
	s.metrics.ObserveProvider("cache", metrics.OutcomeCached, 0)
	return &Response{Content: content, Provider: "cache", CacheHit: true}
}

// chain 組出本次請求的供應商順序：呼叫端指定者優先，其後為預設順序。
// owned 為本次請求建立、用完需關閉的供應商。呼叫端供應商建立失敗時只記錄並略過。
func (s *Service) chain(hint provider.Hint) (chain, owned []provider.Provider) {
	if hint.IsZero() {
		return s.providers, nil
	}
	preferred := hint.Name

	if hint.APIKey != "" {
		name := preferred
		if name == "" {
			name = s.defaultProvider
		}
		if p, err := s.build(name, hint.APIKey); err != nil {
			common.LogWarn("Caller provider skipped",
				zap.String("provider", name),
				zap.Error(err),
			)
			s.metrics.ObserveProvider(name, metrics.OutcomeFailure, 0)
		} else {
			chain = append(chain, p)
			owned = append(owned, p)
		}
	}

	if preferred != "" {
		for _, p := range s.providers {
			if p.Name() == preferred {
				chain = append(chain, p)
			}
		}
	}
	for _, p := range s.providers {
		if preferred != "" && p.Name() == preferred {
			continue
		}
		chain = append(chain, p)
	}
	return chain, owned
}

// build 以呼叫端金鑰建立供應商
func (s *Service) build(name, apiKey string) (provider.Provider, error) {
	factory, ok := s.factories[name]
	if !ok {
		return nil, common.NewValidationError(fmt.Sprintf("unsupported provider %q", name))
	}
	p, err := factory(apiKey)
	if err != nil {
		return nil, fmt.Errorf("create provider %s: %w", name, err)
	}
	return p, nil
}

// Close 關閉已設定的供應商
func (s *Service) Close() error {
	closeAll(s.providers)
	return nil
}

func closeAll(providers []provider.Provider) {
	for _, p := range providers {
		if c, ok := p.(provider.Closer); ok {
			if err := c.Close(); err != nil {
				common.LogWarn("Failed to close provider", zap.String("provider", p.Name()), zap.Error(err))
			}
		}
	}
}
