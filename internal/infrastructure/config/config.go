package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 應用配置
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	OpenRouter   OpenRouterConfig   `mapstructure:"openrouter"`
	Gemini       GeminiConfig       `mapstructure:"gemini"`
	AI           AIConfig           `mapstructure:"ai"`
	Catalog      CatalogConfig      `mapstructure:"catalog"`
	Scrape       ScrapeConfig       `mapstructure:"scrape"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Queue        QueueConfig        `mapstructure:"queue"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	ProcessTypes ProcessTypesConfig `mapstructure:"process_types"`
	DedupWindow  time.Duration      `mapstructure:"dedup_window"`
	LogLevel     string             `mapstructure:"log_level"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

// OpenRouterConfig OpenRouter 配置
type OpenRouterConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// GeminiConfig Google Gemini 配置
type GeminiConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AIConfig 模型供應商選擇
type AIConfig struct {
	DefaultProvider string        `mapstructure:"default_provider"`
	ProviderOrder   []string      `mapstructure:"provider_order"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	MaxContextChars int           `mapstructure:"max_context_chars"`
}

// CatalogConfig 產品型錄設定
type CatalogConfig struct {
	OpenFoodFacts    OpenFoodFactsConfig `mapstructure:"openfoodfacts"`
	FoodData         FoodDataConfig      `mapstructure:"fooddata"`
	PerSourceTimeout time.Duration       `mapstructure:"per_source_timeout"`
	MaxPerSource     int                 `mapstructure:"max_per_source"`
	MaxTotal         int                 `mapstructure:"max_total"`
}

// OpenFoodFactsConfig Open Food Facts 設定
type OpenFoodFactsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
}

// FoodDataConfig USDA FoodData Central 設定
type FoodDataConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// ScrapeConfig 網頁擷取設定
type ScrapeConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxChars     int           `mapstructure:"max_chars"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	UserAgent    string        `mapstructure:"user_agent"`
	// AllowPrivateHosts 允許擷取內部位址，僅供本機測試
	AllowPrivateHosts bool `mapstructure:"allow_private_hosts"`
}

// CacheConfig 緩存配置
type CacheConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Backend         string        `mapstructure:"backend"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	MaxSize         int           `mapstructure:"max_size"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// QueueConfig 模型調用併發設定
type QueueConfig struct {
	Workers int `mapstructure:"workers"`
	MaxSize int `mapstructure:"max_size"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// ProcessTypesConfig 製程類型列舉
type ProcessTypesConfig struct {
	Version string   `mapstructure:"version"`
	Types   []string `mapstructure:"types"`
}

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// 加載 .env 文件，不存在時略過
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// 設定環境變數前綴
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 綁定環境變量
	v.BindEnv("openrouter.api_key", "OPENROUTER_API_KEY")
	v.BindEnv("openrouter.model", "OPENROUTER_MODEL")
	v.BindEnv("openrouter.max_tokens", "MODEL_MAX_TOKENS")
	v.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("gemini.model", "GEMINI_MODEL")
	v.BindEnv("ai.default_provider", "AI_DEFAULT_PROVIDER")
	v.BindEnv("catalog.fooddata.api_key", "FDC_API_KEY")
	v.BindEnv("cache.enabled", "CACHE_ENABLED")
	v.BindEnv("cache.backend", "CACHE_BACKEND")
	v.BindEnv("cache.redis_addr", "REDIS_ADDR")
	v.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	v.BindEnv("rate_limit.requests", "RATE_LIMIT_REQUESTS")
	v.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")
	v.BindEnv("dedup_window", "DEDUP_WINDOW")
	v.BindEnv("log_level", "LOG_LEVEL")

	// 設定檔名稱和路徑
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// provider 是否啟用取決於金鑰
	if config.OpenRouter.APIKey != "" {
		config.OpenRouter.Enabled = true
	}
	if config.Gemini.APIKey != "" {
		config.Gemini.Enabled = true
	}
	if config.Catalog.FoodData.APIKey == "" {
		config.Catalog.FoodData.APIKey = "DEMO_KEY"
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// setDefaults 設定預設值
func setDefaults(v *viper.Viper) {
	// 應用程式設定
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "composition-resolver")

	// 伺服器設定
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "150s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "120s")
	v.SetDefault("server.max_body_bytes", 10<<20)

	// OpenRouter 設定
	v.SetDefault("openrouter.enabled", false)
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.model", "openai/gpt-4o-mini")
	v.SetDefault("openrouter.max_tokens", 2048)
	v.SetDefault("openrouter.timeout", "60s")

	// Gemini 設定
	v.SetDefault("gemini.enabled", false)
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.timeout", "60s")

	// AI 設定
	v.SetDefault("ai.default_provider", "openrouter")
	v.SetDefault("ai.provider_order", []string{"openrouter", "gemini"})
	v.SetDefault("ai.call_timeout", "60s")
	v.SetDefault("ai.max_context_chars", 12000)

	// 型錄設定
	v.SetDefault("catalog.openfoodfacts.enabled", true)
	v.SetDefault("catalog.openfoodfacts.base_url", "https://world.openfoodfacts.org")
	v.SetDefault("catalog.fooddata.enabled", true)
	v.SetDefault("catalog.fooddata.base_url", "https://api.nal.usda.gov/fdc/v1")
	v.SetDefault("catalog.per_source_timeout", "15s")
	v.SetDefault("catalog.max_per_source", 5)
	v.SetDefault("catalog.max_total", 10)

	// 擷取設定
	v.SetDefault("scrape.timeout", "20s")
	v.SetDefault("scrape.max_chars", 8000)
	v.SetDefault("scrape.max_body_bytes", 2<<20)
	v.SetDefault("scrape.allow_private_hosts", false)
	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (compatible; composition-resolver/1.0)")

	// 快取設定
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.cleanup_interval", "10m")

	// 隊列設定
	v.SetDefault("queue.workers", 5)
	v.SetDefault("queue.max_size", 100)

	// 限流設定
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("dedup_window", "1s")
	v.SetDefault("log_level", "info")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	if config.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}

	if config.Cache.Enabled {
		switch config.Cache.Backend {
		case "memory":
			if config.Cache.MaxSize <= 0 {
				return fmt.Errorf("invalid cache max size")
			}
			if config.Cache.CleanupInterval <= 0 {
				return fmt.Errorf("invalid cache cleanup interval")
			}
		case "redis":
			if config.Cache.RedisAddr == "" {
				return fmt.Errorf("redis address is required for redis cache backend")
			}
		default:
			return fmt.Errorf("unknown cache backend %q", config.Cache.Backend)
		}
		if config.Cache.TTL <= 0 {
			return fmt.Errorf("invalid cache ttl")
		}
	}

	if config.Queue.Workers <= 0 {
		return fmt.Errorf("invalid queue workers")
	}
	if config.Queue.MaxSize <= 0 {
		return fmt.Errorf("invalid queue max size")
	}

	if config.AI.CallTimeout <= 0 {
		return fmt.Errorf("invalid ai call timeout")
	}
	if config.Catalog.PerSourceTimeout <= 0 {
		return fmt.Errorf("invalid catalog per source timeout")
	}

	return nil
}
