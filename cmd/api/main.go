package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"composition-resolver/internal/api"
	"composition-resolver/internal/api/handlers/health"
	"composition-resolver/internal/core/ai/cache"
	"composition-resolver/internal/core/ai/gemini"
	"composition-resolver/internal/core/ai/openrouter"
	"composition-resolver/internal/core/ai/provider"
	"composition-resolver/internal/core/ai/queue"
	"composition-resolver/internal/core/ai/service"
	"composition-resolver/internal/core/catalog"
	"composition-resolver/internal/core/composition"
	"composition-resolver/internal/core/scrape"
	"composition-resolver/internal/infrastructure/config"
	"composition-resolver/internal/infrastructure/metrics"
	"composition-resolver/internal/pkg/common"

	"go.uber.org/zap"
)

func main() {
	// 載入設定（含 .env）
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.String("openrouter_api_key", common.MaskSecret(cfg.OpenRouter.APIKey)),
		zap.String("openrouter_model", cfg.OpenRouter.Model),
		zap.String("gemini_model", cfg.Gemini.Model),
		zap.String("default_provider", cfg.AI.DefaultProvider),
	)

	ctx := context.Background()
	m := metrics.New()

	// 製程類型列舉，啟動時建立一次後唯讀共用
	registry := composition.DefaultRegistry()
	if len(cfg.ProcessTypes.Types) > 0 {
		registry = composition.NewRegistry(cfg.ProcessTypes.Version, cfg.ProcessTypes.Types)
	}

	// 初始化快取，只在快取開啟但初始化失敗時才 Fatal
	store, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		common.LogFatal("Failed to initialize cache", zap.Error(err))
	}
	if store != nil {
		defer store.Close()
	}

	queueManager := queue.NewManager(cfg.Queue, m)
	defer queueManager.Close()

	providers := buildProviders(ctx, cfg)
	aiService := service.NewService(service.Options{
		Providers: providers,
		Factories: map[string]provider.Factory{
			provider.NameOpenRouter: openrouter.NewFactory(cfg.OpenRouter),
			provider.NameGemini:     gemini.NewFactory(cfg.Gemini),
		},
		DefaultProvider: cfg.AI.DefaultProvider,
		CallTimeout:     cfg.AI.CallTimeout,
		Cache:           store,
		Queue:           queueManager,
		Metrics:         m,
	})
	defer aiService.Close()

	var catalogs []catalog.Catalog
	if cfg.Catalog.OpenFoodFacts.Enabled {
		catalogs = append(catalogs, catalog.NewOpenFoodFacts(cfg.Catalog.OpenFoodFacts, cfg.Scrape.UserAgent, cfg.Catalog.PerSourceTimeout))
	}
	if cfg.Catalog.FoodData.Enabled {
		catalogs = append(catalogs, catalog.NewFoodData(cfg.Catalog.FoodData, cfg.Catalog.PerSourceTimeout))
	}

	orchestrator := composition.NewOrchestrator(composition.Options{
		AI:       aiService,
		Contexts: composition.NewContextBuilder(scrape.NewFetcher(cfg.Scrape, m), cfg.Scrape.MaxChars),
		Aggregator: composition.NewAggregator(catalogs, composition.AggregatorOptions{
			PerSourceTimeout: cfg.Catalog.PerSourceTimeout,
			MaxPerSource:     cfg.Catalog.MaxPerSource,
			MaxTotal:         cfg.Catalog.MaxTotal,
		}, m),
		Classifier:      composition.NewClassifier(registry),
		Reconciler:      composition.NewReconciler(),
		Metrics:         m,
		MaxContextChars: cfg.AI.MaxContextChars,
	})

	checker := &health.Checker{
		Version:         cfg.App.Version,
		RegistryVersion: registry.Version,
		Providers:       aiService.ProviderNames(),
		Queue:           queueManager,
	}
	if store != nil {
		checker.Cache = store
	}

	// 設置路由
	router, err := api.SetupRouter(cfg, api.Dependencies{
		Resolver: orchestrator,
		Health:   checker,
		Metrics:  m,
	})
	if err != nil {
		common.LogError("Failed to setup router", zap.Error(err))
		os.Exit(1)
	}

	// 設置 HTTP 服務器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器
	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Bool("debug", cfg.App.Debug),
			zap.Int("port", cfg.Server.Port),
			zap.Strings("providers", aiService.ProviderNames()),
			zap.Int("catalogs", len(catalogs)),
			zap.Strings("process_types", registry.Enum()),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.LogError("Failed to start server",
				zap.Error(err),
			)
			os.Exit(1)
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	common.LogInfo("Shutting down server...")

	// 設置關閉超時
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		common.LogError("Server forced to shutdown",
			zap.Error(err),
		)
		os.Exit(1)
	}

	common.LogInfo("Server exited")
}

// buildProviders 依 provider_order 建立伺服器金鑰的供應商
func buildProviders(ctx context.Context, cfg *config.Config) []provider.Provider {
	available := make(map[string]provider.Provider)
	if cfg.OpenRouter.Enabled {
		available[provider.NameOpenRouter] = openrouter.NewClient(cfg.OpenRouter)
	}
	if cfg.Gemini.Enabled {
		client, err := gemini.NewClient(ctx, cfg.Gemini)
		if err != nil {
			common.LogWarn("Gemini provider disabled", zap.Error(err))
		} else {
			available[provider.NameGemini] = client
		}
	}

	order := cfg.AI.ProviderOrder
	if len(order) == 0 {
		order = []string{provider.NameOpenRouter, provider.NameGemini}
	}

	var providers []provider.Provider
	for _, name := range order {
		name = provider.NormalizeName(name)
		if p, ok := available[name]; ok {
			providers = append(providers, p)
			delete(available, name)
		}
	}
	if len(providers) == 0 {
		common.LogWarn("No language-model provider configured, responses fall back to heuristics")
	}
	return providers
}
