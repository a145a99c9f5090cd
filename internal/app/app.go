// Package app wires configuration, storage and the AI providers into the
// assistant service and its HTTP server.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/deusflow/docassist/internal/ai"
	"github.com/deusflow/docassist/internal/assistant"
	"github.com/deusflow/docassist/internal/cache"
	"github.com/deusflow/docassist/internal/config"
	"github.com/deusflow/docassist/internal/extract"
	"github.com/deusflow/docassist/internal/gemini"
	"github.com/deusflow/docassist/internal/logger"
	"github.com/deusflow/docassist/internal/metrics"
	"github.com/deusflow/docassist/internal/ratelimit"
	"github.com/deusflow/docassist/internal/retry"
	"github.com/deusflow/docassist/internal/storage"
	"github.com/deusflow/docassist/internal/web"
)

// summaryCacheMaxAge is how long an unused persisted summary is kept.
const summaryCacheMaxAge = 30 * 24 * time.Hour

// App holds everything the server needs so it can be closed in one place.
type App struct {
	Config    *config.Config
	Store     storage.Store
	Cache     *cache.Cache
	Limiter   *ratelimit.AIRateLimiter
	Assistant *assistant.Service
	Server    *web.Server

	gemini *gemini.Client
}

// New builds the application from cfg. The caller owns the returned App and
// must Close it.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := storage.Open(ctx, storage.Options{
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &App{
		Config: cfg,
		Store:  store,
		Cache:  cache.New(cfg.CacheTTL, 10*time.Minute),
		Limiter: ratelimit.NewAIRateLimiter(map[string]int{
			ratelimit.OpenAI:     cfg.MaxOpenAIRequests,
			ratelimit.Perplexity: cfg.MaxPerplexityRequests,
			ratelimit.Gemini:     cfg.MaxGeminiRequests,
		}),
	}

	if removed, err := store.Cleanup(ctx, summaryCacheMaxAge); err != nil {
		logger.Warn("summary cache cleanup failed", "error", err)
	} else if removed > 0 {
		logger.Info("removed stale cached summaries", "count", removed)
	}

	guard := &ai.Guard{
		Limiter: a.Limiter,
		Retry: retry.RetryConfig{
			MaxAttempts: cfg.RetryAttempts,
			Delay:       cfg.RetryDelay,
			Backoff:     true,
		},
	}

	openAI := ai.NewOpenAI(ai.OpenAIConfig{
		APIKey:       cfg.OpenAIAPIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		SummaryModel: cfg.OpenAISummaryModel,
		SearchModel:  cfg.OpenAISearchModel,
		VisionModel:  cfg.OpenAIVisionModel,
	}, guard)

	providers := []ai.Summarizer{openAI}
	if cfg.GeminiAPIKey != "" {
		a.gemini, err = gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, guard)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		providers = append(providers, a.gemini)
	}
	summarizer := ai.NewFallbackSummarizer(providers...)
	logger.Info("summary providers configured", "providers", summarizer.Name())

	var searcher assistant.WebSearcher
	if cfg.PerplexityAPIKey != "" {
		searcher = ai.NewPerplexity(ai.PerplexityConfig{
			APIKey:  cfg.PerplexityAPIKey,
			BaseURL: cfg.PerplexityBaseURL,
			Model:   cfg.PerplexityModel,
		}, guard)
	} else {
		logger.Warn("PERPLEXITY_API_KEY not set, specialized search is disabled")
	}

	a.Assistant = assistant.New(assistant.Deps{
		Summarizer: summarizer,
		Searcher:   searcher,
		Answers:    openAI,
		OCR:        openAI,
		Pages:      extract.NewFetcher(30*time.Second, a.Cache),
		Store:      store,
		Sources:    cfg.Sources(),
		Cache:      a.Cache,
		Limiter:    a.Limiter,
		Metrics:    metrics.Global,
		MaxUpload:  cfg.MaxUploadBytes(),
	})

	a.Server, err = web.NewServer(web.Options{
		Assistant:      a.Assistant,
		Sources:        cfg.Sources(),
		CORSOrigins:    cfg.CORSOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        a.Limiter,
		Metrics:        metrics.Global,
		Stats:          store,
		Debug:          cfg.Debug,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create server: %w", err)
	}
	return a, nil
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	return a.Server.Run(ctx, ":"+a.Config.Port)
}

func (a *App) Close() {
	if a.gemini != nil {
		a.gemini.Close()
	}
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			logger.Warn("failed to close storage", "error", err)
		}
	}
}
