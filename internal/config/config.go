// Package config loads service settings from the environment (and an
// optional .env file) plus the web source presets from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server settings
	Port        string   `env:"PORT" envDefault:"8080"`
	AppEnv      string   `env:"APP_ENV" envDefault:"development"`
	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"*" envSeparator:","`
	MaxUploadMB int64    `env:"MAX_UPLOAD_MB" envDefault:"10"`
	Debug       bool     `env:"DEBUG"`

	// OpenAI settings (summary, MiniPlex search, OCR)
	OpenAIAPIKey       string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL      string `env:"OPENAI_BASE_URL"`
	OpenAISummaryModel string `env:"OPENAI_SUMMARY_MODEL" envDefault:"gpt-3.5-turbo"`
	OpenAISearchModel  string `env:"OPENAI_SEARCH_MODEL" envDefault:"gpt-4-turbo-preview"`
	OpenAIVisionModel  string `env:"OPENAI_VISION_MODEL" envDefault:"gpt-4o"`

	// Perplexity settings (specialized search)
	PerplexityAPIKey  string `env:"PERPLEXITY_API_KEY"`
	PerplexityBaseURL string `env:"PERPLEXITY_BASE_URL" envDefault:"https://api.perplexity.ai"`
	PerplexityModel   string `env:"PERPLEXITY_MODEL" envDefault:"llama-3.1-sonar-small-128k-online"`

	// Gemini settings (summary fallback)
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`

	// Daily request quotas per provider (0 = unlimited)
	MaxOpenAIRequests     int `env:"MAX_OPENAI_REQUESTS" envDefault:"0"`
	MaxPerplexityRequests int `env:"MAX_PERPLEXITY_REQUESTS" envDefault:"0"`
	MaxGeminiRequests     int `env:"MAX_GEMINI_REQUESTS" envDefault:"0"`

	// Storage settings
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"docassist.db"`

	// Web source presets
	SourcesConfigPath string `env:"SOURCES_CONFIG_PATH" envDefault:"configs/sources.yaml"`

	// App settings
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	RetryAttempts  int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryDelay     time.Duration `env:"RETRY_DELAY" envDefault:"2s"`
	CacheTTL       time.Duration `env:"CACHE_TTL" envDefault:"6h"`

	sources *Sources
}

// Load reads .env when present, then the environment, then the sources file.
// A missing sources file falls back to the built-in presets.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	sources, err := LoadSources(cfg.SourcesConfigPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg.sources = DefaultSources()
	case err != nil:
		return nil, err
	default:
		cfg.sources = sources
	}

	return cfg, nil
}

// Sources returns the web source presets, defaulting to the built-in ones.
func (c *Config) Sources() *Sources {
	if c.sources == nil {
		return DefaultSources()
	}
	return c.sources
}

// MaxUploadBytes is the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// Production reports whether the service runs with production logging.
func (c *Config) Production() bool {
	return c.AppEnv == "prod" || c.AppEnv == "production"
}

// Validate checks what the HTTP server needs before it can take requests.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be at least 1")
	}
	return nil
}
