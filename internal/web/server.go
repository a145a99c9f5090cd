// Package web serves the assistant wizard as server-rendered HTML and the
// process-* JSON functions behind it.
package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deusflow/docassist/internal/assistant"
	"github.com/deusflow/docassist/internal/config"
	"github.com/deusflow/docassist/internal/domain"
	"github.com/deusflow/docassist/internal/logger"
	"github.com/deusflow/docassist/internal/metrics"
	"github.com/deusflow/docassist/internal/ratelimit"
)

// Assistant is the task surface the handlers drive.
type Assistant interface {
	Summarize(ctx context.Context, req assistant.SummaryRequest) (*assistant.Result, error)
	Search(ctx context.Context, req assistant.SearchRequest) (*assistant.Result, error)
	AISearch(ctx context.Context, req assistant.SearchRequest) (*assistant.Result, error)
	OCR(ctx context.Context, upload *assistant.Upload) (*assistant.Result, error)
	ExtractURL(ctx context.Context, rawURL string) (string, error)
	History(ctx context.Context, limit int) ([]domain.Message, error)
}

// StatsSource reports row counts for the metrics endpoint.
type StatsSource interface {
	Stats(ctx context.Context) (map[string]int64, error)
}

type Options struct {
	Assistant      Assistant
	Sources        *config.Sources
	CORSOrigins    []string
	MaxUploadBytes int64
	RequestTimeout time.Duration
	Limiter        *ratelimit.AIRateLimiter
	Metrics        *metrics.Metrics
	Stats          StatsSource
	Debug          bool
}

type Server struct {
	engine    *gin.Engine
	assistant Assistant
	sources   *config.Sources
	maxUpload int64
	timeout   time.Duration
	limiter   *ratelimit.AIRateLimiter
	metrics   *metrics.Metrics
	stats     StatsSource
	pages     map[string]*template.Template
}

func NewServer(opts Options) (*Server, error) {
	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	s := &Server{
		assistant: opts.Assistant,
		sources:   opts.Sources,
		maxUpload: opts.MaxUploadBytes,
		timeout:   opts.RequestTimeout,
		limiter:   opts.Limiter,
		metrics:   opts.Metrics,
		stats:     opts.Stats,
		pages:     pages,
	}
	if s.sources == nil {
		s.sources = config.DefaultSources()
	}
	if s.metrics == nil {
		s.metrics = metrics.Global
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 10 << 20
	}

	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s.engine = s.routes(opts.CORSOrigins)
	return s, nil
}

func (s *Server) routes(origins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(), CORS(origins), Timeout(s.timeout))

	router.GET("/health", s.health)
	router.GET("/metrics", s.metricsStats)
	router.StaticFileFS("/static/style.css", "static/style.css", http.FS(assets))

	// Wizard
	router.GET("/", s.index)
	router.GET("/history", s.history)
	for _, step := range []domain.Step{domain.StepSummary, domain.StepSearch, domain.StepMiniplex, domain.StepOCR} {
		router.GET("/"+string(step), s.taskForm(step))
	}
	router.POST("/summary", s.submitSummary)
	router.POST("/search", s.submitSearch(domain.StepSearch))
	router.POST("/miniplex", s.submitSearch(domain.StepMiniplex))
	router.POST("/ocr", s.submitOCR)

	// Functions
	fn := router.Group("/functions/v1")
	{
		fn.POST("/process-document", s.processDocument)
		fn.POST("/process-search", s.processSearch)
		fn.POST("/process-miniplex", s.processMiniplex)
		fn.POST("/process-ocr", s.processOCR)
		fn.POST("/process-url", s.processURL)
	}

	return router
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	stats := s.metrics.GetStats()

	status := "ok"
	code := http.StatusOK
	if healthy, _ := stats["is_healthy"].(bool); !healthy {
		status = "error"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	})
}

func (s *Server) metricsStats(c *gin.Context) {
	stats := s.metrics.GetStats()
	if s.limiter != nil {
		stats["ai"] = s.limiter.GetStats()
	}
	if s.stats != nil {
		if db, err := s.stats.Stats(c.Request.Context()); err != nil {
			logger.Warn("failed to read database stats", "error", err)
		} else {
			stats["database"] = db
		}
	}
	c.JSON(http.StatusOK, stats)
}
