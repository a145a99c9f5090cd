package ratelimit

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/deusflow/docassist/internal/logger"
)

// Provider names used as quota keys.
const (
	OpenAI     = "openai"
	Perplexity = "perplexity"
	Gemini     = "gemini"
)

// ErrLimitExceeded is returned by Use when a provider's quota is spent.
type ErrLimitExceeded struct {
	Provider string
	Limit    int
}

func (e *ErrLimitExceeded) Error() string {
	return fmt.Sprintf("%s daily limit of %d requests exceeded", e.Provider, e.Limit)
}

// AIRateLimiter keeps daily request quotas per AI provider and counts cache
// hits that saved a request.
type AIRateLimiter struct {
	mu          sync.Mutex
	limits      map[string]int // 0 or missing = unlimited
	counts      map[string]int
	resetTime   time.Time
	window      time.Duration
	now         func() time.Time
	tokensSaved int
	cacheHits   int
	cacheMisses int
}

// NewAIRateLimiter creates a limiter whose counters reset every 24 hours.
func NewAIRateLimiter(limits map[string]int) *AIRateLimiter {
	rl := &AIRateLimiter{
		limits: make(map[string]int, len(limits)),
		counts: make(map[string]int),
		window: 24 * time.Hour,
		now:    time.Now,
	}
	for p, l := range limits {
		rl.limits[p] = l
	}
	rl.resetTime = rl.now().Add(rl.window)
	return rl
}

// CanUse reports whether one more request to provider fits its quota.
func (rl *AIRateLimiter) CanUse(provider string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.checkReset()
	max := rl.limits[provider]
	return max <= 0 || rl.counts[provider] < max
}

// Use takes one request from provider's quota.
func (rl *AIRateLimiter) Use(provider string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.checkReset()
	max := rl.limits[provider]
	if max > 0 && rl.counts[provider] >= max {
		logger.Warn("AI rate limit reached", "provider", provider, "used", rl.counts[provider], "limit", max)
		return &ErrLimitExceeded{Provider: provider, Limit: max}
	}

	rl.counts[provider]++
	rl.cacheMisses++
	logger.Debug("AI usage", "provider", provider, "used", rl.counts[provider], "limit", max)
	return nil
}

// RecordCacheHit records a request answered from cache.
func (rl *AIRateLimiter) RecordCacheHit(estimatedTokens int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cacheHits++
	rl.tokensSaved += estimatedTokens
}

// cacheHitRate must be called with mu held.
func (rl *AIRateLimiter) cacheHitRate() float64 {
	total := rl.cacheHits + rl.cacheMisses
	if total == 0 {
		return 0
	}
	return float64(rl.cacheHits) / float64(total) * 100
}

// GetStats returns current counters keyed for JSON output.
func (rl *AIRateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	providers := make(map[string]struct{})
	for p := range rl.limits {
		providers[p] = struct{}{}
	}
	for p := range rl.counts {
		providers[p] = struct{}{}
	}
	names := make([]string, 0, len(providers))
	for p := range providers {
		names = append(names, p)
	}
	sort.Strings(names)

	stats := map[string]interface{}{
		"cache_hits":     rl.cacheHits,
		"cache_misses":   rl.cacheMisses,
		"cache_hit_rate": rl.cacheHitRate(),
		"tokens_saved":   rl.tokensSaved,
		"reset_time":     rl.resetTime.Format(time.RFC3339),
	}
	for _, p := range names {
		stats[p+"_used"] = rl.counts[p]
		stats[p+"_limit"] = rl.limits[p]
	}
	return stats
}

// checkReset must be called with mu held.
func (rl *AIRateLimiter) checkReset() {
	if rl.now().After(rl.resetTime) {
		logger.Info("Resetting AI rate limiter counters", "cache_hits", rl.cacheHits, "tokens_saved", rl.tokensSaved)
		rl.counts = make(map[string]int)
		rl.cacheHits = 0
		rl.cacheMisses = 0
		rl.tokensSaved = 0
		rl.resetTime = rl.now().Add(rl.window)
	}
}
