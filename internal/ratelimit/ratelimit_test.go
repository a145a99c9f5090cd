package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUse_EnforcesLimit(t *testing.T) {
	rl := NewAIRateLimiter(map[string]int{OpenAI: 2})

	require.NoError(t, rl.Use(OpenAI))
	require.NoError(t, rl.Use(OpenAI))
	assert.False(t, rl.CanUse(OpenAI))

	err := rl.Use(OpenAI)
	var limitErr *ErrLimitExceeded
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, OpenAI, limitErr.Provider)
	assert.Equal(t, 2, limitErr.Limit)
}

func TestUse_UnlimitedProvider(t *testing.T) {
	rl := NewAIRateLimiter(map[string]int{Perplexity: 0})
	for i := 0; i < 50; i++ {
		require.NoError(t, rl.Use(Perplexity))
	}
	assert.True(t, rl.CanUse(Gemini))
}

func TestReset_AfterWindow(t *testing.T) {
	rl := NewAIRateLimiter(map[string]int{Gemini: 1})
	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.resetTime = now.Add(time.Hour)

	require.NoError(t, rl.Use(Gemini))
	require.Error(t, rl.Use(Gemini))

	now = now.Add(2 * time.Hour)
	assert.NoError(t, rl.Use(Gemini))
}

func TestGetStats(t *testing.T) {
	rl := NewAIRateLimiter(map[string]int{OpenAI: 10})
	require.NoError(t, rl.Use(OpenAI))
	rl.RecordCacheHit(500)

	stats := rl.GetStats()
	assert.Equal(t, 1, stats["openai_used"])
	assert.Equal(t, 10, stats["openai_limit"])
	assert.Equal(t, 1, stats["cache_hits"])
	assert.Equal(t, 500, stats["tokens_saved"])
	assert.InDelta(t, 50.0, stats["cache_hit_rate"], 0.001)
}
