package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/docassist/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:          "0",
		OpenAIAPIKey:  "test-key",
		SQLitePath:    ":memory:",
		MaxUploadMB:   1,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
		CacheTTL:      time.Minute,
	}
}

func TestNew_WiresServer(t *testing.T) {
	a, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Assistant)
	require.NotNil(t, a.Server)

	w := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	stats, err := a.Store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats["messages"])
}

func TestNew_SearchWithoutProviderIsUnavailable(t *testing.T) {
	a, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	defer a.Close()

	req := httptest.NewRequest(http.MethodPost, "/functions/v1/process-search", strings.NewReader(`{"query":"q"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
