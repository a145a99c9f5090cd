// Package storage persists assistant results in a SQL database. PostgreSQL
// is used when a connection URL is configured, SQLite otherwise.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/deusflow/docassist/internal/domain"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Store is the persistence surface used by the assistant.
type Store interface {
	SaveMessage(ctx context.Context, msg *domain.Message) error
	SaveSearchResult(ctx context.Context, rec *domain.SearchRecord) error
	SaveMiniplexResult(ctx context.Context, rec *domain.SearchRecord) error
	RecentMessages(ctx context.Context, limit int) ([]domain.Message, error)

	// Summary cache survives restarts, unlike the in-memory cache.
	GetCachedSummary(ctx context.Context, contentHash string) (SummaryCacheItem, error)
	SetCachedSummary(ctx context.Context, item SummaryCacheItem) error
	Cleanup(ctx context.Context, maxAge time.Duration) (int64, error)

	Stats(ctx context.Context) (map[string]int64, error)
	Close() error
}

// SummaryCacheItem is a stored summary keyed by a hash of its input.
type SummaryCacheItem struct {
	ContentHash string
	Summary     string
	Provider    string
	CreatedAt   time.Time
	LastUsedAt  time.Time
	UseCount    int
}

// Options selects and tunes the backend.
type Options struct {
	DatabaseURL string
	SQLitePath  string
}

// Open connects to Postgres when DatabaseURL is set and falls back to a
// SQLite file otherwise.
func Open(ctx context.Context, opts Options) (Store, error) {
	if opts.DatabaseURL != "" {
		return NewPostgres(ctx, opts.DatabaseURL)
	}
	return NewSQLite(ctx, opts.SQLitePath)
}
