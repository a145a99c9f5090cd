package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/docassist/internal/domain"
	"github.com/deusflow/docassist/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	task TEXT NOT NULL,
	content TEXT NOT NULL,
	document_type TEXT,
	summary_type TEXT,
	summary_size TEXT,
	web_source TEXT,
	search_query TEXT,
	custom_webs TEXT,
	created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);

CREATE TABLE IF NOT EXISTS search_results (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	result TEXT NOT NULL,
	citations TEXT NOT NULL,
	related_questions TEXT NOT NULL,
	web_source TEXT,
	custom_webs TEXT,
	created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS miniplex_results (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	result TEXT NOT NULL,
	citations TEXT NOT NULL,
	related_questions TEXT NOT NULL,
	web_source TEXT,
	custom_webs TEXT,
	created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS summary_cache (
	content_hash TEXT PRIMARY KEY,
	summary TEXT NOT NULL,
	provider TEXT,
	created_at BIGINT NOT NULL,
	last_used_at BIGINT NOT NULL,
	use_count INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_summary_cache_last_used_at ON summary_cache(last_used_at);
`

// sqlStore implements Store on database/sql. Queries are written with ?
// placeholders and rebound for dialects that number them.
type sqlStore struct {
	db       *sql.DB
	name     string
	numbered bool
	now      func() time.Time
}

func newSQLStore(ctx context.Context, db *sql.DB, name string, numbered bool) (*sqlStore, error) {
	s := &sqlStore{db: db, name: name, numbered: numbered, now: time.Now}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *sqlStore) initSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	logger.Debug("database schema initialized", "backend", s.name)
	return nil
}

func (s *sqlStore) rebind(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *sqlStore) SaveMessage(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}

	_, err := s.exec(ctx, `
		INSERT INTO messages (id, type, task, content, document_type, summary_type, summary_size, web_source, search_query, custom_webs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, string(msg.Type), string(msg.Task), msg.Content,
		string(msg.DocumentType), string(msg.SummaryType), string(msg.SummarySize),
		string(msg.WebSource), msg.SearchQuery, msg.CustomWebs,
		msg.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (s *sqlStore) SaveSearchResult(ctx context.Context, rec *domain.SearchRecord) error {
	if err := s.saveRecord(ctx, "search_results", rec); err != nil {
		return fmt.Errorf("failed to save search result: %w", err)
	}
	return nil
}

func (s *sqlStore) SaveMiniplexResult(ctx context.Context, rec *domain.SearchRecord) error {
	if err := s.saveRecord(ctx, "miniplex_results", rec); err != nil {
		return fmt.Errorf("failed to save miniplex result: %w", err)
	}
	return nil
}

func (s *sqlStore) saveRecord(ctx context.Context, table string, rec *domain.SearchRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	citations := rec.Citations
	if citations == nil {
		citations = []domain.Citation{}
	}
	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return err
	}
	related := rec.RelatedQuestions
	if related == nil {
		related = []string{}
	}
	relatedJSON, err := json.Marshal(related)
	if err != nil {
		return err
	}

	_, err = s.exec(ctx, `
		INSERT INTO `+table+` (id, query, result, citations, related_questions, web_source, custom_webs, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Query, rec.Result, string(citationsJSON), string(relatedJSON),
		string(rec.WebSource), rec.CustomWebs, rec.CreatedAt.UnixMilli(),
	)
	return err
}

func (s *sqlStore) RecentMessages(ctx context.Context, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, type, task, content, document_type, summary_type, summary_size, web_source, search_query, custom_webs, created_at
		FROM messages
		ORDER BY created_at DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var (
			msg                               domain.Message
			typ, task                         string
			docType, sumType, sumSize, source sql.NullString
			query, custom                     sql.NullString
			createdAt                         int64
		)
		if err := rows.Scan(&msg.ID, &typ, &task, &msg.Content, &docType, &sumType, &sumSize, &source, &query, &custom, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Type = domain.MessageType(typ)
		msg.Task = domain.Step(task)
		msg.DocumentType = domain.DocumentType(docType.String)
		msg.SummaryType = domain.SummaryType(sumType.String)
		msg.SummarySize = domain.SummarySize(sumSize.String)
		msg.WebSource = domain.WebSource(source.String)
		msg.SearchQuery = query.String
		msg.CustomWebs = custom.String
		msg.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *sqlStore) GetCachedSummary(ctx context.Context, contentHash string) (SummaryCacheItem, error) {
	var (
		item                SummaryCacheItem
		provider            sql.NullString
		createdAt, lastUsed int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT content_hash, summary, provider, created_at, last_used_at, use_count
		FROM summary_cache
		WHERE content_hash = ?`), contentHash,
	).Scan(&item.ContentHash, &item.Summary, &provider, &createdAt, &lastUsed, &item.UseCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return item, ErrNotFound
		}
		return item, fmt.Errorf("failed to get summary from cache: %w", err)
	}
	item.Provider = provider.String
	item.CreatedAt = time.UnixMilli(createdAt)
	item.LastUsedAt = time.UnixMilli(lastUsed)

	if _, err := s.exec(ctx, `UPDATE summary_cache SET last_used_at = ?, use_count = use_count + 1 WHERE content_hash = ?`,
		s.now().UnixMilli(), contentHash); err != nil {
		logger.Warn("failed to touch summary cache entry", "error", err)
	}
	return item, nil
}

func (s *sqlStore) SetCachedSummary(ctx context.Context, item SummaryCacheItem) error {
	now := s.now().UnixMilli()
	_, err := s.exec(ctx, `
		INSERT INTO summary_cache (content_hash, summary, provider, created_at, last_used_at, use_count)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT (content_hash) DO UPDATE SET
			summary = EXCLUDED.summary,
			provider = EXCLUDED.provider,
			last_used_at = EXCLUDED.last_used_at,
			use_count = summary_cache.use_count + 1`,
		item.ContentHash, item.Summary, item.Provider, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to set summary cache: %w", err)
	}
	return nil
}

// Cleanup removes summary cache entries not used within maxAge.
func (s *sqlStore) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge).UnixMilli()
	result, err := s.exec(ctx, `DELETE FROM summary_cache WHERE last_used_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		logger.Info("cleaned up summary cache", "rows", rows)
	}
	return rows, nil
}

func (s *sqlStore) Stats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64)
	for _, table := range []string{"messages", "search_results", "miniplex_results", "summary_cache"} {
		var n int64
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table] = n
	}

	rows, err := s.db.QueryContext(ctx, `SELECT task, COUNT(*) FROM messages GROUP BY task`)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages by task: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var task string
		var count int64
		if err := rows.Scan(&task, &count); err != nil {
			return nil, fmt.Errorf("failed to scan task count: %w", err)
		}
		stats["task_"+task] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read task counts: %w", err)
	}
	return stats, nil
}

func (s *sqlStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
