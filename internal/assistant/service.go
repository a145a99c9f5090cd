// Package assistant runs the four assistant tasks: it resolves the input,
// calls the upstream model, post-processes the answer into HTML and
// persists the result.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deusflow/docassist/internal/ai"
	"github.com/deusflow/docassist/internal/cache"
	"github.com/deusflow/docassist/internal/config"
	"github.com/deusflow/docassist/internal/domain"
	"github.com/deusflow/docassist/internal/extract"
	"github.com/deusflow/docassist/internal/format"
	"github.com/deusflow/docassist/internal/logger"
	"github.com/deusflow/docassist/internal/metrics"
	"github.com/deusflow/docassist/internal/ratelimit"
	"github.com/deusflow/docassist/internal/storage"
)

type Summarizer interface {
	Summarize(ctx context.Context, text string, opts ai.SummaryOptions) (string, error)
}

type WebSearcher interface {
	Search(ctx context.Context, query string, domains []string) (*ai.SearchResult, error)
}

type AnswerEngine interface {
	Answer(ctx context.Context, query string) (string, error)
}

type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
}

type PageFetcher interface {
	FetchText(ctx context.Context, rawURL string) (string, error)
}

// Deps wires a Service. Cache, Limiter and Metrics are optional.
type Deps struct {
	Summarizer Summarizer
	Searcher   WebSearcher
	Answers    AnswerEngine
	OCR        TextExtractor
	Pages      PageFetcher
	Store      storage.Store
	Sources    *config.Sources
	Cache      *cache.Cache
	Limiter    *ratelimit.AIRateLimiter
	Metrics    *metrics.Metrics
	MaxUpload  int64
}

type Service struct {
	summarizer Summarizer
	searcher   WebSearcher
	answers    AnswerEngine
	ocr        TextExtractor
	pages      PageFetcher
	store      storage.Store
	sources    *config.Sources
	cache      *cache.Cache
	limiter    *ratelimit.AIRateLimiter
	metrics    *metrics.Metrics
	maxUpload  int64
}

func New(d Deps) *Service {
	s := &Service{
		summarizer: d.Summarizer,
		searcher:   d.Searcher,
		answers:    d.Answers,
		ocr:        d.OCR,
		pages:      d.Pages,
		store:      d.Store,
		sources:    d.Sources,
		cache:      d.Cache,
		limiter:    d.Limiter,
		metrics:    d.Metrics,
		maxUpload:  d.MaxUpload,
	}
	if s.sources == nil {
		s.sources = config.DefaultSources()
	}
	if s.metrics == nil {
		s.metrics = metrics.Global
	}
	return s
}

// Result is a finished task: the persisted assistant message (its Content
// is the rendered HTML) and, for the search tasks, the sources and
// follow-up questions.
type Result struct {
	Message          domain.Message
	Citations        []domain.Citation
	RelatedQuestions []string
}

// SummaryRequest carries the summary form; File is set for file documents.
type SummaryRequest struct {
	Form domain.FormData
	File *Upload
}

// SearchRequest carries the query and the web source selection.
type SearchRequest struct {
	Query      string
	WebSource  domain.WebSource
	CustomWebs string
}

func (s *Service) Summarize(ctx context.Context, req SummaryRequest) (res *Result, err error) {
	defer s.track(domain.StepSummary, time.Now(), &err)

	text, err := s.documentText(ctx, req)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, invalid("no text to summarize")
	}

	opts := ai.SummaryOptions{Type: req.Form.SummaryType, Size: req.Form.SummarySize}
	if opts.Type == "" {
		opts.Type = domain.SummaryGeneral
	}
	if opts.Size == "" {
		opts.Size = domain.SizeQuarter
	}

	summary, err := s.summary(ctx, text, opts)
	if err != nil {
		return nil, classify(err)
	}

	var content string
	if opts.Type == domain.SummaryBullets {
		content = format.Sanitize(format.BulletList(format.StripCodeFence(summary)))
	} else if content, err = format.RenderMarkdown(summary); err != nil {
		return nil, err
	}

	msg := domain.Message{
		Type:         domain.MessageAssistant,
		Task:         domain.StepSummary,
		Content:      content,
		DocumentType: req.Form.DocumentType,
		SummaryType:  opts.Type,
		SummarySize:  opts.Size,
	}
	if err := s.saveMessage(ctx, &msg); err != nil {
		return nil, err
	}
	return &Result{Message: msg}, nil
}

// summary consults the in-memory cache, then the persistent one, before
// asking the model.
func (s *Service) summary(ctx context.Context, text string, opts ai.SummaryOptions) (string, error) {
	key := cache.GenerateKey("summary", text, string(opts.Type), string(opts.Size))

	if cached, ok := s.cacheGet(key); ok {
		s.cacheHit(domain.StepSummary, text)
		return cached, nil
	}
	if s.store != nil {
		item, err := s.store.GetCachedSummary(ctx, key)
		switch {
		case err == nil:
			s.cacheHit(domain.StepSummary, text)
			s.cacheSet(key, item.Summary)
			return item.Summary, nil
		case !errors.Is(err, storage.ErrNotFound):
			logger.Warn("summary cache lookup failed", "error", err)
		}
	}

	summary, err := s.summarizer.Summarize(ctx, text, opts)
	if err != nil {
		return "", err
	}
	if summary == ai.NoSummary {
		return summary, nil
	}

	s.cacheSet(key, summary)
	if s.store != nil {
		provider := ""
		if named, ok := s.summarizer.(interface{ Name() string }); ok {
			provider = named.Name()
		}
		if err := s.store.SetCachedSummary(ctx, storage.SummaryCacheItem{ContentHash: key, Summary: summary, Provider: provider}); err != nil {
			logger.Warn("failed to store summary in cache", "error", err)
		}
	}
	return summary, nil
}

func (s *Service) documentText(ctx context.Context, req SummaryRequest) (string, error) {
	switch req.Form.DocumentType {
	case domain.DocumentPaste, "":
		return req.Form.PastedText, nil
	case domain.DocumentURL:
		if strings.TrimSpace(req.Form.URL) == "" {
			return "", invalid("no URL provided")
		}
		text, err := s.pages.FetchText(ctx, req.Form.URL)
		if err != nil {
			return "", classify(err)
		}
		return text, nil
	case domain.DocumentFile:
		if err := s.checkUpload(req.File); err != nil {
			return "", err
		}
		text, err := uploadText(req.File)
		if errors.Is(err, extract.ErrNoContent) {
			return "", invalid("document has no extractable text")
		}
		return text, err
	}
	return "", invalid("unknown document type %q", req.Form.DocumentType)
}

// Search answers the query from the web, optionally restricted to the
// domains of the selected source.
func (s *Service) Search(ctx context.Context, req SearchRequest) (res *Result, err error) {
	defer s.track(domain.StepSearch, time.Now(), &err)

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, invalid("search query is required")
	}
	if s.searcher == nil {
		return nil, fmt.Errorf("%w: web search", ErrNotConfigured)
	}
	domains := s.sources.Domains(req.WebSource, req.CustomWebs)

	key := cache.GenerateKey("search", query, strings.Join(domains, ","))
	var answer *ai.SearchResult
	if v, ok := s.cacheLookup(key); ok {
		answer = v.(*ai.SearchResult)
		s.cacheHit(domain.StepSearch, query)
	} else {
		if answer, err = s.searcher.Search(ctx, query, domains); err != nil {
			return nil, classify(err)
		}
		s.cacheStore(key, answer)
	}

	content, err := format.RenderAnswer(answer.Content, answer.Citations)
	if err != nil {
		return nil, err
	}

	rec := domain.SearchRecord{
		Query:            query,
		Result:           content,
		Citations:        answer.Citations,
		WebSource:        req.WebSource,
		CustomWebs:       req.CustomWebs,
		RelatedQuestions: answer.RelatedQuestions,
	}
	if err := s.store.SaveSearchResult(ctx, &rec); err != nil {
		s.metrics.IncrementPersistenceFailures()
		logger.Error("failed to persist search result", "error", err)
	}

	msg := domain.Message{
		Type:        domain.MessageAssistant,
		Task:        domain.StepSearch,
		Content:     content,
		WebSource:   req.WebSource,
		SearchQuery: query,
		CustomWebs:  req.CustomWebs,
	}
	if err := s.saveMessage(ctx, &msg); err != nil {
		return nil, err
	}
	return &Result{Message: msg, Citations: answer.Citations, RelatedQuestions: answer.RelatedQuestions}, nil
}

// AISearch is the MiniPlex task: a completion prompted to cite its sources
// inline and suggest follow-up questions, parsed back out of the text.
func (s *Service) AISearch(ctx context.Context, req SearchRequest) (res *Result, err error) {
	defer s.track(domain.StepMiniplex, time.Now(), &err)

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, invalid("search query is required")
	}
	domains := s.sources.Domains(req.WebSource, req.CustomWebs)
	logger.Debug("miniplex search", "query", query, "domains", domains)

	key := cache.GenerateKey("miniplex", query)
	raw, ok := s.cacheGet(key)
	if ok {
		s.cacheHit(domain.StepMiniplex, query)
	} else {
		if raw, err = s.answers.Answer(ctx, query); err != nil {
			return nil, classify(err)
		}
		s.cacheSet(key, raw)
	}

	citations := format.ExtractCitations(raw)
	related := format.ExtractRelatedQuestions(raw, 3)

	content, err := format.RenderAnswer(raw, citations)
	if err != nil {
		return nil, err
	}

	rec := domain.SearchRecord{
		Query:            query,
		Result:           content,
		Citations:        citations,
		WebSource:        req.WebSource,
		CustomWebs:       req.CustomWebs,
		RelatedQuestions: related,
	}
	if err := s.store.SaveMiniplexResult(ctx, &rec); err != nil {
		s.metrics.IncrementPersistenceFailures()
		logger.Error("failed to persist miniplex result", "error", err)
	}

	msg := domain.Message{
		Type:        domain.MessageAssistant,
		Task:        domain.StepMiniplex,
		Content:     content,
		WebSource:   req.WebSource,
		SearchQuery: query,
		CustomWebs:  req.CustomWebs,
	}
	if err := s.saveMessage(ctx, &msg); err != nil {
		return nil, err
	}
	return &Result{Message: msg, Citations: citations, RelatedQuestions: related}, nil
}

// OCR transcribes an uploaded image with the vision model. PDFs are read
// from their text layer instead.
func (s *Service) OCR(ctx context.Context, upload *Upload) (res *Result, err error) {
	defer s.track(domain.StepOCR, time.Now(), &err)

	if err := s.checkUpload(upload); err != nil {
		return nil, err
	}

	mt := upload.MediaType()
	var content string
	switch {
	case ocrImageTypes[mt]:
		key := cache.GenerateKey("ocr", mt, string(upload.Data))
		text, ok := s.cacheGet(key)
		if ok {
			s.cacheHit(domain.StepOCR, "")
		} else {
			if text, err = s.ocr.ExtractText(ctx, upload.Data, mt); err != nil {
				return nil, classify(err)
			}
			s.cacheSet(key, text)
		}
		content = format.Sanitize(format.StripCodeFence(text))
	case mt == mimePDF:
		text, err := extract.PDFText(upload.Data)
		if errors.Is(err, extract.ErrNoContent) {
			return nil, invalid("PDF has no text layer")
		}
		if err != nil {
			return nil, err
		}
		content = format.Paragraphs(text)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mt)
	}

	msg := domain.Message{
		Type:         domain.MessageAssistant,
		Task:         domain.StepOCR,
		Content:      content,
		DocumentType: domain.DocumentFile,
	}
	if err := s.saveMessage(ctx, &msg); err != nil {
		return nil, err
	}
	return &Result{Message: msg}, nil
}

// ExtractURL returns the readable text of a web page or feed.
func (s *Service) ExtractURL(ctx context.Context, rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", invalid("URL is required")
	}
	text, err := s.pages.FetchText(ctx, rawURL)
	if err != nil {
		if errors.Is(err, extract.ErrNoContent) {
			return "", invalid("page has no readable text")
		}
		return "", classify(err)
	}
	return text, nil
}

// History returns the most recent assistant messages, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]domain.Message, error) {
	return s.store.RecentMessages(ctx, limit)
}

func (s *Service) saveMessage(ctx context.Context, msg *domain.Message) error {
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		s.metrics.IncrementPersistenceFailures()
		return fmt.Errorf("persist message: %w", err)
	}
	s.metrics.IncrementMessagesPersisted()
	return nil
}

func (s *Service) track(task domain.Step, start time.Time, errp *error) {
	s.metrics.IncrementRequests(string(task))
	if err := *errp; err != nil {
		if IsClientError(err) {
			logger.Debug("task rejected", "task", task, "error", err)
			return
		}
		if errors.Is(err, ErrNotConfigured) {
			logger.Warn("task unavailable", "task", task, "error", err)
			return
		}
		s.metrics.RecordFailure(string(task), err)
		logger.Warn("task failed", "task", task, "error", err)
		return
	}
	s.metrics.RecordSuccess(time.Since(start))
	logger.Info("task completed", "task", task, "duration", time.Since(start))
}

func (s *Service) cacheLookup(key string) (any, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(key)
}

func (s *Service) cacheStore(key string, v any) {
	if s.cache != nil {
		s.cache.Set(key, v)
	}
}

func (s *Service) cacheGet(key string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	return s.cache.GetString(key)
}

func (s *Service) cacheSet(key, v string) {
	s.cacheStore(key, v)
}

// cacheHit records a request the cache answered. input sizes the token
// estimate at roughly four characters per token.
func (s *Service) cacheHit(task domain.Step, input string) {
	s.metrics.IncrementCacheHits(string(task))
	if s.limiter != nil {
		s.limiter.RecordCacheHit(len(input) / 4)
	}
}
