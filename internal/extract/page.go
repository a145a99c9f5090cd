// Package extract gets plain text out of the documents users submit:
// web pages, RSS/Atom feeds and PDF files.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/docassist/internal/cache"
	"github.com/deusflow/docassist/internal/logger"
)

const (
	maxBodyBytes     = 5 << 20
	defaultUserAgent = "docassist/1.0 (+https://github.com/deusflow/docassist)"
)

var (
	ErrInvalidURL = errors.New("URL is required and must be an absolute http(s) address")
	ErrNoContent  = errors.New("no readable text found")
)

// Page is the readable content of a URL.
type Page struct {
	URL   string
	Title string
	Text  string
}

// Fetcher downloads pages and feeds and reduces them to text.
type Fetcher struct {
	client    *http.Client
	cache     *cache.Cache
	userAgent string
}

// NewFetcher builds a fetcher. A nil cache disables caching.
func NewFetcher(timeout time.Duration, c *cache.Cache) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		cache:     c,
		userAgent: defaultUserAgent,
	}
}

// ValidateURL checks that raw is an absolute http(s) URL.
func ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}
	return u, nil
}

// FetchText returns the cleaned text of the page or feed at rawURL.
func (f *Fetcher) FetchText(ctx context.Context, rawURL string) (string, error) {
	page, err := f.FetchPage(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return page.Text, nil
}

// FetchPage downloads rawURL and extracts its text. Feeds are detected by
// content type or by their root element.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string) (*Page, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	key := "page:" + u.String()
	if f.cache != nil {
		if v, ok := f.cache.Get(key); ok {
			if p, ok := v.(*Page); ok {
				logger.Debug("page cache hit", "url", u.String())
				return p, nil
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/rss+xml,application/atom+xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: HTTP status %d", u, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}

	var page *Page
	if isFeed(resp.Header.Get("Content-Type"), body) {
		page, err = parseFeed(body)
	} else {
		page, err = parseHTML(body)
	}
	if err != nil {
		return nil, err
	}
	page.URL = u.String()
	if page.Text == "" {
		return nil, ErrNoContent
	}

	if f.cache != nil {
		f.cache.Set(key, page)
	}
	return page, nil
}

func parseHTML(body []byte) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	doc.Find("script, style, noscript, template").Remove()

	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}

	return &Page{
		Title: extractTitle(doc),
		Text:  collapseSpace(text),
	}, nil
}

// extractTitle gets the page title
func extractTitle(doc *goquery.Document) string {
	selectors := []string{
		"title",
		"h1",
		`meta[property="og:title"]`,
	}

	for _, selector := range selectors {
		sel := doc.Find(selector).First()
		title := strings.TrimSpace(sel.Text())
		if title == "" {
			title = strings.TrimSpace(sel.AttrOr("content", ""))
		}
		if title != "" {
			return collapseSpace(title)
		}
	}

	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
