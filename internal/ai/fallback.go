package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/deusflow/docassist/internal/logger"
	"github.com/deusflow/docassist/internal/ratelimit"
)

// Summarizer produces a summary of document text.
type Summarizer interface {
	Name() string
	Summarize(ctx context.Context, text string, opts SummaryOptions) (string, error)
}

// FallbackSummarizer tries each provider in order and returns the first
// usable summary.
type FallbackSummarizer struct {
	providers []Summarizer
}

func NewFallbackSummarizer(providers ...Summarizer) *FallbackSummarizer {
	var list []Summarizer
	for _, p := range providers {
		if p != nil {
			list = append(list, p)
		}
	}
	return &FallbackSummarizer{providers: list}
}

func (f *FallbackSummarizer) Name() string {
	names := make([]string, 0, len(f.providers))
	for _, p := range f.providers {
		names = append(names, p.Name())
	}
	return strings.Join(names, ",")
}

func (f *FallbackSummarizer) Summarize(ctx context.Context, text string, opts SummaryOptions) (string, error) {
	if len(f.providers) == 0 {
		return "", errors.New("no summary provider configured")
	}

	var errs []error
	answered := false
	for i, p := range f.providers {
		summary, err := p.Summarize(ctx, text, opts)
		if err == nil && strings.TrimSpace(summary) != "" && summary != NoSummary {
			if i > 0 {
				logger.Info("summary served by fallback provider", "provider", p.Name())
			}
			return summary, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if err == nil {
			answered = true
			logger.Warn("summary provider returned no summary", "provider", p.Name())
			continue
		}
		logger.Warn("summary provider failed", "provider", p.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}

	// A provider that answered without a summary is not an outage.
	if answered {
		return NoSummary, nil
	}

	joined := errors.Join(errs...)
	// Surface quota exhaustion only when every provider ran out.
	if allQuota(errs) {
		var limitErr *ratelimit.ErrLimitExceeded
		errors.As(joined, &limitErr)
		return "", fmt.Errorf("all summary providers failed: %w", limitErr)
	}
	return "", fmt.Errorf("all summary providers failed: %w", joined)
}

func allQuota(errs []error) bool {
	for _, err := range errs {
		var limitErr *ratelimit.ErrLimitExceeded
		if !errors.As(err, &limitErr) {
			return false
		}
	}
	return len(errs) > 0
}
