package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/deusflow/docassist/internal/domain"
	"github.com/deusflow/docassist/internal/logger"
	"github.com/deusflow/docassist/internal/ratelimit"
	"github.com/deusflow/docassist/internal/retry"
)

const (
	DefaultPerplexityURL   = "https://api.perplexity.ai"
	DefaultPerplexityModel = "llama-3.1-sonar-small-128k-online"
)

// SearchResult is an answer with the references it cites.
type SearchResult struct {
	Content          string
	Citations        []domain.Citation
	RelatedQuestions []string
}

type PerplexityConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Perplexity calls the chat completions endpoint of the Perplexity API,
// which answers from live web results.
type Perplexity struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	guard   *Guard
}

func NewPerplexity(cfg PerplexityConfig, guard *Guard) *Perplexity {
	p := &Perplexity{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		http:    cfg.HTTPClient,
		guard:   guard,
	}
	if p.baseURL == "" {
		p.baseURL = DefaultPerplexityURL
	}
	if p.model == "" {
		p.model = DefaultPerplexityModel
	}
	if p.http == nil {
		p.http = &http.Client{Timeout: 60 * time.Second}
	}
	return p
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityRequest struct {
	Model               string              `json:"model"`
	Messages            []perplexityMessage `json:"messages"`
	Temperature         float64             `json:"temperature"`
	TopP                float64             `json:"top_p"`
	MaxTokens           int                 `json:"max_tokens"`
	ReturnImages        bool                `json:"return_images"`
	ReturnSearchResults bool                `json:"return_search_results"`
	ReturnReferences    bool                `json:"return_references"`
	ReturnRelated       bool                `json:"return_related_questions"`
	SearchDomainFilter  []string            `json:"search_domain_filter,omitempty"`
	SearchRecencyFilter string              `json:"search_recency_filter"`
	FrequencyPenalty    float64             `json:"frequency_penalty"`
	PresencePenalty     float64             `json:"presence_penalty"`
}

type perplexityReference struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	URL   string `json:"url"`
}

type perplexityResponse struct {
	Choices []struct {
		Message perplexityMessage `json:"message"`
	} `json:"choices"`
	SearchResults    []perplexityReference `json:"search_results"`
	References       []perplexityReference `json:"references"`
	Citations        []string              `json:"citations"`
	RelatedQuestions []string              `json:"related_questions"`
	Error            *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Search answers query restricted to domains (all of the web when empty).
func (p *Perplexity) Search(ctx context.Context, query string, domains []string) (*SearchResult, error) {
	payload := perplexityRequest{
		Model: p.model,
		Messages: []perplexityMessage{
			{Role: "system", Content: perplexitySystemPrompt},
			{Role: "user", Content: query},
		},
		Temperature:         0.2,
		TopP:                0.9,
		MaxTokens:           1000,
		ReturnSearchResults: true,
		ReturnReferences:    true,
		ReturnRelated:       true,
		SearchDomainFilter:  domains,
		SearchRecencyFilter: "month",
		FrequencyPenalty:    1,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error make JSON: %w", err)
	}

	var result *SearchResult
	err = p.guard.Do(ctx, ratelimit.Perplexity, func() error {
		res, err := p.searchOnce(ctx, body)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("perplexity search: %w", err)
	}
	return result, nil
}

func (p *Perplexity) searchOnce(ctx context.Context, body []byte) (*SearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error HTTP request: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logger.Warn("failed to close response body", "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	var parsed perplexityResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		err := fmt.Errorf("perplexity API error: status %d: %s", resp.StatusCode, msg)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("error parsing response: %w", decodeErr)
	}
	if len(parsed.Choices) == 0 {
		return nil, errors.New("no response from Perplexity")
	}

	return &SearchResult{
		Content:          strings.TrimSpace(parsed.Choices[0].Message.Content),
		Citations:        parsed.citations(),
		RelatedQuestions: parsed.RelatedQuestions,
	}, nil
}

// citations prefers search_results, then references, then the bare
// citations URL list. Entries keep their position so that marker [n] always
// maps to reference n, even when a reference has no URL.
func (r *perplexityResponse) citations() []domain.Citation {
	refs := r.SearchResults
	if len(refs) == 0 {
		refs = r.References
	}

	out := make([]domain.Citation, 0, len(refs))
	for i, ref := range refs {
		title := strings.TrimSpace(ref.Title)
		if title == "" {
			title = strings.TrimSpace(ref.Text)
		}
		if title == "" {
			title = fmt.Sprintf("Reference %d", i+1)
		}
		out = append(out, domain.Citation{Title: title, URL: strings.TrimSpace(ref.URL)})
	}
	if len(out) > 0 {
		return out
	}

	for i, u := range r.Citations {
		out = append(out, domain.Citation{Title: fmt.Sprintf("Reference %d", i+1), URL: strings.TrimSpace(u)})
	}
	return out
}
