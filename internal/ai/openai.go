package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/deusflow/docassist/internal/logger"
	"github.com/deusflow/docassist/internal/ratelimit"
	"github.com/deusflow/docassist/internal/retry"
)

type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	SummaryModel string
	SearchModel  string
	VisionModel  string
	HTTPClient   *http.Client
}

// OpenAI talks to the chat completions API.
type OpenAI struct {
	client       *openai.Client
	guard        *Guard
	summaryModel string
	searchModel  string
	visionModel  string
}

func NewOpenAI(cfg OpenAIConfig, guard *Guard) *OpenAI {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}

	o := &OpenAI{
		client:       openai.NewClientWithConfig(clientConfig),
		guard:        guard,
		summaryModel: cfg.SummaryModel,
		searchModel:  cfg.SearchModel,
		visionModel:  cfg.VisionModel,
	}
	if o.summaryModel == "" {
		o.summaryModel = openai.GPT3Dot5Turbo
	}
	if o.searchModel == "" {
		o.searchModel = openai.GPT4TurboPreview
	}
	if o.visionModel == "" {
		o.visionModel = openai.GPT4o
	}
	return o
}

func (o *OpenAI) Name() string { return ratelimit.OpenAI }

// Summarize condenses text according to opts.
func (o *OpenAI) Summarize(ctx context.Context, text string, opts SummaryOptions) (string, error) {
	prompt := SummaryPrompt(opts)
	logger.Debug("requesting summary", "provider", "openai", "model", o.summaryModel, "prompt", prompt)

	content, err := o.complete(ctx, openai.ChatCompletionRequest{
		Model: o.summaryModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
			{Role: openai.ChatMessageRoleUser, Content: PrepareInput(text)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai summary: %w", err)
	}
	if content == "" {
		return NoSummary, nil
	}
	return content, nil
}

// Answer runs the MiniPlex prompt: a cited answer followed by its sources
// and three related questions.
func (o *OpenAI) Answer(ctx context.Context, query string) (string, error) {
	content, err := o.complete(ctx, openai.ChatCompletionRequest{
		Model: o.searchModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: miniplexSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		Temperature: 0.2,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", fmt.Errorf("openai answer: %w", err)
	}
	if content == "" {
		return "", errors.New("openai answer: empty response")
	}
	return content, nil
}

// ExtractText sends an image inline as a data URL to the vision model and
// returns the transcription.
func (o *OpenAI) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)

	content, err := o.complete(ctx, openai.ChatCompletionRequest{
		Model: o.visionModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: ocrSystemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL, Detail: openai.ImageURLDetailHigh},
					},
					{Type: openai.ChatMessagePartTypeText, Text: ocrUserPrompt},
				},
			},
		},
		MaxTokens: 4000,
	})
	if err != nil {
		return "", fmt.Errorf("openai ocr: %w", err)
	}
	if content == "" {
		return noText, nil
	}
	return content, nil
}

func (o *OpenAI) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	var content string
	err := o.guard.Do(ctx, ratelimit.OpenAI, func() error {
		resp, err := o.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return classifyOpenAIError(err)
		}
		if len(resp.Choices) == 0 {
			content = ""
			return nil
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	return content, err
}

// classifyOpenAIError marks client errors other than rate limiting as
// permanent so they are not retried.
func classifyOpenAIError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout {
		return retry.Permanent(err)
	}
	return err
}
