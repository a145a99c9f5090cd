package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/deusflow/docassist/internal/ai"
	"github.com/deusflow/docassist/internal/ratelimit"
)

const DefaultModel = "gemini-1.5-flash"

// Client summarizes documents with Gemini. It backs up OpenAI when the
// primary provider fails or runs out of quota.
type Client struct {
	client *genai.Client
	model  string
	guard  *ai.Guard
}

func NewClient(ctx context.Context, apiKey, model string, guard *ai.Guard) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: client, model: model, guard: guard}, nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

func (c *Client) Name() string { return ratelimit.Gemini }

func (c *Client) Summarize(ctx context.Context, text string, opts ai.SummaryOptions) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(ai.SummaryPrompt(opts))}}
	model.SetTemperature(0.3)

	var summary string
	err := c.guard.Do(ctx, ratelimit.Gemini, func() error {
		resp, err := model.GenerateContent(ctx, genai.Text(ai.PrepareInput(text)))
		if err != nil {
			return fmt.Errorf("failed to generate content: %w", err)
		}
		summary = responseText(resp)
		if summary == "" {
			return errors.New("no response from Gemini")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return summary, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.TrimSpace(b.String())
}
