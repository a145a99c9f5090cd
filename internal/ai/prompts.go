// Package ai wraps the hosted models the assistant delegates to: OpenAI chat
// completions (summaries, MiniPlex answers, OCR), Gemini as a summary
// fallback and Perplexity for cited web search.
package ai

import (
	"strings"

	"github.com/deusflow/docassist/internal/domain"
	"github.com/deusflow/docassist/internal/format"
)

// maxInputRunes bounds the document text sent for summarization.
const maxInputRunes = 48000

const miniplexSystemPrompt = `You are a helpful AI search assistant. When responding:
1. Always cite sources using [number] format
2. Keep responses clear and concise
3. Use search results to provide accurate, current information
4. List all citations at the end with full URLs
5. Suggest 3 related questions that might interest the user`

const perplexitySystemPrompt = "You are a helpful assistant that provides accurate information with citations. " +
	"Always be concise and clear. Use [number] format to cite sources, and make sure to list them at the end of your response."

const (
	ocrSystemPrompt = "You are a helpful assistant that extracts text from documents. " +
		"Extract and return all the text you can see in the image/document."
	ocrUserPrompt = "Please extract all the text from this document and format it nicely as HTML."
)

const (
	NoSummary = "Unable to generate summary"
	noText    = "No text could be extracted"
)

// SummaryOptions selects the shape and length of a summary.
type SummaryOptions struct {
	Type domain.SummaryType
	Size domain.SummarySize
}

// SummaryPrompt builds the system instruction for a summary request.
func SummaryPrompt(opts SummaryOptions) string {
	var b strings.Builder
	if opts.Type == domain.SummaryBullets {
		b.WriteString("Create a bullet-point summary")
	} else {
		b.WriteString("Write a comprehensive summary")
	}
	b.WriteString(" of the following text. ")

	switch opts.Size {
	case domain.SizeQuarter:
		b.WriteString("Keep it very concise.")
	case domain.SizeHalf:
		b.WriteString("Provide a moderate level of detail.")
	case domain.SizeFull:
		b.WriteString("Include all important details.")
	}
	return b.String()
}

// PrepareInput normalizes line endings and caps the text length.
func PrepareInput(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r", ""))
	if cut, truncated := format.Truncate(text, maxInputRunes); truncated {
		return cut + "\n[TRUNCATED]"
	}
	return text
}
