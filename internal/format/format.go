// Package format turns raw model output into the HTML shown to the user:
// citation links, bullet lists, markdown rendering and sanitizing.
package format

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/deusflow/docassist/internal/domain"
)

var (
	markerRe   = regexp.MustCompile(`\[(\d+)\]`)
	citationRe = regexp.MustCompile(`\[(\d+)\].*?(https?://[^\s\]]+)`)
	questionRe = regexp.MustCompile(`^\d+\.\s+.+\?$`)
	numberRe   = regexp.MustCompile(`^\d+\.\s+`)
	bulletRe   = regexp.MustCompile(`^(?:[•-]\s*|\*\s+)`)
	fenceOpen  = regexp.MustCompile("^\\s*```(?:html|HTML)?[ \\t]*\\n?")
	fenceClose = regexp.MustCompile("\\n?\\s*```\\s*$")
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
)

var (
	ugc    = newUGCPolicy()
	strict = newStrictPolicy()
)

func newUGCPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("a", "span", "p", "li", "ul", "ol", "div")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)
	return p
}

func newStrictPolicy() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}

// CitationLink renders the anchor that replaces marker n.
func CitationLink(n int, c domain.Citation) string {
	return fmt.Sprintf(`<a href="%s" target="_blank" rel="noopener noreferrer" class="citation">[%d]<span class="citation-title">(%s)</span></a>`,
		html.EscapeString(c.URL), n, html.EscapeString(c.Title))
}

// InsertCitationLinks replaces every [n] marker that has a matching citation
// (1-based) with a link to its source. Unmatched markers and citations
// without a URL stay as text.
func InsertCitationLinks(content string, citations []domain.Citation) string {
	if len(citations) == 0 {
		return content
	}
	return markerRe.ReplaceAllStringFunc(content, func(m string) string {
		n, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil || n < 1 || n > len(citations) || citations[n-1].URL == "" {
			return m
		}
		return CitationLink(n, citations[n-1])
	})
}

// ExtractCitations finds "[n] ... https://url" pairs written on one line and
// returns the distinct URLs in first-seen order.
func ExtractCitations(content string) []domain.Citation {
	var out []domain.Citation
	seen := make(map[string]bool)
	for _, m := range citationRe.FindAllStringSubmatch(content, -1) {
		url := strings.TrimRight(m[2], ").,;")
		if seen[url] {
			continue
		}
		seen[url] = true
		out = append(out, domain.Citation{Title: "Source " + m[1], URL: url})
	}
	return out
}

// ExtractRelatedQuestions returns up to max numbered lines that end with a
// question mark, without their numbering.
func ExtractRelatedQuestions(content string, max int) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !questionRe.MatchString(line) {
			continue
		}
		out = append(out, numberRe.ReplaceAllString(line, ""))
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// BulletList wraps each line of a summary in <li>. Text that is already a
// list is returned unchanged.
func BulletList(summary string) string {
	summary = strings.TrimSpace(summary)
	if strings.HasPrefix(summary, "<ul>") {
		return summary
	}
	var b strings.Builder
	b.WriteString("<ul>")
	for _, line := range strings.Split(summary, "\n") {
		line = strings.TrimSpace(bulletRe.ReplaceAllString(strings.TrimSpace(line), ""))
		if line == "" {
			continue
		}
		b.WriteString("<li>")
		b.WriteString(html.EscapeString(line))
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}

// StripCodeFence removes the ```html fence vision models like to wrap
// their output in.
func StripCodeFence(text string) string {
	text = fenceOpen.ReplaceAllString(text, "")
	text = fenceClose.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Sanitize keeps the markup a rendered answer needs and drops everything
// else (scripts, handlers, styles).
func Sanitize(s string) string {
	return ugc.Sanitize(s)
}

// StripTags returns the visible text of an HTML fragment.
func StripTags(s string) string {
	s = html.UnescapeString(strict.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

// RenderMarkdown converts model markdown to sanitized HTML. Inline HTML
// such as citation anchors is preserved.
func RenderMarkdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return strings.TrimSpace(Sanitize(buf.String())), nil
}

// RenderAnswer renders a cited model answer and links its [n] markers.
// Markers are escaped for the markdown pass so "[n]: url" source lines stay
// visible instead of becoming link reference definitions.
func RenderAnswer(text string, citations []domain.Citation) (string, error) {
	rendered, err := RenderMarkdown(markerRe.ReplaceAllString(text, `\[${1}\]`))
	if err != nil {
		return "", err
	}
	return Sanitize(InsertCitationLinks(rendered, citations)), nil
}

// Paragraphs wraps blank-line separated blocks of plain text in <p>.
func Paragraphs(text string) string {
	var b strings.Builder
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r", ""), "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(block), "\n", "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}

// Truncate cuts text to at most maxRunes runes, ending on a sentence when one
// finishes in the last four fifths of the kept text.
func Truncate(text string, maxRunes int) (string, bool) {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text, false
	}
	trimmed := string([]rune(text)[:maxRunes])
	if idx := strings.LastIndex(trimmed, ". "); idx > len(trimmed)/5 {
		trimmed = trimmed[:idx+1]
	}
	return trimmed, true
}
