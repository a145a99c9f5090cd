package format

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/docassist/internal/domain"
)

func TestInsertCitationLinks_ReplacesAllMatchedMarkers(t *testing.T) {
	cites := []domain.Citation{
		{Title: "BOE", URL: "https://boe.es/a"},
		{Title: "Gov", URL: "https://gov.uk/b"},
	}
	out := InsertCitationLinks("Rule one [1]. Rule two [2]. Again [1]. Missing [3].", cites)

	assert.Equal(t, 2, strings.Count(out, `href="https://boe.es/a"`))
	assert.Equal(t, 1, strings.Count(out, `href="https://gov.uk/b"`))
	assert.Contains(t, out, "Missing [3].")
	assert.Contains(t, out, `<span class="citation-title">(BOE)</span>`)
}

func TestInsertCitationLinks_EscapesTitle(t *testing.T) {
	out := InsertCitationLinks("x [1]", []domain.Citation{{Title: `<b>"x"</b>`, URL: "https://a.b/?q=1&r=2"}})
	assert.NotContains(t, out, "<b>")
	assert.Contains(t, out, "https://a.b/?q=1&amp;r=2")
}

func TestInsertCitationLinks_NoCitations(t *testing.T) {
	assert.Equal(t, "plain [1]", InsertCitationLinks("plain [1]", nil))
}

func TestExtractCitations_DedupesInOrder(t *testing.T) {
	content := `Answer text [1] and more [2].

Citations:
[1] Spanish gazette https://boe.es/doc/1
[2] UK gov (https://gov.uk/page).
[3] Duplicate https://boe.es/doc/1
[4] no link here`

	got := ExtractCitations(content)
	require.Len(t, got, 2)
	assert.Equal(t, domain.Citation{Title: "Source 1", URL: "https://boe.es/doc/1"}, got[0])
	assert.Equal(t, domain.Citation{Title: "Source 2", URL: "https://gov.uk/page"}, got[1])
}

func TestExtractRelatedQuestions(t *testing.T) {
	content := `Some answer.

Related questions:
1. What is the BOE?
2. How are laws published?
3. Not a question.
4. Who signs decrees?
5. Is there a fifth?`

	assert.Equal(t, []string{
		"What is the BOE?",
		"How are laws published?",
		"Who signs decrees?",
	}, ExtractRelatedQuestions(content, 3))
}

func TestBulletList(t *testing.T) {
	assert.Equal(t, "<ul><li>first</li><li>second &amp; third</li><li>fourth</li></ul>",
		BulletList("• first\n- second & third\n\n* fourth\n"))
	assert.Equal(t, "<ul><li>a</li></ul>", BulletList("<ul><li>a</li></ul>"))
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, "<p>Hello</p>", StripCodeFence("```html\n<p>Hello</p>\n```"))
	assert.Equal(t, "<p>Hi</p>", StripCodeFence("```\n<p>Hi</p>```"))
	assert.Equal(t, "no fence", StripCodeFence("no fence"))
}

func TestSanitize_DropsScripts(t *testing.T) {
	out := Sanitize(`<p onclick="x()">ok</p><script>alert(1)</script>`)
	assert.Equal(t, "<p>ok</p>", out)
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "Title Body &", StripTags("<h1>Title</h1><p>Body &amp;</p>"))
}

func TestRenderMarkdown_KeepsCitationAnchors(t *testing.T) {
	content := InsertCitationLinks("**Bold** claim [1]", []domain.Citation{{Title: "Src", URL: "https://example.com"}})
	out, err := RenderMarkdown(content)
	require.NoError(t, err)
	assert.Contains(t, out, "<strong>Bold</strong>")
	assert.Contains(t, out, `href="https://example.com"`)
	assert.Contains(t, out, `target="_blank"`)
	assert.Contains(t, out, `class="citation"`)
}

func TestInsertCitationLinks_SkipsCitationWithoutURL(t *testing.T) {
	out := InsertCitationLinks("A [1] B [2]", []domain.Citation{{Title: "NoURL"}, {Title: "Second", URL: "https://second.example"}})
	assert.Contains(t, out, "A [1] B ")
	assert.Equal(t, 1, strings.Count(out, `class="citation"`))
	assert.Contains(t, out, `href="https://second.example"`)
	assert.Contains(t, out, "[2]<span")
}

func TestRenderAnswer_KeepsReferenceDefinitionLines(t *testing.T) {
	text := "Go is fast [1] and simple [2].\n\n[1]: https://go.dev\n[2]: https://go.dev/doc"
	citations := ExtractCitations(text)
	require.Len(t, citations, 2)

	out, err := RenderAnswer(text, citations)
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(out, `class="citation"`))
	assert.Contains(t, out, "https://go.dev/doc")
	assert.NotContains(t, out, `\[`)
	assert.NotContains(t, out, ">1</a>")
}

func TestRenderAnswer_SanitizesLinkedOutput(t *testing.T) {
	out, err := RenderAnswer("See [1] <script>alert(1)</script>", []domain.Citation{{Title: "x", URL: "javascript:alert(1)"}})
	require.NoError(t, err)
	assert.NotContains(t, out, "<script")
	assert.NotContains(t, out, "javascript:")
}

func TestRenderMarkdown_StripsUnsafeHTML(t *testing.T) {
	out, err := RenderMarkdown("hello <img src=x onerror=alert(1)>")
	require.NoError(t, err)
	assert.NotContains(t, out, "onerror")
}

func TestParagraphs(t *testing.T) {
	assert.Equal(t, "<p>a<br>b</p><p>c &lt;d&gt;</p>", Paragraphs("a\nb\n\n\nc <d>"))
}

func TestTruncate(t *testing.T) {
	out, cut := Truncate("short", 100)
	assert.False(t, cut)
	assert.Equal(t, "short", out)

	out, cut = Truncate("First sentence here. Second sentence is longer", 30)
	assert.True(t, cut)
	assert.Equal(t, "First sentence here.", out)

	out, cut = Truncate("ÆØÅæøå", 3)
	assert.True(t, cut)
	assert.Equal(t, "ÆØÅ", out)
}
