package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/docassist/internal/assistant"
	"github.com/deusflow/docassist/internal/domain"
	"github.com/deusflow/docassist/internal/metrics"
)

type fakeAssistant struct {
	summaryReq assistant.SummaryRequest
	searchReq  assistant.SearchRequest
	upload     *assistant.Upload

	result   *assistant.Result
	text     string
	messages []domain.Message
	err      error
}

func (f *fakeAssistant) Summarize(_ context.Context, req assistant.SummaryRequest) (*assistant.Result, error) {
	f.summaryReq = req
	return f.result, f.err
}

func (f *fakeAssistant) Search(_ context.Context, req assistant.SearchRequest) (*assistant.Result, error) {
	f.searchReq = req
	return f.result, f.err
}

func (f *fakeAssistant) AISearch(_ context.Context, req assistant.SearchRequest) (*assistant.Result, error) {
	f.searchReq = req
	return f.result, f.err
}

func (f *fakeAssistant) OCR(_ context.Context, upload *assistant.Upload) (*assistant.Result, error) {
	f.upload = upload
	return f.result, f.err
}

func (f *fakeAssistant) ExtractURL(_ context.Context, _ string) (string, error) {
	return f.text, f.err
}

func (f *fakeAssistant) History(_ context.Context, _ int) ([]domain.Message, error) {
	return f.messages, f.err
}

type fakeStats map[string]int64

func (f fakeStats) Stats(context.Context) (map[string]int64, error) { return f, nil }

func newTestServer(t *testing.T, a *fakeAssistant) (*Server, *metrics.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m := metrics.New()
	s, err := NewServer(Options{
		Assistant:      a,
		MaxUploadBytes: 1 << 10,
		Metrics:        m,
		Stats:          fakeStats{"messages": 3},
		Debug:          true,
	})
	require.NoError(t, err)
	return s, m
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartBody(t *testing.T, fields map[string]string, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func assistantResult(content string) *assistant.Result {
	return &assistant.Result{Message: domain.Message{Type: domain.MessageAssistant, Content: content}}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: empty", assistant.ErrInvalidInput), http.StatusBadRequest},
		{assistant.ErrNoFile, http.StatusBadRequest},
		{fmt.Errorf("%w: x", domain.ErrUnknownValue), http.StatusBadRequest},
		{assistant.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{assistant.ErrUnsupportedFormat, http.StatusUnsupportedMediaType},
		{fmt.Errorf("%w: openai", assistant.ErrQuotaExceeded), http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestProcessDocument(t *testing.T) {
	a := &fakeAssistant{result: assistantResult("<ul><li>a</li></ul>")}
	s, _ := newTestServer(t, a)

	w := do(s, postJSON("/functions/v1/process-document", `{"text":"hello","summaryType":"bullets","summarySize":"half"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<ul><li>a</li></ul>", decode(t, w)["summary"])

	assert.Equal(t, "hello", a.summaryReq.Form.PastedText)
	assert.Equal(t, domain.SummaryBullets, a.summaryReq.Form.SummaryType)
	assert.Equal(t, domain.SizeHalf, a.summaryReq.Form.SummarySize)
	assert.Equal(t, domain.DocumentPaste, a.summaryReq.Form.DocumentType)
}

func TestProcessDocumentErrors(t *testing.T) {
	a := &fakeAssistant{}
	s, _ := newTestServer(t, a)

	w := do(s, postJSON("/functions/v1/process-document", `{"text":"x","summaryType":"haiku"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(s, postJSON("/functions/v1/process-document", `not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	a.err = fmt.Errorf("%w: no text to summarize", assistant.ErrInvalidInput)
	w = do(s, postJSON("/functions/v1/process-document", `{"text":""}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "no text to summarize")

	a.err = fmt.Errorf("%w: gemini", assistant.ErrQuotaExceeded)
	w = do(s, postJSON("/functions/v1/process-document", `{"text":"x"}`))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestProcessSearch(t *testing.T) {
	a := &fakeAssistant{result: &assistant.Result{
		Message:   domain.Message{Content: "<p>answer</p>"},
		Citations: []domain.Citation{{Title: "BOE", URL: "https://boe.es/1"}},
	}}
	s, _ := newTestServer(t, a)

	w := do(s, postJSON("/functions/v1/process-search", `{"query":"ley","webSource":"custom","customWebs":"a.com, b.org"}`))
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "<p>answer</p>", body["result"])
	refs := body["references"].([]interface{})
	require.Len(t, refs, 1)
	assert.Equal(t, "https://boe.es/1", refs[0].(map[string]interface{})["url"])
	assert.Equal(t, []interface{}{}, body["related_questions"])

	assert.Equal(t, "ley", a.searchReq.Query)
	assert.Equal(t, domain.SourceCustom, a.searchReq.WebSource)
	assert.Equal(t, "a.com, b.org", a.searchReq.CustomWebs)
}

func TestProcessSearchHidesUpstreamErrors(t *testing.T) {
	a := &fakeAssistant{err: errors.New("perplexity: 502 bad gateway secret-detail")}
	s, m := newTestServer(t, a)

	w := do(s, postJSON("/functions/v1/process-search", `{"query":"q"}`))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to process search request", decode(t, w)["error"])

	w = do(s, postJSON("/functions/v1/process-miniplex", `{"query":"q"}`))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to process MiniPlex search request", decode(t, w)["error"])

	// Health is owned by the assistant service, not the handlers.
	assert.True(t, m.Healthy())
}

func TestProcessSearchUnknownSource(t *testing.T) {
	s, _ := newTestServer(t, &fakeAssistant{})
	w := do(s, postJSON("/functions/v1/process-search", `{"query":"q","webSource":"nowhere"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessMiniplex(t *testing.T) {
	a := &fakeAssistant{result: &assistant.Result{
		Message:          domain.Message{Content: "<p>x</p>"},
		RelatedQuestions: []string{"What else?"},
	}}
	s, _ := newTestServer(t, a)

	w := do(s, postJSON("/functions/v1/process-miniplex", `{"query":"q","webSource":"boe"}`))
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, []interface{}{}, body["citations"])
	assert.Equal(t, []interface{}{"What else?"}, body["related_questions"])
	assert.Equal(t, domain.SourceBOE, a.searchReq.WebSource)
}

func TestProcessOCR(t *testing.T) {
	a := &fakeAssistant{result: assistantResult("<p>scanned</p>")}
	s, _ := newTestServer(t, a)

	body, ct := multipartBody(t, nil, "scan.png", []byte("\x89PNG\r\n\x1a\n"))
	req := httptest.NewRequest(http.MethodPost, "/functions/v1/process-ocr", body)
	req.Header.Set("Content-Type", ct)

	w := do(s, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<p>scanned</p>", decode(t, w)["text"])
	require.NotNil(t, a.upload)
	assert.Equal(t, "scan.png", a.upload.Filename)
}

func TestProcessOCRUploadErrors(t *testing.T) {
	s, _ := newTestServer(t, &fakeAssistant{})

	body, ct := multipartBody(t, map[string]string{"note": "x"}, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/functions/v1/process-ocr", body)
	req.Header.Set("Content-Type", ct)
	w := do(s, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, assistant.ErrNoFile.Error(), decode(t, w)["error"])

	body, ct = multipartBody(t, nil, "big.png", bytes.Repeat([]byte("a"), 2<<10))
	req = httptest.NewRequest(http.MethodPost, "/functions/v1/process-ocr", body)
	req.Header.Set("Content-Type", ct)
	w = do(s, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestProcessURL(t *testing.T) {
	a := &fakeAssistant{text: "article body"}
	s, _ := newTestServer(t, a)

	w := do(s, postJSON("/functions/v1/process-url", `{"url":"https://example.com"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "article body", decode(t, w)["text"])
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, &fakeAssistant{})

	req := httptest.NewRequest(http.MethodOptions, "/functions/v1/process-search", nil)
	req.Header.Set("Origin", "chrome-extension://abc")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "authorization, x-client-info, apikey, content-type")

	w := do(s, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, strings.ToLower(w.Header().Get("Access-Control-Allow-Headers")), "x-client-info")
}

func TestHealthAndMetrics(t *testing.T) {
	s, m := newTestServer(t, &fakeAssistant{})

	w := do(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	m.IncrementRequests("search")
	m.RecordFailure("search", errors.New("upstream down"))

	w = do(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "upstream down", body["last_error"])

	w = do(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, float64(3), body["database"].(map[string]interface{})["messages"])
	search := body["tasks"].(map[string]interface{})["search"].(map[string]interface{})
	assert.Equal(t, float64(1), search["failures"])
}

func TestIndexPage(t *testing.T) {
	s, _ := newTestServer(t, &fakeAssistant{})

	w := do(s, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")

	page := w.Body.String()
	assert.Contains(t, page, "AI Assistant")
	for _, label := range []string{"Document Summary", "Specialized Search", "MiniPlex Search", "Document OCR"} {
		assert.Contains(t, page, label)
	}
	assert.NotContains(t, page, `class="back"`)
}

func TestTaskFormsPrefill(t *testing.T) {
	s, _ := newTestServer(t, &fakeAssistant{})

	w := do(s, httptest.NewRequest(http.MethodGet, "/miniplex?q="+url.QueryEscape("What is BOE?")+"&source=borne", nil))
	require.Equal(t, http.StatusOK, w.Code)
	page := w.Body.String()
	assert.Contains(t, page, `value="What is BOE?"`)
	assert.Contains(t, page, "Ask anything...")
	assert.Contains(t, page, "BORNE.gov.uk")
	assert.Contains(t, page, `class="back"`)

	w = do(s, httptest.NewRequest(http.MethodGet, "/search", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Enter your search query...")
	assert.Contains(t, w.Body.String(), "All Available Sources")

	for _, path := range []string{"/summary", "/ocr", "/static/style.css"} {
		w = do(s, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestSubmitSearchPage(t *testing.T) {
	a := &fakeAssistant{result: &assistant.Result{
		Message:          domain.Message{Type: domain.MessageAssistant, Content: `<p>See <a href="https://boe.es/1" class="citation">[1]</a></p>`},
		Citations:        []domain.Citation{{Title: "BOE", URL: "https://boe.es/1"}},
		RelatedQuestions: []string{"Next question?"},
	}}
	s, _ := newTestServer(t, a)

	form := url.Values{"searchQuery": {"ley"}, "webSource": {"boe"}}
	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := do(s, req)
	require.Equal(t, http.StatusOK, w.Code)
	page := w.Body.String()
	assert.Contains(t, page, `class="citation"`)
	assert.Contains(t, page, "Web References")
	assert.Contains(t, page, "Related Questions")
	assert.Contains(t, page, "/miniplex?q=Next%20question%3f")
	assert.Contains(t, page, "BOE.es")
	assert.Equal(t, domain.SourceBOE, a.searchReq.WebSource)
}

func TestSubmitSearchPageError(t *testing.T) {
	a := &fakeAssistant{err: errors.New("upstream detail")}
	s, _ := newTestServer(t, a)

	form := url.Values{"searchQuery": {"ley"}}
	req := httptest.NewRequest(http.MethodPost, "/miniplex", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := do(s, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	page := w.Body.String()
	assert.Contains(t, page, "Failed to process MiniPlex search request")
	assert.NotContains(t, page, "upstream detail")
	assert.Contains(t, page, `value="ley"`)
}

func TestSubmitSummaryPage(t *testing.T) {
	a := &fakeAssistant{result: assistantResult("<p>short</p>")}
	s, _ := newTestServer(t, a)

	body, ct := multipartBody(t, map[string]string{
		"documentType": "file",
		"summaryType":  "general",
		"summarySize":  "full",
	}, "notes.txt", []byte("some notes"))
	req := httptest.NewRequest(http.MethodPost, "/summary", body)
	req.Header.Set("Content-Type", ct)

	w := do(s, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<p>short</p>")
	require.NotNil(t, a.summaryReq.File)
	assert.Equal(t, []byte("some notes"), a.summaryReq.File.Data)
	assert.Equal(t, domain.SizeFull, a.summaryReq.Form.SummarySize)
}

func TestSubmitSummaryPageMissingFile(t *testing.T) {
	s, _ := newTestServer(t, &fakeAssistant{})

	body, ct := multipartBody(t, map[string]string{"documentType": "file"}, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/summary", body)
	req.Header.Set("Content-Type", ct)

	w := do(s, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), assistant.ErrNoFile.Error())
}

func TestHistoryPage(t *testing.T) {
	a := &fakeAssistant{messages: []domain.Message{{
		Type:        domain.MessageAssistant,
		Task:        domain.StepSearch,
		Content:     "<p>old answer</p>",
		SearchQuery: "ley",
		CreatedAt:   time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
	}}}
	s, _ := newTestServer(t, a)

	w := do(s, httptest.NewRequest(http.MethodGet, "/history?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	page := w.Body.String()
	assert.Contains(t, page, "<p>old answer</p>")
	assert.Contains(t, page, "2024-03-01 10:30")

	a.err = errors.New("db down")
	w = do(s, httptest.NewRequest(http.MethodGet, "/history", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to load history")
}
