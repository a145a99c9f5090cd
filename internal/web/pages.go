package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/deusflow/docassist/internal/assistant"
	"github.com/deusflow/docassist/internal/config"
	"github.com/deusflow/docassist/internal/domain"
	"github.com/deusflow/docassist/internal/logger"
)

//go:embed templates/*.html static/*
var assets embed.FS

// taskOption is one card on the initial screen.
type taskOption struct {
	Step        domain.Step
	Label       string
	Description string
}

var taskOptions = []taskOption{
	{domain.StepSummary, "Document Summary", "Get concise summaries from any document"},
	{domain.StepSearch, "Specialized Search", "Search across multiple sources with citations"},
	{domain.StepMiniplex, "MiniPlex Search", "Open-source AI search with citations"},
	{domain.StepOCR, "Document OCR", "Extract text from images and PDFs"},
}

func taskLabel(step domain.Step) string {
	for _, o := range taskOptions {
		if o.Step == step {
			return o.Label
		}
	}
	return "AI Assistant"
}

// view is the data every page template receives.
type view struct {
	Step     domain.Step
	Title    string
	Form     domain.FormData
	Tasks    []taskOption
	Sources  []config.Source
	Badges   []string
	Error    string
	Result   *assistant.Result
	Messages []domain.Message
}

var templateFuncs = template.FuncMap{
	// Content is sanitized before it is stored.
	"html": func(s string) template.HTML { return template.HTML(s) },
	"add":  func(a, b int) int { return a + b },
	"when": func(m domain.Message) string { return m.CreatedAt.Format("2006-01-02 15:04") },
}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{"index", "summary", "search", "ocr", "result", "history"} {
		t, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(assets, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return pages, nil
}

func (s *Server) render(c *gin.Context, status int, page string, v view) {
	if v.Title == "" {
		v.Title = taskLabel(v.Step)
	}
	v.Tasks = taskOptions
	v.Sources = s.sources.Sources

	var buf bytes.Buffer
	if err := s.pages[page].ExecuteTemplate(&buf, "layout.html", v); err != nil {
		logger.Error("failed to render page", "page", page, "error", err)
		c.String(http.StatusInternalServerError, "template error")
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

func formPage(step domain.Step) string {
	switch step {
	case domain.StepSummary:
		return "summary"
	case domain.StepOCR:
		return "ocr"
	}
	return "search"
}

func (s *Server) index(c *gin.Context) {
	step, form := domain.Navigate(domain.DefaultFormData(), domain.StepInitial)
	s.render(c, http.StatusOK, "index", view{Step: step, Form: form})
}

func (s *Server) taskForm(step domain.Step) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, form := domain.Navigate(domain.DefaultFormData(), step)
		if q := c.Query("q"); q != "" {
			form.SearchQuery = q
		}
		if src, err := domain.ParseWebSource(c.Query("source")); err == nil {
			form.WebSource = src
		}
		s.render(c, http.StatusOK, formPage(step), view{Step: step, Form: form, Badges: s.badges(form)})
	}
}

func (s *Server) history(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 20
	}
	msgs, err := s.assistant.History(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		s.render(c, http.StatusInternalServerError, "history", view{Title: "History", Error: "Failed to load history"})
		return
	}
	s.render(c, http.StatusOK, "history", view{Title: "History", Messages: msgs})
}

func (s *Server) submitSummary(c *gin.Context) {
	form, err := s.readForm(c)
	if err == nil {
		form.DocumentType, err = domain.ParseDocumentType(c.PostForm("documentType"))
	}
	if err == nil {
		form.SummaryType, err = domain.ParseSummaryType(c.PostForm("summaryType"))
	}
	if err == nil {
		form.SummarySize, err = domain.ParseSummarySize(c.PostForm("summarySize"))
	}
	if err != nil {
		s.formError(c, domain.StepSummary, form, err)
		return
	}

	req := assistant.SummaryRequest{Form: form}
	if form.DocumentType == domain.DocumentFile {
		if req.File, err = s.formUpload(c); err != nil {
			s.formError(c, domain.StepSummary, form, err)
			return
		}
	}

	res, err := s.assistant.Summarize(c.Request.Context(), req)
	if err != nil {
		s.formError(c, domain.StepSummary, form, err)
		return
	}
	s.render(c, http.StatusOK, "result", view{Step: domain.StepSummary, Form: form, Result: res})
}

func (s *Server) submitSearch(step domain.Step) gin.HandlerFunc {
	generic := "Failed to process search request"
	if step == domain.StepMiniplex {
		generic = "Failed to process MiniPlex search request"
	}

	return func(c *gin.Context) {
		form, err := s.readForm(c)
		if err == nil {
			form.WebSource, err = domain.ParseWebSource(c.PostForm("webSource"))
		}
		if err != nil {
			s.formError(c, step, form, err)
			return
		}

		req := assistant.SearchRequest{Query: form.SearchQuery, WebSource: form.WebSource, CustomWebs: form.CustomWebs}
		var res *assistant.Result
		if step == domain.StepMiniplex {
			res, err = s.assistant.AISearch(c.Request.Context(), req)
		} else {
			res, err = s.assistant.Search(c.Request.Context(), req)
		}
		if err != nil {
			if statusFor(err) == http.StatusInternalServerError {
				_ = c.Error(err)
				err = errors.New(generic)
			}
			s.formError(c, step, form, err)
			return
		}
		s.render(c, http.StatusOK, "result", view{Step: step, Form: form, Result: res, Badges: s.badges(form)})
	}
}

func (s *Server) submitOCR(c *gin.Context) {
	form := domain.DefaultFormData()
	form.DocumentType = domain.DocumentFile

	upload, err := s.readUpload(c, "file")
	if err == nil {
		var res *assistant.Result
		if res, err = s.assistant.OCR(c.Request.Context(), upload); err == nil {
			s.render(c, http.StatusOK, "result", view{Step: domain.StepOCR, Form: form, Result: res})
			return
		}
	}
	s.formError(c, domain.StepOCR, form, err)
}

// readForm parses the posted fields shared by all task forms.
func (s *Server) readForm(c *gin.Context) (domain.FormData, error) {
	form := domain.DefaultFormData()
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload+1<<20)
		if err := c.Request.ParseMultipartForm(32 << 20); err != nil {
			return form, err
		}
	}
	form.PastedText = c.PostForm("pastedText")
	form.URL = strings.TrimSpace(c.PostForm("url"))
	form.SearchQuery = c.PostForm("searchQuery")
	form.CustomWebs = c.PostForm("customWebs")
	return form, nil
}

func (s *Server) formUpload(c *gin.Context) (*assistant.Upload, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, assistant.ErrNoFile
	}
	return s.openUpload(fh)
}

func (s *Server) formError(c *gin.Context, step domain.Step, form domain.FormData, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	s.render(c, status, formPage(step), view{Step: step, Form: form, Error: err.Error(), Badges: s.badges(form)})
}

// badges lists what the selected web source searches, as shown under the
// source picker.
func (s *Server) badges(form domain.FormData) []string {
	switch form.WebSource {
	case domain.SourceAll, "":
		return []string{"All Available Sources"}
	case domain.SourceCustom:
		return domain.SplitDomains(form.CustomWebs)
	}
	if src, ok := s.sources.Lookup(string(form.WebSource)); ok {
		return []string{src.Badge}
	}
	return nil
}
