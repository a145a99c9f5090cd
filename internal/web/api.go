package web

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deusflow/docassist/internal/assistant"
	"github.com/deusflow/docassist/internal/domain"
)

type documentRequest struct {
	Text        string `json:"text"`
	SummaryType string `json:"summaryType"`
	SummarySize string `json:"summarySize"`
}

type searchRequest struct {
	Query      string `json:"query"`
	WebSource  string `json:"webSource"`
	CustomWebs string `json:"customWebs"`
}

type urlRequest struct {
	URL string `json:"url"`
}

// statusFor maps assistant errors onto HTTP statuses.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, assistant.ErrInvalidInput), errors.Is(err, assistant.ErrNoFile), errors.Is(err, domain.ErrUnknownValue):
		return http.StatusBadRequest
	case errors.Is(err, assistant.ErrTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, assistant.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, assistant.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, assistant.ErrNotConfigured):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes {"error": msg}. Server-side failures are reported with
// generic when it is set so upstream details stay in the logs.
func respondError(c *gin.Context, err error, generic string) {
	status := statusFor(err)
	_ = c.Error(err)

	msg := err.Error()
	if status == http.StatusInternalServerError && generic != "" {
		msg = generic
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, err error) {
	respondError(c, fmt.Errorf("%w: %v", assistant.ErrInvalidInput, err), "")
}

func (s *Server) processDocument(c *gin.Context) {
	var req documentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	form := domain.DefaultFormData()
	form.PastedText = req.Text
	var err error
	if form.SummaryType, err = domain.ParseSummaryType(req.SummaryType); err != nil {
		badRequest(c, err)
		return
	}
	if form.SummarySize, err = domain.ParseSummarySize(req.SummarySize); err != nil {
		badRequest(c, err)
		return
	}

	res, err := s.assistant.Summarize(c.Request.Context(), assistant.SummaryRequest{Form: form})
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": res.Message.Content})
}

func (s *Server) bindSearch(c *gin.Context) (assistant.SearchRequest, bool) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return assistant.SearchRequest{}, false
	}
	source, err := domain.ParseWebSource(req.WebSource)
	if err != nil {
		badRequest(c, err)
		return assistant.SearchRequest{}, false
	}
	return assistant.SearchRequest{Query: req.Query, WebSource: source, CustomWebs: req.CustomWebs}, true
}

func (s *Server) processSearch(c *gin.Context) {
	req, ok := s.bindSearch(c)
	if !ok {
		return
	}
	res, err := s.assistant.Search(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Failed to process search request")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"result":            res.Message.Content,
		"references":        nonNilCitations(res.Citations),
		"related_questions": nonNilStrings(res.RelatedQuestions),
	})
}

func (s *Server) processMiniplex(c *gin.Context) {
	req, ok := s.bindSearch(c)
	if !ok {
		return
	}
	res, err := s.assistant.AISearch(c.Request.Context(), req)
	if err != nil {
		respondError(c, err, "Failed to process MiniPlex search request")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"result":            res.Message.Content,
		"citations":         nonNilCitations(res.Citations),
		"related_questions": nonNilStrings(res.RelatedQuestions),
	})
}

func (s *Server) processOCR(c *gin.Context) {
	upload, err := s.readUpload(c, "file")
	if err != nil {
		respondError(c, err, "")
		return
	}
	res, err := s.assistant.OCR(c.Request.Context(), upload)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": res.Message.Content})
}

func (s *Server) processURL(c *gin.Context) {
	var req urlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	text, err := s.assistant.ExtractURL(c.Request.Context(), req.URL)
	if err != nil {
		respondError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text})
}

// readUpload reads the named multipart file. A missing field yields
// ErrNoFile; an oversized one ErrTooLarge.
func (s *Server) readUpload(c *gin.Context, field string) (*assistant.Upload, error) {
	// Room for the other form fields on top of the file itself.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload+1<<20)

	fh, err := c.FormFile(field)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, assistant.ErrTooLarge
		}
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, assistant.ErrNoFile
		}
		return nil, fmt.Errorf("%w: %v", assistant.ErrInvalidInput, err)
	}
	return s.openUpload(fh)
}

func (s *Server) openUpload(fh *multipart.FileHeader) (*assistant.Upload, error) {
	if fh.Size > s.maxUpload {
		return nil, assistant.ErrTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.maxUpload+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return &assistant.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func nonNilCitations(c []domain.Citation) []domain.Citation {
	if c == nil {
		return []domain.Citation{}
	}
	return c
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
