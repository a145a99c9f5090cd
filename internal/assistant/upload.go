package assistant

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/deusflow/docassist/internal/extract"
)

// Upload is a file submitted with a summary or OCR request.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ocrImageTypes are the formats the vision model accepts.
var ocrImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

const mimePDF = "application/pdf"

// MediaType resolves the upload's media type from the declared content type,
// then the file extension, then the bytes themselves.
func (u *Upload) MediaType() string {
	if mt, _, err := mime.ParseMediaType(u.ContentType); err == nil && mt != "application/octet-stream" {
		return strings.ToLower(mt)
	}
	if ext := strings.ToLower(filepath.Ext(u.Filename)); ext != "" {
		if mt, _, err := mime.ParseMediaType(mime.TypeByExtension(ext)); err == nil {
			return mt
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(u.Data))
	return mt
}

func (s *Service) checkUpload(u *Upload) error {
	if u == nil || len(u.Data) == 0 {
		return ErrNoFile
	}
	if s.maxUpload > 0 && int64(len(u.Data)) > s.maxUpload {
		return ErrTooLarge
	}
	return nil
}

// uploadText returns the text of a document uploaded for summarization.
func uploadText(u *Upload) (string, error) {
	mt := u.MediaType()
	switch {
	case mt == mimePDF:
		return extract.PDFText(u.Data)
	case strings.HasPrefix(mt, "text/"), mt == "application/json", mt == "application/xml":
		if !utf8.Valid(u.Data) {
			return "", ErrUnsupportedFormat
		}
		return string(u.Data), nil
	}
	return "", ErrUnsupportedFormat
}
