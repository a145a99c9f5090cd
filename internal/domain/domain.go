// Package domain holds the vocabulary shared by the assistant, its storage
// and its views: wizard steps, form values and persisted messages.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownValue is wrapped by the Parse functions for values outside an enum.
var ErrUnknownValue = errors.New("unknown value")

// Step is one screen of the assistant wizard.
type Step string

const (
	StepInitial    Step = "initial"
	StepSummary    Step = "summary"
	StepSearch     Step = "search"
	StepMiniplex   Step = "miniplex"
	StepOCR        Step = "ocr"
	StepProcessing Step = "processing"
)

// IsTask reports whether the step is one of the four task forms.
func (s Step) IsTask() bool {
	switch s {
	case StepSummary, StepSearch, StepMiniplex, StepOCR:
		return true
	}
	return false
}

// ParseStep returns StepInitial for an empty value.
func ParseStep(v string) (Step, error) {
	switch s := Step(strings.ToLower(strings.TrimSpace(v))); s {
	case "":
		return StepInitial, nil
	case StepInitial, StepSummary, StepSearch, StepMiniplex, StepOCR, StepProcessing:
		return s, nil
	}
	return "", fmt.Errorf("%w: step %q", ErrUnknownValue, v)
}

type DocumentType string

const (
	DocumentPaste DocumentType = "paste"
	DocumentURL   DocumentType = "url"
	DocumentFile  DocumentType = "file"
)

func ParseDocumentType(v string) (DocumentType, error) {
	switch d := DocumentType(strings.ToLower(strings.TrimSpace(v))); d {
	case "":
		return DocumentPaste, nil
	case DocumentPaste, DocumentURL, DocumentFile:
		return d, nil
	}
	return "", fmt.Errorf("%w: document type %q", ErrUnknownValue, v)
}

type SummaryType string

const (
	SummaryBullets SummaryType = "bullets"
	SummaryGeneral SummaryType = "general"
)

func ParseSummaryType(v string) (SummaryType, error) {
	switch t := SummaryType(strings.ToLower(strings.TrimSpace(v))); t {
	case "":
		return SummaryGeneral, nil
	case SummaryBullets, SummaryGeneral:
		return t, nil
	}
	return "", fmt.Errorf("%w: summary type %q", ErrUnknownValue, v)
}

type SummarySize string

const (
	SizeQuarter SummarySize = "quarter"
	SizeHalf    SummarySize = "half"
	SizeFull    SummarySize = "full"
)

func ParseSummarySize(v string) (SummarySize, error) {
	switch s := SummarySize(strings.ToLower(strings.TrimSpace(v))); s {
	case "":
		return SizeQuarter, nil
	case SizeQuarter, SizeHalf, SizeFull:
		return s, nil
	}
	return "", fmt.Errorf("%w: summary size %q", ErrUnknownValue, v)
}

// WebSource selects which sites a search is restricted to.
type WebSource string

const (
	SourceAll    WebSource = "all"
	SourceBOE    WebSource = "boe"
	SourceBORNE  WebSource = "borne"
	SourceCustom WebSource = "custom"
)

func ParseWebSource(v string) (WebSource, error) {
	switch s := WebSource(strings.ToLower(strings.TrimSpace(v))); s {
	case "":
		return SourceAll, nil
	case SourceAll, SourceBOE, SourceBORNE, SourceCustom:
		return s, nil
	}
	return "", fmt.Errorf("%w: web source %q", ErrUnknownValue, v)
}

// FormData is the state of the task forms. Uploaded files travel separately.
type FormData struct {
	DocumentType DocumentType
	PastedText   string
	URL          string
	SummaryType  SummaryType
	SummarySize  SummarySize
	WebSource    WebSource
	SearchQuery  string
	CustomWebs   string
}

func DefaultFormData() FormData {
	return FormData{
		DocumentType: DocumentPaste,
		SummaryType:  SummaryGeneral,
		SummarySize:  SizeQuarter,
		WebSource:    SourceAll,
	}
}

// Navigate moves the wizard to the target step. Going back to the initial
// screen discards whatever was typed into the form.
func Navigate(form FormData, to Step) (Step, FormData) {
	if to == StepInitial {
		return StepInitial, DefaultFormData()
	}
	return to, form
}

// SplitDomains parses a comma separated list of domains, dropping blanks.
func SplitDomains(list string) []string {
	var out []string
	for _, d := range strings.Split(list, ",") {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Citation is one source referenced by a search answer.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type MessageType string

const (
	MessageUser      MessageType = "user"
	MessageAssistant MessageType = "assistant"
)

// Message is one rendered result shown in the processing view.
type Message struct {
	ID           string
	Type         MessageType
	Task         Step
	Content      string
	DocumentType DocumentType
	SummaryType  SummaryType
	SummarySize  SummarySize
	WebSource    WebSource
	SearchQuery  string
	CustomWebs   string
	CreatedAt    time.Time
}

// SearchRecord is a persisted search answer with its sources.
type SearchRecord struct {
	ID               string
	Query            string
	Result           string
	Citations        []Citation
	WebSource        WebSource
	CustomWebs       string
	RelatedQuestions []string
	CreatedAt        time.Time
}
