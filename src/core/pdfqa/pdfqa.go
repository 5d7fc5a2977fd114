package pdfqa

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

var (
	ErrNotPDF = errors.New("Only PDF files are allowed")
)

// UploadedStatus is the status reported for a successful ingestion.
const UploadedStatus = "Successfully Uploaded"

// Answer is the reply to a document-grounded query.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Source is a chunk that was placed into the prompt.
type Source struct {
	Source      string `json:"source"`
	PageContent string `json:"page_content"`
}

// IngestResult summarises an indexed upload.
type IngestResult struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
	DocLen   int    `json:"doc_len"`
	Chunks   int    `json:"chunks"`
}

// Archiver receives every successfully indexed file.
type Archiver interface {
	Archive(ctx context.Context, path, filename string) error
}

// Pinger reports whether the model server answers.
type Pinger interface {
	Heartbeat(ctx context.Context) error
}

// DocumentCounter is implemented by vector stores that can report their size.
type DocumentCounter interface {
	CountDocuments(ctx context.Context) (int, error)
}

// IsPDF reports whether filename has a .pdf extension, in any case.
func IsPDF(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}
