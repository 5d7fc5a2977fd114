package document

import (
	"context"
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"
	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

// Metadata keys set on every page document.
const (
	MetadataSource     = "source"
	MetadataPage       = "page"
	MetadataTotalPages = "total_pages"
)

// PDFLoader reads a PDF from disk into one document per page.
type PDFLoader struct {
	path string
}

var _ documentloaders.Loader = PDFLoader{}

func NewPDFLoader(path string) PDFLoader {
	return PDFLoader{path: path}
}

// Load extracts the plain text of every page. The source metadata is the path
// the loader was created with, pages are numbered from 1.
func (l PDFLoader) Load(ctx context.Context) (docs []schema.Document, err error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat pdf: %w", err)
	}

	// the reader panics on some malformed object graphs
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("failed to parse pdf %s: %v", l.path, r)
		}
	}()

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf %s: %w", l.path, err)
	}

	numPages := reader.NumPage()
	fonts := make(map[string]*pdf.Font)
	docs = make([]schema.Document, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}

		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}

		docs = append(docs, schema.Document{
			PageContent: text,
			Metadata: map[string]any{
				MetadataSource:     l.path,
				MetadataPage:       i,
				MetadataTotalPages: numPages,
			},
		})
	}

	return docs, nil
}

// LoadAndSplit loads the pages and splits them with s.
func (l PDFLoader) LoadAndSplit(ctx context.Context, s textsplitter.TextSplitter) ([]schema.Document, error) {
	docs, err := l.Load(ctx)
	if err != nil {
		return nil, err
	}
	return textsplitter.SplitDocuments(s, docs)
}
