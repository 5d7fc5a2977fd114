package pdfqa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/tmc/langchaingo/vectorstores"

	"pdfqa/src/document"
	"pdfqa/src/fsutil"
	"pdfqa/src/log"
)

const (
	DefaultUploadDir      = "pdf"
	DefaultTopK           = 20
	DefaultScoreThreshold = 0.1
)

// Config holds the retrieval and ingestion parameters.
type Config struct {
	UploadDir      string
	TopK           int
	ScoreThreshold float32
	ChunkSize      int
	ChunkOverlap   int
}

func (c *Config) setDefaults() {
	if c.UploadDir == "" {
		c.UploadDir = DefaultUploadDir
	}
	if c.TopK == 0 {
		c.TopK = DefaultTopK
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = document.DefaultChunkSize
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = document.DefaultChunkOverlap
	}
}

// Option customises a Service.
type Option func(*Service)

// WithArchiver hands every indexed upload to a.
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithPinger lets the readiness check probe the model server.
func WithPinger(p Pinger) Option {
	return func(s *Service) { s.pinger = p }
}

// Service answers questions with the language model, optionally grounded on
// the indexed PDFs, and indexes new uploads.
type Service struct {
	llm      llms.Model
	store    vectorstores.VectorStore
	files    fsutil.FileStore
	splitter textsplitter.TextSplitter
	prompt   prompts.PromptTemplate
	cfg      Config

	archiver Archiver
	pinger   Pinger
}

// NewService wires the shared model and store. Both outlive the service and
// are closed by the caller.
func NewService(llm llms.Model, store vectorstores.VectorStore, files fsutil.FileStore, cfg Config, opts ...Option) (*Service, error) {
	if llm == nil {
		return nil, errors.New("no language model configured")
	}
	if store == nil {
		return nil, errors.New("no vector store configured")
	}
	if files == nil {
		return nil, errors.New("no file store configured")
	}

	cfg.setDefaults()
	if cfg.TopK < 0 {
		return nil, fmt.Errorf("top k must be positive, got %d", cfg.TopK)
	}
	if cfg.ScoreThreshold < 0 || cfg.ScoreThreshold > 1 {
		return nil, fmt.Errorf("score threshold must be between 0 and 1, got %v", cfg.ScoreThreshold)
	}

	splitter, err := document.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	s := &Service{
		llm:      llm,
		store:    store,
		files:    files,
		splitter: splitter,
		prompt:   newAskPDFPrompt(),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Ask sends query to the model as is.
func (s *Service) Ask(ctx context.Context, query string) (string, error) {
	answer, err := llms.GenerateFromSinglePrompt(ctx, s.llm, query)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	return answer, nil
}

// AskPDF retrieves up to TopK chunks scoring at least ScoreThreshold, stuffs
// them into the prompt and asks the model. Sources keep retrieval order.
func (s *Service) AskPDF(ctx context.Context, query string) (*Answer, error) {
	retriever := vectorstores.ToRetriever(s.store, s.cfg.TopK,
		vectorstores.WithScoreThreshold(s.cfg.ScoreThreshold))

	qa := chains.NewRetrievalQA(
		chains.NewStuffDocuments(chains.NewLLMChain(s.llm, s.prompt)),
		retriever,
	)
	qa.ReturnSourceDocuments = true

	result, err := chains.Call(ctx, qa, map[string]any{"query": query})
	if err != nil {
		return nil, fmt.Errorf("failed to run retrieval chain: %w", err)
	}

	text, ok := result["text"].(string)
	if !ok {
		return nil, errors.New("retrieval chain returned no text")
	}
	docs, _ := result["source_documents"].([]schema.Document)

	answer := &Answer{Answer: text, Sources: make([]Source, 0, len(docs))}
	for _, doc := range docs {
		answer.Sources = append(answer.Sources, Source{
			Source:      sourceOf(doc),
			PageContent: doc.PageContent,
		})
	}

	log.Debug("answered from documents", "sources", len(answer.Sources))
	return answer, nil
}

// Ingest saves r under the upload directory as filename, then loads, splits
// and indexes it. Nothing is written when filename is not a PDF.
func (s *Service) Ingest(ctx context.Context, filename string, r io.Reader) (*IngestResult, error) {
	if !IsPDF(filename) {
		return nil, ErrNotPDF
	}

	path := filepath.Join(s.cfg.UploadDir, filename)
	if _, err := s.files.WriteFile(path, r); err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	return s.index(ctx, path, filename)
}

// IngestFile indexes a PDF that is already on disk. The chunk sources are
// path.
func (s *Service) IngestFile(ctx context.Context, path string) (*IngestResult, error) {
	filename := filepath.Base(path)
	if !IsPDF(filename) {
		return nil, ErrNotPDF
	}
	return s.index(ctx, path, filename)
}

func (s *Service) index(ctx context.Context, path, filename string) (*IngestResult, error) {
	docs, err := document.NewPDFLoader(path).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pdf: %w", err)
	}

	chunks, err := document.Split(s.splitter, docs)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.AddDocuments(ctx, chunks); err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}

	log.Info("pdf indexed", "file", path, "pages", len(docs), "chunks", len(chunks))

	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, path, filename); err != nil {
			log.Error(err, "failed to enqueue archive job", "file", path)
		}
	}

	return &IngestResult{
		Status:   UploadedStatus,
		Filename: filename,
		DocLen:   len(docs),
		Chunks:   len(chunks),
	}, nil
}

func sourceOf(doc schema.Document) string {
	v, ok := doc.Metadata[document.MetadataSource]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
