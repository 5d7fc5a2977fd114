package chromemctrl

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"pdfqa/src/log"
)

const (
	DefaultPath       = "db"
	DefaultCollection = "pdfqa"
)

var (
	ErrInvalidScoreThreshold = errors.New("score threshold must be between 0 and 1")
	ErrMissingEmbedder       = errors.New("no embedder configured")
	ErrEmbeddingCount        = errors.New("embedder returned a different number of vectors than texts")
)

// Config locates the on-disk collection.
type Config struct {
	Path       string
	Collection string
	Compress   bool
}

// Store is a langchaingo vector store over a persistent chromem collection.
// Scores are cosine similarities in [-1, 1]; higher is closer.
//
// Adds hold the write lock for the whole batch so a query never sees half of
// an upload.
type Store struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	embedder   embeddings.Embedder
	ids        *snowflake.Node
}

var _ vectorstores.VectorStore = (*Store)(nil)

// NewStore opens (or creates) the collection under cfg.Path, loading every
// persisted document into memory.
func NewStore(cfg Config, embedder embeddings.Embedder, ids *snowflake.Node) (*Store, error) {
	if embedder == nil {
		return nil, ErrMissingEmbedder
	}
	if ids == nil {
		return nil, errors.New("no id generator configured")
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	db, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector db at %s: %w", cfg.Path, err)
	}

	embed := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", cfg.Collection, err)
	}

	log.Info("vector store opened", "path", cfg.Path, "collection", cfg.Collection, "documents", collection.Count())

	return &Store{
		db:         db,
		collection: collection,
		embedder:   embedder,
		ids:        ids,
	}, nil
}

// AddDocuments embeds docs and appends them to the collection. Every
// embedding is computed before anything is written; if a write fails the
// documents already written by this call are removed again.
func (s *Store) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := s.getOptions(options...)

	if opts.Deduplicater != nil {
		kept := docs[:0:0]
		for _, doc := range docs {
			if !opts.Deduplicater(ctx, doc) {
				kept = append(kept, doc)
			}
		}
		docs = kept
	}
	if len(docs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.PageContent
	}

	vectors, err := opts.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return nil, ErrEmbeddingCount
	}

	ids := make([]string, len(docs))
	records := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		ids[i] = s.ids.Generate().String()
		records[i] = chromem.Document{
			ID:        ids[i],
			Metadata:  toStringMap(doc.Metadata),
			Embedding: vectors[i],
			Content:   doc.PageContent,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.collection.AddDocuments(ctx, records, runtime.NumCPU()); err != nil {
		if derr := s.collection.Delete(context.Background(), nil, nil, ids...); derr != nil {
			log.Error(derr, "failed to roll back partial add", "documents", len(ids))
		}
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}

	return ids, nil
}

// SimilaritySearch returns up to numDocuments documents whose cosine
// similarity to query is at least the score threshold, most similar first.
// Filters, when set, must be a map[string]string matched against metadata.
func (s *Store) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	opts := s.getOptions(options...)

	if opts.ScoreThreshold < 0 || opts.ScoreThreshold > 1 {
		return nil, ErrInvalidScoreThreshold
	}

	var where map[string]string
	if opts.Filters != nil {
		f, ok := opts.Filters.(map[string]string)
		if !ok {
			return nil, fmt.Errorf("unsupported filter type %T", opts.Filters)
		}
		where = f
	}

	vector, err := opts.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := min(numDocuments, s.collection.Count())
	if n <= 0 {
		return []schema.Document{}, nil
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector store: %w", err)
	}

	docs := make([]schema.Document, 0, len(results))
	for _, r := range results {
		if r.Similarity < opts.ScoreThreshold {
			continue
		}
		docs = append(docs, schema.Document{
			PageContent: r.Content,
			Metadata:    toAnyMap(r.Metadata),
			Score:       r.Similarity,
		})
	}

	return docs, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection.Count()
}

// CountDocuments is Count in the shape the readiness check expects.
func (s *Store) CountDocuments(context.Context) (int, error) {
	return s.Count(), nil
}

func (s *Store) getOptions(options ...vectorstores.Option) vectorstores.Options {
	opts := vectorstores.Options{}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.Embedder == nil {
		opts.Embedder = s.embedder
	}
	return opts
}

func toStringMap(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

func toAnyMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
