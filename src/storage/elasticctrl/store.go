package elasticctrl

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"pdfqa/src/log"
)

const DefaultIndex = "pdfqa-chunks"

var (
	ErrInvalidScoreThreshold = errors.New("score threshold must be between 0 and 1")
	ErrFiltersNotSupported   = errors.New("metadata filters are not supported by the elasticsearch store")
)

// Backend is the part of the SDK the store uses.
type Backend interface {
	EnsureIndex(ctx context.Context, index string, dims int) error
	BulkIndex(ctx context.Context, index string, chunks []Chunk) error
	Delete(ctx context.Context, index, id string) error
	KNNSearch(ctx context.Context, index string, query KNNQuery) ([]Hit, error)
	Count(ctx context.Context, index string) (int, error)
}

var _ Backend = (*SDK)(nil)

// Store keeps chunks in an Elasticsearch index with a cosine dense_vector
// field. The index is created on the first add, once the embedding size is
// known.
type Store struct {
	backend  Backend
	index    string
	embedder embeddings.Embedder

	mu    sync.Mutex
	ready bool
}

var _ vectorstores.VectorStore = (*Store)(nil)

func NewStore(backend Backend, index string, embedder embeddings.Embedder) (*Store, error) {
	if embedder == nil {
		return nil, errors.New("no embedder configured")
	}
	if index == "" {
		index = DefaultIndex
	}
	return &Store{backend: backend, index: index, embedder: embedder}, nil
}

func (s *Store) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := s.getOptions(options...)
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
		return nil, errors.New("embedder returned a different number of vectors than texts")
	}

	if err := s.ensureIndex(ctx, len(vectors[0])); err != nil {
		return nil, err
	}

	ids := make([]string, len(docs))
	chunks := make([]Chunk, len(docs))
	for i, doc := range docs {
		ids[i] = uuid.NewString()
		chunks[i] = Chunk{
			ID:       ids[i],
			Content:  doc.PageContent,
			Metadata: doc.Metadata,
			Vector:   vectors[i],
		}
	}

	if err := s.backend.BulkIndex(ctx, s.index, chunks); err != nil {
		for _, id := range ids {
			if derr := s.backend.Delete(context.Background(), s.index, id); derr != nil {
				log.Debug("rollback delete failed", "id", id, "error", derr.Error())
			}
		}
		return nil, err
	}

	return ids, nil
}

func (s *Store) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	opts := s.getOptions(options...)
	if opts.ScoreThreshold < 0 || opts.ScoreThreshold > 1 {
		return nil, ErrInvalidScoreThreshold
	}
	if opts.Filters != nil {
		return nil, ErrFiltersNotSupported
	}
	if numDocuments <= 0 {
		return []schema.Document{}, nil
	}

	vector, err := opts.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := s.backend.KNNSearch(ctx, s.index, KNNQuery{
		Vector:     vector,
		K:          numDocuments,
		Similarity: opts.ScoreThreshold,
	})
	if err != nil {
		return nil, err
	}

	return ToDocuments(hits, opts.ScoreThreshold), nil
}

// CountDocuments returns the number of chunks in the index.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	return s.backend.Count(ctx, s.index)
}

func (s *Store) ensureIndex(ctx context.Context, dims int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	if err := s.backend.EnsureIndex(ctx, s.index, dims); err != nil {
		return err
	}
	s.ready = true
	return nil
}

// ToDocuments converts hits into documents scored by cosine similarity,
// dropping those below threshold.
func ToDocuments(hits []Hit, threshold float32) []schema.Document {
	docs := make([]schema.Document, 0, len(hits))
	for _, h := range hits {
		score := ScoreToSimilarity(h.Score)
		if score < threshold {
			continue
		}
		docs = append(docs, schema.Document{
			PageContent: h.Content,
			Metadata:    h.Metadata,
			Score:       score,
		})
	}
	return docs
}

// ScoreToSimilarity undoes the (1 + cos) / 2 scoring of a cosine
// dense_vector field.
func ScoreToSimilarity(score float64) float32 {
	return float32(2*score - 1)
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
