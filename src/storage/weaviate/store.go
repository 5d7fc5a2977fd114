package weaviate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"pdfqa/src/log"
)

const DefaultClass = "PdfChunk"

var (
	ErrInvalidScoreThreshold = errors.New("score threshold must be between 0 and 1")
	ErrFiltersNotSupported   = errors.New("metadata filters are not supported by the weaviate store")
)

// Backend is the part of the SDK the store uses.
type Backend interface {
	EnsureChunkClass(ctx context.Context, className string) error
	BatchAddVectors(ctx context.Context, className string, objects []VectorObject) error
	DeleteVector(ctx context.Context, className string, id string) error
	QueryVectors(ctx context.Context, className string, vector []float32, config QueryConfig) ([]QueryResult, error)
	CountObjects(ctx context.Context, className string) (int, error)
}

var _ Backend = (*SDK)(nil)

// Store keeps chunks in a Weaviate class. Similarity is reported as
// 1 - cosine distance, the same scale as the chromem store.
type Store struct {
	sdk      Backend
	class    string
	embedder embeddings.Embedder
}

var _ vectorstores.VectorStore = (*Store)(nil)

// NewStore makes sure class exists and returns a store over it.
func NewStore(ctx context.Context, sdk Backend, class string, embedder embeddings.Embedder) (*Store, error) {
	if embedder == nil {
		return nil, errors.New("no embedder configured")
	}
	if class == "" {
		class = DefaultClass
	}
	if err := sdk.EnsureChunkClass(ctx, class); err != nil {
		return nil, err
	}

	return &Store{sdk: sdk, class: class, embedder: embedder}, nil
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

	ids := make([]string, len(docs))
	objects := make([]VectorObject, len(docs))
	for i, doc := range docs {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
		ids[i] = uuid.NewString()
		objects[i] = VectorObject{
			ID:     ids[i],
			Vector: vectors[i],
			Properties: map[string]interface{}{
				PropContent:  doc.PageContent,
				PropMetadata: string(meta),
			},
		}
	}

	if err := s.sdk.BatchAddVectors(ctx, s.class, objects); err != nil {
		for _, id := range ids {
			if derr := s.sdk.DeleteVector(context.Background(), s.class, id); derr != nil {
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

	results, err := s.sdk.QueryVectors(ctx, s.class, vector, QueryConfig{
		Fields:   []string{PropContent, PropMetadata},
		Limit:    numDocuments,
		Distance: SimilarityToDistance(opts.ScoreThreshold),
	})
	if err != nil {
		return nil, err
	}

	return ToDocuments(results, opts.ScoreThreshold), nil
}

// CountDocuments returns the number of chunks in the class.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	return s.sdk.CountObjects(ctx, s.class)
}

// ToDocuments converts query results into documents, dropping those below
// threshold.
func ToDocuments(results []QueryResult, threshold float32) []schema.Document {
	docs := make([]schema.Document, 0, len(results))
	for _, r := range results {
		score := DistanceToSimilarity(r.Distance)
		if score < threshold {
			continue
		}

		content, _ := r.Properties[PropContent].(string)
		meta := map[string]any{}
		if raw, ok := r.Properties[PropMetadata].(string); ok && raw != "" {
			if err := json.Unmarshal([]byte(raw), &meta); err != nil {
				log.Debug("skipping undecodable metadata", "id", r.ID)
				meta = map[string]any{}
			}
		}

		docs = append(docs, schema.Document{
			PageContent: content,
			Metadata:    meta,
			Score:       score,
		})
	}
	return docs
}

// DistanceToSimilarity maps a cosine distance in [0, 2] to a similarity in [-1, 1].
func DistanceToSimilarity(d float64) float32 {
	return float32(1 - d)
}

// SimilarityToDistance is the largest cosine distance that still reaches
// similarity s. Zero means no limit.
func SimilarityToDistance(s float32) float32 {
	if s <= 0 {
		return 0
	}
	return 1 - s
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
