package elasticctrl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
)

const (
	FieldContent  = "content"
	FieldMetadata = "metadata"
	FieldVector   = "vector"
)

const maxNumCandidates = 10000

type Config struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
}

func NewClient(cfg Config) (*elasticsearch.Client, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return client, nil
}

// SDK wraps the index, bulk, knn search and count calls the store needs.
type SDK struct {
	client *elasticsearch.Client
}

func NewSDK(client *elasticsearch.Client) *SDK {
	return &SDK{client: client}
}

// Chunk is one document body as it is indexed.
type Chunk struct {
	ID       string         `json:"-"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	Vector   []float32      `json:"vector"`
}

// Hit is one knn match. Score is the raw Elasticsearch _score.
type Hit struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
}

// KNNQuery asks for the K nearest chunks. Similarity is the minimum cosine
// similarity, zero means no limit.
type KNNQuery struct {
	Vector     []float32
	K          int
	Similarity float32
}

// ChunkMapping is the index mapping for chunks embedded with dims dimensions.
// Metadata is kept in _source only.
func ChunkMapping(dims int) map[string]any {
	return map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				FieldContent:  map[string]any{"type": "text"},
				FieldMetadata: map[string]any{"type": "object", "enabled": false},
				FieldVector: map[string]any{
					"type":       "dense_vector",
					"dims":       dims,
					"index":      true,
					"similarity": "cosine",
				},
			},
		},
	}
}

// EnsureIndex creates index with the chunk mapping unless it exists.
func (e *SDK) EnsureIndex(ctx context.Context, index string, dims int) error {
	res, err := e.client.Indices.Exists([]string{index}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", index, err)
	}
	res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("failed to check index %s: %s", index, res.Status())
	}

	body, err := json.Marshal(ChunkMapping(dims))
	if err != nil {
		return err
	}
	res, err = e.client.Indices.Create(index,
		e.client.Indices.Create.WithBody(bytes.NewReader(body)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		if strings.Contains(string(raw), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("failed to create index %s: %s", index, raw)
	}
	return nil
}

// BulkIndex writes chunks and waits until they are searchable.
func (e *SDK) BulkIndex(ctx context.Context, index string, chunks []Chunk) error {
	body, err := BulkBody(index, chunks)
	if err != nil {
		return err
	}

	res, err := e.client.Bulk(bytes.NewReader(body),
		e.client.Bulk.WithContext(ctx),
		e.client.Bulk.WithRefresh("wait_for"),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk index: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("failed to read bulk response: %w", err)
	}
	if res.IsError() {
		return fmt.Errorf("bulk index failed: %s: %s", res.Status(), raw)
	}
	return ParseBulkResponse(raw)
}

// Delete removes one chunk. A missing chunk is not an error.
func (e *SDK) Delete(ctx context.Context, index, id string) error {
	res, err := e.client.Delete(index, id, e.client.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("failed to delete %s: %s", id, res.Status())
	}
	return nil
}

// KNNSearch returns the nearest chunks, best first. A missing index has no
// chunks.
func (e *SDK) KNNSearch(ctx context.Context, index string, query KNNQuery) ([]Hit, error) {
	body, err := json.Marshal(KNNRequest(query))
	if err != nil {
		return nil, err
	}

	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(index),
		e.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("search failed: %s: %s", res.Status(), raw)
	}
	return ParseSearchResponse(raw)
}

// Count returns the number of chunks in index, zero when it does not exist.
func (e *SDK) Count(ctx context.Context, index string) (int, error) {
	res, err := e.client.Count(
		e.client.Count.WithContext(ctx),
		e.client.Count.WithIndex(index),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if res.IsError() {
		return 0, fmt.Errorf("count failed: %s", res.Status())
	}

	var out struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode count response: %w", err)
	}
	return out.Count, nil
}

// BulkBody encodes chunks as NDJSON index actions.
func BulkBody(index string, chunks []Chunk) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, c := range chunks {
		action := map[string]any{"index": map[string]any{"_index": index, "_id": c.ID}}
		if err := enc.Encode(action); err != nil {
			return nil, err
		}
		if err := enc.Encode(c); err != nil {
			return nil, fmt.Errorf("failed to encode chunk %s: %w", c.ID, err)
		}
	}
	return buf.Bytes(), nil
}

// KNNRequest builds the search body for query.
func KNNRequest(query KNNQuery) map[string]any {
	candidates := query.K * 10
	if candidates < 100 {
		candidates = 100
	}
	if candidates > maxNumCandidates {
		candidates = maxNumCandidates
	}
	if candidates < query.K {
		candidates = query.K
	}

	knn := map[string]any{
		"field":          FieldVector,
		"query_vector":   query.Vector,
		"k":              query.K,
		"num_candidates": candidates,
	}
	if query.Similarity > 0 {
		knn["similarity"] = query.Similarity
	}

	return map[string]any{
		"knn":     knn,
		"size":    query.K,
		"_source": []string{FieldContent, FieldMetadata},
	}
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// ParseBulkResponse returns the first item error of a bulk response.
func ParseBulkResponse(raw []byte) error {
	var resp bulkResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if !resp.Errors {
		return nil
	}
	for _, item := range resp.Items {
		for _, result := range item {
			if result.Error != nil {
				return fmt.Errorf("failed to index %s: %s: %s", result.ID, result.Error.Type, result.Error.Reason)
			}
		}
	}
	return errors.New("bulk response reported errors")
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string  `json:"_id"`
			Score  float64 `json:"_score"`
			Source struct {
				Content  string         `json:"content"`
				Metadata map[string]any `json:"metadata"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// ParseSearchResponse extracts the hits of a search response in order.
func ParseSearchResponse(raw []byte) ([]Hit, error) {
	var resp searchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		meta := h.Source.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		hits = append(hits, Hit{
			ID:       h.ID,
			Score:    h.Score,
			Content:  h.Source.Content,
			Metadata: meta,
		})
	}
	return hits, nil
}
