package elasticctrl_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"pdfqa/src/llmtest"
	"pdfqa/src/storage/elasticctrl"
)

type fakeBackend struct {
	mu      sync.Mutex
	ensured []int
	chunks  map[string]elasticctrl.Chunk
	bulkErr error
	deleted []string
	queries []elasticctrl.KNNQuery
	hits    []elasticctrl.Hit
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{chunks: map[string]elasticctrl.Chunk{}}
}

func (f *fakeBackend) EnsureIndex(_ context.Context, _ string, dims int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, dims)
	return nil
}

// BulkIndex writes the first chunk before failing, like a bulk request with
// some failed items.
func (f *fakeBackend) BulkIndex(_ context.Context, _ string, chunks []elasticctrl.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bulkErr != nil {
		if len(chunks) > 0 {
			f.chunks[chunks[0].ID] = chunks[0]
		}
		return f.bulkErr
	}
	for _, c := range chunks {
		f.chunks[c.ID] = c
	}
	return nil
}

func (f *fakeBackend) Delete(_ context.Context, _ string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	delete(f.chunks, id)
	return nil
}

func (f *fakeBackend) KNNSearch(_ context.Context, _ string, query elasticctrl.KNNQuery) ([]elasticctrl.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.hits, nil
}

func (f *fakeBackend) Count(context.Context, string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks), nil
}

func newTestStore(t *testing.T, backend *fakeBackend, embedder *llmtest.Embedder) *elasticctrl.Store {
	t.Helper()
	store, err := elasticctrl.NewStore(backend, "", embedder)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func approx(a, b float32) bool {
	d := a - b
	return d < 1e-6 && d > -1e-6
}

func TestScoreToSimilarity(t *testing.T) {
	tests := []struct {
		score float64
		want  float32
	}{
		{score: 1, want: 1},
		{score: 0.55, want: 0.1},
		{score: 0.5, want: 0},
		{score: 0, want: -1},
	}

	for _, tt := range tests {
		if got := elasticctrl.ScoreToSimilarity(tt.score); !approx(got, tt.want) {
			t.Errorf("ScoreToSimilarity(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestStoreAddDocuments(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	store := newTestStore(t, backend, &llmtest.Embedder{})

	if n, err := store.CountDocuments(ctx); err != nil || n != 0 {
		t.Fatalf("CountDocuments() = (%d, %v), want (0, nil)", n, err)
	}

	for _, batch := range [][]schema.Document{
		{{PageContent: "pump seal", Metadata: map[string]any{"source": "pdf/a.pdf"}}},
		{{PageContent: "valve notes", Metadata: map[string]any{"source": "pdf/b.pdf"}}},
	} {
		ids, err := store.AddDocuments(ctx, batch)
		if err != nil {
			t.Fatalf("AddDocuments() error = %v", err)
		}
		if len(ids) != 1 {
			t.Fatalf("AddDocuments() ids = %v", ids)
		}
		c := backend.chunks[ids[0]]
		if c.Content != batch[0].PageContent || c.Metadata["source"] != batch[0].Metadata["source"] {
			t.Errorf("chunk = %+v", c)
		}
	}

	if len(backend.ensured) != 1 || backend.ensured[0] != llmtest.Dimensions {
		t.Errorf("EnsureIndex dims = %v, want one call with %d", backend.ensured, llmtest.Dimensions)
	}
	if n, err := store.CountDocuments(ctx); err != nil || n != 2 {
		t.Errorf("CountDocuments() = (%d, %v), want (2, nil)", n, err)
	}
}

func TestStoreAddDocumentsRollsBack(t *testing.T) {
	backend := newFakeBackend()
	backend.bulkErr = errors.New("mapper_parsing_exception")
	store := newTestStore(t, backend, &llmtest.Embedder{})

	_, err := store.AddDocuments(context.Background(), []schema.Document{
		{PageContent: "one"}, {PageContent: "two"},
	})
	if !errors.Is(err, backend.bulkErr) {
		t.Fatalf("AddDocuments() error = %v, want %v", err, backend.bulkErr)
	}
	if len(backend.deleted) != 2 || len(backend.chunks) != 0 {
		t.Errorf("deleted %v, %d chunks left, want both ids deleted", backend.deleted, len(backend.chunks))
	}
}

func TestStoreAddDocumentsEmbedFailure(t *testing.T) {
	backend := newFakeBackend()
	store := newTestStore(t, backend, &llmtest.Embedder{Err: llmtest.ErrUnavailable})

	if _, err := store.AddDocuments(context.Background(), []schema.Document{{PageContent: "one"}}); !errors.Is(err, llmtest.ErrUnavailable) {
		t.Fatalf("AddDocuments() error = %v, want %v", err, llmtest.ErrUnavailable)
	}
	if len(backend.ensured) != 0 || len(backend.chunks) != 0 {
		t.Error("index touched after embedding failed")
	}
}

func TestStoreSimilaritySearch(t *testing.T) {
	hits := []elasticctrl.Hit{
		{ID: "a", Score: 0.9, Content: "pump seal", Metadata: map[string]any{"source": "pdf/a.pdf"}},
		{ID: "b", Score: 0.55, Content: "borderline", Metadata: map[string]any{}},
		{ID: "c", Score: 0.52, Content: "unrelated", Metadata: map[string]any{}},
	}

	tests := []struct {
		name           string
		k              int
		options        []vectorstores.Option
		wantSimilarity float32
		wantContents   []string
		wantErr        error
		wantQueried    bool
	}{
		{
			name:           "default threshold keeps the boundary",
			k:              20,
			options:        []vectorstores.Option{vectorstores.WithScoreThreshold(0.1)},
			wantSimilarity: 0.1,
			wantContents:   []string{"pump seal", "borderline"},
			wantQueried:    true,
		},
		{
			name:         "no threshold",
			k:            3,
			wantContents: []string{"pump seal", "borderline", "unrelated"},
			wantQueried:  true,
		},
		{name: "negative threshold", k: 20, options: []vectorstores.Option{vectorstores.WithScoreThreshold(-0.5)}, wantErr: elasticctrl.ErrInvalidScoreThreshold},
		{name: "filters", k: 20, options: []vectorstores.Option{vectorstores.WithFilters(map[string]any{"source": "x"})}, wantErr: elasticctrl.ErrFiltersNotSupported},
		{name: "zero k", k: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			backend.hits = hits
			store := newTestStore(t, backend, &llmtest.Embedder{})

			docs, err := store.SimilaritySearch(context.Background(), "pump seal", tt.k, tt.options...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SimilaritySearch() error = %v, want %v", err, tt.wantErr)
			}
			if len(docs) != len(tt.wantContents) {
				t.Fatalf("SimilaritySearch() returned %d docs, want %d", len(docs), len(tt.wantContents))
			}
			for i, doc := range docs {
				if doc.PageContent != tt.wantContents[i] {
					t.Errorf("docs[%d] = %q, want %q", i, doc.PageContent, tt.wantContents[i])
				}
			}

			if !tt.wantQueried {
				if len(backend.queries) != 0 {
					t.Errorf("backend queried %d times, want 0", len(backend.queries))
				}
				return
			}
			if len(backend.queries) != 1 {
				t.Fatalf("backend queried %d times, want 1", len(backend.queries))
			}
			q := backend.queries[0]
			if q.K != tt.k || !approx(q.Similarity, tt.wantSimilarity) || len(q.Vector) != llmtest.Dimensions {
				t.Errorf("query = {K:%d Similarity:%v dims:%d}, want K %d similarity %v", q.K, q.Similarity, len(q.Vector), tt.k, tt.wantSimilarity)
			}
		})
	}
}

func TestKNNRequest(t *testing.T) {
	tests := []struct {
		name           string
		query          elasticctrl.KNNQuery
		wantCandidates int
		wantSimilarity bool
	}{
		{name: "default k", query: elasticctrl.KNNQuery{Vector: []float32{1, 0}, K: 20, Similarity: 0.1}, wantCandidates: 200, wantSimilarity: true},
		{name: "small k", query: elasticctrl.KNNQuery{Vector: []float32{1, 0}, K: 2}, wantCandidates: 100},
		{name: "large k", query: elasticctrl.KNNQuery{Vector: []float32{1, 0}, K: 5000}, wantCandidates: 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := elasticctrl.KNNRequest(tt.query)
			knn := body["knn"].(map[string]any)

			if knn["field"] != elasticctrl.FieldVector || knn["k"] != tt.query.K || body["size"] != tt.query.K {
				t.Errorf("KNNRequest() = %v", body)
			}
			if knn["num_candidates"] != tt.wantCandidates {
				t.Errorf("num_candidates = %v, want %d", knn["num_candidates"], tt.wantCandidates)
			}
			if _, ok := knn["similarity"]; ok != tt.wantSimilarity {
				t.Errorf("similarity present = %v, want %v", ok, tt.wantSimilarity)
			}
		})
	}
}

func TestChunkMapping(t *testing.T) {
	raw, err := json.Marshal(elasticctrl.ChunkMapping(768))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, want := range []string{`"type":"dense_vector"`, `"dims":768`, `"similarity":"cosine"`, `"enabled":false`} {
		if !bytes.Contains(raw, []byte(want)) {
			t.Errorf("mapping %s does not contain %s", raw, want)
		}
	}
}

func TestBulkBody(t *testing.T) {
	body, err := elasticctrl.BulkBody("pdfqa-chunks", []elasticctrl.Chunk{
		{ID: "1", Content: "pump seal", Metadata: map[string]any{"source": "pdf/a.pdf"}, Vector: []float32{0.5, 0.5}},
	})
	if err != nil {
		t.Fatalf("BulkBody() error = %v", err)
	}

	lines := bytes.Split(bytes.TrimSpace(body), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("BulkBody() has %d lines, want 2:\n%s", len(lines), body)
	}

	var action map[string]map[string]string
	if err := json.Unmarshal(lines[0], &action); err != nil {
		t.Fatalf("action line: %v", err)
	}
	if action["index"]["_index"] != "pdfqa-chunks" || action["index"]["_id"] != "1" {
		t.Errorf("action = %v", action)
	}

	var source map[string]any
	if err := json.Unmarshal(lines[1], &source); err != nil {
		t.Fatalf("source line: %v", err)
	}
	if source["content"] != "pump seal" || len(source["vector"].([]any)) != 2 {
		t.Errorf("source = %v", source)
	}
	if _, ok := source["ID"]; ok {
		t.Error("chunk id leaked into _source")
	}
}

func TestParseBulkResponse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{name: "ok", raw: `{"took":3,"errors":false,"items":[{"index":{"_id":"1","status":201}}]}`},
		{
			name:    "item error",
			raw:     `{"errors":true,"items":[{"index":{"_id":"1","status":201}},{"index":{"_id":"2","status":400,"error":{"type":"mapper_parsing_exception","reason":"dims mismatch"}}}]}`,
			wantErr: true,
		},
		{name: "errors without detail", raw: `{"errors":true,"items":[]}`, wantErr: true},
		{name: "not json", raw: `<html>`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := elasticctrl.ParseBulkResponse([]byte(tt.raw)); (err != nil) != tt.wantErr {
				t.Errorf("ParseBulkResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseSearchResponseAndToDocuments(t *testing.T) {
	raw := []byte(`{"hits":{"total":{"value":2},"hits":[
		{"_id":"a","_score":0.8,"_source":{"content":"pump seal","metadata":{"source":"pdf/a.pdf","page":1}}},
		{"_id":"b","_score":0.51,"_source":{"content":"unrelated"}}
	]}}`)

	hits, err := elasticctrl.ParseSearchResponse(raw)
	if err != nil {
		t.Fatalf("ParseSearchResponse() error = %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "a" || hits[0].Score != 0.8 {
		t.Fatalf("ParseSearchResponse() = %+v", hits)
	}
	if hits[1].Metadata == nil {
		t.Error("missing metadata should decode as an empty map")
	}

	docs := elasticctrl.ToDocuments(hits, 0.1)
	if len(docs) != 1 || docs[0].Metadata["source"] != "pdf/a.pdf" || !approx(docs[0].Score, 0.6) {
		t.Errorf("ToDocuments() = %+v", docs)
	}

	if _, err := elasticctrl.ParseSearchResponse([]byte(`{`)); err == nil {
		t.Error("ParseSearchResponse(bad json) error = nil, want error")
	}
}
