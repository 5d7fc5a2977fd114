package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	httpHdlr "pdfqa/handler/http"
	"pdfqa/src/core/pdfqa"
	"pdfqa/src/fsutil"
	"pdfqa/src/llmtest"
	"pdfqa/src/pdftest"
	"pdfqa/src/storage/chromemctrl"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type pinger struct{ err error }

func (p pinger) Heartbeat(context.Context) error { return p.err }

type server struct {
	router    *gin.Engine
	llm       *llmtest.LLM
	embedder  *llmtest.Embedder
	store     *chromemctrl.Store
	uploadDir string
}

func newServer(t *testing.T, llm *llmtest.LLM, pingErr error) *server {
	t.Helper()
	dir := t.TempDir()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake.NewNode() error = %v", err)
	}
	embedder := &llmtest.Embedder{}
	store, err := chromemctrl.NewStore(chromemctrl.Config{Path: filepath.Join(dir, "db")}, embedder, node)
	if err != nil {
		t.Fatalf("chromemctrl.NewStore() error = %v", err)
	}

	uploadDir := filepath.Join(dir, "pdf")
	svc, err := pdfqa.NewService(llm, store, fsutil.NewLocalFileStore(), pdfqa.Config{
		UploadDir:      uploadDir,
		TopK:           20,
		ScoreThreshold: 0.1,
	}, pdfqa.WithPinger(pinger{err: pingErr}))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	return &server{
		router:    httpHdlr.NewRouter(httpHdlr.NewHandler(svc)),
		llm:       llm,
		embedder:  embedder,
		store:     store,
		uploadDir: uploadDir,
	}
}

func (s *server) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func jsonRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func uploadRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/pdf", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode %q: %v", w.Body.String(), err)
	}
	return v
}

func dirEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	return len(entries)
}

func TestHealth(t *testing.T) {
	s := newServer(t, llmtest.NewFailingLLM(llmtest.ErrUnavailable), errors.New("down"))

	w := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"status":"healthy"}` {
		t.Errorf("body = %s", got)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name     string
		pingErr  error
		wantCode int
	}{
		{name: "all up", wantCode: http.StatusOK},
		{name: "ollama down", pingErr: errors.New("connection refused"), wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t, llmtest.NewLLM("ok"), tt.pingErr)
			w := s.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			got := decode[pdfqa.HealthStatus](t, w)
			if got.Components.VectorStore != pdfqa.StatusUp {
				t.Errorf("vector_store = %q, want up", got.Components.VectorStore)
			}
		})
	}
}

func TestAskAI(t *testing.T) {
	tests := []struct {
		name       string
		llm        *llmtest.LLM
		body       string
		wantCode   int
		wantAnswer string
		wantDetail string
	}{
		{name: "answer", llm: llmtest.NewLLM("4"), body: `{"query":"2+2"}`, wantCode: http.StatusOK, wantAnswer: "4"},
		{name: "empty query passes through", llm: llmtest.NewLLM("?"), body: `{"query":""}`, wantCode: http.StatusOK, wantAnswer: "?"},
		{name: "missing query", llm: llmtest.NewLLM("4"), body: `{}`, wantCode: http.StatusBadRequest},
		{name: "query not a string", llm: llmtest.NewLLM("4"), body: `{"query":7}`, wantCode: http.StatusBadRequest},
		{name: "model failure", llm: llmtest.NewFailingLLM(llmtest.ErrUnavailable), body: `{"query":"2+2"}`, wantCode: http.StatusInternalServerError, wantDetail: "model unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t, tt.llm, nil)
			w := s.do(jsonRequest("/ai", tt.body))
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}

			if tt.wantCode == http.StatusOK {
				got := decode[httpHdlr.AnswerResponse](t, w)
				if got.Answer != tt.wantAnswer {
					t.Errorf("answer = %q, want %q", got.Answer, tt.wantAnswer)
				}
			} else {
				got := decode[httpHdlr.ErrorResponse](t, w)
				if got.Detail == "" || !strings.Contains(got.Detail, tt.wantDetail) {
					t.Errorf("detail = %q, want it to contain %q", got.Detail, tt.wantDetail)
				}
			}

			if s.embedder.Calls() != 0 || s.store.Count() != 0 || dirEntries(t, s.uploadDir) != 0 {
				t.Error("/ai touched the vector store or the upload directory")
			}
		})
	}
}

func TestAskPDFEmptyStore(t *testing.T) {
	s := newServer(t, llmtest.NewLLM("The documents do not say."), nil)

	w := s.do(jsonRequest("/ask_pdf", `{"query":"what is the torque spec?"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"sources":[]`) {
		t.Errorf("body = %s, want an empty sources list", w.Body.String())
	}
	got := decode[pdfqa.Answer](t, w)
	if got.Answer != "The documents do not say." {
		t.Errorf("answer = %q", got.Answer)
	}
}

func TestUploadThenAsk(t *testing.T) {
	s := newServer(t, llmtest.NewLLM("see sources"), nil)
	data := pdftest.Build("wombat4242 gasket", strings.Repeat("filler text for the second page ", 60))

	w := s.do(uploadRequest(t, "file", "x.pdf", data))
	if w.Code != http.StatusOK {
		t.Fatalf("upload status = %d, want 200: %s", w.Code, w.Body.String())
	}
	first := decode[pdfqa.IngestResult](t, w)
	if first.Status != "Successfully Uploaded" || first.Filename != "x.pdf" {
		t.Errorf("upload result = %+v", first)
	}
	if first.DocLen <= 0 || first.Chunks < first.DocLen {
		t.Errorf("doc_len = %d, chunks = %d, want doc_len > 0 and chunks >= doc_len", first.DocLen, first.Chunks)
	}
	if _, err := os.Stat(filepath.Join(s.uploadDir, "x.pdf")); err != nil {
		t.Errorf("uploaded file not saved: %v", err)
	}

	// same file again appends
	w = s.do(uploadRequest(t, "file", "x.pdf", data))
	if w.Code != http.StatusOK {
		t.Fatalf("second upload status = %d: %s", w.Code, w.Body.String())
	}
	if got := s.store.Count(); got != 2*first.Chunks {
		t.Errorf("store count = %d, want %d", got, 2*first.Chunks)
	}

	w = s.do(jsonRequest("/ask_pdf", `{"query":"wombat4242"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("ask status = %d: %s", w.Code, w.Body.String())
	}
	answer := decode[pdfqa.Answer](t, w)
	var hits int
	for _, src := range answer.Sources {
		if strings.Contains(src.PageContent, "wombat4242") {
			hits++
		}
	}
	if hits == 0 {
		t.Errorf("no source contains the token: %+v", answer.Sources)
	}
}

func TestUploadRejected(t *testing.T) {
	tests := []struct {
		name       string
		req        func(t *testing.T) *http.Request
		wantCode   int
		wantDetail string
	}{
		{
			name:       "text file",
			req:        func(t *testing.T) *http.Request { return uploadRequest(t, "file", "x.txt", pdftest.Build("hello")) },
			wantCode:   http.StatusBadRequest,
			wantDetail: "Only PDF files are allowed",
		},
		{
			name:     "wrong field",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "document", "x.pdf", pdftest.Build("hello")) },
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "not multipart",
			req:      func(*testing.T) *http.Request { return jsonRequest("/pdf", `{"file":"x.pdf"}`) },
			wantCode: http.StatusBadRequest,
		},
		{
			name: "truncated multipart",
			req: func(*testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/pdf", strings.NewReader("--xyz\r\nContent-Disposition: form-data; name=\"file\"; filename=\"x.pdf\"\r\n\r\n%PDF"))
				req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
				return req
			},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t, llmtest.NewLLM("ok"), nil)
			w := s.do(tt.req(t))
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			got := decode[httpHdlr.ErrorResponse](t, w)
			if got.Detail == "" || (tt.wantDetail != "" && got.Detail != tt.wantDetail) {
				t.Errorf("detail = %q, want %q", got.Detail, tt.wantDetail)
			}
			if n := dirEntries(t, s.uploadDir); n != 0 {
				t.Errorf("upload dir has %d entries, want 0", n)
			}
			if s.store.Count() != 0 {
				t.Errorf("store count = %d, want 0", s.store.Count())
			}
		})
	}
}

func TestUploadMalformedPDF(t *testing.T) {
	s := newServer(t, llmtest.NewLLM("ok"), nil)

	w := s.do(uploadRequest(t, "file", "broken.PDF", []byte("this is not a pdf")))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500: %s", w.Code, w.Body.String())
	}
	if decode[httpHdlr.ErrorResponse](t, w).Detail == "" {
		t.Error("detail is empty")
	}
	if s.store.Count() != 0 {
		t.Errorf("store count = %d, want 0", s.store.Count())
	}
}

func TestCORS(t *testing.T) {
	s := newServer(t, llmtest.NewLLM("ok"), nil)
	origin := "http://frontend.test"

	preflight := httptest.NewRequest(http.MethodOptions, "/ask_pdf", nil)
	preflight.Header.Set("Origin", origin)
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	preflight.Header.Set("Access-Control-Request-Headers", "Content-Type")

	w := s.do(preflight)
	if w.Code >= 300 {
		t.Fatalf("preflight status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != origin {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, origin)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Access-Control-Allow-Credentials = %q, want true", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, http.MethodPost) {
		t.Errorf("Access-Control-Allow-Methods = %q, want POST", got)
	}

	custom := httptest.NewRequest(http.MethodOptions, "/ask_pdf", nil)
	custom.Header.Set("Origin", origin)
	custom.Header.Set("Access-Control-Request-Method", http.MethodPost)
	custom.Header.Set("Access-Control-Request-Headers", "content-type,x-tenant-token")

	w = s.do(custom)
	if w.Code >= 300 {
		t.Fatalf("custom header preflight status = %d", w.Code)
	}
	allowed := strings.ToLower(w.Header().Get("Access-Control-Allow-Headers"))
	for _, h := range []string{"content-type", "x-tenant-token"} {
		if !strings.Contains(allowed, h) {
			t.Errorf("Access-Control-Allow-Headers = %q, want %s", allowed, h)
		}
	}
	if strings.Contains(allowed, "*") {
		t.Errorf("Access-Control-Allow-Headers = %q, wildcard is ignored with credentials", allowed)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("custom header preflight Access-Control-Allow-Credentials = %q, want true", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", origin)
	w = s.do(req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != origin {
		t.Errorf("simple request Access-Control-Allow-Origin = %q, want %q", got, origin)
	}
}

func TestRequestID(t *testing.T) {
	s := newServer(t, llmtest.NewLLM("ok"), nil)

	w := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Header().Get(httpHdlr.RequestIDHeader) == "" {
		t.Error("no request id assigned")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(httpHdlr.RequestIDHeader, "abc-123")
	w = s.do(req)
	if got := w.Header().Get(httpHdlr.RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want abc-123", got)
	}
}
