package ollama

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	lcollama "github.com/tmc/langchaingo/llms/ollama"
)

const (
	DefaultURL            = "http://localhost:11434"
	DefaultModel          = "mistral"
	DefaultEmbeddingModel = "nomic-embed-text"
)

// Config describes how to reach the Ollama server and which models to use.
type Config struct {
	URL            string
	Model          string
	EmbeddingModel string
	// KeepAlive is passed through to Ollama, e.g. "5m". Empty keeps the server default.
	KeepAlive string
}

// Provider owns the chat model and the embedder for the lifetime of the
// process. Both share one HTTP client, released by Close.
type Provider struct {
	httpClient *http.Client
	llm        *lcollama.LLM
	embedder   *embeddings.EmbedderImpl
	cfg        Config
}

func NewProvider(cfg Config) (*Provider, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", cfg.URL, err)
	}

	httpClient := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
	}

	llm, err := lcollama.New(modelOptions(cfg, cfg.Model, httpClient)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama llm: %w", err)
	}

	embedLLM, err := lcollama.New(modelOptions(cfg, cfg.EmbeddingModel, httpClient)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(embedLLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return &Provider{
		httpClient: httpClient,
		llm:        llm,
		embedder:   embedder,
		cfg:        cfg,
	}, nil
}

func modelOptions(cfg Config, model string, httpClient *http.Client) []lcollama.Option {
	opts := []lcollama.Option{
		lcollama.WithServerURL(cfg.URL),
		lcollama.WithModel(model),
		lcollama.WithHTTPClient(httpClient),
	}
	if cfg.KeepAlive != "" {
		opts = append(opts, lcollama.WithKeepAlive(cfg.KeepAlive))
	}
	return opts
}

// LLM returns the chat model.
func (p *Provider) LLM() llms.Model {
	return p.llm
}

// Embedder returns the embedding function.
func (p *Provider) Embedder() embeddings.Embedder {
	return p.embedder
}

// Models returns the chat and embedding model names.
func (p *Provider) Models() []string {
	return []string{p.cfg.Model, p.cfg.EmbeddingModel}
}

// URL returns the Ollama base URL.
func (p *Provider) URL() string {
	return p.cfg.URL
}

// HTTPClient returns the client shared by the model and the embedder.
func (p *Provider) HTTPClient() *http.Client {
	return p.httpClient
}

// Close drops idle connections to the Ollama server. The provider must not be
// used afterwards.
func (p *Provider) Close() error {
	if p.httpClient == nil {
		return errors.New("provider already closed")
	}
	p.httpClient.CloseIdleConnections()
	p.httpClient = nil
	return nil
}
