package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"pdfqa/src/log"
)

// Client manages models on an Ollama server.
type Client struct {
	api *api.Client
}

// NewClient creates a model management client for baseURL, e.g.
// http://localhost:11434.
func NewClient(baseURL string, c *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", baseURL, err)
	}
	if c == nil {
		c = http.DefaultClient
	}

	return &Client{api: api.NewClient(u, c)}, nil
}

// Heartbeat checks that the server is reachable.
func (c *Client) Heartbeat(ctx context.Context) error {
	if err := c.api.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama heartbeat failed: %w", err)
	}
	return nil
}

// MissingModels returns the names in models that are not present locally.
// A name without a tag matches the ":latest" tag.
func (c *Client) MissingModels(ctx context.Context, models []string) ([]string, error) {
	resp, err := c.api.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	have := make(map[string]struct{}, len(resp.Models))
	for _, m := range resp.Models {
		have[m.Name] = struct{}{}
		have[m.Model] = struct{}{}
	}

	var missing []string
	for _, name := range models {
		if _, ok := have[name]; ok {
			continue
		}
		if !strings.Contains(name, ":") {
			if _, ok := have[name+":latest"]; ok {
				continue
			}
		}
		missing = append(missing, name)
	}

	return missing, nil
}

// Progress is reported while a model is being pulled.
type Progress struct {
	Model     string
	Status    string
	Total     int64
	Completed int64
}

// Pull downloads model, calling fn for every progress update.
func (c *Client) Pull(ctx context.Context, model string, fn func(Progress) error) error {
	log.Info("pulling model", "model", model)

	err := c.api.Pull(ctx, &api.PullRequest{Model: model}, func(resp api.ProgressResponse) error {
		if fn == nil {
			return nil
		}
		return fn(Progress{
			Model:     model,
			Status:    resp.Status,
			Total:     resp.Total,
			Completed: resp.Completed,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to pull model %s: %w", model, err)
	}

	log.Info("model ready", "model", model)
	return nil
}

// EnsureModels pulls every model in models that the server does not have yet.
func (c *Client) EnsureModels(ctx context.Context, models []string, fn func(Progress) error) error {
	missing, err := c.MissingModels(ctx, models)
	if err != nil {
		return err
	}

	for _, m := range missing {
		if err := c.Pull(ctx, m, fn); err != nil {
			return err
		}
	}
	return nil
}
