package pdfqa

import (
	"context"
	"errors"
	"io/fs"
)

// ComponentStatus represents the status of system components
type ComponentStatus string

const (
	StatusUp   ComponentStatus = "up"
	StatusDown ComponentStatus = "down"
)

// HealthStatus represents system readiness
type HealthStatus struct {
	Status     string `json:"status"`
	Components struct {
		Ollama      ComponentStatus `json:"ollama"`
		VectorStore ComponentStatus `json:"vector_store"`
		Uploads     ComponentStatus `json:"uploads"`
	} `json:"components"`
	Documents int   `json:"documents"`
	Files     int   `json:"files"`
	Bytes     int64 `json:"bytes"`
}

// Healthy reports whether every component is up.
func (h *HealthStatus) Healthy() bool {
	return h.Status == "healthy"
}

// CheckHealth probes the model server, the vector store and the upload
// directory. A missing upload directory counts as empty.
func (s *Service) CheckHealth(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{Status: "healthy"}
	status.Components.Ollama = StatusDown
	status.Components.VectorStore = StatusDown
	status.Components.Uploads = StatusDown

	if s.pinger != nil {
		if err := s.pinger.Heartbeat(ctx); err == nil {
			status.Components.Ollama = StatusUp
		}
	}

	if counter, ok := s.store.(DocumentCounter); ok {
		if n, err := counter.CountDocuments(ctx); err == nil {
			status.Components.VectorStore = StatusUp
			status.Documents = n
		}
	} else {
		status.Components.VectorStore = StatusUp
	}

	count, size, err := s.files.GetFileStats(s.cfg.UploadDir)
	switch {
	case err == nil:
		status.Components.Uploads = StatusUp
		status.Files = count
		status.Bytes = size
	case errors.Is(err, fs.ErrNotExist):
		status.Components.Uploads = StatusUp
	}

	if status.Components.Ollama == StatusDown ||
		status.Components.VectorStore == StatusDown ||
		status.Components.Uploads == StatusDown {
		status.Status = "unhealthy"
	}

	return status, nil
}
