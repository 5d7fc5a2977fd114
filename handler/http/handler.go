package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfqa/src/core/pdfqa"
	"pdfqa/src/log"
)

// Service is the question answering and ingestion surface the handlers use.
type Service interface {
	Ask(ctx context.Context, query string) (string, error)
	AskPDF(ctx context.Context, query string) (*pdfqa.Answer, error)
	Ingest(ctx context.Context, filename string, r io.Reader) (*pdfqa.IngestResult, error)
	CheckHealth(ctx context.Context) (*pdfqa.HealthStatus, error)
}

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{
		svc: svc,
	}
}

// NewRouter returns a gin engine with the middleware chain and every route
// registered.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(), CORS())
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/ai", h.AskAI)
	r.POST("/ask_pdf", h.AskPDF)
	r.POST("/pdf", h.UploadPDF)

	r.GET("/health", h.Health)
	r.GET("/health/ready", h.Ready)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// QueryRequest is the body of /ai and /ask_pdf. An empty query is passed on.
type QueryRequest struct {
	Query *string `json:"query" binding:"required"`
}

// AnswerResponse is the body of a successful /ai call.
type AnswerResponse struct {
	Answer string `json:"answer"`
}

func sendError(c *gin.Context, status int, err error) {
	if errors.Is(err, pdfqa.ErrNotPDF) {
		status = http.StatusBadRequest
	}
	if status >= http.StatusInternalServerError {
		log.Error(err, "request failed", "path", c.FullPath(), "request_id", c.GetString(requestIDKey))
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Detail: err.Error(),
	})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
