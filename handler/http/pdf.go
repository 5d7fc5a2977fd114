package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfqa/src/core/pdfqa"
)

// UploadPDF saves and indexes the multipart "file" field. The name is checked
// before anything is read or written.
func (h *Handler) UploadPDF(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("failed to read uploaded file: %w", err))
		return
	}

	if !pdfqa.IsPDF(header.Filename) {
		sendError(c, http.StatusBadRequest, pdfqa.ErrNotPDF)
		return
	}

	file, err := header.Open()
	if err != nil {
		sendError(c, http.StatusInternalServerError, fmt.Errorf("failed to open uploaded file: %w", err))
		return
	}
	defer file.Close()

	result, err := h.svc.Ingest(c.Request.Context(), header.Filename, file)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, result)
}
