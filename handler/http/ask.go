package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AskAI sends the query straight to the language model.
func (h *Handler) AskAI(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	answer, err := h.svc.Ask(c.Request.Context(), *req.Query)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, AnswerResponse{Answer: answer})
}

// AskPDF answers the query from the indexed documents.
func (h *Handler) AskPDF(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	answer, err := h.svc.AskPDF(c.Request.Context(), *req.Query)
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	sendJSON(c, http.StatusOK, answer)
}
