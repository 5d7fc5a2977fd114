package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health always reports healthy.
func (h *Handler) Health(c *gin.Context) {
	sendJSON(c, http.StatusOK, gin.H{"status": "healthy"})
}

// Ready reports the state of every backing component, 503 when one is down.
func (h *Handler) Ready(c *gin.Context) {
	status, err := h.svc.CheckHealth(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, err)
		return
	}

	code := http.StatusOK
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
	}
	sendJSON(c, code, status)
}
