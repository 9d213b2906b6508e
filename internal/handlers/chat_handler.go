package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

type AnalyzeReportRequest struct {
	Image  string `json:"image" binding:"required"`
	Prompt string `json:"prompt"`
}

// HandleChat relays a patient's question to the assistant.
func (h *Handler) HandleChat(c *gin.Context) {
	if h.Chat == nil || !h.Chat.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Chat assistant is not configured"})
		return
	}
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, `Invalid request format, expecting {"message": "..."}`)
		return
	}

	reply, err := h.Chat.Reply(c.Request.Context(), req.Message)
	if err != nil {
		h.respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": reply})
}

// AnalyzeReport sends an uploaded report image to the assistant for a
// plain-language summary.
func (h *Handler) AnalyzeReport(c *gin.Context) {
	if h.Chat == nil || !h.Chat.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Chat assistant is not configured"})
		return
	}
	var req AnalyzeReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	analysis, err := h.Chat.AnalyzeReport(c.Request.Context(), req.Image, req.Prompt)
	if err != nil {
		h.respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "analysis": analysis})
}

// respondUpstreamError maps failures of the chat and prediction services to
// HTTP statuses.
func (h *Handler) respondUpstreamError(c *gin.Context, err error) {
	h.Log.Warn().Err(err).Str("path", c.FullPath()).Msg("upstream request failed")
	switch status := errorStatus(err); status {
	case http.StatusInternalServerError:
		c.JSON(http.StatusBadGateway, gin.H{"message": "Upstream service returned an error"})
	default:
		c.JSON(status, gin.H{"message": err.Error()})
	}
}
