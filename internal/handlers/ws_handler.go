package handlers

import (
	"net/http"
	"strings"

	"github.com/carebridge/carebridge-api/internal/middleware"
	"github.com/carebridge/carebridge-api/internal/realtime"
	"github.com/gin-gonic/gin"
)

// ServeWS upgrades to a WebSocket. Browsers cannot set headers on the
// upgrade request, so the token may also come as ?token=.
func (h *Handler) ServeWS(c *gin.Context) {
	if h.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Realtime updates are not available"})
		return
	}
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	id, err := middleware.IdentityFromToken(h.Tokens, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid token"})
		return
	}

	sub := realtime.Subscriber{UserID: id.UserID.Hex(), Role: id.Role}
	if err := h.Hub.ServeWS(c.Writer, c.Request, sub); err != nil {
		h.Log.Warn().Err(err).Msg("websocket upgrade failed")
	}
}
