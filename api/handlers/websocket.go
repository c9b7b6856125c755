// Package handlers provides HTTP API request handlers.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/agent-relay/backend/internal/logging"
	"github.com/agent-relay/backend/internal/ws"
)

// WebSocketHandler exposes the broker's WebSocket endpoint.
type WebSocketHandler struct {
	gateway *ws.Gateway
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(gateway *ws.Gateway) *WebSocketHandler {
	return &WebSocketHandler{gateway: gateway}
}

// Connect handles GET /api/ws - upgrades to WebSocket and hands the
// connection to the gateway.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if err := h.gateway.HandleConnection(c.Writer, c.Request); err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
	}
}

// RegisterRoutes registers the WebSocket route on a Gin router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws", h.Connect)
}
