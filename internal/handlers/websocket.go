// internal/handlers/websocket.go
package handlers

import (
	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	"github.com/aetflow/aet-backend/internal/websocket"
)

type WebSocketHandler struct {
	hub      *websocket.Hub
	upgrader gorillaws.Upgrader
}

func NewWebSocketHandler(hub *websocket.Hub, upgrader gorillaws.Upgrader) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		upgrader: upgrader,
	}
}

// GET /ws
func (h *WebSocketHandler) Serve(c *gin.Context) {
	websocket.ServeWS(h.hub, h.upgrader, c.Writer, c.Request)
}
