package gateway

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for group connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleGroupConnection handles GET /groups/{id}/ws
func (h *WebSocketHandler) HandleGroupConnection(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")

	// The upgrader has already answered the client on failure.
	if err := h.connectionManager.UpgradeConnection(w, r, groupID); err != nil {
		log.Warn().
			Err(err).
			Str("group_id", groupID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /groups/{id}/ws", h.HandleGroupConnection)
}
