package proxy

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// createUpgrader creates a WebSocket upgrader restricted to the allowed origins.
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowedMap[origin]
		},
	}
}

// HandleWebSocket handles GET /ws: a request/reply relay carrying the same
// payloads as /api/chatgpt, one frame per message.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := createUpgrader(h.cfg.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	h.logger.Info("WebSocket client connected", "remote", r.RemoteAddr)

	for {
		var req ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			h.logger.Info("WebSocket client disconnected", "remote", r.RemoteAddr)
			return
		}

		if req.Message == "" {
			if err := conn.WriteJSON(errorResponse{Error: "Missing message in request body"}); err != nil {
				return
			}
			continue
		}

		reply, err := h.callUpstream(r.Context(), req.Message)
		switch {
		case err != nil:
			h.logger.Error("ChatGPT proxy failed", "error", err)
			err = conn.WriteJSON(errorResponse{Error: "ChatGPT request failed. Check server logs."})
		case reply == "":
			err = conn.WriteJSON(errorResponse{Error: "ChatGPT returned an empty response."})
		default:
			err = conn.WriteJSON(ChatResponse{Reply: reply})
		}
		if err != nil {
			return
		}
	}
}
