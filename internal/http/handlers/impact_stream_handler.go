package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lewisdonovan/isleno-sub001/internal/http/middleware"
	"github.com/lewisdonovan/isleno-sub001/internal/session"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

// ImpactStreamHandler pushes coordinator state transitions to the UI over a
// WebSocket, so open impact views refresh after an approval lands.
type ImpactStreamHandler struct {
	sessions *session.Manager
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewImpactStreamHandler builds handler.
func NewImpactStreamHandler(sessions *session.Manager, logger *zap.Logger) *ImpactStreamHandler {
	return &ImpactStreamHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		logger: logger,
	}
}

// HandleStream handles GET /api/session/impact/stream.
func (h *ImpactStreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusBadRequest, "session not resolved")
		return
	}
	c := h.sessions.Coordinator(r.Context(), sessionID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := c.Subscribe()
	defer cancel()

	// Drain client frames so close/pong handling works; the stream is
	// one-directional otherwise.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("stream write failed", zap.String("session_id", sessionID), zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
