package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"PrivateLine/server/internal/appMiddleware"
	"PrivateLine/server/internal/pipeline"
	"PrivateLine/server/internal/realtime"
	"PrivateLine/server/internal/store"
	"PrivateLine/server/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler subscribes an authenticated connection to its user-id
// channel on the hub and relays the few client-initiated events that flow
// over the socket rather than HTTP.
type WebSocketHandler struct {
	hub       *realtime.Hub
	pipeline  *pipeline.Pipeline
	users     *store.UserRepository
	jwtSecret string
	logger    *logger.Logger
}

func NewWebSocketHandler(hub *realtime.Hub, p *pipeline.Pipeline, users *store.UserRepository, jwtSecret string, log *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, pipeline: p, users: users, jwtSecret: jwtSecret, logger: log}
}

// inboundEvent is what clients may push over the socket. State-changing
// operations stay on HTTP; the socket carries only ephemeral signals.
type inboundEvent struct {
	Event  string `json:"event"`
	UserID int64  `json:"user_id"`
}

func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}
	userID, err := appMiddleware.ParseToken(tokenStr, h.jwtSecret)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "user_id", userID, "err", err)
		return
	}

	sessionID := h.hub.Subscribe(userID, realtime.NewWebsocketConn(conn))
	h.logger.Info("session connected", "user_id", userID, "session_id", sessionID)

	ctx := appMiddleware.WithUserID(r.Context(), userID)
	defer func() {
		h.hub.Unsubscribe(userID, sessionID)
		if err := h.users.TouchLastSeen(ctx, userID, nowUnix()); err != nil {
			h.logger.Warn("last seen not updated", "user_id", userID, "err", err)
		}
		h.logger.Info("session disconnected", "user_id", userID, "session_id", sessionID)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg inboundEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.logger.Debug("dropping malformed frame", "user_id", userID, "err", err)
			continue
		}

		switch msg.Event {
		case pipeline.EventTyping:
			_ = h.pipeline.Typing(ctx, userID, msg.UserID, false)
		case pipeline.EventTypingDone:
			_ = h.pipeline.Typing(ctx, userID, msg.UserID, true)
		case "seen":
			if err := h.pipeline.Seen(ctx, userID, msg.UserID); err != nil {
				h.logger.Warn("seen over socket failed", "user_id", userID, "err", err)
			}
		default:
			h.logger.Debug("unknown socket event", "event", msg.Event, "user_id", userID)
		}
	}
}
