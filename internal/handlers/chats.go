package handlers

import (
	"encoding/json"
	"net/http"

	"PrivateLine/server/internal/appMiddleware"
	"PrivateLine/server/internal/pipeline"
	"PrivateLine/server/pkg/errors"
	"PrivateLine/server/pkg/logger"
)

// ChatHandler carries the conversation-level endpoints: listing, directory
// settings and read state.
type ChatHandler struct {
	pipeline *pipeline.Pipeline
	logger   *logger.Logger
}

func NewChatHandler(p *pipeline.Pipeline, log *logger.Logger) *ChatHandler {
	return &ChatHandler{pipeline: p, logger: log}
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.pipeline.Conversations(r.Context(),
		appMiddleware.UserID(r.Context()),
		q.Get("archived") == "1" || q.Get("archived") == "true",
		queryUint64(q.Get("limit")), queryUint64(q.Get("offset")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ChatHandler) Settings(w http.ResponseWriter, r *http.Request) {
	entry, err := h.pipeline.ConversationSettings(r.Context(),
		appMiddleware.UserID(r.Context()), pathInt64(r, "user_id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *ChatHandler) Seen(w http.ResponseWriter, r *http.Request) {
	err := h.pipeline.Seen(r.Context(),
		appMiddleware.UserID(r.Context()), pathInt64(r, "user_id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"seen": true})
}

func (h *ChatHandler) ReadAll(w http.ResponseWriter, r *http.Request) {
	err := h.pipeline.ReadAll(r.Context(),
		appMiddleware.UserID(r.Context()), pathInt64(r, "user_id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}

func (h *ChatHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.pipeline.UnreadCount(r.Context(),
		appMiddleware.UserID(r.Context()), pathInt64(r, "user_id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (h *ChatHandler) Archive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Archived bool `json:"archived"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, errors.InvalidArg("invalid request body"))
		return
	}
	err := h.pipeline.Archive(r.Context(),
		appMiddleware.UserID(r.Context()), pathInt64(r, "user_id"), req.Archived)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"archived": req.Archived})
}

func (h *ChatHandler) Mute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Field   string `json:"field"`
		Enabled bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, errors.InvalidArg("invalid request body"))
		return
	}
	err := h.pipeline.Mute(r.Context(),
		appMiddleware.UserID(r.Context()), pathInt64(r, "user_id"), req.Field, req.Enabled)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

func (h *ChatHandler) PinChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pinned bool `json:"pinned"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, errors.InvalidArg("invalid request body"))
		return
	}
	err := h.pipeline.PinChat(r.Context(),
		appMiddleware.UserID(r.Context()), pathInt64(r, "user_id"), req.Pinned)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"pinned": req.Pinned})
}

func (h *ChatHandler) Color(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Color string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, errors.InvalidArg("invalid request body"))
		return
	}
	err := h.pipeline.SetColor(r.Context(),
		appMiddleware.UserID(r.Context()), pathInt64(r, "user_id"), req.Color)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"color": req.Color})
}

func (h *ChatHandler) Pins(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.pipeline.PinnedList(r.Context(),
		appMiddleware.UserID(r.Context()), pathInt64(r, "user_id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *ChatHandler) Typing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Done bool `json:"done"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, errors.InvalidArg("invalid request body"))
		return
	}
	err := h.pipeline.Typing(r.Context(),
		appMiddleware.UserID(r.Context()), pathInt64(r, "user_id"), req.Done)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
