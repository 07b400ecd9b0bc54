package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"PrivateLine/server/internal/appMiddleware"
	"PrivateLine/server/internal/pipeline"
	"PrivateLine/server/pkg/errors"
	"PrivateLine/server/pkg/logger"
)

// MessageHandler carries the message-level endpoints; every request arrives
// with the user id already resolved by the auth middleware.
type MessageHandler struct {
	pipeline *pipeline.Pipeline
	logger   *logger.Logger
}

func NewMessageHandler(p *pipeline.Pipeline, log *logger.Logger) *MessageHandler {
	return &MessageHandler{pipeline: p, logger: log}
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req pipeline.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, errors.InvalidArg("invalid request body"))
		return
	}
	req.FromID = appMiddleware.UserID(r.Context())

	msg, err := h.pipeline.Send(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	msgs, err := h.pipeline.Get(r.Context(), pipeline.GetRequest{
		CallerID: appMiddleware.UserID(r.Context()),
		PeerID:   queryInt64(q.Get("user_id")),
		ExactID:  queryInt64(q.Get("exact_id")),
		AfterID:  queryInt64(q.Get("after_id")),
		BeforeID: queryInt64(q.Get("before_id")),
		Limit:    queryUint64(q.Get("limit")),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *MessageHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	msgs, err := h.pipeline.LoadMore(r.Context(),
		appMiddleware.UserID(r.Context()),
		queryInt64(q.Get("user_id")),
		queryInt64(q.Get("before_id")),
		queryUint64(q.Get("limit")),
	)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *MessageHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	msgs, err := h.pipeline.Search(r.Context(), pipeline.SearchRequest{
		CallerID: appMiddleware.UserID(r.Context()),
		PeerID:   queryInt64(q.Get("user_id")),
		Query:    q.Get("q"),
		Limit:    queryUint64(q.Get("limit")),
		Offset:   queryUint64(q.Get("offset")),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, errors.InvalidArg("invalid request body"))
		return
	}

	msg, err := h.pipeline.Edit(r.Context(),
		appMiddleware.UserID(r.Context()), pathInt64(r, "message_id"), req.Text)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.pipeline.Delete(r.Context(),
		appMiddleware.UserID(r.Context()), pathInt64(r, "message_id"),
		r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *MessageHandler) React(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reaction string `json:"reaction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, errors.InvalidArg("invalid request body"))
		return
	}

	action, err := h.pipeline.React(r.Context(),
		appMiddleware.UserID(r.Context()), pathInt64(r, "message_id"), req.Reaction)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"action": action})
}

func (h *MessageHandler) Pin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID int64 `json:"chat_id"`
		Pinned bool  `json:"pinned"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, errors.InvalidArg("invalid request body"))
		return
	}

	err := h.pipeline.PinMessage(r.Context(),
		appMiddleware.UserID(r.Context()), req.ChatID, pathInt64(r, "message_id"), req.Pinned)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"pinned": req.Pinned})
}

func (h *MessageHandler) Forward(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ForwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, errors.InvalidArg("invalid request body"))
		return
	}
	req.CallerID = appMiddleware.UserID(r.Context())
	req.MessageID = pathInt64(r, "message_id")

	deliveries, err := h.pipeline.Forward(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, deliveries)
}

func (h *MessageHandler) Favorite(w http.ResponseWriter, r *http.Request) {
	fav, err := h.pipeline.Favorite(r.Context(),
		appMiddleware.UserID(r.Context()), pathInt64(r, "message_id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"favorite": fav})
}

func (h *MessageHandler) FavoriteList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	msgs, err := h.pipeline.FavoriteList(r.Context(),
		appMiddleware.UserID(r.Context()),
		queryUint64(q.Get("limit")), queryUint64(q.Get("offset")))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func pathInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return v
}

func queryInt64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func queryUint64(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}
