package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dukerupert/village/internal/auth"
	"github.com/dukerupert/village/internal/metrics"
	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/push"
	"github.com/dukerupert/village/internal/store"
	"github.com/dukerupert/village/internal/websocket"
)

type MessageHandler struct {
	conversations *store.ConversationStore
	users         *store.UserStore
	notifier      Notifier
	hub           Broadcaster
	logger        *slog.Logger
}

func NewMessageHandler(cs *store.ConversationStore, us *store.UserStore, notifier Notifier, hub Broadcaster, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{conversations: cs, users: us, notifier: notifier, hub: hub, logger: logger}
}

// conversation loads the {id} conversation and checks the caller takes part
// in it.
func (h *MessageHandler) conversation(w http.ResponseWriter, r *http.Request) (*model.Conversation, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	c, err := h.conversations.GetByID(r.Context(), auth.HouseholdID(r.Context()), id)
	if err != nil {
		h.logger.Error("get conversation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return nil, false
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	userID := auth.UserID(r.Context())
	for _, p := range c.ParticipantIDs {
		if p == userID {
			return c, true
		}
	}
	writeError(w, http.StatusForbidden, "not a participant")
	return nil, false
}

// List handles GET /api/conversations
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	convs, err := h.conversations.ListForUser(ctx, auth.HouseholdID(ctx), auth.UserID(ctx))
	if err != nil {
		h.logger.Error("list conversations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(convs))
}

func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title          string  `json:"title"`
		ParticipantIDs []int64 `json:"participant_ids"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx := r.Context()
	householdID := auth.HouseholdID(ctx)
	c, err := h.conversations.Create(ctx, householdID, auth.UserID(ctx), strings.TrimSpace(req.Title), req.ParticipantIDs)
	if errors.Is(err, store.ErrInvalidParticipants) {
		writeError(w, http.StatusBadRequest, "participants must be other members of this household")
		return
	}
	if err != nil {
		h.logger.Error("create conversation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	if h.hub != nil {
		h.hub.SendToUsers(householdID, c.ParticipantIDs, websocket.NewMessage("conversation", "created", c.ID, nil))
	}
	writeJSON(w, http.StatusCreated, c)
}

// Messages handles GET /api/conversations/{id}/messages?before=&limit=
func (h *MessageHandler) Messages(w http.ResponseWriter, r *http.Request) {
	c, ok := h.conversation(w, r)
	if !ok {
		return
	}
	var before int64
	if v := r.URL.Query().Get("before"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid before")
			return
		}
		before = n
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	msgs, err := h.conversations.ListMessages(r.Context(), c.ID, before, limit)
	if err != nil {
		h.logger.Error("list messages", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(msgs))
}

// Send handles POST /api/conversations/{id}/messages. Resending a client_id
// returns the stored message with 200.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	c, ok := h.conversation(w, r)
	if !ok {
		return
	}
	var req struct {
		Body     string `json:"body"`
		ClientID string `json:"client_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" || utf8.RuneCountInString(req.Body) > model.MaxMessageLength {
		writeError(w, http.StatusBadRequest, "body must be 1-"+strconv.Itoa(model.MaxMessageLength)+" characters")
		return
	}
	clientID := uuid.NewString()
	if req.ClientID != "" {
		id, err := uuid.Parse(req.ClientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "client_id must be a UUID")
			return
		}
		clientID = id.String()
	}

	ctx := r.Context()
	householdID := auth.HouseholdID(ctx)
	senderID := auth.UserID(ctx)
	msg, created, err := h.conversations.SendMessage(ctx, c.ID, senderID, req.Body, clientID)
	if errors.Is(err, store.ErrNotParticipant) {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}
	if err != nil {
		h.logger.Error("send message", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, msg)
		return
	}

	metrics.MessageSent()
	if h.hub != nil {
		event := websocket.NewMessage("message", "created", msg.ID, map[string]any{"conversation_id": c.ID})
		event.Data = msg
		h.hub.SendToUsers(householdID, c.ParticipantIDs, event)
	}
	if h.notifier != nil {
		others := make([]int64, 0, len(c.ParticipantIDs))
		for _, id := range c.ParticipantIDs {
			if id != senderID {
				others = append(others, id)
			}
		}
		h.notifier.Notify(ctx, householdID, others, model.NotifTypeMessage, push.Payload{
			Title: h.senderName(r, senderID),
			Body:  preview(msg.Body),
			URL:   "/messages/" + strconv.FormatInt(c.ID, 10),
			Tag:   "conversation-" + strconv.FormatInt(c.ID, 10),
		})
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) senderName(r *http.Request, userID int64) string {
	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil || u == nil {
		return "New message"
	}
	return u.Name
}

// preview trims a message body for a notification.
func preview(body string) string {
	const max = 120
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	runes := []rune(body)
	return string(runes[:max-1]) + "…"
}

// MarkRead handles POST /api/conversations/{id}/read
func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	c, ok := h.conversation(w, r)
	if !ok {
		return
	}
	var req struct {
		MessageID int64 `json:"message_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.MessageID <= 0 {
		writeError(w, http.StatusBadRequest, "message_id is required")
		return
	}
	err := h.conversations.MarkRead(r.Context(), c.ID, auth.UserID(r.Context()), req.MessageID)
	if errors.Is(err, store.ErrNotParticipant) {
		writeError(w, http.StatusForbidden, "not a participant")
		return
	}
	if err != nil {
		h.logger.Error("mark conversation read", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to mark read")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
