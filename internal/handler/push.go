package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/village/internal/auth"
	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/push"
	"github.com/dukerupert/village/internal/store"
)

// PushSender delivers a single web push message.
type PushSender interface {
	Configured() bool
	VAPIDPublicKey() string
	Send(ctx context.Context, sub *model.PushSubscription, payload push.Payload) error
}

type PushHandler struct {
	pushStore *store.PushStore
	sender    PushSender
	logger    *slog.Logger
}

func NewPushHandler(ps *store.PushStore, sender PushSender, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, sender: sender, logger: logger}
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

// Subscribe handles POST /api/push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeError(w, http.StatusBadRequest, "endpoint, p256dh and auth are required")
		return
	}
	if !strings.HasPrefix(req.Endpoint, "https://") {
		writeError(w, http.StatusBadRequest, "endpoint must be an https URL")
		return
	}

	ctx := r.Context()
	sub, err := h.pushStore.Subscribe(ctx, auth.UserID(ctx), auth.HouseholdID(ctx), req.Endpoint, req.P256dh, req.Auth, strings.TrimSpace(req.DeviceName))
	if err != nil {
		h.logger.Error("create push subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	ctx := r.Context()
	ok, err := h.pushStore.Unsubscribe(ctx, id, auth.UserID(ctx), auth.HouseholdID(ctx))
	if err != nil {
		h.logger.Error("delete push subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/push/subscriptions
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subs, err := h.pushStore.ListByUser(ctx, auth.UserID(ctx), auth.HouseholdID(ctx))
	if err != nil {
		h.logger.Error("list push subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(subs))
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	if !h.sender.Configured() {
		writeError(w, http.StatusServiceUnavailable, "push notifications are not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.sender.VAPIDPublicKey()})
}

// GetPreferences handles GET /api/push/preferences
func (h *PushHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	prefs, err := h.pushStore.GetPreferences(ctx, auth.UserID(ctx), auth.HouseholdID(ctx))
	if err != nil {
		h.logger.Error("get push preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get preferences")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(prefs))
}

type prefItem struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// UpdatePreferences handles PUT /api/push/preferences
func (h *PushHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Preferences []prefItem `json:"preferences"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	for _, p := range req.Preferences {
		if !model.Contains(model.NotificationTypes, p.Type) {
			writeError(w, http.StatusBadRequest, "unknown notification type: "+p.Type)
			return
		}
	}

	ctx := r.Context()
	userID, householdID := auth.UserID(ctx), auth.HouseholdID(ctx)
	for _, p := range req.Preferences {
		if err := h.pushStore.SetPreference(ctx, userID, householdID, p.Type, p.Enabled); err != nil {
			h.logger.Error("set push preference", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update preferences")
			return
		}
	}
	h.GetPreferences(w, r)
}

// TestNotification handles POST /api/push/test
func (h *PushHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	if !h.sender.Configured() {
		writeError(w, http.StatusServiceUnavailable, "push notifications are not configured")
		return
	}
	ctx := r.Context()
	subs, err := h.pushStore.ListByUser(ctx, auth.UserID(ctx), auth.HouseholdID(ctx))
	if err != nil {
		h.logger.Error("list push subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	payload := push.Payload{
		Title: "Test notification",
		Body:  "Push notifications are working.",
		URL:   "/settings",
		Tag:   "test",
	}
	sent := 0
	for i := range subs {
		err := h.sender.Send(ctx, &subs[i], payload)
		if errors.Is(err, push.ErrExpired) {
			if err := h.pushStore.DeleteByEndpoint(ctx, subs[i].Endpoint); err != nil {
				h.logger.Warn("delete expired subscription", "error", err)
			}
			continue
		}
		if err != nil {
			h.logger.Error("test push send", "error", err)
			continue
		}
		sent++
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}
