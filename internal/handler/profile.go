package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/village/internal/auth"
	"github.com/dukerupert/village/internal/storage"
	"github.com/dukerupert/village/internal/store"
)

// AvatarStorage stores profile photos.
type AvatarStorage interface {
	UploadAvatar(ctx context.Context, householdID int64, r io.Reader) (*storage.Object, error)
	Delete(ctx context.Context, key string)
}

type ProfileHandler struct {
	userStore *store.UserStore
	avatars   AvatarStorage
	hub       Broadcaster
	logger    *slog.Logger
}

func NewProfileHandler(us *store.UserStore, avatars AvatarStorage, hub Broadcaster, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{userStore: us, avatars: avatars, hub: hub, logger: logger}
}

// Get handles GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.userStore.GetByID(r.Context(), auth.UserID(r.Context()))
	if err != nil || user == nil {
		h.logger.Error("get profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get profile")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Update handles PUT /api/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	user, err := h.userStore.UpdateName(r.Context(), auth.UserID(r.Context()), req.Name)
	if err != nil {
		h.logger.Error("update profile", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	publish(h.hub, auth.HouseholdID(r.Context()), "user", "updated", user.ID)
	writeJSON(w, http.StatusOK, user)
}

// UploadAvatar handles POST /api/profile/avatar with a multipart "file" field.
// The previous photo is removed once the new one is saved.
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxAvatarSize+(1<<20))

	file, _, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "file must be 5 MiB or smaller")
			return
		}
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	user, err := h.userStore.GetByID(ctx, auth.UserID(ctx))
	if err != nil || user == nil {
		h.logger.Error("avatar user lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to upload avatar")
		return
	}

	obj, err := h.avatars.UploadAvatar(ctx, auth.HouseholdID(ctx), file)
	switch {
	case errors.Is(err, storage.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, "avatar must be a JPEG, PNG or WebP image")
		return
	case errors.Is(err, storage.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "file must be 5 MiB or smaller")
		return
	case errors.Is(err, storage.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "avatar uploads are not configured")
		return
	case err != nil:
		h.logger.Error("upload avatar", "error", err)
		writeError(w, http.StatusBadGateway, "failed to upload avatar")
		return
	}

	updated, err := h.userStore.SetAvatar(ctx, user.ID, obj.URL, obj.Key)
	if err != nil {
		h.logger.Error("save avatar", "error", err)
		h.avatars.Delete(ctx, obj.Key)
		writeError(w, http.StatusInternalServerError, "failed to upload avatar")
		return
	}
	h.avatars.Delete(ctx, user.AvatarKey)

	publish(h.hub, auth.HouseholdID(ctx), "user", "updated", user.ID)
	writeJSON(w, http.StatusOK, updated)
}
