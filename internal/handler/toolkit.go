package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/dukerupert/village/internal/auth"
	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/store"
)

type ToolkitHandler struct {
	store  *store.ToolkitStore
	hub    Broadcaster
	logger *slog.Logger
}

func NewToolkitHandler(s *store.ToolkitStore, hub Broadcaster, logger *slog.Logger) *ToolkitHandler {
	return &ToolkitHandler{store: s, hub: hub, logger: logger}
}

func (h *ToolkitHandler) parse(w http.ResponseWriter, r *http.Request) (model.ToolkitItem, bool) {
	var req model.ToolkitItem
	if !decodeJSON(w, r, &req) {
		return req, false
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return req, false
	}
	req.Category = strings.TrimSpace(req.Category)
	if req.URL != "" {
		u, err := url.Parse(req.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			writeError(w, http.StatusBadRequest, "url must be an http or https link")
			return req, false
		}
	}
	return req, true
}

// List handles GET /api/toolkit?category=
func (h *ToolkitHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.List(r.Context(), auth.HouseholdID(r.Context()), r.URL.Query().Get("category"))
	if err != nil {
		h.logger.Error("list toolkit items", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list toolkit items")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

func (h *ToolkitHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parse(w, r)
	if !ok {
		return
	}
	householdID := auth.HouseholdID(r.Context())
	item, err := h.store.Create(r.Context(), householdID, req)
	if err != nil {
		h.logger.Error("create toolkit item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create toolkit item")
		return
	}
	publish(h.hub, householdID, "toolkit_item", "created", item.ID)
	writeJSON(w, http.StatusCreated, item)
}

func (h *ToolkitHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	req, ok := h.parse(w, r)
	if !ok {
		return
	}
	householdID := auth.HouseholdID(r.Context())
	item, err := h.store.Update(r.Context(), householdID, id, req)
	h.respond(w, householdID, item, err)
}

// ToggleFavorite handles POST /api/toolkit/{id}/favorite
func (h *ToolkitHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	householdID := auth.HouseholdID(r.Context())
	item, err := h.store.ToggleFavorite(r.Context(), householdID, id)
	h.respond(w, householdID, item, err)
}

func (h *ToolkitHandler) respond(w http.ResponseWriter, householdID int64, item *model.ToolkitItem, err error) {
	if err != nil {
		h.logger.Error("save toolkit item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save toolkit item")
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "toolkit item not found")
		return
	}
	publish(h.hub, householdID, "toolkit_item", "updated", item.ID)
	writeJSON(w, http.StatusOK, item)
}

func (h *ToolkitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	householdID := auth.HouseholdID(r.Context())
	if err := h.store.Delete(r.Context(), householdID, id); err != nil {
		h.logger.Error("delete toolkit item", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete toolkit item")
		return
	}
	publish(h.hub, householdID, "toolkit_item", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}
