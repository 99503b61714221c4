package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/dukerupert/village/internal/auth"
	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/store"
)

var hexColorRegexp = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

type FamilyMemberHandler struct {
	store  *store.FamilyMemberStore
	hub    Broadcaster
	logger *slog.Logger
}

func NewFamilyMemberHandler(s *store.FamilyMemberStore, hub Broadcaster, logger *slog.Logger) *FamilyMemberHandler {
	return &FamilyMemberHandler{store: s, hub: hub, logger: logger}
}

type familyMemberRequest struct {
	Name               string `json:"name"`
	Relationship       string `json:"relationship"`
	Email              string `json:"email"`
	Phone              string `json:"phone"`
	Color              string `json:"color"`
	IsPrimaryCaregiver bool   `json:"is_primary_caregiver"`
}

func (req *familyMemberRequest) input() store.FamilyMemberInput {
	return store.FamilyMemberInput{
		Name:               req.Name,
		Relationship:       strings.TrimSpace(req.Relationship),
		Email:              strings.TrimSpace(req.Email),
		Phone:              strings.TrimSpace(req.Phone),
		Color:              req.Color,
		IsPrimaryCaregiver: req.IsPrimaryCaregiver,
	}
}

func (h *FamilyMemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.store.List(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("list family members", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list family members")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(members))
}

func (h *FamilyMemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req familyMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	householdID := auth.HouseholdID(r.Context())

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Color == "" {
		req.Color = model.DefaultMemberColor
	}
	if !hexColorRegexp.MatchString(req.Color) {
		writeError(w, http.StatusBadRequest, "color must be a hex color (e.g. #FF0000)")
		return
	}
	if !h.nameAvailable(w, r, householdID, req.Name, 0) {
		return
	}

	member, err := h.store.Create(r.Context(), householdID, req.input())
	if err != nil {
		h.logger.Error("create family member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create family member")
		return
	}

	publish(h.hub, householdID, "family_member", "created", member.ID)
	writeJSON(w, http.StatusCreated, member)
}

func (h *FamilyMemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	householdID := auth.HouseholdID(r.Context())

	existing, err := h.store.GetByID(r.Context(), householdID, id)
	if err != nil {
		h.logger.Error("get family member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get family member")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "family member not found")
		return
	}

	var req familyMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Color == "" {
		req.Color = existing.Color
	}
	if !hexColorRegexp.MatchString(req.Color) {
		writeError(w, http.StatusBadRequest, "color must be a hex color (e.g. #FF0000)")
		return
	}
	if !h.nameAvailable(w, r, householdID, req.Name, id) {
		return
	}

	member, err := h.store.Update(r.Context(), householdID, id, req.input())
	if errors.Is(err, store.ErrPrimaryCaregiver) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("update family member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update family member")
		return
	}

	publish(h.hub, householdID, "family_member", "updated", id)
	writeJSON(w, http.StatusOK, member)
}

func (h *FamilyMemberHandler) nameAvailable(w http.ResponseWriter, r *http.Request, householdID int64, name string, excludeID int64) bool {
	exists, err := h.store.NameExists(r.Context(), householdID, name, excludeID)
	if err != nil {
		h.logger.Error("check family member name", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check name")
		return false
	}
	if exists {
		writeError(w, http.StatusConflict, "a family member with that name already exists")
		return false
	}
	return true
}

func (h *FamilyMemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	householdID := auth.HouseholdID(r.Context())

	existing, err := h.store.GetByID(r.Context(), householdID, id)
	if err != nil {
		h.logger.Error("get family member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get family member")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "family member not found")
		return
	}

	err = h.store.Delete(r.Context(), householdID, id)
	if errors.Is(err, store.ErrPrimaryCaregiver) {
		writeError(w, http.StatusConflict, "the primary caregiver cannot be removed")
		return
	}
	if err != nil {
		h.logger.Error("delete family member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete family member")
		return
	}

	publish(h.hub, householdID, "family_member", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *FamilyMemberHandler) UpdateSortOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids are required")
		return
	}

	householdID := auth.HouseholdID(r.Context())
	if err := h.store.UpdateSortOrder(r.Context(), householdID, req.IDs); err != nil {
		h.logger.Error("update family sort order", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update sort order")
		return
	}

	publish(h.hub, householdID, "family_member", "reordered", 0)
	w.WriteHeader(http.StatusNoContent)
}

type KidHandler struct {
	store  *store.KidStore
	hub    Broadcaster
	logger *slog.Logger
}

func NewKidHandler(s *store.KidStore, hub Broadcaster, logger *slog.Logger) *KidHandler {
	return &KidHandler{store: s, hub: hub, logger: logger}
}

type kidRequest struct {
	Name      string `json:"name"`
	BirthDate string `json:"birth_date"`
	School    string `json:"school"`
	Allergies string `json:"allergies"`
	Notes     string `json:"notes"`
}

func (h *KidHandler) parse(w http.ResponseWriter, r *http.Request) (model.Kid, bool) {
	var req kidRequest
	if !decodeJSON(w, r, &req) {
		return model.Kid{}, false
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return model.Kid{}, false
	}
	if !validDate(req.BirthDate) {
		writeError(w, http.StatusBadRequest, "birth_date must be YYYY-MM-DD")
		return model.Kid{}, false
	}
	return model.Kid{
		Name:      req.Name,
		BirthDate: req.BirthDate,
		School:    strings.TrimSpace(req.School),
		Allergies: strings.TrimSpace(req.Allergies),
		Notes:     req.Notes,
	}, true
}

func (h *KidHandler) List(w http.ResponseWriter, r *http.Request) {
	kids, err := h.store.List(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("list kids", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list kids")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(kids))
}

func (h *KidHandler) Create(w http.ResponseWriter, r *http.Request) {
	k, ok := h.parse(w, r)
	if !ok {
		return
	}
	householdID := auth.HouseholdID(r.Context())
	kid, err := h.store.Create(r.Context(), householdID, k)
	if err != nil {
		h.logger.Error("create kid", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create kid")
		return
	}
	publish(h.hub, householdID, "kid", "created", kid.ID)
	writeJSON(w, http.StatusCreated, kid)
}

func (h *KidHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	k, ok := h.parse(w, r)
	if !ok {
		return
	}
	householdID := auth.HouseholdID(r.Context())
	kid, err := h.store.Update(r.Context(), householdID, id, k)
	if err != nil {
		h.logger.Error("update kid", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update kid")
		return
	}
	if kid == nil {
		writeError(w, http.StatusNotFound, "kid not found")
		return
	}
	publish(h.hub, householdID, "kid", "updated", id)
	writeJSON(w, http.StatusOK, kid)
}

func (h *KidHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	householdID := auth.HouseholdID(r.Context())
	if err := h.store.Delete(r.Context(), householdID, id); err != nil {
		h.logger.Error("delete kid", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete kid")
		return
	}
	publish(h.hub, householdID, "kid", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}
