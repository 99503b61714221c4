package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/village/internal/auth"
	"github.com/dukerupert/village/internal/brief"
	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/store"
)

// BriefHandler serves the aggregated dashboard views.
type BriefHandler struct {
	briefs *brief.Service
	logger *slog.Logger
}

func NewBriefHandler(briefs *brief.Service, logger *slog.Logger) *BriefHandler {
	return &BriefHandler{briefs: briefs, logger: logger}
}

// date returns the ?date= parameter, or today in the household's zone.
func (h *BriefHandler) date(w http.ResponseWriter, r *http.Request) (string, bool) {
	date := r.URL.Query().Get("date")
	if date != "" {
		if !validDate(date) {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return "", false
		}
		return date, true
	}
	date, _, err := h.briefs.Today(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("resolve today", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve date")
		return "", false
	}
	return date, true
}

// DailyBrief handles GET /api/brief?date=
func (h *BriefHandler) DailyBrief(w http.ResponseWriter, r *http.Request) {
	date, ok := h.date(w, r)
	if !ok {
		return
	}
	b, err := h.briefs.DailyBrief(r.Context(), auth.HouseholdID(r.Context()), date)
	if err != nil {
		h.logger.Error("load daily brief", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load daily brief")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// PlannerInsights handles GET /api/insights?date=
func (h *BriefHandler) PlannerInsights(w http.ResponseWriter, r *http.Request) {
	date, ok := h.date(w, r)
	if !ok {
		return
	}
	insights, err := h.briefs.PlannerInsights(r.Context(), auth.HouseholdID(r.Context()), date)
	if err != nil {
		h.logger.Error("load planner insights", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load insights")
		return
	}
	writeJSON(w, http.StatusOK, insights)
}

// VillageOverview handles GET /api/village/overview
func (h *BriefHandler) VillageOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.briefs.VillageOverview(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("load village overview", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load village overview")
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

type PriorityHandler struct {
	store    *store.PriorityStore
	calendar Calendar
	hub      Broadcaster
	logger   *slog.Logger
}

func NewPriorityHandler(s *store.PriorityStore, cal Calendar, hub Broadcaster, logger *slog.Logger) *PriorityHandler {
	return &PriorityHandler{store: s, calendar: cal, hub: hub, logger: logger}
}

func (h *PriorityHandler) resolveDate(w http.ResponseWriter, r *http.Request, date string) (string, bool) {
	if date != "" {
		if !validDate(date) {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return "", false
		}
		return date, true
	}
	date, _, err := h.calendar.Today(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("resolve today", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve date")
		return "", false
	}
	return date, true
}

// List handles GET /api/priorities?date=
func (h *PriorityHandler) List(w http.ResponseWriter, r *http.Request) {
	date, ok := h.resolveDate(w, r, r.URL.Query().Get("date"))
	if !ok {
		return
	}
	priorities, err := h.store.ListByDate(r.Context(), auth.HouseholdID(r.Context()), date)
	if err != nil {
		h.logger.Error("list priorities", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list priorities")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(priorities))
}

func (h *PriorityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
		Date  string `json:"date"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	date, ok := h.resolveDate(w, r, req.Date)
	if !ok {
		return
	}

	householdID := auth.HouseholdID(r.Context())
	p, err := h.store.Create(r.Context(), householdID, req.Title, date)
	if err != nil {
		h.logger.Error("create priority", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create priority")
		return
	}
	publish(h.hub, householdID, "priority", "created", p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (h *PriorityHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Title string `json:"title"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	householdID := auth.HouseholdID(r.Context())
	p, err := h.store.Update(r.Context(), householdID, id, req.Title)
	h.respond(w, householdID, p, err)
}

// Toggle handles POST /api/priorities/{id}/toggle
func (h *PriorityHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	householdID := auth.HouseholdID(r.Context())
	p, err := h.store.Toggle(r.Context(), householdID, id)
	h.respond(w, householdID, p, err)
}

func (h *PriorityHandler) respond(w http.ResponseWriter, householdID int64, p *model.Priority, err error) {
	if err != nil {
		h.logger.Error("save priority", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save priority")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "priority not found")
		return
	}
	publish(h.hub, householdID, "priority", "updated", p.ID)
	writeJSON(w, http.StatusOK, p)
}

// Reorder handles PUT /api/priorities/reorder
func (h *PriorityHandler) Reorder(w http.ResponseWriter, r *http.Request) {
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
	if err := h.store.Reorder(r.Context(), householdID, req.IDs); err != nil {
		h.logger.Error("reorder priorities", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reorder priorities")
		return
	}
	publish(h.hub, householdID, "priority", "reordered", 0)
	w.WriteHeader(http.StatusNoContent)
}

func (h *PriorityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	householdID := auth.HouseholdID(r.Context())
	if err := h.store.Delete(r.Context(), householdID, id); err != nil {
		h.logger.Error("delete priority", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete priority")
		return
	}
	publish(h.hub, householdID, "priority", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

type CelebrationHandler struct {
	store       *store.CelebrationStore
	memberStore *store.FamilyMemberStore
	hub         Broadcaster
	logger      *slog.Logger
}

func NewCelebrationHandler(s *store.CelebrationStore, ms *store.FamilyMemberStore, hub Broadcaster, logger *slog.Logger) *CelebrationHandler {
	return &CelebrationHandler{store: s, memberStore: ms, hub: hub, logger: logger}
}

func (h *CelebrationHandler) parse(w http.ResponseWriter, r *http.Request) (model.Celebration, bool) {
	var req struct {
		Title          string `json:"title"`
		Description    string `json:"description"`
		Date           string `json:"date"`
		FamilyMemberID *int64 `json:"family_member_id"`
	}
	if !decodeJSON(w, r, &req) {
		return model.Celebration{}, false
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return model.Celebration{}, false
	}
	if req.Date == "" || !validDate(req.Date) {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return model.Celebration{}, false
	}
	if req.FamilyMemberID != nil {
		member, err := h.memberStore.GetByID(r.Context(), auth.HouseholdID(r.Context()), *req.FamilyMemberID)
		if err != nil {
			h.logger.Error("check family member", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to check family member")
			return model.Celebration{}, false
		}
		if member == nil {
			writeError(w, http.StatusBadRequest, "family member not found")
			return model.Celebration{}, false
		}
	}
	return model.Celebration{
		Title:          req.Title,
		Description:    req.Description,
		Date:           req.Date,
		FamilyMemberID: req.FamilyMemberID,
	}, true
}

// List handles GET /api/celebrations?from=&to=
func (h *CelebrationHandler) List(w http.ResponseWriter, r *http.Request) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if !validDate(from) || !validDate(to) {
		writeError(w, http.StatusBadRequest, "from and to must be YYYY-MM-DD")
		return
	}
	celebrations, err := h.store.List(r.Context(), auth.HouseholdID(r.Context()), from, to)
	if err != nil {
		h.logger.Error("list celebrations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list celebrations")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(celebrations))
}

func (h *CelebrationHandler) Create(w http.ResponseWriter, r *http.Request) {
	c, ok := h.parse(w, r)
	if !ok {
		return
	}
	householdID := auth.HouseholdID(r.Context())
	created, err := h.store.Create(r.Context(), householdID, c)
	if err != nil {
		h.logger.Error("create celebration", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create celebration")
		return
	}
	publish(h.hub, householdID, "celebration", "created", created.ID)
	writeJSON(w, http.StatusCreated, created)
}

func (h *CelebrationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	c, ok := h.parse(w, r)
	if !ok {
		return
	}
	householdID := auth.HouseholdID(r.Context())
	updated, err := h.store.Update(r.Context(), householdID, id, c)
	if err != nil {
		h.logger.Error("update celebration", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update celebration")
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, "celebration not found")
		return
	}
	publish(h.hub, householdID, "celebration", "updated", id)
	writeJSON(w, http.StatusOK, updated)
}

func (h *CelebrationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	householdID := auth.HouseholdID(r.Context())
	if err := h.store.Delete(r.Context(), householdID, id); err != nil {
		h.logger.Error("delete celebration", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete celebration")
		return
	}
	publish(h.hub, householdID, "celebration", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}
