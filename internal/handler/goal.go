package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/village/internal/auth"
	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/store"
)

const defaultGoalCategory = "personal"

type GoalHandler struct {
	store    *store.GoalStore
	calendar Calendar
	hub      Broadcaster
	logger   *slog.Logger
}

func NewGoalHandler(s *store.GoalStore, cal Calendar, hub Broadcaster, logger *slog.Logger) *GoalHandler {
	return &GoalHandler{store: s, calendar: cal, hub: hub, logger: logger}
}

type goalRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	TargetDate  string `json:"target_date"`
}

func (h *GoalHandler) parse(w http.ResponseWriter, r *http.Request) (store.GoalInput, bool) {
	var req goalRequest
	if !decodeJSON(w, r, &req) {
		return store.GoalInput{}, false
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return store.GoalInput{}, false
	}
	if !validDate(req.TargetDate) {
		writeError(w, http.StatusBadRequest, "target_date must be YYYY-MM-DD")
		return store.GoalInput{}, false
	}
	req.Category = strings.TrimSpace(req.Category)
	if req.Category == "" {
		req.Category = defaultGoalCategory
	}
	return store.GoalInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		TargetDate:  req.TargetDate,
	}, true
}

// List handles GET /api/goals?status=active|completed|all
func (h *GoalHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "":
		status = store.GoalStatusAll
	case store.GoalStatusActive, store.GoalStatusCompleted, store.GoalStatusAll:
	default:
		writeError(w, http.StatusBadRequest, "status must be active, completed or all")
		return
	}

	goals, err := h.store.List(r.Context(), auth.HouseholdID(r.Context()), status)
	if err != nil {
		h.logger.Error("list goals", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list goals")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(goals))
}

func (h *GoalHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	goal, err := h.store.GetByID(r.Context(), auth.HouseholdID(r.Context()), id)
	if err != nil {
		h.logger.Error("get goal", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get goal")
		return
	}
	if goal == nil {
		writeError(w, http.StatusNotFound, "goal not found")
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.parse(w, r)
	if !ok {
		return
	}
	householdID := auth.HouseholdID(r.Context())
	goal, err := h.store.Create(r.Context(), householdID, in)
	if err != nil {
		h.logger.Error("create goal", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create goal")
		return
	}
	publish(h.hub, householdID, "goal", "created", goal.ID)
	writeJSON(w, http.StatusCreated, goal)
}

func (h *GoalHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	in, ok := h.parse(w, r)
	if !ok {
		return
	}
	householdID := auth.HouseholdID(r.Context())
	goal, err := h.store.Update(r.Context(), householdID, id, in)
	h.respond(w, householdID, goal, err, "updated")
}

// UpdateProgress handles PUT /api/goals/{id}/progress. Values outside 0-100
// are clamped.
func (h *GoalHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Progress *int `json:"progress"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Progress == nil {
		writeError(w, http.StatusBadRequest, "progress is required")
		return
	}
	householdID := auth.HouseholdID(r.Context())
	goal, err := h.store.SetProgress(r.Context(), householdID, id, *req.Progress)
	h.respond(w, householdID, goal, err, "updated")
}

// SetCompleted handles PUT /api/goals/{id}/complete
func (h *GoalHandler) SetCompleted(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Completed bool `json:"completed"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	householdID := auth.HouseholdID(r.Context())
	goal, err := h.store.SetCompleted(r.Context(), householdID, id, req.Completed)
	h.respond(w, householdID, goal, err, "updated")
}

// CheckIn handles POST /api/goals/{id}/checkin. The date defaults to today in
// the household's time zone.
func (h *GoalHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Date string `json:"date"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if !validDate(req.Date) {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	householdID := auth.HouseholdID(r.Context())
	if req.Date == "" {
		if req.Date, _, err = h.calendar.Today(r.Context(), householdID); err != nil {
			h.logger.Error("resolve today", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to check in")
			return
		}
	}

	goal, err := h.store.CheckIn(r.Context(), householdID, id, req.Date)
	h.respond(w, householdID, goal, err, "checked_in")
}

func (h *GoalHandler) respond(w http.ResponseWriter, householdID int64, goal *model.Goal, err error, action string) {
	if err != nil {
		h.logger.Error("save goal", "action", action, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save goal")
		return
	}
	if goal == nil {
		writeError(w, http.StatusNotFound, "goal not found")
		return
	}
	publish(h.hub, householdID, "goal", action, goal.ID)
	writeJSON(w, http.StatusOK, goal)
}

func (h *GoalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	householdID := auth.HouseholdID(r.Context())
	if err := h.store.Delete(r.Context(), householdID, id); err != nil {
		h.logger.Error("delete goal", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete goal")
		return
	}
	publish(h.hub, householdID, "goal", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}
