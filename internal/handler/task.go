package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/village/internal/auth"
	"github.com/dukerupert/village/internal/insight"
	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/store"
)

type TaskHandler struct {
	taskStore   *store.TaskStore
	memberStore *store.FamilyMemberStore
	calendar    Calendar
	hub         Broadcaster
	logger      *slog.Logger
}

func NewTaskHandler(ts *store.TaskStore, ms *store.FamilyMemberStore, cal Calendar, hub Broadcaster, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{taskStore: ts, memberStore: ms, calendar: cal, hub: hub, logger: logger}
}

type taskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date"`
	AssignedTo  *int64 `json:"assigned_to"`
}

func (h *TaskHandler) parse(w http.ResponseWriter, r *http.Request) (store.TaskInput, bool) {
	var req taskRequest
	if !decodeJSON(w, r, &req) {
		return store.TaskInput{}, false
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return store.TaskInput{}, false
	}
	if req.Category == "" {
		req.Category = model.TaskCategoryOther
	}
	if !model.Contains(model.TaskCategories, req.Category) {
		writeError(w, http.StatusBadRequest, "category must be one of "+strings.Join(model.TaskCategories, ", "))
		return store.TaskInput{}, false
	}
	if req.Priority == "" {
		req.Priority = model.PriorityMedium
	}
	switch req.Priority {
	case model.PriorityLow, model.PriorityMedium, model.PriorityHigh:
	default:
		writeError(w, http.StatusBadRequest, "priority must be low, medium or high")
		return store.TaskInput{}, false
	}
	if !validDate(req.DueDate) {
		writeError(w, http.StatusBadRequest, "due_date must be YYYY-MM-DD")
		return store.TaskInput{}, false
	}

	if req.AssignedTo != nil {
		member, err := h.memberStore.GetByID(r.Context(), auth.HouseholdID(r.Context()), *req.AssignedTo)
		if err != nil {
			h.logger.Error("check assignee", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to check family member")
			return store.TaskInput{}, false
		}
		if member == nil {
			writeError(w, http.StatusBadRequest, "family member not found")
			return store.TaskInput{}, false
		}
	}

	return store.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
		AssignedTo:  req.AssignedTo,
	}, true
}

// List handles GET /api/tasks?filter=
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())
	tasks, err := h.taskStore.List(r.Context(), householdID)
	if err != nil {
		h.logger.Error("list tasks", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	filter := r.URL.Query().Get("filter")
	if filter == "" || filter == insight.FilterAll {
		writeJSON(w, http.StatusOK, nonNil(tasks))
		return
	}

	today, _, err := h.calendar.Today(r.Context(), householdID)
	if err != nil {
		h.logger.Error("resolve today", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	writeJSON(w, http.StatusOK, insight.FilterTasks(tasks, filter, today))
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.parse(w, r)
	if !ok {
		return
	}
	householdID := auth.HouseholdID(r.Context())
	task, err := h.taskStore.Create(r.Context(), householdID, in)
	if err != nil {
		h.logger.Error("create task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}
	publish(h.hub, householdID, "task", "created", task.ID)
	writeJSON(w, http.StatusCreated, task)
}

func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	task, err := h.taskStore.Update(r.Context(), householdID, id, in)
	if err != nil {
		h.logger.Error("update task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	publish(h.hub, householdID, "task", "updated", id)
	writeJSON(w, http.StatusOK, task)
}

// Toggle handles POST /api/tasks/{id}/toggle
func (h *TaskHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	householdID := auth.HouseholdID(r.Context())
	task, err := h.taskStore.Toggle(r.Context(), householdID, id)
	if err != nil {
		h.logger.Error("toggle task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to toggle task")
		return
	}
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	publish(h.hub, householdID, "task", "updated", id)
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	householdID := auth.HouseholdID(r.Context())
	if err := h.taskStore.Delete(r.Context(), householdID, id); err != nil {
		h.logger.Error("delete task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}
	publish(h.hub, householdID, "task", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}
