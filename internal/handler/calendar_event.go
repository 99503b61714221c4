package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/village/internal/auth"
	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/store"
)

const (
	defaultEventWindow = 7 * 24 * time.Hour
	maxReminderMinutes = 7 * 24 * 60
)

type CalendarEventHandler struct {
	eventStore *store.EventStore
	calendar   Calendar
	hub        Broadcaster
	logger     *slog.Logger
}

func NewCalendarEventHandler(es *store.EventStore, cal Calendar, hub Broadcaster, logger *slog.Logger) *CalendarEventHandler {
	return &CalendarEventHandler{eventStore: es, calendar: cal, hub: hub, logger: logger}
}

type eventRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	Location        string `json:"location"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	AllDay          bool   `json:"all_day"`
	ReminderMinutes *int   `json:"reminder_minutes"`
}

func (h *CalendarEventHandler) parseAndValidate(w http.ResponseWriter, r *http.Request) (store.EventInput, bool) {
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return store.EventInput{}, false
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return store.EventInput{}, false
	}

	startTime, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start_time must be RFC3339 format")
		return store.EventInput{}, false
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end_time must be RFC3339 format")
		return store.EventInput{}, false
	}
	if endTime.Before(startTime) {
		writeError(w, http.StatusBadRequest, "end_time must not be before start_time")
		return store.EventInput{}, false
	}

	if m := req.ReminderMinutes; m != nil && (*m < 0 || *m > maxReminderMinutes) {
		writeError(w, http.StatusBadRequest, "reminder_minutes must be between 0 and 10080")
		return store.EventInput{}, false
	}

	return store.EventInput{
		Title:           req.Title,
		Description:     req.Description,
		Location:        strings.TrimSpace(req.Location),
		StartTime:       startTime,
		EndTime:         endTime,
		AllDay:          req.AllDay,
		ReminderMinutes: req.ReminderMinutes,
	}, true
}

// List handles GET /api/events?start=&end=. Bounds are RFC3339 times or
// YYYY-MM-DD dates in the household time zone; the default window is the
// next seven days from the start of today.
func (h *CalendarEventHandler) List(w http.ResponseWriter, r *http.Request) {
	householdID := auth.HouseholdID(r.Context())
	today, loc, err := h.calendar.Today(r.Context(), householdID)
	if err != nil {
		h.logger.Error("resolve today", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	start, _ := time.ParseInLocation(model.DateLayout, today, loc)
	end := start.Add(defaultEventWindow)
	if v := r.URL.Query().Get("start"); v != "" {
		if start, err = parseBound(v, loc); err != nil {
			writeError(w, http.StatusBadRequest, "start must be RFC3339 or YYYY-MM-DD")
			return
		}
		end = start.Add(defaultEventWindow)
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if end, err = parseBound(v, loc); err != nil {
			writeError(w, http.StatusBadRequest, "end must be RFC3339 or YYYY-MM-DD")
			return
		}
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "end must be after start")
		return
	}

	events, err := h.eventStore.ListRange(r.Context(), householdID, start, end)
	if err != nil {
		h.logger.Error("list events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(events))
}

func parseBound(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation(model.DateLayout, v, loc)
}

func (h *CalendarEventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	event, err := h.eventStore.GetByID(r.Context(), auth.HouseholdID(r.Context()), id)
	if err != nil {
		h.logger.Error("get event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (h *CalendarEventHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.parseAndValidate(w, r)
	if !ok {
		return
	}
	householdID := auth.HouseholdID(r.Context())
	event, err := h.eventStore.Create(r.Context(), householdID, in)
	if err != nil {
		h.logger.Error("create event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}
	publish(h.hub, householdID, "event", "created", event.ID)
	writeJSON(w, http.StatusCreated, event)
}

func (h *CalendarEventHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	in, ok := h.parseAndValidate(w, r)
	if !ok {
		return
	}
	householdID := auth.HouseholdID(r.Context())
	event, err := h.eventStore.Update(r.Context(), householdID, id, in)
	if err != nil {
		h.logger.Error("update event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	publish(h.hub, householdID, "event", "updated", id)
	writeJSON(w, http.StatusOK, event)
}

func (h *CalendarEventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	householdID := auth.HouseholdID(r.Context())
	if err := h.eventStore.Delete(r.Context(), householdID, id); err != nil {
		h.logger.Error("delete event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}
	publish(h.hub, householdID, "event", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

type ReminderHandler struct {
	store  *store.ReminderStore
	hub    Broadcaster
	logger *slog.Logger
}

func NewReminderHandler(s *store.ReminderStore, hub Broadcaster, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{store: s, hub: hub, logger: logger}
}

type reminderRequest struct {
	Title    string `json:"title"`
	Notes    string `json:"notes"`
	RemindAt string `json:"remind_at"`
}

func (h *ReminderHandler) parse(w http.ResponseWriter, r *http.Request) (reminderRequest, time.Time, bool) {
	var req reminderRequest
	if !decodeJSON(w, r, &req) {
		return req, time.Time{}, false
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return req, time.Time{}, false
	}
	remindAt, err := time.Parse(time.RFC3339, req.RemindAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "remind_at must be RFC3339 format")
		return req, time.Time{}, false
	}
	return req, remindAt, true
}

func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	reminders, err := h.store.List(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("list reminders", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list reminders")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(reminders))
}

func (h *ReminderHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, remindAt, ok := h.parse(w, r)
	if !ok {
		return
	}
	householdID := auth.HouseholdID(r.Context())
	reminder, err := h.store.Create(r.Context(), householdID, req.Title, req.Notes, remindAt)
	if err != nil {
		h.logger.Error("create reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create reminder")
		return
	}
	publish(h.hub, householdID, "reminder", "created", reminder.ID)
	writeJSON(w, http.StatusCreated, reminder)
}

func (h *ReminderHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	req, remindAt, ok := h.parse(w, r)
	if !ok {
		return
	}
	householdID := auth.HouseholdID(r.Context())
	reminder, err := h.store.Update(r.Context(), householdID, id, req.Title, req.Notes, remindAt)
	if err != nil {
		h.logger.Error("update reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update reminder")
		return
	}
	if reminder == nil {
		writeError(w, http.StatusNotFound, "reminder not found")
		return
	}
	publish(h.hub, householdID, "reminder", "updated", id)
	writeJSON(w, http.StatusOK, reminder)
}

// Complete handles PUT /api/reminders/{id}/complete
func (h *ReminderHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	req := struct {
		Completed bool `json:"completed"`
	}{Completed: true}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	householdID := auth.HouseholdID(r.Context())
	reminder, err := h.store.SetCompleted(r.Context(), householdID, id, req.Completed)
	if err != nil {
		h.logger.Error("complete reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update reminder")
		return
	}
	if reminder == nil {
		writeError(w, http.StatusNotFound, "reminder not found")
		return
	}
	publish(h.hub, householdID, "reminder", "updated", id)
	writeJSON(w, http.StatusOK, reminder)
}

func (h *ReminderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	householdID := auth.HouseholdID(r.Context())
	if err := h.store.Delete(r.Context(), householdID, id); err != nil {
		h.logger.Error("delete reminder", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete reminder")
		return
	}
	publish(h.hub, householdID, "reminder", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}
