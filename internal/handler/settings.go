package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/village/internal/auth"
	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/store"
)

type SettingsHandler struct {
	settingsStore  *store.SettingsStore
	householdStore *store.HouseholdStore
	userStore      *store.UserStore
	hub            Broadcaster
	logger         *slog.Logger
}

func NewSettingsHandler(ss *store.SettingsStore, hs *store.HouseholdStore, us *store.UserStore, hub Broadcaster, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settingsStore: ss, householdStore: hs, userStore: us, hub: hub, logger: logger}
}

// Get handles GET /api/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsStore.Get(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("get settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Update handles PUT /api/settings. Only known keys are accepted.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validateSettings(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	householdID := auth.HouseholdID(r.Context())
	if err := h.settingsStore.Set(r.Context(), householdID, req); err != nil {
		h.logger.Error("save settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	publish(h.hub, householdID, "settings", "updated", 0)

	settings, err := h.settingsStore.Get(r.Context(), householdID)
	if err != nil {
		h.logger.Error("get settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func validateSettings(settings map[string]string) error {
	for key, value := range settings {
		switch key {
		case model.SettingTimezone:
			// LoadLocation maps "" to UTC and "Local" to the server's zone.
			if value == "" || value == "Local" {
				return fmt.Errorf("timezone must be an IANA time zone name")
			}
			if _, err := time.LoadLocation(value); err != nil {
				return fmt.Errorf("timezone must be an IANA time zone name")
			}
		case model.SettingBriefEnabled:
			if value != "true" && value != "false" {
				return fmt.Errorf("%s must be \"true\" or \"false\"", key)
			}
		case model.SettingBriefHour:
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 || n > 23 {
				return fmt.Errorf("brief_hour must be 0-23")
			}
		case model.SettingCheckinReminderDays:
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 || n > 90 {
				return fmt.Errorf("checkin_reminder_days must be 1-90")
			}
		default:
			return fmt.Errorf("unknown setting: %s", key)
		}
	}
	return nil
}

// UpdateHousehold handles PUT /api/household (admin only)
func (h *SettingsHandler) UpdateHousehold(w http.ResponseWriter, r *http.Request) {
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

	householdID := auth.HouseholdID(r.Context())
	household, err := h.householdStore.Update(r.Context(), householdID, req.Name)
	if err != nil {
		h.logger.Error("update household", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update household")
		return
	}
	publish(h.hub, householdID, "household", "updated", householdID)
	writeJSON(w, http.StatusOK, household)
}

// ListUsers handles GET /api/household/users
func (h *SettingsHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userStore.ListByHousehold(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("list household users", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(users))
}
