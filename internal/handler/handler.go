// Package handler implements the JSON HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/push"
	"github.com/dukerupert/village/internal/websocket"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Broadcaster publishes realtime change events to connected clients.
type Broadcaster interface {
	BroadcastHousehold(householdID int64, msg websocket.Message)
	SendToUsers(householdID int64, userIDs []int64, msg websocket.Message)
}

// SessionDisconnector closes realtime connections whose session ended.
type SessionDisconnector interface {
	DisconnectSession(sessionID int64) int
	DisconnectUser(userID, keepSessionID int64) int
}

// Mailer sends transactional email.
type Mailer interface {
	SendCode(ctx context.Context, toEmail, code, purpose, householdName string) error
	SendHelpRequest(ctx context.Context, toEmail, householdName string, req model.HelpRequest) error
	SendDelegation(ctx context.Context, toEmail, householdName string, task model.DelegationTask) error
}

// Calendar resolves the current date in a household's time zone.
type Calendar interface {
	Today(ctx context.Context, householdID int64) (string, *time.Location, error)
}

// Notifier delivers web push notifications to household devices.
type Notifier interface {
	Notify(ctx context.Context, householdID int64, userIDs []int64, notifType string, payload push.Payload) int
}

func publish(hub Broadcaster, householdID int64, entity, action string, id int64) {
	if hub != nil {
		hub.BroadcastHousehold(householdID, websocket.NewMessage(entity, action, id, nil))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func parseIDParam(r *http.Request) (int64, error) {
	return parsePathInt(r, "id")
}

func parsePathInt(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

// validDate reports whether s is empty or a YYYY-MM-DD date.
func validDate(s string) bool {
	if s == "" {
		return true
	}
	_, err := time.Parse(model.DateLayout, s)
	return err == nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
