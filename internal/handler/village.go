package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/village/internal/auth"
	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/push"
	"github.com/dukerupert/village/internal/store"
)

// mailConcurrency bounds parallel help request emails.
const mailConcurrency = 4

type VillageHandler struct {
	members     *store.VillageMemberStore
	requests    *store.HelpRequestStore
	logs        *store.CommunicationLogStore
	delegations *store.DelegationStore
	households  *store.HouseholdStore
	mailer      Mailer
	notifier    Notifier
	hub         Broadcaster
	logger      *slog.Logger
}

func NewVillageHandler(
	members *store.VillageMemberStore,
	requests *store.HelpRequestStore,
	logs *store.CommunicationLogStore,
	delegations *store.DelegationStore,
	households *store.HouseholdStore,
	mailer Mailer,
	notifier Notifier,
	hub Broadcaster,
	logger *slog.Logger,
) *VillageHandler {
	return &VillageHandler{
		members:     members,
		requests:    requests,
		logs:        logs,
		delegations: delegations,
		households:  households,
		mailer:      mailer,
		notifier:    notifier,
		hub:         hub,
		logger:      logger,
	}
}

// member loads a village member, writing 400 when it does not exist.
func (h *VillageHandler) member(w http.ResponseWriter, r *http.Request, id int64) (*model.VillageMember, bool) {
	m, err := h.members.GetByID(r.Context(), auth.HouseholdID(r.Context()), id)
	if err != nil {
		h.logger.Error("get village member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load village member")
		return nil, false
	}
	if m == nil {
		writeError(w, http.StatusBadRequest, "village member not found")
		return nil, false
	}
	return m, true
}

func (h *VillageHandler) householdName(ctx context.Context, householdID int64) string {
	hh, err := h.households.GetByID(ctx, householdID)
	if err != nil || hh == nil {
		return "Your friends"
	}
	return hh.Name
}

// Members

func (h *VillageHandler) parseMember(w http.ResponseWriter, r *http.Request) (model.VillageMember, bool) {
	var req model.VillageMember
	if !decodeJSON(w, r, &req) {
		return req, false
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return req, false
	}
	if req.Category == "" {
		req.Category = "other"
	}
	if !model.Contains(model.VillageCategories, req.Category) {
		writeError(w, http.StatusBadRequest, "category must be one of "+strings.Join(model.VillageCategories, ", "))
		return req, false
	}
	req.Email = normalizeEmail(req.Email)
	return req, true
}

func (h *VillageHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.List(r.Context(), auth.HouseholdID(r.Context()))
	if err != nil {
		h.logger.Error("list village members", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list village members")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(members))
}

func (h *VillageHandler) GetMember(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	m, err := h.members.GetByID(r.Context(), auth.HouseholdID(r.Context()), id)
	if err != nil {
		h.logger.Error("get village member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load village member")
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "village member not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *VillageHandler) CreateMember(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseMember(w, r)
	if !ok {
		return
	}
	householdID := auth.HouseholdID(r.Context())
	m, err := h.members.Create(r.Context(), householdID, req)
	if err != nil {
		h.logger.Error("create village member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create village member")
		return
	}
	publish(h.hub, householdID, "village_member", "created", m.ID)
	writeJSON(w, http.StatusCreated, m)
}

func (h *VillageHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	req, ok := h.parseMember(w, r)
	if !ok {
		return
	}
	householdID := auth.HouseholdID(r.Context())
	m, err := h.members.Update(r.Context(), householdID, id, req)
	if err != nil {
		h.logger.Error("update village member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update village member")
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "village member not found")
		return
	}
	publish(h.hub, householdID, "village_member", "updated", id)
	writeJSON(w, http.StatusOK, m)
}

func (h *VillageHandler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	householdID := auth.HouseholdID(r.Context())
	if err := h.members.Delete(r.Context(), householdID, id); err != nil {
		h.logger.Error("delete village member", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete village member")
		return
	}
	publish(h.hub, householdID, "village_member", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// Help requests

type helpRequestBody struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Urgency     string `json:"urgency"`
	NeededBy    string `json:"needed_by"`
	Notify      bool   `json:"notify"`
}

func (b *helpRequestBody) validate() string {
	b.Title = strings.TrimSpace(b.Title)
	if b.Title == "" {
		return "title is required"
	}
	if b.Urgency == "" {
		b.Urgency = "normal"
	}
	if !model.Contains(model.Urgencies, b.Urgency) {
		return "urgency must be one of " + strings.Join(model.Urgencies, ", ")
	}
	if !validDate(b.NeededBy) {
		return "needed_by must be YYYY-MM-DD"
	}
	return ""
}

// ListHelpRequests handles GET /api/village/help-requests?status=
func (h *VillageHandler) ListHelpRequests(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", model.HelpStatusOpen, model.HelpStatusAccepted, model.HelpStatusCompleted, model.HelpStatusCancelled:
	default:
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	requests, err := h.requests.List(r.Context(), auth.HouseholdID(r.Context()), status)
	if err != nil {
		h.logger.Error("list help requests", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list help requests")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(requests))
}

func (h *VillageHandler) CreateHelpRequest(w http.ResponseWriter, r *http.Request) {
	var req helpRequestBody
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ctx := r.Context()
	householdID := auth.HouseholdID(ctx)
	userID := auth.UserID(ctx)
	created, err := h.requests.Create(ctx, householdID, model.HelpRequest{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Urgency:     req.Urgency,
		NeededBy:    req.NeededBy,
		CreatedBy:   &userID,
	})
	if err != nil {
		h.logger.Error("create help request", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create help request")
		return
	}
	publish(h.hub, householdID, "help_request", "created", created.ID)

	if req.Notify {
		h.emailVillage(ctx, householdID, *created)
	}
	if h.notifier != nil {
		h.notifier.Notify(ctx, householdID, h.otherUsers(ctx, householdID, userID), model.NotifTypeHelpRequest, push.Payload{
			Title: "Help needed: " + created.Title,
			Body:  created.Description,
			URL:   "/village",
			Tag:   "help-" + strconv.FormatInt(created.ID, 10),
		})
	}
	writeJSON(w, http.StatusCreated, created)
}

// emailVillage sends the request to every village member with an address.
// Failures are logged and do not fail the request.
func (h *VillageHandler) emailVillage(ctx context.Context, householdID int64, req model.HelpRequest) {
	if h.mailer == nil {
		return
	}
	members, err := h.members.List(ctx, householdID)
	if err != nil {
		h.logger.Error("list village members for help request", "error", err)
		return
	}
	name := h.householdName(ctx, householdID)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mailConcurrency)
	for _, m := range members {
		if m.Email == "" {
			continue
		}
		g.Go(func() error {
			if err := h.mailer.SendHelpRequest(gctx, m.Email, name, req); err != nil {
				h.logger.Warn("email help request", "village_member_id", m.ID, "error", err)
			}
			return nil
		})
	}
	g.Wait()
}

// otherUsers returns the household's users except userID.
func (h *VillageHandler) otherUsers(ctx context.Context, householdID, userID int64) []int64 {
	members, err := h.households.ListMembers(ctx, householdID)
	if err != nil {
		h.logger.Error("list household members", "error", err)
		return []int64{}
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		if m.UserID != userID {
			ids = append(ids, m.UserID)
		}
	}
	return ids
}

func (h *VillageHandler) UpdateHelpRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req helpRequestBody
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	householdID := auth.HouseholdID(r.Context())
	updated, err := h.requests.Update(r.Context(), householdID, id, model.HelpRequest{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Urgency:     req.Urgency,
		NeededBy:    req.NeededBy,
	})
	if err != nil {
		h.logger.Error("update help request", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update help request")
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, "help request not found")
		return
	}
	publish(h.hub, householdID, "help_request", "updated", id)
	writeJSON(w, http.StatusOK, updated)
}

// TransitionHelpRequest handles PUT /api/village/help-requests/{id}/status
func (h *VillageHandler) TransitionHelpRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Status      string `json:"status"`
		ResponderID *int64 `json:"responder_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Status == model.HelpStatusAccepted {
		if req.ResponderID == nil {
			writeError(w, http.StatusBadRequest, "responder_id is required to accept")
			return
		}
		if _, ok := h.member(w, r, *req.ResponderID); !ok {
			return
		}
	}

	householdID := auth.HouseholdID(r.Context())
	updated, err := h.requests.Transition(r.Context(), householdID, id, req.Status, req.ResponderID)
	if errors.Is(err, store.ErrInvalidTransition) {
		writeError(w, http.StatusConflict, "status change not allowed")
		return
	}
	if err != nil {
		h.logger.Error("transition help request", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update help request")
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, "help request not found")
		return
	}
	publish(h.hub, householdID, "help_request", "updated", id)
	writeJSON(w, http.StatusOK, updated)
}

func (h *VillageHandler) DeleteHelpRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	householdID := auth.HouseholdID(r.Context())
	if err := h.requests.Delete(r.Context(), householdID, id); err != nil {
		h.logger.Error("delete help request", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete help request")
		return
	}
	publish(h.hub, householdID, "help_request", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// Communication logs

// ListLogs handles GET /api/village/logs?member_id=&limit=
func (h *VillageHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	var memberID int64
	if v := r.URL.Query().Get("member_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid member_id")
			return
		}
		memberID = id
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	logs, err := h.logs.List(r.Context(), auth.HouseholdID(r.Context()), memberID, limit)
	if err != nil {
		h.logger.Error("list communication logs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list communication logs")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(logs))
}

func (h *VillageHandler) CreateLog(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VillageMemberID int64      `json:"village_member_id"`
		Channel         string     `json:"channel"`
		Summary         string     `json:"summary"`
		OccurredAt      *time.Time `json:"occurred_at"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !model.Contains(model.CommunicationChannels, req.Channel) {
		writeError(w, http.StatusBadRequest, "channel must be one of "+strings.Join(model.CommunicationChannels, ", "))
		return
	}
	if _, ok := h.member(w, r, req.VillageMemberID); !ok {
		return
	}
	occurredAt := time.Now()
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}

	householdID := auth.HouseholdID(r.Context())
	l, err := h.logs.Create(r.Context(), householdID, req.VillageMemberID, req.Channel, strings.TrimSpace(req.Summary), occurredAt)
	if err != nil {
		h.logger.Error("create communication log", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create communication log")
		return
	}
	publish(h.hub, householdID, "communication_log", "created", l.ID)
	writeJSON(w, http.StatusCreated, l)
}

func (h *VillageHandler) DeleteLog(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	householdID := auth.HouseholdID(r.Context())
	if err := h.logs.Delete(r.Context(), householdID, id); err != nil {
		h.logger.Error("delete communication log", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete communication log")
		return
	}
	publish(h.hub, householdID, "communication_log", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// Delegations

func (h *VillageHandler) parseDelegation(w http.ResponseWriter, r *http.Request) (model.DelegationTask, *model.VillageMember, bool) {
	var req struct {
		VillageMemberID int64  `json:"village_member_id"`
		Title           string `json:"title"`
		Description     string `json:"description"`
		DueDate         string `json:"due_date"`
	}
	if !decodeJSON(w, r, &req) {
		return model.DelegationTask{}, nil, false
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return model.DelegationTask{}, nil, false
	}
	if !validDate(req.DueDate) {
		writeError(w, http.StatusBadRequest, "due_date must be YYYY-MM-DD")
		return model.DelegationTask{}, nil, false
	}
	m, ok := h.member(w, r, req.VillageMemberID)
	if !ok {
		return model.DelegationTask{}, nil, false
	}
	return model.DelegationTask{
		VillageMemberID: req.VillageMemberID,
		Title:           req.Title,
		Description:     req.Description,
		DueDate:         req.DueDate,
	}, m, true
}

// ListDelegations handles GET /api/village/delegations?member_id=
func (h *VillageHandler) ListDelegations(w http.ResponseWriter, r *http.Request) {
	var memberID int64
	if v := r.URL.Query().Get("member_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid member_id")
			return
		}
		memberID = id
	}
	tasks, err := h.delegations.List(r.Context(), auth.HouseholdID(r.Context()), memberID)
	if err != nil {
		h.logger.Error("list delegations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list delegations")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tasks))
}

func (h *VillageHandler) CreateDelegation(w http.ResponseWriter, r *http.Request) {
	d, member, ok := h.parseDelegation(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	householdID := auth.HouseholdID(ctx)
	created, err := h.delegations.Create(ctx, householdID, d)
	if err != nil {
		h.logger.Error("create delegation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create delegation")
		return
	}
	publish(h.hub, householdID, "delegation", "created", created.ID)

	if member.Email != "" && h.mailer != nil {
		if err := h.mailer.SendDelegation(ctx, member.Email, h.householdName(ctx, householdID), *created); err != nil {
			h.logger.Warn("email delegation", "village_member_id", member.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *VillageHandler) UpdateDelegation(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	d, _, ok := h.parseDelegation(w, r)
	if !ok {
		return
	}
	householdID := auth.HouseholdID(r.Context())
	updated, err := h.delegations.Update(r.Context(), householdID, id, d)
	h.respondDelegation(w, householdID, updated, err)
}

// SetDelegationStatus handles PUT /api/village/delegations/{id}/status
func (h *VillageHandler) SetDelegationStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !model.Contains(model.DelegationStatuses, req.Status) {
		writeError(w, http.StatusBadRequest, "status must be one of "+strings.Join(model.DelegationStatuses, ", "))
		return
	}
	householdID := auth.HouseholdID(r.Context())
	updated, err := h.delegations.SetStatus(r.Context(), householdID, id, req.Status)
	h.respondDelegation(w, householdID, updated, err)
}

func (h *VillageHandler) respondDelegation(w http.ResponseWriter, householdID int64, d *model.DelegationTask, err error) {
	if err != nil {
		h.logger.Error("save delegation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save delegation")
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "delegation not found")
		return
	}
	publish(h.hub, householdID, "delegation", "updated", d.ID)
	writeJSON(w, http.StatusOK, d)
}

func (h *VillageHandler) DeleteDelegation(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	householdID := auth.HouseholdID(r.Context())
	if err := h.delegations.Delete(r.Context(), householdID, id); err != nil {
		h.logger.Error("delete delegation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete delegation")
		return
	}
	publish(h.hub, householdID, "delegation", "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}
