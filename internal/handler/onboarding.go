package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/village/internal/auth"
	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/store"
)

type OnboardingHandler struct {
	store  *store.OnboardingStore
	logger *slog.Logger
}

func NewOnboardingHandler(s *store.OnboardingStore, logger *slog.Logger) *OnboardingHandler {
	return &OnboardingHandler{store: s, logger: logger}
}

// Get handles GET /api/onboarding
func (h *OnboardingHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.store.Get(ctx, auth.UserID(ctx), auth.HouseholdID(ctx))
	h.respond(w, p, err)
}

// CompleteStep handles POST /api/onboarding/steps/{step}
func (h *OnboardingHandler) CompleteStep(w http.ResponseWriter, r *http.Request) {
	step := r.PathValue("step")
	if !model.Contains(model.OnboardingSteps, step) {
		writeError(w, http.StatusBadRequest, "step must be one of "+strings.Join(model.OnboardingSteps, ", "))
		return
	}
	ctx := r.Context()
	p, err := h.store.CompleteStep(ctx, auth.UserID(ctx), auth.HouseholdID(ctx), step)
	h.respond(w, p, err)
}

// Skip handles POST /api/onboarding/skip
func (h *OnboardingHandler) Skip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.store.Skip(ctx, auth.UserID(ctx), auth.HouseholdID(ctx))
	h.respond(w, p, err)
}

func (h *OnboardingHandler) respond(w http.ResponseWriter, p *model.OnboardingProgress, err error) {
	if err != nil {
		h.logger.Error("onboarding progress", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update onboarding")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
