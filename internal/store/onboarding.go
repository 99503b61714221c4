package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/village/internal/model"
)

type OnboardingStore struct {
	db *sql.DB
}

func NewOnboardingStore(db *sql.DB) *OnboardingStore {
	return &OnboardingStore{db: db}
}

// Get returns the user's progress, creating a fresh row on first access.
func (s *OnboardingStore) Get(ctx context.Context, userID, householdID int64) (*model.OnboardingProgress, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO onboarding_progress (user_id, household_id, current_step) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, household_id) DO NOTHING`,
		userID, householdID, model.OnboardingSteps[0],
	)
	if err != nil {
		return nil, fmt.Errorf("ensure onboarding progress: %w", err)
	}

	var p model.OnboardingProgress
	var steps string
	var completedAt sql.NullTime
	err = s.db.QueryRowContext(ctx,
		`SELECT user_id, household_id, current_step, completed_steps, completed_at, updated_at
		 FROM onboarding_progress WHERE user_id = ? AND household_id = ?`,
		userID, householdID,
	).Scan(&p.UserID, &p.HouseholdID, &p.CurrentStep, &steps, &completedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get onboarding progress: %w", err)
	}
	p.CompletedSteps = splitSteps(steps)
	p.CompletedAt = timePtr(completedAt)
	return &p, nil
}

// CompleteStep marks step done. The current step advances to the first
// step not yet done, and completed_at is set once every step is.
func (s *OnboardingStore) CompleteStep(ctx context.Context, userID, householdID int64, step string) (*model.OnboardingProgress, error) {
	p, err := s.Get(ctx, userID, householdID)
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool, len(p.CompletedSteps)+1)
	for _, st := range p.CompletedSteps {
		done[st] = true
	}
	done[step] = true

	var completed []string
	current := ""
	for _, st := range model.OnboardingSteps {
		if done[st] {
			completed = append(completed, st)
		} else if current == "" {
			current = st
		}
	}

	var completedAt sql.NullTime
	if p.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *p.CompletedAt, Valid: true}
	}
	if current == "" {
		current = model.OnboardingSteps[len(model.OnboardingSteps)-1]
		if !completedAt.Valid {
			completedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
		}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE onboarding_progress SET current_step = ?, completed_steps = ?, completed_at = ?
		 WHERE user_id = ? AND household_id = ?`,
		current, strings.Join(completed, ","), completedAt, userID, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("complete onboarding step: %w", err)
	}
	return s.Get(ctx, userID, householdID)
}

// Skip finishes onboarding without marking the remaining steps.
func (s *OnboardingStore) Skip(ctx context.Context, userID, householdID int64) (*model.OnboardingProgress, error) {
	if _, err := s.Get(ctx, userID, householdID); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE onboarding_progress SET completed_at = COALESCE(completed_at, ?) WHERE user_id = ? AND household_id = ?`,
		time.Now().UTC(), userID, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("skip onboarding: %w", err)
	}
	return s.Get(ctx, userID, householdID)
}

func splitSteps(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
