package model

import "time"

// OnboardingSteps lists the onboarding flow in order.
var OnboardingSteps = []string{"profile", "family", "village", "goals", "notifications"}

type OnboardingProgress struct {
	UserID         int64      `json:"user_id"`
	HouseholdID    int64      `json:"household_id"`
	CurrentStep    string     `json:"current_step"`
	CompletedSteps []string   `json:"completed_steps"`
	CompletedAt    *time.Time `json:"completed_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
