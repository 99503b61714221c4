package model

import "time"

const (
	CodePurposeMFA    = "mfa"
	CodePurposeInvite = "invite"
	CodePurposeReset  = "reset"
)

type Session struct {
	ID          int64     `json:"id"`
	Token       string    `json:"-"`
	UserID      int64     `json:"user_id"`
	HouseholdID int64     `json:"household_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuthCode is a short numeric code delivered by email for MFA or invitations.
type AuthCode struct {
	ID          int64      `json:"id"`
	Code        string     `json:"-"`
	Email       string     `json:"email"`
	Purpose     string     `json:"purpose"`
	HouseholdID *int64     `json:"household_id"`
	ExpiresAt   time.Time  `json:"expires_at"`
	UsedAt      *time.Time `json:"used_at"`
	Attempts    int        `json:"attempts"`
	CreatedAt   time.Time  `json:"created_at"`
}
