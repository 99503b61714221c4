package model

import "time"

var VillageCategories = []string{"family", "friend", "neighbor", "professional", "other"}

type VillageMember struct {
	ID                 int64     `json:"id"`
	HouseholdID        int64     `json:"household_id"`
	Name               string    `json:"name"`
	Relationship       string    `json:"relationship"`
	Category           string    `json:"category"`
	Email              string    `json:"email"`
	Phone              string    `json:"phone"`
	Availability       string    `json:"availability"`
	Notes              string    `json:"notes"`
	IsEmergencyContact bool      `json:"is_emergency_contact"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Help request statuses.
const (
	HelpStatusOpen      = "open"
	HelpStatusAccepted  = "accepted"
	HelpStatusCompleted = "completed"
	HelpStatusCancelled = "cancelled"
)

var Urgencies = []string{"low", "normal", "urgent"}

type HelpRequest struct {
	ID          int64     `json:"id"`
	HouseholdID int64     `json:"household_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Urgency     string    `json:"urgency"`
	NeededBy    string    `json:"needed_by"`
	Status      string    `json:"status"`
	ResponderID *int64    `json:"responder_id"`
	CreatedBy   *int64    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

var CommunicationChannels = []string{"call", "text", "email", "in_person", "video"}

type CommunicationLog struct {
	ID              int64     `json:"id"`
	HouseholdID     int64     `json:"household_id"`
	VillageMemberID int64     `json:"village_member_id"`
	Channel         string    `json:"channel"`
	Summary         string    `json:"summary"`
	OccurredAt      time.Time `json:"occurred_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// Delegation statuses.
const (
	DelegationPending    = "pending"
	DelegationInProgress = "in_progress"
	DelegationCompleted  = "completed"
	DelegationDeclined   = "declined"
)

var DelegationStatuses = []string{DelegationPending, DelegationInProgress, DelegationCompleted, DelegationDeclined}

type DelegationTask struct {
	ID              int64     `json:"id"`
	HouseholdID     int64     `json:"household_id"`
	VillageMemberID int64     `json:"village_member_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	DueDate         string    `json:"due_date"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Contains reports whether v is one of values.
func Contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
