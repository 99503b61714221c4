package model

import "time"

const DefaultMemberColor = "#3B82F6"

type FamilyMember struct {
	ID                 int64     `json:"id"`
	HouseholdID        int64     `json:"household_id"`
	Name               string    `json:"name"`
	Relationship       string    `json:"relationship"`
	Email              string    `json:"email"`
	Phone              string    `json:"phone"`
	Color              string    `json:"color"`
	IsPrimaryCaregiver bool      `json:"is_primary_caregiver"`
	SortOrder          int       `json:"sort_order"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type Kid struct {
	ID          int64     `json:"id"`
	HouseholdID int64     `json:"household_id"`
	Name        string    `json:"name"`
	BirthDate   string    `json:"birth_date"`
	School      string    `json:"school"`
	Allergies   string    `json:"allergies"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
