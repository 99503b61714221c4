package model

import "time"

const MaxMessageLength = 4000

type Conversation struct {
	ID             int64     `json:"id"`
	HouseholdID    int64     `json:"household_id"`
	Title          string    `json:"title"`
	CreatedBy      *int64    `json:"created_by"`
	ParticipantIDs []int64   `json:"participant_ids"`
	LastMessage    *Message  `json:"last_message,omitempty"`
	UnreadCount    int       `json:"unread_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       *int64    `json:"sender_id"`
	Body           string    `json:"body"`
	ClientID       string    `json:"client_id"`
	CreatedAt      time.Time `json:"created_at"`
}
