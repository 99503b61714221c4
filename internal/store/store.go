package store

import (
	"database/sql"
	"errors"
	"time"
)

var (
	// ErrPrimaryCaregiver is returned when a change would leave the
	// household without a primary caregiver.
	ErrPrimaryCaregiver = errors.New("household must keep a primary caregiver")

	// ErrNotParticipant is returned when a user acts on a conversation
	// they are not part of.
	ErrNotParticipant = errors.New("user is not a conversation participant")

	// ErrInvalidTransition is returned for a help request status change
	// that the workflow does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidParticipants is returned when a conversation would not
	// include another member of the household.
	ErrInvalidParticipants = errors.New("conversation needs another household member")

	// ErrDuplicateEmail is returned when registering an email that already
	// has an account.
	ErrDuplicateEmail = errors.New("email already registered")
)

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
