package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/village/internal/model"
)

type PushStore struct {
	db *sql.DB
}

func NewPushStore(db *sql.DB) *PushStore {
	return &PushStore{db: db}
}

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	err := scanner.Scan(&sub.ID, &sub.UserID, &sub.HouseholdID, &sub.Endpoint, &sub.P256dhKey, &sub.AuthKey, &sub.DeviceName, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

const subscriptionCols = `id, user_id, household_id, endpoint, p256dh_key, auth_key, device_name, created_at`

// Subscribe stores a browser subscription. Re-subscribing the same endpoint
// refreshes its keys and ownership.
func (s *PushStore) Subscribe(ctx context.Context, userID, householdID int64, endpoint, p256dh, auth, deviceName string) (*model.PushSubscription, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (user_id, household_id, endpoint, p256dh_key, auth_key, device_name)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(endpoint) DO UPDATE SET user_id = excluded.user_id, household_id = excluded.household_id,
		   p256dh_key = excluded.p256dh_key, auth_key = excluded.auth_key, device_name = excluded.device_name`,
		userID, householdID, endpoint, p256dh, auth, deviceName,
	)
	if err != nil {
		return nil, fmt.Errorf("create push subscription: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+subscriptionCols+` FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	sub, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("get push subscription: %w", err)
	}
	return sub, nil
}

func (s *PushStore) ListByUser(ctx context.Context, userID, householdID int64) ([]model.PushSubscription, error) {
	return s.list(ctx,
		`SELECT `+subscriptionCols+` FROM push_subscriptions WHERE user_id = ? AND household_id = ? ORDER BY created_at DESC, id DESC`,
		userID, householdID,
	)
}

func (s *PushStore) ListByHousehold(ctx context.Context, householdID int64) ([]model.PushSubscription, error) {
	return s.list(ctx,
		`SELECT `+subscriptionCols+` FROM push_subscriptions WHERE household_id = ? ORDER BY created_at DESC, id DESC`,
		householdID,
	)
}

func (s *PushStore) list(ctx context.Context, query string, args ...any) ([]model.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.PushSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// Unsubscribe deletes a subscription owned by the user. It reports whether
// a row was removed.
func (s *PushStore) Unsubscribe(ctx context.Context, id, userID, householdID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE id = ? AND user_id = ? AND household_id = ?`,
		id, userID, householdID,
	)
	if err != nil {
		return false, fmt.Errorf("delete push subscription: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *PushStore) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return fmt.Errorf("delete push subscription by endpoint: %w", err)
	}
	return nil
}

// GetPreferences returns one entry per known notification type. Types the
// user never set are reported as enabled.
func (s *PushStore) GetPreferences(ctx context.Context, userID, householdID int64) ([]model.NotificationPreference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT notification_type, enabled FROM notification_preferences WHERE user_id = ? AND household_id = ?`,
		userID, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("get notification preferences: %w", err)
	}
	defer rows.Close()

	stored := make(map[string]bool)
	for rows.Next() {
		var t string
		var enabled bool
		if err := rows.Scan(&t, &enabled); err != nil {
			return nil, fmt.Errorf("scan notification preference: %w", err)
		}
		stored[t] = enabled
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prefs := make([]model.NotificationPreference, 0, len(model.NotificationTypes))
	for _, t := range model.NotificationTypes {
		enabled, ok := stored[t]
		if !ok {
			enabled = true
		}
		prefs = append(prefs, model.NotificationPreference{NotificationType: t, Enabled: enabled})
	}
	return prefs, nil
}

func (s *PushStore) SetPreference(ctx context.Context, userID, householdID int64, notifType string, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_preferences (user_id, household_id, notification_type, enabled)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, household_id, notification_type) DO UPDATE SET enabled = excluded.enabled, updated_at = CURRENT_TIMESTAMP`,
		userID, householdID, notifType, enabled,
	)
	if err != nil {
		return fmt.Errorf("set notification preference: %w", err)
	}
	return nil
}

// IsPreferenceEnabled reports whether a notification type is enabled for a
// user. Missing preferences default to enabled.
func (s *PushStore) IsPreferenceEnabled(ctx context.Context, userID, householdID int64, notifType string) (bool, error) {
	var enabled bool
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled FROM notification_preferences
		 WHERE user_id = ? AND household_id = ? AND notification_type = ?`,
		userID, householdID, notifType,
	).Scan(&enabled)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("check notification preference: %w", err)
	}
	return enabled, nil
}

// RecordSent marks a notification as delivered. It returns false when the
// same notification was already recorded, so callers can claim a send
// before performing it.
func (s *PushStore) RecordSent(ctx context.Context, householdID int64, notifType, refID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO notification_log (household_id, notification_type, reference_id) VALUES (?, ?, ?)`,
		householdID, notifType, refID,
	)
	if err != nil {
		return false, fmt.Errorf("record sent notification: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CleanupLog deletes log entries older than before.
func (s *PushStore) CleanupLog(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notification_log WHERE sent_at < ?`, before.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return fmt.Errorf("cleanup notification log: %w", err)
	}
	return nil
}
