package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/dukerupert/village/internal/model"
)

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns the household's settings merged over the defaults.
func (s *SettingsStore) Get(ctx context.Context, householdID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM settings WHERE household_id = ? ORDER BY key`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string, len(model.DefaultSettings))
	for k, v := range model.DefaultSettings {
		settings[k] = v
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// Set upserts every key in values in one transaction.
func (s *SettingsStore) Set(ctx context.Context, householdID int64, values map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for key, value := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO settings (household_id, key, value, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(household_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			householdID, key, value, now,
		); err != nil {
			return fmt.Errorf("set setting %q: %w", key, err)
		}
	}
	return tx.Commit()
}

// Location returns the household's configured time zone, falling back to UTC.
func (s *SettingsStore) Location(ctx context.Context, householdID int64) (*time.Location, error) {
	settings, err := s.Get(ctx, householdID)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(settings[model.SettingTimezone])
	if err != nil {
		return time.UTC, nil
	}
	return loc, nil
}

// Int returns an integer setting, or def when unset or malformed.
func (s *SettingsStore) Int(ctx context.Context, householdID int64, key string, def int) (int, error) {
	settings, err := s.Get(ctx, householdID)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(settings[key])
	if err != nil {
		return def, nil
	}
	return n, nil
}
