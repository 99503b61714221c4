package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/dukerupert/village/internal/model"
)

const authCodeTTL = 15 * time.Minute

type AuthCodeStore struct {
	db *sql.DB
}

func NewAuthCodeStore(db *sql.DB) *AuthCodeStore {
	return &AuthCodeStore{db: db}
}

func scanAuthCode(scanner interface{ Scan(...any) error }) (*model.AuthCode, error) {
	var ac model.AuthCode
	var householdID sql.NullInt64
	var usedAt sql.NullTime

	err := scanner.Scan(
		&ac.ID, &ac.Code, &ac.Email, &ac.Purpose, &householdID,
		&ac.ExpiresAt, &usedAt, &ac.Attempts, &ac.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	ac.HouseholdID = int64Ptr(householdID)
	ac.UsedAt = timePtr(usedAt)
	return &ac, nil
}

const authCodeCols = `id, code, email, purpose, household_id, expires_at, used_at, attempts, created_at`

// generateCode returns a 6-digit numeric code (100000–999999).
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// Create issues a new code for the email and purpose. Earlier pending codes
// for the same pair are invalidated.
func (s *AuthCodeStore) Create(ctx context.Context, email, purpose string, householdID *int64) (*model.AuthCode, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE auth_codes SET used_at = ? WHERE email = ? AND purpose = ? AND used_at IS NULL`,
		now, email, purpose,
	)
	if err != nil {
		return nil, fmt.Errorf("invalidate previous codes: %w", err)
	}

	code, err := generateCode()
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_codes (code, email, purpose, household_id, expires_at) VALUES (?, ?, ?, ?, ?)`,
		code, email, purpose, nullInt64(householdID), now.Add(authCodeTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("insert auth code: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+authCodeCols+` FROM auth_codes WHERE id = ?`, id)
	ac, err := scanAuthCode(row)
	if err != nil {
		return nil, fmt.Errorf("get auth code: %w", err)
	}
	return ac, nil
}

// GetLatest returns the most recent unexpired, unused code for the email
// and purpose, or nil.
func (s *AuthCodeStore) GetLatest(ctx context.Context, email, purpose string) (*model.AuthCode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+authCodeCols+` FROM auth_codes
		 WHERE email = ? AND purpose = ? AND expires_at > ? AND used_at IS NULL
		 ORDER BY id DESC LIMIT 1`,
		email, purpose, time.Now().UTC(),
	)
	ac, err := scanAuthCode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest auth code: %w", err)
	}
	return ac, nil
}

// IncrementAttempts bumps the attempt counter and returns the new value.
func (s *AuthCodeStore) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	var attempts int
	err := s.db.QueryRowContext(ctx,
		`UPDATE auth_codes SET attempts = attempts + 1 WHERE id = ? RETURNING attempts`,
		id,
	).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return attempts, nil
}

func (s *AuthCodeStore) MarkUsed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE auth_codes SET used_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark auth code used: %w", err)
	}
	return nil
}

// DeleteExpired removes expired or used codes.
func (s *AuthCodeStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM auth_codes WHERE expires_at <= ? OR used_at IS NOT NULL`,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired auth codes: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
