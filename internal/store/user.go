package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/village/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := scanner.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.AvatarURL, &u.AvatarKey, &u.MFAEnabled, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const userCols = `id, email, name, password_hash, avatar_url, avatar_key, mfa_enabled, created_at, updated_at`

func (s *UserStore) Create(ctx context.Context, email, name, passwordHash string) (*model.User, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, name, password_hash) VALUES (?, ?, ?)`,
		email, name, passwordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// ListByHousehold returns every user with a membership in the household.
func (s *UserStore) ListByHousehold(ctx context.Context, householdID int64) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.email, u.name, u.password_hash, u.avatar_url, u.avatar_key, u.mfa_enabled, u.created_at, u.updated_at
		 FROM users u JOIN household_members hm ON hm.user_id = u.id
		 WHERE hm.household_id = ? ORDER BY u.name, u.id`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list household users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *UserStore) UpdateName(ctx context.Context, id int64, name string) (*model.User, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return nil, fmt.Errorf("update user name: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return fmt.Errorf("set password hash: %w", err)
	}
	return nil
}

func (s *UserStore) SetMFAEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET mfa_enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("set mfa enabled: %w", err)
	}
	return nil
}

// SetAvatar records the public URL and object key of the user's avatar.
func (s *UserStore) SetAvatar(ctx context.Context, id int64, url, key string) (*model.User, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET avatar_url = ?, avatar_key = ? WHERE id = ?`, url, key, id)
	if err != nil {
		return nil, fmt.Errorf("set avatar: %w", err)
	}
	return s.GetByID(ctx, id)
}
