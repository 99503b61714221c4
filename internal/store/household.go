package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/village/internal/model"
)

type HouseholdStore struct {
	db *sql.DB
}

func NewHouseholdStore(db *sql.DB) *HouseholdStore {
	return &HouseholdStore{db: db}
}

func scanHousehold(scanner interface{ Scan(...any) error }) (*model.Household, error) {
	var h model.Household
	err := scanner.Scan(&h.ID, &h.Name, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func scanHouseholdMember(scanner interface{ Scan(...any) error }) (*model.HouseholdMember, error) {
	var m model.HouseholdMember
	err := scanner.Scan(&m.ID, &m.HouseholdID, &m.UserID, &m.Role, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const householdCols = `id, name, created_at, updated_at`
const householdMemberCols = `id, household_id, user_id, role, created_at, updated_at`

// Register creates a household together with its first user, who becomes
// the admin. Default settings and the onboarding row are seeded in the same
// transaction.
func (s *HouseholdStore) Register(ctx context.Context, householdName, email, name, passwordHash string) (*model.User, *model.Household, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, email).Scan(&exists); err != nil {
		return nil, nil, fmt.Errorf("check email: %w", err)
	}
	if exists > 0 {
		return nil, nil, ErrDuplicateEmail
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO households (name) VALUES (?)`, householdName)
	if err != nil {
		return nil, nil, fmt.Errorf("insert household: %w", err)
	}
	householdID, err := res.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("last insert id: %w", err)
	}

	res, err = tx.ExecContext(ctx,
		`INSERT INTO users (email, name, password_hash) VALUES (?, ?, ?)`,
		email, name, passwordHash,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("insert user: %w", err)
	}
	userID, err := res.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := joinTx(ctx, tx, householdID, userID, model.RoleAdmin); err != nil {
		return nil, nil, err
	}

	for key, value := range model.DefaultSettings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO settings (household_id, key, value) VALUES (?, ?, ?)`,
			householdID, key, value,
		); err != nil {
			return nil, nil, fmt.Errorf("seed setting %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit registration: %w", err)
	}

	household, err := s.GetByID(ctx, householdID)
	if err != nil {
		return nil, nil, err
	}
	user, err := NewUserStore(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return user, household, nil
}

// Join adds a user to an existing household as a member. The user is created
// when no account exists for the email; an existing account keeps its
// password. Joining twice is a no-op.
func (s *HouseholdStore) Join(ctx context.Context, householdID int64, email, name, passwordHash string) (*model.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var userID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE email = ?`, email).Scan(&userID)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx,
			`INSERT INTO users (email, name, password_hash) VALUES (?, ?, ?)`,
			email, name, passwordHash,
		)
		if err != nil {
			return nil, fmt.Errorf("insert user: %w", err)
		}
		if userID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("last insert id: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := joinTx(ctx, tx, householdID, userID, model.RoleMember); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit join: %w", err)
	}
	return NewUserStore(s.db).GetByID(ctx, userID)
}

func joinTx(ctx context.Context, tx *sql.Tx, householdID, userID int64, role string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO household_members (household_id, user_id, role) VALUES (?, ?, ?)
		 ON CONFLICT(household_id, user_id) DO NOTHING`,
		householdID, userID, role,
	); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO onboarding_progress (user_id, household_id, current_step) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, household_id) DO NOTHING`,
		userID, householdID, model.OnboardingSteps[0],
	); err != nil {
		return fmt.Errorf("seed onboarding: %w", err)
	}
	return nil
}

func (s *HouseholdStore) GetByID(ctx context.Context, id int64) (*model.Household, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+householdCols+` FROM households WHERE id = ?`, id)
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	return h, nil
}

func (s *HouseholdStore) Update(ctx context.Context, id int64, name string) (*model.Household, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE households SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return nil, fmt.Errorf("update household: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *HouseholdStore) GetMember(ctx context.Context, householdID, userID int64) (*model.HouseholdMember, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+householdMemberCols+` FROM household_members WHERE household_id = ? AND user_id = ?`,
		householdID, userID,
	)
	m, err := scanHouseholdMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *HouseholdStore) ListMembers(ctx context.Context, householdID int64) ([]model.HouseholdMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+householdMemberCols+` FROM household_members WHERE household_id = ? ORDER BY created_at ASC, id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.HouseholdMember
	for rows.Next() {
		m, err := scanHouseholdMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// ListMemberships returns the households a user belongs to with their role.
func (s *HouseholdStore) ListMemberships(ctx context.Context, userID int64) ([]model.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT h.id, h.name, h.created_at, h.updated_at, hm.role
		 FROM households h
		 JOIN household_members hm ON h.id = hm.household_id
		 WHERE hm.user_id = ?
		 ORDER BY h.name ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list households for user: %w", err)
	}
	defer rows.Close()

	var memberships []model.Membership
	for rows.Next() {
		var m model.Membership
		if err := rows.Scan(&m.Household.ID, &m.Household.Name, &m.Household.CreatedAt, &m.Household.UpdatedAt, &m.Role); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	return memberships, rows.Err()
}

// ListIDs returns every household ID. Used by the digest job.
func (s *HouseholdStore) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM households ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list household ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan household id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
