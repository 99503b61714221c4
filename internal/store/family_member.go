package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/village/internal/model"
)

type FamilyMemberStore struct {
	db *sql.DB
}

func NewFamilyMemberStore(db *sql.DB) *FamilyMemberStore {
	return &FamilyMemberStore{db: db}
}

// FamilyMemberInput holds the editable fields of a family member.
type FamilyMemberInput struct {
	Name               string
	Relationship       string
	Email              string
	Phone              string
	Color              string
	IsPrimaryCaregiver bool
}

func scanFamilyMember(scanner interface{ Scan(...any) error }) (*model.FamilyMember, error) {
	var m model.FamilyMember
	err := scanner.Scan(&m.ID, &m.HouseholdID, &m.Name, &m.Relationship, &m.Email, &m.Phone, &m.Color,
		&m.IsPrimaryCaregiver, &m.SortOrder, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const familyMemberCols = `id, household_id, name, relationship, email, phone, color, is_primary_caregiver, sort_order, created_at, updated_at`

func (s *FamilyMemberStore) Create(ctx context.Context, householdID int64, in FamilyMemberInput) (*model.FamilyMember, error) {
	var maxOrder int
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(sort_order), -1) FROM family_members WHERE household_id = ?", householdID,
	).Scan(&maxOrder)
	if err != nil {
		return nil, fmt.Errorf("query max sort_order: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO family_members (household_id, name, relationship, email, phone, color, is_primary_caregiver, sort_order)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		householdID, in.Name, in.Relationship, in.Email, in.Phone, in.Color, in.IsPrimaryCaregiver, maxOrder+1,
	)
	if err != nil {
		return nil, fmt.Errorf("insert family member: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

func (s *FamilyMemberStore) List(ctx context.Context, householdID int64) ([]model.FamilyMember, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+familyMemberCols+" FROM family_members WHERE household_id = ? ORDER BY sort_order, id",
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("query family members: %w", err)
	}
	defer rows.Close()

	var members []model.FamilyMember
	for rows.Next() {
		m, err := scanFamilyMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan family member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *FamilyMemberStore) GetByID(ctx context.Context, householdID, id int64) (*model.FamilyMember, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+familyMemberCols+" FROM family_members WHERE id = ? AND household_id = ?",
		id, householdID,
	)
	m, err := scanFamilyMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query family member: %w", err)
	}
	return m, nil
}

// Update saves the member. Clearing the primary caregiver flag on the last
// primary caregiver returns ErrPrimaryCaregiver.
func (s *FamilyMemberStore) Update(ctx context.Context, householdID, id int64, in FamilyMemberInput) (*model.FamilyMember, error) {
	existing, err := s.GetByID(ctx, householdID, id)
	if err != nil || existing == nil {
		return existing, err
	}

	if existing.IsPrimaryCaregiver && !in.IsPrimaryCaregiver {
		n, err := s.countPrimary(ctx, householdID)
		if err != nil {
			return nil, err
		}
		if n <= 1 {
			return nil, ErrPrimaryCaregiver
		}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE family_members SET name = ?, relationship = ?, email = ?, phone = ?, color = ?, is_primary_caregiver = ?
		 WHERE id = ? AND household_id = ?`,
		in.Name, in.Relationship, in.Email, in.Phone, in.Color, in.IsPrimaryCaregiver, id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("update family member: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

// Delete removes a member. Primary caregivers cannot be deleted.
func (s *FamilyMemberStore) Delete(ctx context.Context, householdID, id int64) error {
	existing, err := s.GetByID(ctx, householdID, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}
	if existing.IsPrimaryCaregiver {
		return ErrPrimaryCaregiver
	}

	_, err = s.db.ExecContext(ctx, "DELETE FROM family_members WHERE id = ? AND household_id = ?", id, householdID)
	if err != nil {
		return fmt.Errorf("delete family member: %w", err)
	}
	return nil
}

func (s *FamilyMemberStore) UpdateSortOrder(ctx context.Context, householdID int64, ids []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "UPDATE family_members SET sort_order = ? WHERE id = ? AND household_id = ?")
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	for i, id := range ids {
		if _, err := stmt.ExecContext(ctx, i, id, householdID); err != nil {
			return fmt.Errorf("update sort order for id %d: %w", id, err)
		}
	}

	return tx.Commit()
}

func (s *FamilyMemberStore) NameExists(ctx context.Context, householdID int64, name string, excludeID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM family_members WHERE household_id = ? AND name = ? COLLATE NOCASE AND id != ?",
		householdID, name, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check name exists: %w", err)
	}
	return count > 0, nil
}

func (s *FamilyMemberStore) countPrimary(ctx context.Context, householdID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM family_members WHERE household_id = ? AND is_primary_caregiver = 1",
		householdID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count primary caregivers: %w", err)
	}
	return n, nil
}

type KidStore struct {
	db *sql.DB
}

func NewKidStore(db *sql.DB) *KidStore {
	return &KidStore{db: db}
}

func scanKid(scanner interface{ Scan(...any) error }) (*model.Kid, error) {
	var k model.Kid
	err := scanner.Scan(&k.ID, &k.HouseholdID, &k.Name, &k.BirthDate, &k.School, &k.Allergies, &k.Notes, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

const kidCols = `id, household_id, name, birth_date, school, allergies, notes, created_at, updated_at`

func (s *KidStore) Create(ctx context.Context, householdID int64, k model.Kid) (*model.Kid, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO kids (household_id, name, birth_date, school, allergies, notes) VALUES (?, ?, ?, ?, ?, ?)`,
		householdID, k.Name, k.BirthDate, k.School, k.Allergies, k.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("insert kid: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

func (s *KidStore) List(ctx context.Context, householdID int64) ([]model.Kid, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+kidCols+` FROM kids WHERE household_id = ? ORDER BY name, id`, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list kids: %w", err)
	}
	defer rows.Close()

	var kids []model.Kid
	for rows.Next() {
		k, err := scanKid(rows)
		if err != nil {
			return nil, fmt.Errorf("scan kid: %w", err)
		}
		kids = append(kids, *k)
	}
	return kids, rows.Err()
}

func (s *KidStore) GetByID(ctx context.Context, householdID, id int64) (*model.Kid, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+kidCols+` FROM kids WHERE id = ? AND household_id = ?`, id, householdID)
	k, err := scanKid(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get kid: %w", err)
	}
	return k, nil
}

func (s *KidStore) Update(ctx context.Context, householdID, id int64, k model.Kid) (*model.Kid, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE kids SET name = ?, birth_date = ?, school = ?, allergies = ?, notes = ? WHERE id = ? AND household_id = ?`,
		k.Name, k.BirthDate, k.School, k.Allergies, k.Notes, id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("update kid: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

func (s *KidStore) Delete(ctx context.Context, householdID, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kids WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return fmt.Errorf("delete kid: %w", err)
	}
	return nil
}
