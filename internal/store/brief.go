package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/village/internal/model"
)

type PriorityStore struct {
	db *sql.DB
}

func NewPriorityStore(db *sql.DB) *PriorityStore {
	return &PriorityStore{db: db}
}

func scanPriority(scanner interface{ Scan(...any) error }) (*model.Priority, error) {
	var p model.Priority
	err := scanner.Scan(&p.ID, &p.HouseholdID, &p.Title, &p.Date, &p.SortOrder, &p.Completed, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const priorityCols = `id, household_id, title, date, sort_order, completed, created_at`

// Create appends a priority to the end of the date's list.
func (s *PriorityStore) Create(ctx context.Context, householdID int64, title, date string) (*model.Priority, error) {
	var maxOrder int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sort_order), -1) FROM priorities WHERE household_id = ? AND date = ?`,
		householdID, date,
	).Scan(&maxOrder)
	if err != nil {
		return nil, fmt.Errorf("query max sort_order: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO priorities (household_id, title, date, sort_order) VALUES (?, ?, ?, ?)`,
		householdID, title, date, maxOrder+1,
	)
	if err != nil {
		return nil, fmt.Errorf("insert priority: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

func (s *PriorityStore) ListByDate(ctx context.Context, householdID int64, date string) ([]model.Priority, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+priorityCols+` FROM priorities WHERE household_id = ? AND date = ? ORDER BY sort_order, id`,
		householdID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("list priorities: %w", err)
	}
	defer rows.Close()

	var priorities []model.Priority
	for rows.Next() {
		p, err := scanPriority(rows)
		if err != nil {
			return nil, fmt.Errorf("scan priority: %w", err)
		}
		priorities = append(priorities, *p)
	}
	return priorities, rows.Err()
}

func (s *PriorityStore) GetByID(ctx context.Context, householdID, id int64) (*model.Priority, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+priorityCols+` FROM priorities WHERE id = ? AND household_id = ?`, id, householdID)
	p, err := scanPriority(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get priority: %w", err)
	}
	return p, nil
}

func (s *PriorityStore) Update(ctx context.Context, householdID, id int64, title string) (*model.Priority, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE priorities SET title = ? WHERE id = ? AND household_id = ?`, title, id, householdID)
	if err != nil {
		return nil, fmt.Errorf("update priority: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

func (s *PriorityStore) Toggle(ctx context.Context, householdID, id int64) (*model.Priority, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE priorities SET completed = NOT completed WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return nil, fmt.Errorf("toggle priority: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

func (s *PriorityStore) Reorder(ctx context.Context, householdID int64, ids []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE priorities SET sort_order = ? WHERE id = ? AND household_id = ?`, i, id, householdID,
		); err != nil {
			return fmt.Errorf("update sort order for id %d: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *PriorityStore) Delete(ctx context.Context, householdID, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM priorities WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return fmt.Errorf("delete priority: %w", err)
	}
	return nil
}

type CelebrationStore struct {
	db *sql.DB
}

func NewCelebrationStore(db *sql.DB) *CelebrationStore {
	return &CelebrationStore{db: db}
}

func scanCelebration(scanner interface{ Scan(...any) error }) (*model.Celebration, error) {
	var c model.Celebration
	var memberID sql.NullInt64
	err := scanner.Scan(&c.ID, &c.HouseholdID, &c.Title, &c.Description, &c.Date, &memberID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.FamilyMemberID = int64Ptr(memberID)
	return &c, nil
}

const celebrationCols = `id, household_id, title, description, date, family_member_id, created_at`

func (s *CelebrationStore) Create(ctx context.Context, householdID int64, c model.Celebration) (*model.Celebration, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO celebrations (household_id, title, description, date, family_member_id) VALUES (?, ?, ?, ?, ?)`,
		householdID, c.Title, c.Description, c.Date, nullInt64(c.FamilyMemberID),
	)
	if err != nil {
		return nil, fmt.Errorf("insert celebration: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

// List returns celebrations dated within [from, to], newest first. Empty
// bounds are open.
func (s *CelebrationStore) List(ctx context.Context, householdID int64, from, to string) ([]model.Celebration, error) {
	query := `SELECT ` + celebrationCols + ` FROM celebrations WHERE household_id = ?`
	args := []any{householdID}
	if from != "" {
		query += ` AND date >= ?`
		args = append(args, from)
	}
	if to != "" {
		query += ` AND date <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY date DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list celebrations: %w", err)
	}
	defer rows.Close()

	var celebrations []model.Celebration
	for rows.Next() {
		c, err := scanCelebration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan celebration: %w", err)
		}
		celebrations = append(celebrations, *c)
	}
	return celebrations, rows.Err()
}

func (s *CelebrationStore) GetByID(ctx context.Context, householdID, id int64) (*model.Celebration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+celebrationCols+` FROM celebrations WHERE id = ? AND household_id = ?`, id, householdID)
	c, err := scanCelebration(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get celebration: %w", err)
	}
	return c, nil
}

func (s *CelebrationStore) Update(ctx context.Context, householdID, id int64, c model.Celebration) (*model.Celebration, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE celebrations SET title = ?, description = ?, date = ?, family_member_id = ? WHERE id = ? AND household_id = ?`,
		c.Title, c.Description, c.Date, nullInt64(c.FamilyMemberID), id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("update celebration: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

func (s *CelebrationStore) Delete(ctx context.Context, householdID, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM celebrations WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return fmt.Errorf("delete celebration: %w", err)
	}
	return nil
}
