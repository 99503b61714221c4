package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/village/internal/model"
)

type ToolkitStore struct {
	db *sql.DB
}

func NewToolkitStore(db *sql.DB) *ToolkitStore {
	return &ToolkitStore{db: db}
}

func scanToolkitItem(scanner interface{ Scan(...any) error }) (*model.ToolkitItem, error) {
	var it model.ToolkitItem
	err := scanner.Scan(&it.ID, &it.HouseholdID, &it.Title, &it.Category, &it.Description, &it.URL, &it.IsFavorite, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

const toolkitCols = `id, household_id, title, category, description, url, is_favorite, created_at, updated_at`

func (s *ToolkitStore) Create(ctx context.Context, householdID int64, it model.ToolkitItem) (*model.ToolkitItem, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO toolkit_items (household_id, title, category, description, url, is_favorite) VALUES (?, ?, ?, ?, ?, ?)`,
		householdID, it.Title, it.Category, it.Description, it.URL, it.IsFavorite,
	)
	if err != nil {
		return nil, fmt.Errorf("insert toolkit item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

// List returns items, favorites first. An empty category returns all.
func (s *ToolkitStore) List(ctx context.Context, householdID int64, category string) ([]model.ToolkitItem, error) {
	query := `SELECT ` + toolkitCols + ` FROM toolkit_items WHERE household_id = ?`
	args := []any{householdID}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY is_favorite DESC, title, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list toolkit items: %w", err)
	}
	defer rows.Close()

	var items []model.ToolkitItem
	for rows.Next() {
		it, err := scanToolkitItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan toolkit item: %w", err)
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (s *ToolkitStore) GetByID(ctx context.Context, householdID, id int64) (*model.ToolkitItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+toolkitCols+` FROM toolkit_items WHERE id = ? AND household_id = ?`, id, householdID)
	it, err := scanToolkitItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get toolkit item: %w", err)
	}
	return it, nil
}

func (s *ToolkitStore) Update(ctx context.Context, householdID, id int64, it model.ToolkitItem) (*model.ToolkitItem, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE toolkit_items SET title = ?, category = ?, description = ?, url = ? WHERE id = ? AND household_id = ?`,
		it.Title, it.Category, it.Description, it.URL, id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("update toolkit item: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

func (s *ToolkitStore) ToggleFavorite(ctx context.Context, householdID, id int64) (*model.ToolkitItem, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE toolkit_items SET is_favorite = NOT is_favorite WHERE id = ? AND household_id = ?`, id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("toggle favorite: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

func (s *ToolkitStore) Delete(ctx context.Context, householdID, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM toolkit_items WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return fmt.Errorf("delete toolkit item: %w", err)
	}
	return nil
}
