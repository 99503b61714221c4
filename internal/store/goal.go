package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/village/internal/model"
)

// Goal list filters.
const (
	GoalStatusActive    = "active"
	GoalStatusCompleted = "completed"
	GoalStatusAll       = "all"
)

type GoalStore struct {
	db *sql.DB
}

func NewGoalStore(db *sql.DB) *GoalStore {
	return &GoalStore{db: db}
}

// GoalInput holds the descriptive fields of a goal.
type GoalInput struct {
	Title       string
	Description string
	Category    string
	TargetDate  string
}

func scanGoal(scanner interface{ Scan(...any) error }) (*model.Goal, error) {
	var g model.Goal
	err := scanner.Scan(&g.ID, &g.HouseholdID, &g.Title, &g.Description, &g.Category, &g.Progress, &g.IsCompleted,
		&g.TargetDate, &g.StreakCount, &g.BestStreak, &g.CompletionCount, &g.LastCheckinDate, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

const goalCols = `id, household_id, title, description, category, progress, is_completed, target_date,
	streak_count, best_streak, completion_count, last_checkin_date, created_at, updated_at`

func (s *GoalStore) Create(ctx context.Context, householdID int64, in GoalInput) (*model.Goal, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO goals (household_id, title, description, category, target_date) VALUES (?, ?, ?, ?, ?)`,
		householdID, in.Title, in.Description, in.Category, in.TargetDate,
	)
	if err != nil {
		return nil, fmt.Errorf("insert goal: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

// List returns goals filtered by status: active, completed or all.
func (s *GoalStore) List(ctx context.Context, householdID int64, status string) ([]model.Goal, error) {
	query := `SELECT ` + goalCols + ` FROM goals WHERE household_id = ?`
	switch status {
	case GoalStatusActive:
		query += ` AND is_completed = 0`
	case GoalStatusCompleted:
		query += ` AND is_completed = 1`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, householdID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []model.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}

func (s *GoalStore) GetByID(ctx context.Context, householdID, id int64) (*model.Goal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+goalCols+` FROM goals WHERE id = ? AND household_id = ?`, id, householdID)
	g, err := scanGoal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

func (s *GoalStore) Update(ctx context.Context, householdID, id int64, in GoalInput) (*model.Goal, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE goals SET title = ?, description = ?, category = ?, target_date = ? WHERE id = ? AND household_id = ?`,
		in.Title, in.Description, in.Category, in.TargetDate, id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("update goal: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

// SetProgress clamps p to 0..100. A goal is completed exactly when its
// progress reaches 100.
func (s *GoalStore) SetProgress(ctx context.Context, householdID, id int64, p int) (*model.Goal, error) {
	p = max(0, min(100, p))
	_, err := s.db.ExecContext(ctx,
		`UPDATE goals SET progress = ?, is_completed = ? WHERE id = ? AND household_id = ?`,
		p, p == 100, id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("set goal progress: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

// SetCompleted marks a goal done (progress 100) or reopens it (progress 0).
func (s *GoalStore) SetCompleted(ctx context.Context, householdID, id int64, completed bool) (*model.Goal, error) {
	if completed {
		return s.SetProgress(ctx, householdID, id, 100)
	}
	return s.SetProgress(ctx, householdID, id, 0)
}

// CheckIn records activity on date (YYYY-MM-DD). Checking in twice on the
// same date changes nothing. Consecutive days extend the streak; a gap
// restarts it at 1.
func (s *GoalStore) CheckIn(ctx context.Context, householdID, id int64, date string) (*model.Goal, error) {
	day, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("parse check-in date: %w", err)
	}

	g, err := s.GetByID(ctx, householdID, id)
	if err != nil || g == nil {
		return g, err
	}
	if !applyCheckIn(g, day) {
		return g, nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE goals SET streak_count = ?, best_streak = ?, completion_count = ?, last_checkin_date = ?
		 WHERE id = ? AND household_id = ?`,
		g.StreakCount, g.BestStreak, g.CompletionCount, g.LastCheckinDate, id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("check in goal: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

// applyCheckIn updates the streak counters in place and reports whether
// anything changed.
func applyCheckIn(g *model.Goal, day time.Time) bool {
	date := day.Format(model.DateLayout)
	if g.LastCheckinDate == date {
		return false
	}
	if g.LastCheckinDate == day.AddDate(0, 0, -1).Format(model.DateLayout) {
		g.StreakCount++
	} else {
		g.StreakCount = 1
	}
	g.BestStreak = max(g.BestStreak, g.StreakCount)
	g.CompletionCount++
	g.LastCheckinDate = date
	return true
}

func (s *GoalStore) Delete(ctx context.Context, householdID, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM goals WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return nil
}
