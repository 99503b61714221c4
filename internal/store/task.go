package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/village/internal/model"
)

type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// TaskInput holds the editable fields of a task.
type TaskInput struct {
	Title       string
	Description string
	Category    string
	Priority    string
	DueDate     string
	AssignedTo  *int64
}

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var completedAt sql.NullTime
	var assignedTo sql.NullInt64
	err := scanner.Scan(&t.ID, &t.HouseholdID, &t.Title, &t.Description, &t.Category, &t.Priority, &t.DueDate,
		&t.Completed, &completedAt, &assignedTo, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.CompletedAt = timePtr(completedAt)
	t.AssignedTo = int64Ptr(assignedTo)
	return &t, nil
}

const taskCols = `id, household_id, title, description, category, priority, due_date, completed, completed_at, assigned_to, created_at, updated_at`

func (s *TaskStore) Create(ctx context.Context, householdID int64, in TaskInput) (*model.Task, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (household_id, title, description, category, priority, due_date, assigned_to)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		householdID, in.Title, in.Description, in.Category, in.Priority, in.DueDate, nullInt64(in.AssignedTo),
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

// List returns all tasks, open ones first, then by due date with undated
// tasks last.
func (s *TaskStore) List(ctx context.Context, householdID int64) ([]model.Task, error) {
	return s.query(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE household_id = ?
		 ORDER BY completed, due_date = '', due_date, id`,
		householdID,
	)
}

// ListDueOnOrBefore returns tasks with a due date no later than date.
func (s *TaskStore) ListDueOnOrBefore(ctx context.Context, householdID int64, date string) ([]model.Task, error) {
	return s.query(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE household_id = ? AND due_date != '' AND due_date <= ?
		 ORDER BY due_date, id`,
		householdID, date,
	)
}

func (s *TaskStore) query(ctx context.Context, query string, args ...any) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *TaskStore) GetByID(ctx context.Context, householdID, id int64) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = ? AND household_id = ?`, id, householdID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *TaskStore) Update(ctx context.Context, householdID, id int64, in TaskInput) (*model.Task, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, category = ?, priority = ?, due_date = ?, assigned_to = ?
		 WHERE id = ? AND household_id = ?`,
		in.Title, in.Description, in.Category, in.Priority, in.DueDate, nullInt64(in.AssignedTo), id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

// Toggle flips the completion flag and stamps or clears completed_at.
func (s *TaskStore) Toggle(ctx context.Context, householdID, id int64) (*model.Task, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET completed = NOT completed,
		   completed_at = CASE WHEN completed THEN NULL ELSE ? END
		 WHERE id = ? AND household_id = ?`,
		time.Now().UTC(), id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("toggle task: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

func (s *TaskStore) Delete(ctx context.Context, householdID, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
