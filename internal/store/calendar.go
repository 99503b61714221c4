package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/village/internal/model"
)

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

// EventInput holds the editable fields of an event.
type EventInput struct {
	Title           string
	Description     string
	Location        string
	StartTime       time.Time
	EndTime         time.Time
	AllDay          bool
	ReminderMinutes *int
}

func scanEvent(scanner interface{ Scan(...any) error }) (*model.Event, error) {
	var e model.Event
	var reminder sql.NullInt64
	err := scanner.Scan(&e.ID, &e.HouseholdID, &e.Title, &e.Description, &e.Location, &e.StartTime, &e.EndTime,
		&e.AllDay, &reminder, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if reminder.Valid {
		m := int(reminder.Int64)
		e.ReminderMinutes = &m
	}
	return &e, nil
}

const eventCols = `id, household_id, title, description, location, start_time, end_time, all_day, reminder_minutes, created_at, updated_at`

func nullMinutes(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func (s *EventStore) Create(ctx context.Context, householdID int64, in EventInput) (*model.Event, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO events (household_id, title, description, location, start_time, end_time, all_day, reminder_minutes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		householdID, in.Title, in.Description, in.Location, in.StartTime.UTC(), in.EndTime.UTC(), in.AllDay, nullMinutes(in.ReminderMinutes),
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

// ListRange returns events overlapping [start, end). An event ending exactly
// at start does not overlap; a zero-length event at start does.
func (s *EventStore) ListRange(ctx context.Context, householdID int64, start, end time.Time) ([]model.Event, error) {
	return s.query(ctx,
		`SELECT `+eventCols+` FROM events
		 WHERE household_id = ? AND start_time < ? AND (end_time > ? OR start_time >= ?)
		 ORDER BY start_time, id`,
		householdID, end.UTC(), start.UTC(), start.UTC(),
	)
}

// ListReminderCandidates returns events across all households that start
// within [from, to) and carry a reminder.
func (s *EventStore) ListReminderCandidates(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	return s.query(ctx,
		`SELECT `+eventCols+` FROM events WHERE reminder_minutes IS NOT NULL AND start_time >= ? AND start_time < ?
		 ORDER BY start_time, id`,
		from.UTC(), to.UTC(),
	)
}

func (s *EventStore) query(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (s *EventStore) GetByID(ctx context.Context, householdID, id int64) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventCols+` FROM events WHERE id = ? AND household_id = ?`, id, householdID)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (s *EventStore) Update(ctx context.Context, householdID, id int64, in EventInput) (*model.Event, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE events SET title = ?, description = ?, location = ?, start_time = ?, end_time = ?, all_day = ?, reminder_minutes = ?
		 WHERE id = ? AND household_id = ?`,
		in.Title, in.Description, in.Location, in.StartTime.UTC(), in.EndTime.UTC(), in.AllDay, nullMinutes(in.ReminderMinutes), id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

func (s *EventStore) Delete(ctx context.Context, householdID, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

type ReminderStore struct {
	db *sql.DB
}

func NewReminderStore(db *sql.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

func scanReminder(scanner interface{ Scan(...any) error }) (*model.Reminder, error) {
	var r model.Reminder
	var sentAt sql.NullTime
	err := scanner.Scan(&r.ID, &r.HouseholdID, &r.Title, &r.Notes, &r.RemindAt, &r.Completed, &sentAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.SentAt = timePtr(sentAt)
	return &r, nil
}

const reminderCols = `id, household_id, title, notes, remind_at, completed, sent_at, created_at, updated_at`

func (s *ReminderStore) Create(ctx context.Context, householdID int64, title, notes string, remindAt time.Time) (*model.Reminder, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders (household_id, title, notes, remind_at) VALUES (?, ?, ?, ?)`,
		householdID, title, notes, remindAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert reminder: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

func (s *ReminderStore) List(ctx context.Context, householdID int64) ([]model.Reminder, error) {
	return s.query(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE household_id = ? ORDER BY completed, remind_at, id`,
		householdID,
	)
}

// ListDue returns incomplete, unsent reminders across all households whose
// time has come.
func (s *ReminderStore) ListDue(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	return s.query(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE sent_at IS NULL AND completed = 0 AND remind_at <= ?
		 ORDER BY remind_at, id`,
		now.UTC(),
	)
}

func (s *ReminderStore) query(ctx context.Context, query string, args ...any) ([]model.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	var reminders []model.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		reminders = append(reminders, *r)
	}
	return reminders, rows.Err()
}

func (s *ReminderStore) GetByID(ctx context.Context, householdID, id int64) (*model.Reminder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderCols+` FROM reminders WHERE id = ? AND household_id = ?`, id, householdID)
	r, err := scanReminder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return r, nil
}

// Update edits a reminder. Moving remind_at re-arms a reminder that was
// already sent.
func (s *ReminderStore) Update(ctx context.Context, householdID, id int64, title, notes string, remindAt time.Time) (*model.Reminder, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET title = ?, notes = ?,
		   sent_at = CASE WHEN remind_at = ? THEN sent_at ELSE NULL END,
		   remind_at = ?
		 WHERE id = ? AND household_id = ?`,
		title, notes, remindAt.UTC(), remindAt.UTC(), id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("update reminder: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

func (s *ReminderStore) SetCompleted(ctx context.Context, householdID, id int64, completed bool) (*model.Reminder, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET completed = ? WHERE id = ? AND household_id = ?`,
		completed, id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("complete reminder: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

// MarkSent stamps sent_at. It reports false if another tick got there first.
func (s *ReminderStore) MarkSent(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET sent_at = ? WHERE id = ? AND sent_at IS NULL`,
		at.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark reminder sent: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *ReminderStore) Delete(ctx context.Context, householdID, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	return nil
}
