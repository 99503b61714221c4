package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/village/internal/model"
)

type VillageMemberStore struct {
	db *sql.DB
}

func NewVillageMemberStore(db *sql.DB) *VillageMemberStore {
	return &VillageMemberStore{db: db}
}

func scanVillageMember(scanner interface{ Scan(...any) error }) (*model.VillageMember, error) {
	var m model.VillageMember
	err := scanner.Scan(&m.ID, &m.HouseholdID, &m.Name, &m.Relationship, &m.Category, &m.Email, &m.Phone,
		&m.Availability, &m.Notes, &m.IsEmergencyContact, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const villageMemberCols = `id, household_id, name, relationship, category, email, phone, availability, notes, is_emergency_contact, created_at, updated_at`

func (s *VillageMemberStore) Create(ctx context.Context, householdID int64, m model.VillageMember) (*model.VillageMember, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO village_members (household_id, name, relationship, category, email, phone, availability, notes, is_emergency_contact)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		householdID, m.Name, m.Relationship, m.Category, m.Email, m.Phone, m.Availability, m.Notes, m.IsEmergencyContact,
	)
	if err != nil {
		return nil, fmt.Errorf("insert village member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

func (s *VillageMemberStore) List(ctx context.Context, householdID int64) ([]model.VillageMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+villageMemberCols+` FROM village_members WHERE household_id = ? ORDER BY name, id`, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list village members: %w", err)
	}
	defer rows.Close()

	var members []model.VillageMember
	for rows.Next() {
		m, err := scanVillageMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan village member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *VillageMemberStore) GetByID(ctx context.Context, householdID, id int64) (*model.VillageMember, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+villageMemberCols+` FROM village_members WHERE id = ? AND household_id = ?`, id, householdID)
	m, err := scanVillageMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get village member: %w", err)
	}
	return m, nil
}

func (s *VillageMemberStore) Update(ctx context.Context, householdID, id int64, m model.VillageMember) (*model.VillageMember, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE village_members SET name = ?, relationship = ?, category = ?, email = ?, phone = ?, availability = ?, notes = ?, is_emergency_contact = ?
		 WHERE id = ? AND household_id = ?`,
		m.Name, m.Relationship, m.Category, m.Email, m.Phone, m.Availability, m.Notes, m.IsEmergencyContact, id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("update village member: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

func (s *VillageMemberStore) Delete(ctx context.Context, householdID, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM village_members WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return fmt.Errorf("delete village member: %w", err)
	}
	return nil
}

type HelpRequestStore struct {
	db *sql.DB
}

func NewHelpRequestStore(db *sql.DB) *HelpRequestStore {
	return &HelpRequestStore{db: db}
}

// helpTransitions lists the allowed status changes per current status.
var helpTransitions = map[string][]string{
	model.HelpStatusOpen:     {model.HelpStatusAccepted, model.HelpStatusCancelled},
	model.HelpStatusAccepted: {model.HelpStatusCompleted, model.HelpStatusCancelled, model.HelpStatusOpen},
}

// CanTransition reports whether a help request may move from one status to another.
func CanTransition(from, to string) bool {
	return model.Contains(helpTransitions[from], to)
}

func scanHelpRequest(scanner interface{ Scan(...any) error }) (*model.HelpRequest, error) {
	var h model.HelpRequest
	var responder, createdBy sql.NullInt64
	err := scanner.Scan(&h.ID, &h.HouseholdID, &h.Title, &h.Description, &h.Category, &h.Urgency, &h.NeededBy,
		&h.Status, &responder, &createdBy, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	h.ResponderID = int64Ptr(responder)
	h.CreatedBy = int64Ptr(createdBy)
	return &h, nil
}

const helpRequestCols = `id, household_id, title, description, category, urgency, needed_by, status, responder_id, created_by, created_at, updated_at`

func (s *HelpRequestStore) Create(ctx context.Context, householdID int64, h model.HelpRequest) (*model.HelpRequest, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO help_requests (household_id, title, description, category, urgency, needed_by, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		householdID, h.Title, h.Description, h.Category, h.Urgency, h.NeededBy, nullInt64(h.CreatedBy),
	)
	if err != nil {
		return nil, fmt.Errorf("insert help request: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

// List returns help requests, optionally restricted to one status.
func (s *HelpRequestStore) List(ctx context.Context, householdID int64, status string) ([]model.HelpRequest, error) {
	query := `SELECT ` + helpRequestCols + ` FROM help_requests WHERE household_id = ?`
	args := []any{householdID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list help requests: %w", err)
	}
	defer rows.Close()

	var requests []model.HelpRequest
	for rows.Next() {
		h, err := scanHelpRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan help request: %w", err)
		}
		requests = append(requests, *h)
	}
	return requests, rows.Err()
}

func (s *HelpRequestStore) GetByID(ctx context.Context, householdID, id int64) (*model.HelpRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+helpRequestCols+` FROM help_requests WHERE id = ? AND household_id = ?`, id, householdID)
	h, err := scanHelpRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get help request: %w", err)
	}
	return h, nil
}

func (s *HelpRequestStore) Update(ctx context.Context, householdID, id int64, h model.HelpRequest) (*model.HelpRequest, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE help_requests SET title = ?, description = ?, category = ?, urgency = ?, needed_by = ?
		 WHERE id = ? AND household_id = ?`,
		h.Title, h.Description, h.Category, h.Urgency, h.NeededBy, id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("update help request: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

// Transition moves a request to status. Accepting requires a responder;
// reopening clears it. Disallowed moves return ErrInvalidTransition.
func (s *HelpRequestStore) Transition(ctx context.Context, householdID, id int64, status string, responderID *int64) (*model.HelpRequest, error) {
	h, err := s.GetByID(ctx, householdID, id)
	if err != nil || h == nil {
		return h, err
	}
	if !CanTransition(h.Status, status) {
		return nil, ErrInvalidTransition
	}

	responder := h.ResponderID
	switch status {
	case model.HelpStatusAccepted:
		if responderID == nil {
			return nil, ErrInvalidTransition
		}
		responder = responderID
	case model.HelpStatusOpen:
		responder = nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE help_requests SET status = ?, responder_id = ? WHERE id = ? AND household_id = ? AND status = ?`,
		status, nullInt64(responder), id, householdID, h.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("transition help request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrInvalidTransition
	}
	return s.GetByID(ctx, householdID, id)
}

func (s *HelpRequestStore) Delete(ctx context.Context, householdID, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM help_requests WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return fmt.Errorf("delete help request: %w", err)
	}
	return nil
}

type CommunicationLogStore struct {
	db *sql.DB
}

func NewCommunicationLogStore(db *sql.DB) *CommunicationLogStore {
	return &CommunicationLogStore{db: db}
}

func scanCommunicationLog(scanner interface{ Scan(...any) error }) (*model.CommunicationLog, error) {
	var l model.CommunicationLog
	err := scanner.Scan(&l.ID, &l.HouseholdID, &l.VillageMemberID, &l.Channel, &l.Summary, &l.OccurredAt, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

const communicationLogCols = `id, household_id, village_member_id, channel, summary, occurred_at, created_at`

func (s *CommunicationLogStore) Create(ctx context.Context, householdID, memberID int64, channel, summary string, occurredAt time.Time) (*model.CommunicationLog, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO communication_logs (household_id, village_member_id, channel, summary, occurred_at) VALUES (?, ?, ?, ?, ?)`,
		householdID, memberID, channel, summary, occurredAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert communication log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+communicationLogCols+` FROM communication_logs WHERE id = ?`, id)
	l, err := scanCommunicationLog(row)
	if err != nil {
		return nil, fmt.Errorf("get communication log: %w", err)
	}
	return l, nil
}

// List returns logs newest first. memberID 0 means every member; limit 0
// means no limit.
func (s *CommunicationLogStore) List(ctx context.Context, householdID, memberID int64, limit int) ([]model.CommunicationLog, error) {
	query := `SELECT ` + communicationLogCols + ` FROM communication_logs WHERE household_id = ?`
	args := []any{householdID}
	if memberID != 0 {
		query += ` AND village_member_id = ?`
		args = append(args, memberID)
	}
	query += ` ORDER BY occurred_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list communication logs: %w", err)
	}
	defer rows.Close()

	var logs []model.CommunicationLog
	for rows.Next() {
		l, err := scanCommunicationLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan communication log: %w", err)
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

func (s *CommunicationLogStore) Delete(ctx context.Context, householdID, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM communication_logs WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return fmt.Errorf("delete communication log: %w", err)
	}
	return nil
}

type DelegationStore struct {
	db *sql.DB
}

func NewDelegationStore(db *sql.DB) *DelegationStore {
	return &DelegationStore{db: db}
}

func scanDelegation(scanner interface{ Scan(...any) error }) (*model.DelegationTask, error) {
	var d model.DelegationTask
	err := scanner.Scan(&d.ID, &d.HouseholdID, &d.VillageMemberID, &d.Title, &d.Description, &d.DueDate, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

const delegationCols = `id, household_id, village_member_id, title, description, due_date, status, created_at, updated_at`

func (s *DelegationStore) Create(ctx context.Context, householdID int64, d model.DelegationTask) (*model.DelegationTask, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO delegation_tasks (household_id, village_member_id, title, description, due_date) VALUES (?, ?, ?, ?, ?)`,
		householdID, d.VillageMemberID, d.Title, d.Description, d.DueDate,
	)
	if err != nil {
		return nil, fmt.Errorf("insert delegation task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

// List returns delegations, optionally for a single village member.
func (s *DelegationStore) List(ctx context.Context, householdID, memberID int64) ([]model.DelegationTask, error) {
	query := `SELECT ` + delegationCols + ` FROM delegation_tasks WHERE household_id = ?`
	args := []any{householdID}
	if memberID != 0 {
		query += ` AND village_member_id = ?`
		args = append(args, memberID)
	}
	query += ` ORDER BY due_date = '', due_date, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list delegation tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.DelegationTask
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delegation task: %w", err)
		}
		tasks = append(tasks, *d)
	}
	return tasks, rows.Err()
}

func (s *DelegationStore) GetByID(ctx context.Context, householdID, id int64) (*model.DelegationTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+delegationCols+` FROM delegation_tasks WHERE id = ? AND household_id = ?`, id, householdID)
	d, err := scanDelegation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get delegation task: %w", err)
	}
	return d, nil
}

func (s *DelegationStore) Update(ctx context.Context, householdID, id int64, d model.DelegationTask) (*model.DelegationTask, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE delegation_tasks SET village_member_id = ?, title = ?, description = ?, due_date = ? WHERE id = ? AND household_id = ?`,
		d.VillageMemberID, d.Title, d.Description, d.DueDate, id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("update delegation task: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

func (s *DelegationStore) SetStatus(ctx context.Context, householdID, id int64, status string) (*model.DelegationTask, error) {
	_, err := s.db.ExecContext(ctx,
		`UPDATE delegation_tasks SET status = ? WHERE id = ? AND household_id = ?`, status, id, householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("set delegation status: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

func (s *DelegationStore) Delete(ctx context.Context, householdID, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM delegation_tasks WHERE id = ? AND household_id = ?`, id, householdID)
	if err != nil {
		return fmt.Errorf("delete delegation task: %w", err)
	}
	return nil
}
