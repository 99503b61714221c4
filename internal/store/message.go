package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/village/internal/model"
)

const (
	DefaultMessagePage = 50
	MaxMessagePage     = 200
)

type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

func scanConversation(scanner interface{ Scan(...any) error }) (*model.Conversation, error) {
	var c model.Conversation
	var createdBy sql.NullInt64
	err := scanner.Scan(&c.ID, &c.HouseholdID, &c.Title, &createdBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.CreatedBy = int64Ptr(createdBy)
	return &c, nil
}

func scanMessage(scanner interface{ Scan(...any) error }) (*model.Message, error) {
	var m model.Message
	var sender sql.NullInt64
	err := scanner.Scan(&m.ID, &m.ConversationID, &sender, &m.Body, &m.ClientID, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.SenderID = int64Ptr(sender)
	return &m, nil
}

const (
	conversationCols = `c.id, c.household_id, c.title, c.created_by, c.created_at, c.updated_at`
	messageCols      = `id, conversation_id, sender_id, body, client_id, created_at`
)

// Create starts a conversation between the creator and participantIDs. Every
// participant must belong to the household and at least one must be someone
// other than the creator.
func (s *ConversationStore) Create(ctx context.Context, householdID, creatorID int64, title string, participantIDs []int64) (*model.Conversation, error) {
	members := []int64{creatorID}
	seen := map[int64]bool{creatorID: true}
	for _, id := range participantIDs {
		if !seen[id] {
			seen[id] = true
			members = append(members, id)
		}
	}
	if len(members) < 2 {
		return nil, ErrInvalidParticipants
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, uid := range members {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM household_members WHERE household_id = ? AND user_id = ?`, householdID, uid,
		).Scan(&n); err != nil {
			return nil, fmt.Errorf("check participant: %w", err)
		}
		if n == 0 {
			return nil, ErrInvalidParticipants
		}
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (household_id, title, created_by) VALUES (?, ?, ?)`,
		householdID, title, creatorID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for _, uid := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id) VALUES (?, ?)`, id, uid,
		); err != nil {
			return nil, fmt.Errorf("insert participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit conversation: %w", err)
	}
	return s.GetByID(ctx, householdID, id)
}

// GetByID returns the conversation with its participant ids.
func (s *ConversationStore) GetByID(ctx context.Context, householdID, id int64) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationCols+` FROM conversations c WHERE c.id = ? AND c.household_id = ?`, id, householdID,
	)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	c.ParticipantIDs, err = s.Participants(ctx, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *ConversationStore) Participants(ctx context.Context, conversationID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM conversation_participants WHERE conversation_id = ? ORDER BY user_id`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *ConversationStore) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conversation_participants WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return n > 0, nil
}

// ListForUser returns the user's conversations in the household, most
// recently active first, each with its last message and unread count.
func (s *ConversationStore) ListForUser(ctx context.Context, householdID, userID int64) ([]model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationCols+`, p.last_read_message_id
		 FROM conversations c
		 JOIN conversation_participants p ON p.conversation_id = c.id
		 WHERE c.household_id = ? AND p.user_id = ?
		 ORDER BY COALESCE((SELECT MAX(m.id) FROM messages m WHERE m.conversation_id = c.id), 0) DESC, c.id DESC`,
		householdID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	var convs []model.Conversation
	var lastRead []int64
	for rows.Next() {
		var c model.Conversation
		var createdBy sql.NullInt64
		var read int64
		if err := rows.Scan(&c.ID, &c.HouseholdID, &c.Title, &createdBy, &c.CreatedAt, &c.UpdatedAt, &read); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.CreatedBy = int64Ptr(createdBy)
		convs = append(convs, c)
		lastRead = append(lastRead, read)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	for i := range convs {
		c := &convs[i]
		if c.ParticipantIDs, err = s.Participants(ctx, c.ID); err != nil {
			return nil, err
		}
		if c.LastMessage, err = s.lastMessage(ctx, c.ID); err != nil {
			return nil, err
		}
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM messages
			 WHERE conversation_id = ? AND id > ? AND (sender_id IS NULL OR sender_id != ?)`,
			c.ID, lastRead[i], userID,
		).Scan(&c.UnreadCount)
		if err != nil {
			return nil, fmt.Errorf("count unread: %w", err)
		}
	}
	return convs, nil
}

func (s *ConversationStore) lastMessage(ctx context.Context, conversationID int64) (*model.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageCols+` FROM messages WHERE conversation_id = ? ORDER BY id DESC LIMIT 1`, conversationID,
	)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last message: %w", err)
	}
	return m, nil
}

// SendMessage stores a message from a participant. A client id already used
// in the conversation returns the stored message with created false.
func (s *ConversationStore) SendMessage(ctx context.Context, conversationID, senderID int64, body, clientID string) (*model.Message, bool, error) {
	ok, err := s.IsParticipant(ctx, conversationID, senderID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, ErrNotParticipant
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, body, client_id) VALUES (?, ?, ?, ?)
		 ON CONFLICT(conversation_id, client_id) DO NOTHING`,
		conversationID, senderID, body, clientID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert message: %w", err)
	}
	created := false
	if n, _ := res.RowsAffected(); n > 0 {
		created = true
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageCols+` FROM messages WHERE conversation_id = ? AND client_id = ?`, conversationID, clientID,
	)
	m, err := scanMessage(row)
	if err != nil {
		return nil, false, fmt.Errorf("get message: %w", err)
	}

	if created {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE conversations SET updated_at = ? WHERE id = ?`, time.Now().UTC(), conversationID,
		); err != nil {
			return nil, false, fmt.Errorf("touch conversation: %w", err)
		}
		if err := s.MarkRead(ctx, conversationID, senderID, m.ID); err != nil {
			return nil, false, err
		}
	}
	return m, created, nil
}

// ListMessages returns up to limit messages older than before (0 for the
// newest page) in ascending id order.
func (s *ConversationStore) ListMessages(ctx context.Context, conversationID, before int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = DefaultMessagePage
	}
	if limit > MaxMessagePage {
		limit = MaxMessagePage
	}

	query := `SELECT ` + messageCols + ` FROM messages WHERE conversation_id = ?`
	args := []any{conversationID}
	if before > 0 {
		query += ` AND id < ?`
		args = append(args, before)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkRead advances the participant's read marker. It never moves backwards.
func (s *ConversationStore) MarkRead(ctx context.Context, conversationID, userID, messageID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversation_participants SET last_read_message_id = MAX(last_read_message_id, ?)
		 WHERE conversation_id = ? AND user_id = ?`,
		messageID, conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotParticipant
	}
	return nil
}
