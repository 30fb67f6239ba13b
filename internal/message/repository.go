package message

import (
	"context"
	"database/sql"
	"errors"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, conversationID, senderID, content string) (*Message, error) {
	msg := &Message{ConversationID: conversationID, SenderID: senderID, Content: content}
	query := `INSERT INTO messages (conversation_id, sender_id, content)
	VALUES ($1, $2, $3) RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query, conversationID, senderID, content).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListByConversation returns the conversation's messages ordered by
// created_at, id as the tiebreak. The LEFT JOIN keeps rows whose sender has
// no profile projection; display falls back to "User".
func (r *Repository) ListByConversation(ctx context.Context, conversationID string) ([]Message, error) {
	query := `SELECT m.id, m.conversation_id, m.sender_id, m.content, m.created_at, m.edited_at,
	       COALESCE(NULLIF(TRIM(COALESCE(p.first_name, '') || ' ' || COALESCE(p.last_name, '')), ''),
	                NULLIF(p.username, ''), 'User')
	FROM messages m
	LEFT JOIN profiles p ON p.id = m.sender_id
	WHERE m.conversation_id = $1
	ORDER BY m.created_at, m.id`

	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var edited sql.NullTime
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content,
			&msg.CreatedAt, &edited, &msg.SenderName); err != nil {
			return nil, err
		}
		if edited.Valid {
			t := edited.Time
			msg.EditedAt = &t
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *Repository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2",
		conversationID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpsertParticipant repairs a missing participant row at the point of use.
func (r *Repository) UpsertParticipant(ctx context.Context, conversationID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		conversationID, userID)
	return err
}

func (r *Repository) ParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT user_id FROM conversation_participants WHERE conversation_id = $1", conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TouchConversation advances updated_at. A store trigger may do this too;
// the explicit bump is advisory redundancy, not a correctness requirement.
func (r *Repository) TouchConversation(ctx context.Context, conversationID string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE conversations SET updated_at = now() WHERE id = $1", conversationID)
	return err
}
