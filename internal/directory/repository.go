package directory

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

// FindOrCreateDirect delegates to the server-side atomic function. This is
// the preferred path; the service falls back to the manual path when it
// fails.
func (r *Repository) FindOrCreateDirect(ctx context.Context, user1, user2 string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		"SELECT find_or_create_direct_conversation($1, $2)", user1, user2).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
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

// DirectConversationIDs lists ids of direct conversations the user belongs
// to, oldest first so repeated lookups keep returning the same canonical row.
func (r *Repository) DirectConversationIDs(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT c.id
	FROM conversations c
	JOIN conversation_participants p ON p.conversation_id = c.id
	WHERE p.user_id = $1 AND c.type = 'direct'
	ORDER BY c.created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
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

func (r *Repository) InsertConversation(ctx context.Context, id, convType string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO conversations (id, type) VALUES ($1, $2)", id, convType)
	return err
}

func (r *Repository) InsertParticipant(ctx context.Context, conversationID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		conversationID, userID)
	return err
}

// DeleteConversation is the compensating action for a failed multi-step
// create. Participant rows go with it via ON DELETE CASCADE.
func (r *Repository) DeleteConversation(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = $1", id)
	return err
}

// ListForUser returns the user's conversations newest-activity first, each
// with its full participant set.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]Summary, error) {
	query := `SELECT c.id, c.type, c.created_at, c.updated_at
	FROM conversations c
	JOIN conversation_participants me ON me.conversation_id = c.id
	WHERE me.user_id = $1
	ORDER BY c.updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []Summary
	var ids []string
	index := make(map[string]int)
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Type, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		index[s.ID] = len(summaries)
		summaries = append(summaries, s)
		ids = append(ids, s.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return summaries, nil
	}

	prows, err := r.db.QueryContext(ctx,
		`SELECT conversation_id, user_id, joined_at, last_read_at
		 FROM conversation_participants WHERE conversation_id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	defer prows.Close()

	for prows.Next() {
		var p Participant
		var lastRead sql.NullTime
		if err := prows.Scan(&p.ConversationID, &p.UserID, &p.JoinedAt, &lastRead); err != nil {
			return nil, err
		}
		if lastRead.Valid {
			t := lastRead.Time
			p.LastReadAt = &t
		}
		if i, ok := index[p.ConversationID]; ok {
			summaries[i].Participants = append(summaries[i].Participants, p)
		}
	}
	return summaries, prows.Err()
}
