// Package readstate owns the per-participant last-read watermark and the
// unread-count derivation built on it.
package readstate

import (
	"context"
	"database/sql"
	"errors"
	"log"
)

type Tracker struct {
	db *sql.DB
}

func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// MarkRead advances the caller's watermark to now. Idempotent; safe to call
// on every view or focus event. Returns false (never an error) when the
// participant row is missing or the store is unavailable.
func (t *Tracker) MarkRead(ctx context.Context, conversationID, userID string) bool {
	if userID == "" {
		return false
	}
	res, err := t.db.ExecContext(ctx,
		"UPDATE conversation_participants SET last_read_at = now() WHERE conversation_id = $1 AND user_id = $2",
		conversationID, userID)
	if err != nil {
		log.Printf("readstate: mark read: %v", err)
		return false
	}
	n, err := res.RowsAffected()
	if err != nil {
		log.Printf("readstate: mark read rows affected: %v", err)
		return false
	}
	return n > 0
}

// UnreadCount derives the unread total for one participant at read time.
// With a watermark set it counts newer messages from other senders; with no
// watermark it reports 1 when the latest message is from someone else, else
// 0. Point-in-time only; conversation lists are small enough that nothing is
// maintained incrementally.
func (t *Tracker) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	var lastRead sql.NullTime
	err := t.db.QueryRowContext(ctx,
		"SELECT last_read_at FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2",
		conversationID, userID).Scan(&lastRead)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	if lastRead.Valid {
		var count int
		err := t.db.QueryRowContext(ctx,
			`SELECT count(*) FROM messages
			 WHERE conversation_id = $1 AND created_at > $2 AND sender_id <> $3`,
			conversationID, lastRead.Time, userID).Scan(&count)
		if err != nil {
			return 0, err
		}
		return count, nil
	}

	var latestSender string
	err = t.db.QueryRowContext(ctx,
		`SELECT sender_id FROM messages
		 WHERE conversation_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		conversationID).Scan(&latestSender)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if latestSender != userID {
		return 1, nil
	}
	return 0, nil
}
