package readstate

import (
	"time"

	"academy-chat/internal/message"
)

// CountUnread derives the unread total from an in-memory thread, mirroring
// the store-side computation in Tracker.UnreadCount. Used by clients that
// already hold the message list.
func CountUnread(msgs []message.Message, lastReadAt *time.Time, userID string) int {
	if len(msgs) == 0 {
		return 0
	}
	if lastReadAt == nil {
		if msgs[len(msgs)-1].SenderID != userID {
			return 1
		}
		return 0
	}
	count := 0
	for _, m := range msgs {
		if m.SenderID != userID && m.CreatedAt.After(*lastReadAt) {
			count++
		}
	}
	return count
}
