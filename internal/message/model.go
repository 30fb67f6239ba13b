package message

import "time"

// Message is one append-only row of a conversation. SenderName is
// denormalized from the profile projection for UI speed; a missing profile
// degrades to "User" instead of failing the read.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	SenderName     string     `json:"sender_name,omitempty"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
}
