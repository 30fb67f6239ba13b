package directory

import "time"

const (
	TypeDirect = "direct"
	TypeGroup  = "group"
)

type Conversation struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Participant is the join row associating a user with a conversation. The
// LastReadAt watermark is owned by the read-state tracker; nil means the user
// has never read the conversation.
type Participant struct {
	ConversationID string     `json:"conversation_id"`
	UserID         string     `json:"user_id"`
	JoinedAt       time.Time  `json:"joined_at"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"`
}

// Summary is one row of a user's conversation list: the conversation plus its
// full participant set, newest-activity first.
type Summary struct {
	Conversation
	Participants []Participant `json:"participants"`
}
