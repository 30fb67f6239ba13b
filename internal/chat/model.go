package chat

import (
	"encoding/json"
	"time"

	"academy-chat/internal/directory"
	"academy-chat/internal/feed"
	"academy-chat/internal/message"
	"academy-chat/internal/profile"
)

// WSMessage is the simplified JSON a websocket client sends. Everything else
// (id, sender, timestamp) is assigned server-side.
type WSMessage struct {
	Content string `json:"content"`
}

type startConversationRequest struct {
	OtherUserID string `json:"other_user_id"`
}

type startConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type markReadResponse struct {
	Success bool `json:"success"`
}

// messageFrame wraps one message row in the same event envelope live
// deliveries use, so every frame on the socket has one shape.
func messageFrame(msg message.Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(feed.Event{
		Table:   feed.TableMessages,
		Type:    feed.EventInsert,
		Payload: payload,
	})
}

// ParticipantView is a participant with display fields resolved from the
// profile projection, degraded to placeholders on a miss.
type ParticipantView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar"`
}

// ConversationView is one row of the conversation list response.
type ConversationView struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Participants []ParticipantView `json:"participants"`
	Other        *ParticipantView  `json:"other,omitempty"`
	UnreadCount  int               `json:"unread_count"`
}

func participantView(userID string, profiles map[string]*profile.Profile) ParticipantView {
	p := profiles[userID]
	view := ParticipantView{
		ID:   userID,
		Name: p.DisplayName(),
	}
	if p != nil {
		view.Username = p.Username
		view.Avatar = p.ImageURL
	}
	if view.Avatar == "" {
		view.Avatar = p.AvatarInitial()
	}
	return view
}

func conversationView(s directory.Summary, selfID string, profiles map[string]*profile.Profile, unread int) ConversationView {
	view := ConversationView{
		ID:          s.ID,
		Type:        s.Type,
		UpdatedAt:   s.UpdatedAt,
		UnreadCount: unread,
	}
	for _, p := range s.Participants {
		pv := participantView(p.UserID, profiles)
		view.Participants = append(view.Participants, pv)
		if s.Type == directory.TypeDirect && p.UserID != selfID {
			other := pv
			view.Other = &other
		}
	}
	return view
}
