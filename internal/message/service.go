package message

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"academy-chat/internal/notify"
	"academy-chat/internal/profile"
)

var (
	ErrEmptyContent   = errors.New("message content is empty")
	ErrNotParticipant = errors.New("sender is not a participant")
	ErrSendFailed     = errors.New("could not send message")
)

// Store is the subset of Repository the service needs.
type Store interface {
	Insert(ctx context.Context, conversationID, senderID, content string) (*Message, error)
	ListByConversation(ctx context.Context, conversationID string) ([]Message, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	UpsertParticipant(ctx context.Context, conversationID, userID string) error
	ParticipantIDs(ctx context.Context, conversationID string) ([]string, error)
	TouchConversation(ctx context.Context, conversationID string) error
}

// EventPublisher is the change-feed boundary; matched by feed.Publisher.
type EventPublisher interface {
	PublishMessageInsert(ctx context.Context, conversationID string, row any) error
	PublishConversationUpdate(ctx context.Context, row any) error
}

// Notifier is the notification-dispatch boundary; matched by
// notify.Dispatcher.
type Notifier interface {
	NewMessage(ctx context.Context, p notify.Payload) error
}

// ProfileReader resolves sender display info for notifications.
type ProfileReader interface {
	Get(ctx context.Context, id string) (*profile.Profile, error)
}

type Service struct {
	store     Store
	publisher EventPublisher
	notifier  Notifier
	profiles  ProfileReader
}

func NewService(store Store, publisher EventPublisher, notifier Notifier, profiles ProfileReader) *Service {
	return &Service{store: store, publisher: publisher, notifier: notifier, profiles: profiles}
}

// List returns a conversation's messages in created_at order. A caller who
// is not a participant gets an empty slice, not an error: newly created
// conversations have a brief window before participant rows are queryable,
// and callers depend on the non-error empty state.
func (s *Service) List(ctx context.Context, conversationID, callerID string) ([]Message, error) {
	if callerID == "" {
		return nil, nil
	}
	ok, err := s.store.IsParticipant(ctx, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return s.store.ListByConversation(ctx, conversationID)
}

// Append persists one message. Content is trimmed and must be non-empty. If
// the sender's participant row is missing it is repaired first (conversation
// creation and first send can interleave). On success the change feed is
// published and notifications fan out on a detached goroutine; neither can
// fail the send.
func (s *Service) Append(ctx context.Context, conversationID, senderID, content string) (*Message, error) {
	if senderID == "" {
		return nil, ErrNotParticipant
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	ok, err := s.store.IsParticipant(ctx, conversationID, senderID)
	if err != nil {
		log.Printf("message: participant check: %v", err)
		return nil, ErrSendFailed
	}
	if !ok {
		if err := s.store.UpsertParticipant(ctx, conversationID, senderID); err != nil {
			log.Printf("message: self-heal participant row: %v", err)
			return nil, ErrNotParticipant
		}
	}

	msg, err := s.store.Insert(ctx, conversationID, senderID, content)
	if err != nil {
		log.Printf("message: insert: %v", err)
		return nil, ErrSendFailed
	}

	if err := s.store.TouchConversation(ctx, conversationID); err != nil {
		log.Printf("message: bump conversation updated_at: %v", err)
	}

	if err := s.publisher.PublishMessageInsert(ctx, conversationID, msg); err != nil {
		log.Printf("message: publish insert event: %v", err)
	}
	if err := s.publisher.PublishConversationUpdate(ctx, map[string]string{"id": conversationID}); err != nil {
		log.Printf("message: publish conversation update: %v", err)
	}

	// Fire-and-forget: send success is never contingent on notification
	// delivery.
	go s.fanOutNotifications(context.WithoutCancel(ctx), msg)

	return msg, nil
}

func (s *Service) fanOutNotifications(ctx context.Context, msg *Message) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	participants, err := s.store.ParticipantIDs(ctx, msg.ConversationID)
	if err != nil {
		log.Printf("message: notification fan-out, list participants: %v", err)
		return
	}

	senderName := "User"
	if p, err := s.profiles.Get(ctx, msg.SenderID); err == nil {
		senderName = p.DisplayName()
	}

	for _, recipient := range participants {
		if recipient == msg.SenderID {
			continue
		}
		err := s.notifier.NewMessage(ctx, notify.Payload{
			RecipientID:    recipient,
			SenderID:       msg.SenderID,
			SenderName:     senderName,
			MessagePreview: msg.Content,
			ConversationID: msg.ConversationID,
		})
		if err != nil {
			log.Printf("message: notify %s: %v", recipient, err)
		}
	}
}
