package directory

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrProfileNotFound  = errors.New("target user has no profile")
	ErrCreateFailed     = errors.New("could not start conversation")
)

// Store is the subset of Repository the service needs. An interface so tests
// can fake the database.
type Store interface {
	FindOrCreateDirect(ctx context.Context, user1, user2 string) (string, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	DirectConversationIDs(ctx context.Context, userID string) ([]string, error)
	ParticipantIDs(ctx context.Context, conversationID string) ([]string, error)
	InsertConversation(ctx context.Context, id, convType string) error
	InsertParticipant(ctx context.Context, conversationID, userID string) error
	DeleteConversation(ctx context.Context, id string) error
	ListForUser(ctx context.Context, userID string) ([]Summary, error)
}

// Profiles is what we need from the profile projection.
type Profiles interface {
	Ensure(ctx context.Context, id, username, email string) error
	Exists(ctx context.Context, id string) (bool, error)
}

type Service struct {
	store    Store
	profiles Profiles
}

func NewService(store Store, profiles Profiles) *Service {
	return &Service{store: store, profiles: profiles}
}

// ResolveOrCreateDirect idempotently returns the single direct conversation
// between self and other, creating it if absent. Safe to retry on any
// failure.
//
// Two tiers: the server-side atomic function first, then a manual
// find-or-create. The manual path is not transactional across its steps; a
// failed participant insert triggers a compensating delete of the
// conversation row.
func (s *Service) ResolveOrCreateDirect(ctx context.Context, selfID, selfUsername, selfEmail, otherID string) (string, error) {
	if selfID == "" {
		return "", ErrNotAuthenticated
	}

	// A missing own profile row would violate the participant FK.
	if err := s.profiles.Ensure(ctx, selfID, selfUsername, selfEmail); err != nil {
		log.Printf("directory: ensure own profile: %v", err)
		return "", ErrCreateFailed
	}

	// Preferred path. Verify membership afterward: an implementation that
	// returns an id without having added rows must not be trusted.
	if id, err := s.store.FindOrCreateDirect(ctx, selfID, otherID); err == nil {
		ok, verr := s.store.IsParticipant(ctx, id, selfID)
		if verr == nil && ok {
			return id, nil
		}
		log.Printf("directory: atomic path returned %s without membership, falling back", id)
	} else {
		log.Printf("directory: atomic find-or-create unavailable: %v", err)
	}

	return s.manualResolveOrCreate(ctx, selfID, otherID)
}

func (s *Service) manualResolveOrCreate(ctx context.Context, selfID, otherID string) (string, error) {
	// Scan existing direct conversations for an exact {self, other} pair.
	ids, err := s.store.DirectConversationIDs(ctx, selfID)
	if err != nil {
		log.Printf("directory: list direct conversations: %v", err)
		return "", ErrCreateFailed
	}
	for _, id := range ids {
		pids, err := s.store.ParticipantIDs(ctx, id)
		if err != nil {
			log.Printf("directory: list participants of %s: %v", id, err)
			continue
		}
		if isPair(pids, selfID, otherID) {
			return id, nil
		}
	}

	newID := uuid.NewString()
	if err := s.store.InsertConversation(ctx, newID, TypeDirect); err != nil {
		log.Printf("directory: insert conversation: %v", err)
		return "", ErrCreateFailed
	}

	// Self goes in first: access control on the participant table only
	// allows adding rows to a conversation you already belong to.
	if err := s.store.InsertParticipant(ctx, newID, selfID); err != nil {
		log.Printf("directory: insert self participant: %v", err)
		s.compensate(ctx, newID)
		return "", ErrCreateFailed
	}

	// A self-conversation holds a single participant row; the caller's
	// profile was already ensured above.
	if otherID == selfID {
		return newID, nil
	}

	exists, err := s.profiles.Exists(ctx, otherID)
	if err != nil || !exists {
		if err != nil {
			log.Printf("directory: check other profile: %v", err)
		}
		s.compensate(ctx, newID)
		return "", ErrProfileNotFound
	}

	if err := s.store.InsertParticipant(ctx, newID, otherID); err != nil {
		log.Printf("directory: insert other participant: %v", err)
		s.compensate(ctx, newID)
		return "", ErrCreateFailed
	}

	return newID, nil
}

func (s *Service) compensate(ctx context.Context, conversationID string) {
	if err := s.store.DeleteConversation(ctx, conversationID); err != nil {
		// A crash here leaks an orphaned conversation; accepted limitation.
		log.Printf("directory: compensating delete of %s failed: %v", conversationID, err)
	}
}

// ListForUser returns the caller's conversation list, newest activity first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Summary, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	return s.store.ListForUser(ctx, userID)
}

// isPair matches the exact participant set. A conversation with oneself
// collapses to a single row.
func isPair(participants []string, a, b string) bool {
	if a == b {
		return len(participants) == 1 && participants[0] == a
	}
	if len(participants) != 2 {
		return false
	}
	return (participants[0] == a && participants[1] == b) ||
		(participants[0] == b && participants[1] == a)
}
