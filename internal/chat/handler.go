package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"academy-chat/internal/directory"
	"academy-chat/internal/message"
	"academy-chat/internal/middleware"
	"academy-chat/internal/profile"
	"academy-chat/internal/readstate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

type Handler struct {
	hub       *Hub
	directory *directory.Service
	messages  *message.Service
	tracker   *readstate.Tracker
	profiles  *profile.Repository
}

func NewHandler(hub *Hub, dir *directory.Service, messages *message.Service, tracker *readstate.Tracker, profiles *profile.Repository) *Handler {
	return &Handler{
		hub:       hub,
		directory: dir,
		messages:  messages,
		tracker:   tracker,
		profiles:  profiles,
	}
}

// ServeWs subscribes the caller to one conversation's real-time feed and
// accepts sends over the same socket.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	username := middleware.Username(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	client := &Client{
		Hub:            h.hub,
		Conn:           conn,
		Send:           make(chan []byte, 256),
		UserID:         userID,
		Username:       username,
		ConversationID: conversationID,
		appendMessage: func(ctx context.Context, conversationID, senderID, content string) error {
			_, err := h.messages.Append(ctx, conversationID, senderID, content)
			return err
		},
	}
	client.Hub.Register <- client
	go client.WritePump()

	// Replay history so the socket starts from a consistent snapshot.
	// Non-participants get nothing, not an error.
	msgs, err := h.messages.List(r.Context(), conversationID, userID)
	if err == nil {
		for _, msg := range msgs {
			if frame, err := messageFrame(msg); err == nil {
				client.Send <- frame
			}
		}
	}

	go client.ReadPump()
}

// StartConversation resolves or creates the direct conversation with the
// requested user.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	username := middleware.Username(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req startConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OtherUserID == "" {
		http.Error(w, "other_user_id is required", http.StatusBadRequest)
		return
	}

	id, err := h.directory.ResolveOrCreateDirect(r.Context(), userID, username, "", req.OtherUserID)
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrProfileNotFound):
			http.Error(w, "user not found", http.StatusNotFound)
		case errors.Is(err, directory.ErrNotAuthenticated):
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		default:
			http.Error(w, "could not start conversation", http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(startConversationResponse{ConversationID: id})
}

// ListConversations returns the caller's conversations, newest activity
// first, with display info and unread counts.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	summaries, err := h.directory.ListForUser(r.Context(), userID)
	if err != nil {
		log.Printf("chat: list conversations: %v", err)
		http.Error(w, "could not load conversations", http.StatusInternalServerError)
		return
	}

	var participantIDs []string
	seen := make(map[string]bool)
	for _, s := range summaries {
		for _, p := range s.Participants {
			if !seen[p.UserID] {
				seen[p.UserID] = true
				participantIDs = append(participantIDs, p.UserID)
			}
		}
	}
	profiles, err := h.profiles.GetMany(r.Context(), participantIDs)
	if err != nil {
		// Display degrades to placeholders; the list itself still loads.
		log.Printf("chat: batch profile lookup: %v", err)
		profiles = map[string]*profile.Profile{}
	}

	views := make([]ConversationView, 0, len(summaries))
	for _, s := range summaries {
		unread, err := h.tracker.UnreadCount(r.Context(), s.ID, userID)
		if err != nil {
			log.Printf("chat: unread count for %s: %v", s.ID, err)
		}
		views = append(views, conversationView(s, userID, profiles, unread))
	}

	json.NewEncoder(w).Encode(views)
}

// GetMessages returns the conversation history and marks it read.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID := chi.URLParam(r, "id")

	msgs, err := h.messages.List(r.Context(), conversationID, userID)
	if err != nil {
		log.Printf("chat: list messages for %s: %v", conversationID, err)
		msgs = nil
	}
	if msgs == nil {
		msgs = []message.Message{}
	}

	h.tracker.MarkRead(r.Context(), conversationID, userID)

	json.NewEncoder(w).Encode(msgs)
}

// PostMessage appends one message to the conversation.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID := chi.URLParam(r, "id")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	msg, err := h.messages.Append(r.Context(), conversationID, userID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, message.ErrEmptyContent):
			http.Error(w, "message is empty", http.StatusBadRequest)
		case errors.Is(err, message.ErrNotParticipant):
			http.Error(w, "not a participant", http.StatusForbidden)
		default:
			http.Error(w, "could not send message", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

// MarkRead advances the caller's read watermark.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID := chi.URLParam(r, "id")

	ok := h.tracker.MarkRead(r.Context(), conversationID, userID)
	json.NewEncoder(w).Encode(markReadResponse{Success: ok})
}

// SearchUsers finds profiles to start a conversation with.
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	if middleware.UserID(r.Context()) == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		json.NewEncoder(w).Encode([]profile.Profile{})
		return
	}

	results, err := h.profiles.Search(r.Context(), q)
	if err != nil {
		log.Printf("chat: search users: %v", err)
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []profile.Profile{}
	}
	json.NewEncoder(w).Encode(results)
}
