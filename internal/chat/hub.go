package chat

import (
	"encoding/json"

	"academy-chat/internal/feed"
)

// Subscription is a live feed channel the hub must release when its room
// empties; matched by feed.Subscription.
type Subscription interface {
	Close()
}

// MessageFeed opens per-conversation change-feed subscriptions; matched by
// FeedSource.
type MessageFeed interface {
	SubscribeToMessages(conversationID string, fn func(feed.Event)) Subscription
}

// FeedSource adapts feed.Subscriber to the hub's feed boundary.
type FeedSource struct {
	sub *feed.Subscriber
}

func NewFeedSource(sub *feed.Subscriber) *FeedSource {
	return &FeedSource{sub: sub}
}

func (f *FeedSource) SubscribeToMessages(conversationID string, fn func(feed.Event)) Subscription {
	return f.sub.SubscribeToMessages(conversationID, fn)
}

// Hub routes change-feed events to the websocket clients watching each
// conversation. One feed subscription is held per conversation with at least
// one client; it is released when the last client leaves.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	broadcast chan broadcastEvent
	rooms     map[string]map[*Client]bool
	subs      map[string]Subscription
	feed      MessageFeed
}

type broadcastEvent struct {
	conversationID string
	payload        []byte
}

func NewHub(messageFeed MessageFeed) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		broadcast:  make(chan broadcastEvent, 64),
		rooms:      make(map[string]map[*Client]bool),
		subs:       make(map[string]Subscription),
		feed:       messageFeed,
	}
}

// Run manages all hub state. It is the only goroutine touching rooms and
// subs, so neither needs a lock.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			room := h.rooms[client.ConversationID]
			if room == nil {
				room = make(map[*Client]bool)
				h.rooms[client.ConversationID] = room
				h.subs[client.ConversationID] = h.subscribe(client.ConversationID)
			}
			room[client] = true

		case client := <-h.Unregister:
			room, ok := h.rooms[client.ConversationID]
			if !ok {
				continue
			}
			if _, ok := room[client]; ok {
				delete(room, client)
				close(client.Send)
			}
			if len(room) == 0 {
				delete(h.rooms, client.ConversationID)
				if sub := h.subs[client.ConversationID]; sub != nil {
					delete(h.subs, client.ConversationID)
					// Close waits for the feed goroutine, which may be
					// mid-send into h.broadcast; detach so Run keeps
					// draining.
					go sub.Close()
				}
			}

		case ev := <-h.broadcast:
			for client := range h.rooms[ev.conversationID] {
				select {
				case client.Send <- ev.payload:
				default:
					close(client.Send)
					delete(h.rooms[ev.conversationID], client)
				}
			}
		}
	}
}

func (h *Hub) subscribe(conversationID string) Subscription {
	return h.feed.SubscribeToMessages(conversationID, func(ev feed.Event) {
		payload, err := json.Marshal(ev)
		if err != nil {
			return
		}
		h.broadcast <- broadcastEvent{conversationID: conversationID, payload: payload}
	})
}
