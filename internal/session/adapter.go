package session

import (
	"encoding/json"
	"log"

	"academy-chat/internal/feed"
	"academy-chat/internal/message"
)

// FeedAdapter maps raw change-feed events into the Message shape the
// controller consumes.
type FeedAdapter struct {
	sub *feed.Subscriber
}

func NewFeedAdapter(sub *feed.Subscriber) *FeedAdapter {
	return &FeedAdapter{sub: sub}
}

func (a *FeedAdapter) SubscribeToMessages(conversationID string, fn func(message.Message)) Subscription {
	return a.sub.SubscribeToMessages(conversationID, func(ev feed.Event) {
		if ev.Table != feed.TableMessages || ev.Type != feed.EventInsert {
			return
		}
		var m message.Message
		if err := json.Unmarshal(ev.Payload, &m); err != nil {
			log.Printf("session: drop malformed message event: %v", err)
			return
		}
		fn(m)
	})
}

func (a *FeedAdapter) SubscribeToConversationUpdates(fn func()) Subscription {
	return a.sub.SubscribeToConversationUpdates(func(ev feed.Event) {
		if ev.Table != feed.TableConversations {
			return
		}
		fn()
	})
}
