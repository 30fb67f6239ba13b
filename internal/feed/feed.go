// Package feed is the change-feed boundary: row-level insert/update events
// published to and consumed from redis pub/sub channels. Delivery is
// at-least-once; consumers dedup by row id.
package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	TableMessages      = "messages"
	TableConversations = "conversations"

	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
)

// Event is one row-shaped change notification.
type Event struct {
	Table   string          `json:"table"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func messageChannel(conversationID string) string {
	return "feed:messages:" + conversationID
}

const conversationChannel = "feed:conversations"

// Publisher emits change events. In production a logical replication feed
// would drive this; here the store-access layer publishes after each write.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// PublishMessageInsert fans a new message row out to subscribers of its
// conversation.
func (p *Publisher) PublishMessageInsert(ctx context.Context, conversationID string, row any) error {
	return p.publish(ctx, messageChannel(conversationID), TableMessages, EventInsert, row)
}

// PublishConversationUpdate notifies the account-wide conversation channel.
// The feed is not scoped per-user; subscribers re-derive relevance by
// re-querying.
func (p *Publisher) PublishConversationUpdate(ctx context.Context, row any) error {
	return p.publish(ctx, conversationChannel, TableConversations, EventUpdate, row)
}

func (p *Publisher) publish(ctx context.Context, channel, table, eventType string, row any) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("feed: marshal payload: %w", err)
	}
	data, err := json.Marshal(Event{Table: table, Type: eventType, Payload: payload})
	if err != nil {
		return fmt.Errorf("feed: marshal event: %w", err)
	}
	return p.rdb.Publish(ctx, channel, data).Err()
}

// Subscriber opens change-feed subscriptions.
type Subscriber struct {
	rdb *redis.Client
}

func NewSubscriber(rdb *redis.Client) *Subscriber {
	return &Subscriber{rdb: rdb}
}

// SubscribeToMessages invokes fn for each message-insert event in one
// conversation. The caller must Close the returned subscription.
func (s *Subscriber) SubscribeToMessages(conversationID string, fn func(Event)) *Subscription {
	return newSubscription(s.rdb, messageChannel(conversationID), fn)
}

// SubscribeToConversationUpdates invokes fn for conversation-table events
// across the whole account.
func (s *Subscriber) SubscribeToConversationUpdates(fn func(Event)) *Subscription {
	return newSubscription(s.rdb, conversationChannel, fn)
}
