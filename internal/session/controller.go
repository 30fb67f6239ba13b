// Package session is the client-side orchestration layer driving a
// conversation list plus thread view: a per-conversation message cache,
// duplicate-load guarding, optimistic send with reconcile, and real-time
// subscription lifecycle.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"academy-chat/internal/message"
	"academy-chat/internal/readstate"
)

// Subscription is a live feed channel the controller must Close on
// unmount; matched by feed.Subscription.
type Subscription interface {
	Close()
}

// MessageAPI is the message store access boundary for the signed-in user.
type MessageAPI interface {
	List(ctx context.Context, conversationID string) ([]message.Message, error)
	Append(ctx context.Context, conversationID, content string) (*message.Message, error)
}

// ReadMarker is the read-state tracker boundary.
type ReadMarker interface {
	MarkRead(ctx context.Context, conversationID string) bool
}

// Feed is the real-time fan-out boundary.
type Feed interface {
	SubscribeToMessages(conversationID string, fn func(message.Message)) Subscription
	SubscribeToConversationUpdates(fn func()) Subscription
}

// Controller owns all client-side messaging state for one session. Not
// shared across tabs; all exported methods are safe for concurrent use from
// UI callbacks and feed goroutines.
type Controller struct {
	messages  MessageAPI
	readState ReadMarker
	feed      Feed

	// Invoked when the conversation list may have changed; the feed is not
	// scoped per-user, so the UI re-queries to re-derive relevance.
	onConversationsChanged func()

	mu       sync.Mutex
	cache    map[string][]message.Message
	inFlight map[string]bool
	active   string
	visible  []message.Message
	loading  bool
	msgSub   Subscription
	convSub  Subscription
	closed   bool
}

func NewController(messages MessageAPI, readState ReadMarker, feed Feed, onConversationsChanged func()) *Controller {
	return &Controller{
		messages:               messages,
		readState:              readState,
		feed:                   feed,
		onConversationsChanged: onConversationsChanged,
		cache:                  make(map[string][]message.Message),
		inFlight:               make(map[string]bool),
	}
}

// Start opens the account-wide conversation-update subscription.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.convSub != nil {
		return
	}
	c.convSub = c.feed.SubscribeToConversationUpdates(func() {
		if c.onConversationsChanged != nil {
			c.onConversationsChanged()
		}
	})
}

// Select makes conversationID the active thread. The visible list and
// loading state swap atomically: a cache hit renders immediately with no
// fetch, a miss shows loading until the fetch lands. Async results are
// applied only if their conversation is still the active one, so a stale
// fetch never flashes into a newly selected thread. Mark-as-read runs in
// the background either way.
func (c *Controller) Select(ctx context.Context, conversationID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.active = conversationID

	// Swap the per-conversation subscription. The old one is closed outside
	// the lock: Close waits for the feed goroutine, which may itself be
	// blocked on c.mu in handleFeedMessage.
	oldSub := c.msgSub
	c.msgSub = c.feed.SubscribeToMessages(conversationID, c.handleFeedMessage)

	cached, hit := c.cache[conversationID]
	if hit {
		c.visible = append([]message.Message(nil), cached...)
		c.loading = false
	} else {
		c.visible = nil
		c.loading = true
	}
	alreadyLoading := c.inFlight[conversationID]
	if !hit && !alreadyLoading {
		c.inFlight[conversationID] = true
	}
	c.mu.Unlock()

	if oldSub != nil {
		oldSub.Close()
	}
	go c.markRead(conversationID)

	if hit || alreadyLoading {
		return
	}
	go c.load(ctx, conversationID)
}

func (c *Controller) load(ctx context.Context, conversationID string) {
	msgs, err := c.messages.List(ctx, conversationID)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, conversationID)
	if err != nil {
		log.Printf("session: load %s: %v", conversationID, err)
		if c.active == conversationID {
			c.loading = false
		}
		return
	}
	// Feed deliveries may have landed between the snapshot and now; they are
	// already deduped by id, so fold them in rather than dropping them.
	merged := append([]message.Message(nil), msgs...)
	for _, m := range c.cache[conversationID] {
		if !containsID(merged, m.ID) {
			merged = insertOrdered(merged, m)
		}
	}
	c.cache[conversationID] = merged
	if c.active != conversationID {
		// Selection moved on; keep the cache warm but leave the visible
		// list alone.
		return
	}
	c.visible = append([]message.Message(nil), merged...)
	c.loading = false
}

// Send optimistically echoes the message locally, persists it, then
// re-fetches the canonical list to reconcile anything that arrived in
// between.
func (c *Controller) Send(ctx context.Context, content string) (*message.Message, error) {
	c.mu.Lock()
	conversationID := c.active
	c.mu.Unlock()
	if conversationID == "" {
		return nil, message.ErrSendFailed
	}

	echo := message.Message{
		ID:             "pending-" + uuid.NewString(),
		ConversationID: conversationID,
		Content:        content,
	}
	c.mu.Lock()
	c.cache[conversationID] = append(c.cache[conversationID], echo)
	if c.active == conversationID {
		c.visible = append(c.visible, echo)
	}
	c.mu.Unlock()

	msg, err := c.messages.Append(ctx, conversationID, content)
	if err != nil {
		c.dropEcho(conversationID, echo.ID)
		return nil, err
	}

	canonical, lerr := c.messages.List(ctx, conversationID)
	c.mu.Lock()
	defer c.mu.Unlock()
	if lerr != nil {
		log.Printf("session: reconcile after send: %v", lerr)
		// Replace the echo with the persisted message in place.
		c.cache[conversationID] = replaceByID(c.cache[conversationID], echo.ID, *msg)
		if c.active == conversationID {
			c.visible = replaceByID(c.visible, echo.ID, *msg)
		}
		return msg, nil
	}
	c.cache[conversationID] = canonical
	if c.active == conversationID {
		c.visible = append([]message.Message(nil), canonical...)
	}
	return msg, nil
}

func (c *Controller) dropEcho(conversationID, echoID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[conversationID] = removeByID(c.cache[conversationID], echoID)
	if c.active == conversationID {
		c.visible = removeByID(c.visible, echoID)
	}
}

// handleFeedMessage applies one real-time message event. The transport can
// redeliver, so duplicates by id are dropped, and insertion keeps created_at
// order rather than arrival order.
func (c *Controller) handleFeedMessage(msg message.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list, ok := c.cache[msg.ConversationID]
	if !ok && c.active != msg.ConversationID {
		return
	}
	if containsID(list, msg.ID) {
		return
	}
	c.cache[msg.ConversationID] = insertOrdered(list, msg)

	if c.active == msg.ConversationID && !containsID(c.visible, msg.ID) {
		c.visible = insertOrdered(c.visible, msg)
	}
}

// Visible returns a snapshot of the active thread and its loading state.
func (c *Controller) Visible() ([]message.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]message.Message(nil), c.visible...), c.loading
}

// Active returns the selected conversation id.
func (c *Controller) Active() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// UnreadFor derives an unread badge for a cached conversation without a
// store round-trip. Uncached conversations report 0; callers fall back to
// the server-computed count from the conversation list.
func (c *Controller) UnreadFor(conversationID string, lastReadAt *time.Time, userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return readstate.CountUnread(c.cache[conversationID], lastReadAt, userID)
}

func (c *Controller) markRead(conversationID string) {
	if !c.readState.MarkRead(context.Background(), conversationID) {
		log.Printf("session: mark read %s did not apply", conversationID)
	}
}

// Close releases every live subscription. Required on unmount; leaking
// subscriptions leaks feed channels.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	msgSub, convSub := c.msgSub, c.convSub
	c.msgSub, c.convSub = nil, nil
	c.mu.Unlock()

	if msgSub != nil {
		msgSub.Close()
	}
	if convSub != nil {
		convSub.Close()
	}
}

func containsID(list []message.Message, id string) bool {
	for _, m := range list {
		if m.ID == id {
			return true
		}
	}
	return false
}

func removeByID(list []message.Message, id string) []message.Message {
	out := list[:0]
	for _, m := range list {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

func replaceByID(list []message.Message, id string, repl message.Message) []message.Message {
	for i, m := range list {
		if m.ID == id {
			list[i] = repl
			return list
		}
	}
	return append(list, repl)
}

// insertOrdered places msg by (created_at, id), never by arrival order.
func insertOrdered(list []message.Message, msg message.Message) []message.Message {
	i := len(list)
	for i > 0 {
		prev := list[i-1]
		if prev.CreatedAt.Before(msg.CreatedAt) ||
			(prev.CreatedAt.Equal(msg.CreatedAt) && prev.ID <= msg.ID) {
			break
		}
		i--
	}
	list = append(list, message.Message{})
	copy(list[i+1:], list[i:])
	list[i] = msg
	return list
}
