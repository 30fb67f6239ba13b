// Package notify dispatches best-effort "new message" pushes through a
// redis-backed task queue. Delivery never affects the sending operation.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TaskNewMessage is the queue task type for a new-message notification.
const TaskNewMessage = "notify:new_message"

// Queue is the asynq queue notifications are routed to.
const Queue = "notify"

const previewLimit = 120

// Payload is the outbound notification shape, one per recipient.
type Payload struct {
	RecipientID    string `json:"recipientId"`
	SenderID       string `json:"senderId"`
	SenderName     string `json:"senderName"`
	MessagePreview string `json:"messagePreview"`
	ConversationID string `json:"conversationId"`
}

// Preview ellipsizes message content to the notification limit, rune-safe.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLimit {
		return content
	}
	return string(runes[:previewLimit-1]) + "…"
}

// Dispatcher enqueues notification tasks.
type Dispatcher struct {
	client *asynq.Client
}

func NewDispatcher(redisAddr string) *Dispatcher {
	return &Dispatcher{client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

// NewMessage enqueues one notification. Callers fire this detached and
// swallow the error; a lost notification never fails a send.
func (d *Dispatcher) NewMessage(ctx context.Context, p Payload) error {
	p.MessagePreview = Preview(p.MessagePreview)
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}
	task := asynq.NewTask(TaskNewMessage, data)
	_, err = d.client.EnqueueContext(ctx, task, asynq.Queue(Queue), asynq.MaxRetry(3))
	return err
}

func (d *Dispatcher) Close() error {
	return d.client.Close()
}
