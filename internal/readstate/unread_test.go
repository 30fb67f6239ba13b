package readstate

import (
	"testing"
	"time"

	"academy-chat/internal/message"
)

func msg(sender string, at time.Time) message.Message {
	return message.Message{SenderID: sender, CreatedAt: at}
}

func TestCountUnreadWithWatermark(t *testing.T) {
	watermark := time.Unix(1000, 0)
	msgs := []message.Message{
		msg("bob", watermark.Add(-time.Second)),
		msg("bob", watermark.Add(time.Second)),
		msg("bob", watermark.Add(2*time.Second)),
	}

	if got := CountUnread(msgs, &watermark, "alice"); got != 2 {
		t.Errorf("CountUnread = %d, want 2", got)
	}
}

func TestCountUnreadIgnoresOwnMessages(t *testing.T) {
	watermark := time.Unix(1000, 0)
	msgs := []message.Message{
		msg("alice", watermark.Add(time.Second)),
		msg("bob", watermark.Add(2*time.Second)),
	}

	if got := CountUnread(msgs, &watermark, "alice"); got != 1 {
		t.Errorf("CountUnread = %d, want 1", got)
	}
}

func TestCountUnreadNoWatermark(t *testing.T) {
	now := time.Unix(1000, 0)

	fromOther := []message.Message{msg("alice", now), msg("bob", now.Add(time.Second))}
	if got := CountUnread(fromOther, nil, "alice"); got != 1 {
		t.Errorf("latest from other sender: CountUnread = %d, want 1", got)
	}

	fromSelf := []message.Message{msg("bob", now), msg("alice", now.Add(time.Second))}
	if got := CountUnread(fromSelf, nil, "alice"); got != 0 {
		t.Errorf("latest from self: CountUnread = %d, want 0", got)
	}
}

func TestCountUnreadEmptyThread(t *testing.T) {
	if got := CountUnread(nil, nil, "alice"); got != 0 {
		t.Errorf("CountUnread on empty thread = %d, want 0", got)
	}
}
