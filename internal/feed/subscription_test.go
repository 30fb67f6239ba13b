package feed

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	// Nothing listens on this address; the subscription sits in its
	// subscribe/retry loop until closed.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()

	sub := NewSubscriber(rdb).SubscribeToMessages("c1", func(Event) {})
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		sub.Close()
		sub.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	if got := sub.State(); got != StateInactive {
		t.Errorf("state after close = %v, want StateInactive", got)
	}
}

func TestSubscriptionTransitionRefusedAfterClose(t *testing.T) {
	s := &Subscription{cancel: func() {}, done: make(chan struct{})}
	close(s.done)

	if !s.transition(StateSubscribing) {
		t.Fatal("transition refused on live subscription")
	}
	if !s.transition(StateActive) {
		t.Fatal("transition to active refused")
	}
	if s.State() != StateActive {
		t.Fatalf("state = %v, want StateActive", s.State())
	}

	s.Close()
	if s.State() != StateInactive {
		t.Fatalf("state after close = %v, want StateInactive", s.State())
	}
	if s.transition(StateActive) {
		t.Error("transition allowed after close")
	}
}
