package feed

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// State of a subscription: Inactive -> Subscribing -> Active, with Retrying
// on channel errors and back to Inactive on Close.
type State int32

const (
	StateInactive State = iota
	StateSubscribing
	StateActive
	StateRetrying
)

const retryDelay = time.Second

// Subscription is a live change-feed channel. Close is idempotent and
// releases the underlying pub/sub connection; leaking subscriptions leaks
// channels, so every caller must Close.
type Subscription struct {
	mu     sync.Mutex
	state  State
	closed bool
	cancel context.CancelFunc
	pubsub *redis.PubSub
	done   chan struct{}
}

func newSubscription(rdb *redis.Client, channel string, fn func(Event)) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	go sub.run(ctx, rdb, channel, fn)
	return sub
}

func (s *Subscription) run(ctx context.Context, rdb *redis.Client, channel string, fn func(Event)) {
	defer close(s.done)
	for {
		if !s.transition(StateSubscribing) {
			return
		}

		pubsub := rdb.Subscribe(ctx, channel)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			pubsub.Close()
			return
		}
		s.pubsub = pubsub
		s.mu.Unlock()

		if _, err := pubsub.Receive(ctx); err != nil {
			pubsub.Close()
			if !s.retryWait(ctx, channel, err) {
				return
			}
			continue
		}

		s.transition(StateActive)
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("feed: drop malformed event on %s: %v", channel, err)
				continue
			}
			fn(ev)
		}
		pubsub.Close()

		// Channel closed: either Close was called or the connection
		// dropped and we retry.
		if !s.retryWait(ctx, channel, nil) {
			return
		}
	}
}

// transition moves to next unless closed. Reports whether the subscription
// is still live.
func (s *Subscription) transition(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.state = next
	return true
}

func (s *Subscription) retryWait(ctx context.Context, channel string, err error) bool {
	if !s.transition(StateRetrying) {
		return false
	}
	if err != nil {
		log.Printf("feed: subscription to %s failed, retrying: %v", channel, err)
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(retryDelay):
		return true
	}
}

// State reports the current subscription state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close tears the subscription down. Safe to call multiple times.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = StateInactive
	pubsub := s.pubsub
	s.mu.Unlock()

	s.cancel()
	if pubsub != nil {
		pubsub.Close()
	}
	<-s.done
}
