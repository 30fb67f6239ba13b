package message

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"academy-chat/internal/notify"
	"academy-chat/internal/profile"
)

type fakeStore struct {
	mu           sync.Mutex
	participants map[string][]string
	messages     map[string][]Message
	upserts      []string
	touched      []string
	insertErr    error
	upsertErr    error
	nextID       int
}

func newMsgStore() *fakeStore {
	return &fakeStore{
		participants: make(map[string][]string),
		messages:     make(map[string][]Message),
	}
}

func (f *fakeStore) addParticipants(conversationID string, users ...string) {
	f.participants[conversationID] = append(f.participants[conversationID], users...)
}

func (f *fakeStore) Insert(ctx context.Context, conversationID, senderID, content string) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.nextID++
	msg := Message{
		ID:             fmt.Sprintf("msg-%d", f.nextID),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	f.messages[conversationID] = append(f.messages[conversationID], msg)
	return &msg, nil
}

func (f *fakeStore) ListByConversation(ctx context.Context, conversationID string) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.messages[conversationID]...), nil
}

func (f *fakeStore) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.participants[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) UpsertParticipant(ctx context.Context, conversationID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.participants[conversationID] = append(f.participants[conversationID], userID)
	f.upserts = append(f.upserts, userID)
	return nil
}

func (f *fakeStore) ParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.participants[conversationID]...), nil
}

func (f *fakeStore) TouchConversation(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, conversationID)
	return nil
}

type fakePublisher struct {
	mu      sync.Mutex
	inserts []string
	updates int
}

func (f *fakePublisher) PublishMessageInsert(ctx context.Context, conversationID string, row any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts = append(f.inserts, conversationID)
	return nil
}

func (f *fakePublisher) PublishConversationUpdate(ctx context.Context, row any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	payloads []notify.Payload
	err      error
	notified chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{notified: make(chan struct{}, 16)}
}

func (f *fakeNotifier) NewMessage(ctx context.Context, p notify.Payload) error {
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	err := f.err
	f.mu.Unlock()
	f.notified <- struct{}{}
	return err
}

func (f *fakeNotifier) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, p := range f.payloads {
		ids = append(ids, p.RecipientID)
	}
	return ids
}

func (f *fakeNotifier) payloadAt(i int) notify.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[i]
}

type fakeProfileReader struct{}

func (fakeProfileReader) Get(ctx context.Context, id string) (*profile.Profile, error) {
	if id == "alice" {
		return &profile.Profile{ID: id, FirstName: "Alice", LastName: "Ng"}, nil
	}
	return nil, nil
}

func newTestService() (*Service, *fakeStore, *fakePublisher, *fakeNotifier) {
	store := newMsgStore()
	pub := &fakePublisher{}
	notifier := newFakeNotifier()
	svc := NewService(store, pub, notifier, fakeProfileReader{})
	return svc, store, pub, notifier
}

func waitNotified(t *testing.T, n *fakeNotifier, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		select {
		case <-n.notified:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for notification %d of %d", i+1, count)
		}
	}
}

func TestAppendRoundTrip(t *testing.T) {
	svc, store, pub, notifier := newTestService()
	store.addParticipants("c1", "alice", "bob")

	msg, err := svc.Append(context.Background(), "c1", "alice", "hello")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Errorf("message missing server-assigned fields: %+v", msg)
	}

	msgs, err := svc.List(context.Background(), "c1", "bob")
	if err != nil {
		t.Fatalf("list as bob: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello" || msgs[0].SenderID != "alice" {
		t.Errorf("round trip lost the message: %+v", msgs)
	}

	if len(store.touched) != 1 {
		t.Errorf("updated_at bumped %d times, want 1", len(store.touched))
	}
	if len(pub.inserts) != 1 || pub.updates != 1 {
		t.Errorf("feed events: %d inserts, %d updates, want 1 and 1", len(pub.inserts), pub.updates)
	}

	waitNotified(t, notifier, 1)
	got := notifier.recipients()
	if len(got) != 1 || got[0] != "bob" {
		t.Errorf("notified %v, want only bob", got)
	}
	if got := notifier.payloadAt(0).SenderName; got != "Alice Ng" {
		t.Errorf("sender name = %q, want %q", got, "Alice Ng")
	}
}

func TestAppendRejectsEmptyContent(t *testing.T) {
	svc, store, _, _ := newTestService()
	store.addParticipants("c1", "alice", "bob")

	for _, content := range []string{"", "   ", "\n\t "} {
		if _, err := svc.Append(context.Background(), "c1", "alice", content); !errors.Is(err, ErrEmptyContent) {
			t.Errorf("Append(%q) err = %v, want ErrEmptyContent", content, err)
		}
	}
	if len(store.messages["c1"]) != 0 {
		t.Errorf("rows inserted for empty content: %v", store.messages["c1"])
	}
}

func TestAppendSelfHealsMissingParticipant(t *testing.T) {
	svc, store, _, notifier := newTestService()
	store.addParticipants("c1", "bob") // alice's row is missing

	msg, err := svc.Append(context.Background(), "c1", "alice", "hi")
	if err != nil {
		t.Fatalf("append with self-heal: %v", err)
	}
	if msg == nil {
		t.Fatal("no message returned")
	}
	if len(store.upserts) != 1 || store.upserts[0] != "alice" {
		t.Errorf("upserts = %v, want [alice]", store.upserts)
	}
	waitNotified(t, notifier, 1)
}

func TestAppendFailsWhenSelfHealFails(t *testing.T) {
	svc, store, _, _ := newTestService()
	store.addParticipants("c1", "bob")
	store.upsertErr = errors.New("denied")

	if _, err := svc.Append(context.Background(), "c1", "alice", "hi"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("err = %v, want ErrNotParticipant", err)
	}
	if len(store.messages["c1"]) != 0 {
		t.Error("message inserted despite failed self-heal")
	}
}

func TestAppendSurvivesNotifierFailure(t *testing.T) {
	svc, store, _, notifier := newTestService()
	store.addParticipants("c1", "alice", "bob")
	notifier.err = errors.New("push service down")

	msg, err := svc.Append(context.Background(), "c1", "alice", "hello")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg == nil {
		t.Fatal("no message returned")
	}
	waitNotified(t, notifier, 1)
}

func TestListNonParticipantIsEmptyNotError(t *testing.T) {
	svc, store, _, _ := newTestService()
	store.addParticipants("c1", "alice", "bob")
	if _, err := svc.Append(context.Background(), "c1", "alice", "secret"); err != nil {
		t.Fatalf("append: %v", err)
	}

	msgs, err := svc.List(context.Background(), "c1", "mallory")
	if err != nil {
		t.Fatalf("non-participant list errored: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("non-participant saw %d messages", len(msgs))
	}
}

func TestListUnauthenticatedIsEmpty(t *testing.T) {
	svc, store, _, _ := newTestService()
	store.addParticipants("c1", "alice", "bob")

	msgs, err := svc.List(context.Background(), "c1", "")
	if err != nil || len(msgs) != 0 {
		t.Errorf("unauthenticated list = %v, %v; want empty, nil", msgs, err)
	}
}

func TestAppendUnauthenticated(t *testing.T) {
	svc, _, _, _ := newTestService()
	if _, err := svc.Append(context.Background(), "c1", "", "hi"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("err = %v, want ErrNotParticipant", err)
	}
}
