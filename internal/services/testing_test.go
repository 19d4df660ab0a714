package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"tlu-support/internal/models"
	"tlu-support/internal/repository"
	"tlu-support/internal/utils"
)

type emitted struct {
	Room    string
	Rooms   []string
	Event   string
	Payload interface{}
}

type fakeFanout struct {
	mu     sync.Mutex
	events []emitted
}

func (f *fakeFanout) EmitToRoom(roomID, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emitted{Room: roomID, Rooms: []string{roomID}, Event: event, Payload: payload})
}

func (f *fakeFanout) EmitToUser(userID, event string, payload interface{}) {
	f.EmitToRoom("user:"+userID, event, payload)
}

// EmitToRooms is recorded as a single emission, the way the hub delivers it.
func (f *fakeFanout) EmitToRooms(event string, payload interface{}, roomIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emitted{Room: roomIDs[0], Rooms: roomIDs, Event: event, Payload: payload})
}

func (f *fakeFanout) byEvent(event string) []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emitted
	for _, e := range f.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakePublisher struct {
	mu        sync.Mutex
	published []interface{}
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, _ string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, payload)
	return nil
}

type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string][]byte{}} }

func (c *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = b
	return nil
}

func (c *fakeCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	b, ok := c.data[key]
	c.mu.Unlock()
	if !ok {
		return utils.ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *fakeCache) Exists(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

// failingMessages breaks message inserts to simulate a storage outage mid-transaction.
type failingMessages struct {
	*repository.MemoryStore
}

func (f failingMessages) InsertMessage(context.Context, *models.Message) error {
	return errors.New("disk full")
}

type chatFixture struct {
	store     *repository.MemoryStore
	fanout    *fakeFanout
	publisher *fakePublisher
	chat      *ChatService
	lifecycle *LifecycleService
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	fanout := &fakeFanout{}
	pub := &fakePublisher{}
	notifier := NewSupportNotifier(pub, "support_events", zerolog.Nop())

	return &chatFixture{
		store:     store,
		fanout:    fanout,
		publisher: pub,
		chat:      NewChatService(store, store, store, store, fanout, notifier, ChatServiceOptions{MaxRetries: 3}, zerolog.Nop()),
		lifecycle: NewLifecycleService(store, store, fanout, 3, zerolog.Nop()),
	}
}

func (f *chatFixture) addUser(t *testing.T, id string, role models.Role) {
	t.Helper()
	require.NoError(t, f.store.CreateUser(context.Background(), &models.User{
		ID: id, Email: id + "@uni.test", FullName: id, Role: role, IsActive: true,
	}))
}
