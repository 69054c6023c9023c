package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yudapramadita/lokapasar/internal/realtime"
)

type fakeStore struct {
	mu      sync.Mutex
	fetches int
}

func (s *fakeStore) UnreadCounts(_ context.Context, _ uuid.UUID) (map[uuid.UUID]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	return map[uuid.UUID]int64{}, nil
}

func (s *fakeStore) MarkConversationRead(_ context.Context, _, _ uuid.UUID) error { return nil }
func (s *fakeStore) MarkMessagesRead(_ context.Context, _, _ uuid.UUID) error     { return nil }

func (s *fakeStore) UnreadNotificationCount(_ context.Context, _ uuid.UUID) (int64, error) {
	return 0, nil
}
func (s *fakeStore) MarkAllNotificationsRead(_ context.Context, _ uuid.UUID) error { return nil }

type fakeBus struct {
	mu     sync.Mutex
	subs   map[string]int
	closes map[string]int
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[string]int), closes: make(map[string]int)}
}

func (b *fakeBus) Subscribe(_ context.Context, channel string, _ *realtime.Listener, onReady func()) (func(), error) {
	b.mu.Lock()
	b.subs[channel]++
	b.mu.Unlock()
	if onReady != nil {
		onReady()
	}
	return func() {
		b.mu.Lock()
		b.closes[channel]++
		b.mu.Unlock()
	}, nil
}

func (b *fakeBus) closeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, n := range b.closes {
		total += n
	}
	return total
}

type fakeHub struct {
	mu     sync.Mutex
	pushes []interface{}
}

func (h *fakeHub) SendToUser(_ uuid.UUID, data interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushes = append(h.pushes, data)
}

func newManager(store *fakeStore, bus *fakeBus, hub *fakeHub) *Manager {
	return NewManager(store, bus, hub, Config{
		UnreadDebounce:  time.Hour,
		UnreadPollEvery: time.Hour,
		NotifyPollEvery: time.Hour,
	}, zap.NewNop())
}

func TestAttachSharesEnginesAcrossSockets(t *testing.T) {
	store := &fakeStore{}
	bus := newFakeBus()
	m := newManager(store, bus, &fakeHub{})

	userID := uuid.New()
	first, err := m.Attach(context.Background(), userID)
	require.NoError(t, err)
	second, err := m.Attach(context.Background(), userID)
	require.NoError(t, err)

	assert.Same(t, first, second, "both sockets of one user share the engine set")

	bus.mu.Lock()
	subs := bus.subs[realtime.UserChannel(userID)]
	bus.mu.Unlock()
	assert.Equal(t, 1, subs, "second attach must not re-subscribe")
}

func TestLastDetachTearsDown(t *testing.T) {
	store := &fakeStore{}
	bus := newFakeBus()
	m := newManager(store, bus, &fakeHub{})

	userID := uuid.New()
	_, err := m.Attach(context.Background(), userID)
	require.NoError(t, err)
	_, err = m.Attach(context.Background(), userID)
	require.NoError(t, err)

	m.Detach(userID)
	_, ok := m.Get(userID)
	assert.True(t, ok, "session survives while a socket remains")
	assert.Zero(t, bus.closeCount())

	m.Detach(userID)
	_, ok = m.Get(userID)
	assert.False(t, ok)
	// both engine subscriptions released
	assert.Equal(t, 2, bus.closeCount())
}

func TestDetachUnknownUserIsNoop(t *testing.T) {
	m := newManager(&fakeStore{}, newFakeBus(), &fakeHub{})
	m.Detach(uuid.New()) // must not panic
}

func TestSessionsAreIsolatedPerUser(t *testing.T) {
	store := &fakeStore{}
	bus := newFakeBus()
	m := newManager(store, bus, &fakeHub{})

	alice, bob := uuid.New(), uuid.New()
	sa, err := m.Attach(context.Background(), alice)
	require.NoError(t, err)
	sb, err := m.Attach(context.Background(), bob)
	require.NoError(t, err)
	require.NotSame(t, sa, sb)

	m.Detach(alice)
	_, ok := m.Get(alice)
	assert.False(t, ok)
	_, ok = m.Get(bob)
	assert.True(t, ok, "one user's sign-out must not touch another's engines")

	m.Detach(bob)
}

func TestEngineChangesReachTheHub(t *testing.T) {
	store := &fakeStore{}
	bus := newFakeBus()
	hub := &fakeHub{}
	m := newManager(store, bus, hub)

	userID := uuid.New()
	s, err := m.Attach(context.Background(), userID)
	require.NoError(t, err)
	defer m.Detach(userID)

	s.Notify.SetAlarmActive(true)

	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		for _, p := range hub.pushes {
			if push, ok := p.(map[string]interface{}); ok && push["type"] == "notification_badge" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}
