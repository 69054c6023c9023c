package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yudapramadita/lokapasar/internal/models"
	"github.com/yudapramadita/lokapasar/internal/realtime"
	"github.com/yudapramadita/lokapasar/internal/unread"
)

type fakeBus struct {
	mu        sync.Mutex
	listeners map[string]*realtime.Listener
	closes    map[string]int
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		listeners: make(map[string]*realtime.Listener),
		closes:    make(map[string]int),
	}
}

func (b *fakeBus) Subscribe(_ context.Context, channel string, l *realtime.Listener, onReady func()) (func(), error) {
	b.mu.Lock()
	b.listeners[channel] = l
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

func (b *fakeBus) emit(t *testing.T, channel string, ev realtime.Event) {
	t.Helper()
	b.mu.Lock()
	l := b.listeners[channel]
	b.mu.Unlock()
	require.NotNil(t, l, "no listener on %s", channel)
	l.Dispatch(ev)
}

func insertEvent(t *testing.T, m models.Message) realtime.Event {
	t.Helper()
	payload, err := json.Marshal(m)
	require.NoError(t, err)
	return realtime.Event{Table: "messages", Type: realtime.EventInsert, New: payload}
}

func updateEvent(t *testing.T, m models.Message) realtime.Event {
	t.Helper()
	payload, err := json.Marshal(m)
	require.NoError(t, err)
	return realtime.Event{Table: "messages", Type: realtime.EventUpdate, New: payload}
}

func TestRoomAppendsArrivingMessages(t *testing.T) {
	bus := newFakeBus()
	convID, userID, other := uuid.New(), uuid.New(), uuid.New()

	var changes int
	room, err := OpenRoom(context.Background(), bus, convID, userID, func(*View) { changes++ })
	require.NoError(t, err)
	defer room.Close()

	ch := realtime.UserChannel(userID)
	bus.emit(t, ch, insertEvent(t, msg(convID, other, "halo", time.Now())))
	// another conversation of the same user shares the channel; not this room's
	bus.emit(t, ch, insertEvent(t, msg(uuid.New(), other, "salah kamar", time.Now())))

	entries := room.View.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "halo", entries[0].Message.Text)
	assert.Equal(t, 1, changes)
}

func TestRoomAppliesReadStateUpdates(t *testing.T) {
	bus := newFakeBus()
	convID, userID, other := uuid.New(), uuid.New(), uuid.New()

	room, err := OpenRoom(context.Background(), bus, convID, userID, func(*View) {})
	require.NoError(t, err)
	defer room.Close()

	incoming := msg(convID, other, "halo", time.Now())
	ch := realtime.UserChannel(userID)
	bus.emit(t, ch, insertEvent(t, incoming))
	require.True(t, room.View.NeedsRead())

	incoming.IsRead = true
	bus.emit(t, ch, updateEvent(t, incoming))
	assert.False(t, room.View.NeedsRead(), "read receipt must clear the needs-read state")
}

// A message that lands while the room is open and active triggers a mark-read
// through the change hook; the resulting read receipt stops the cycle.
func TestRoomChangeHookMarksActiveRoomRead(t *testing.T) {
	bus := newFakeBus()
	convID, userID, other := uuid.New(), uuid.New(), uuid.New()

	active := unread.NewActive()
	release := active.Activate(convID)
	defer release()

	var mu sync.Mutex
	var marks []uuid.UUID
	onChange := func(v *View) {
		if v.NeedsRead() && active.Is(convID) {
			mu.Lock()
			marks = append(marks, convID)
			mu.Unlock()
		}
	}

	room, err := OpenRoom(context.Background(), bus, convID, userID, onChange)
	require.NoError(t, err)
	defer room.Close()

	incoming := msg(convID, other, "masih ada?", time.Now())
	ch := realtime.UserChannel(userID)
	bus.emit(t, ch, insertEvent(t, incoming))

	mu.Lock()
	require.Len(t, marks, 1)
	mu.Unlock()

	// the mark's own UPDATE comes back and must not re-trigger
	incoming.IsRead = true
	bus.emit(t, ch, updateEvent(t, incoming))

	mu.Lock()
	assert.Len(t, marks, 1)
	mu.Unlock()
}

func TestRoomChangeHookRespectsActiveConversation(t *testing.T) {
	bus := newFakeBus()
	convID, userID, other := uuid.New(), uuid.New(), uuid.New()

	active := unread.NewActive()
	// user already switched away; the release ran
	release := active.Activate(convID)
	release()

	var marked bool
	room, err := OpenRoom(context.Background(), bus, convID, userID, func(v *View) {
		if v.NeedsRead() && active.Is(convID) {
			marked = true
		}
	})
	require.NoError(t, err)
	defer room.Close()

	bus.emit(t, realtime.UserChannel(userID), insertEvent(t, msg(convID, other, "halo", time.Now())))
	assert.False(t, marked, "a backgrounded room must not mark itself read")
}

func TestRoomCloseUnsubscribes(t *testing.T) {
	bus := newFakeBus()
	convID, userID := uuid.New(), uuid.New()

	room, err := OpenRoom(context.Background(), bus, convID, userID, func(*View) {})
	require.NoError(t, err)

	room.Close()
	room.Close()

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Equal(t, 1, bus.closes[realtime.UserChannel(userID)])
}
