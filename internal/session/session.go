// Package session scopes the reconciliation engines to the lifetime of an
// authenticated session. Engines are constructed on first attach, shared by
// reference across a user's sockets, and torn down deterministically when the
// last socket detaches — a leaked engine would double-count optimistic
// increments, so teardown is a correctness requirement, not hygiene.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yudapramadita/lokapasar/internal/chat"
	"github.com/yudapramadita/lokapasar/internal/notify"
	"github.com/yudapramadita/lokapasar/internal/realtime"
	"github.com/yudapramadita/lokapasar/internal/unread"
)

// Pusher is the slice of the hub the sessions push snapshots through.
type Pusher interface {
	SendToUser(userID uuid.UUID, data interface{})
}

// Store combines the gateway slices both engines need.
type Store interface {
	unread.Store
	notify.Store
}

// Config carries per-engine tunables.
type Config struct {
	UnreadDebounce  time.Duration
	UnreadPollEvery time.Duration
	NotifyPollEvery time.Duration
}

// Session is one user's engine set.
type Session struct {
	UserID uuid.UUID
	Unread *unread.Engine
	Notify *notify.Engine
	Active *unread.Active

	roomMu sync.Mutex
	room   *chat.Room

	refs int
}

// SetRoom records the currently open chat room (nil on leave) so the HTTP
// message fetch can merge into the same view the socket renders.
func (s *Session) SetRoom(r *chat.Room) {
	s.roomMu.Lock()
	defer s.roomMu.Unlock()
	s.room = r
}

// Room returns the open chat room, if any.
func (s *Session) Room() (*chat.Room, bool) {
	s.roomMu.Lock()
	defer s.roomMu.Unlock()
	return s.room, s.room != nil
}

// Manager owns all live sessions.
type Manager struct {
	store Store
	bus   realtime.Subscriber
	hub   Pusher
	cfg   Config
	log   *zap.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewManager(store Store, bus realtime.Subscriber, hub Pusher, cfg Config, log *zap.Logger) *Manager {
	return &Manager{
		store:    store,
		bus:      bus,
		hub:      hub,
		cfg:      cfg,
		log:      log,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Attach returns the session for userID, constructing and starting the
// engines on the first socket.
func (m *Manager) Attach(ctx context.Context, userID uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		s.refs++
		return s, nil
	}

	active := unread.NewActive()
	ue := unread.NewEngine(userID, m.store, m.bus, active, unread.Config{
		Debounce:  m.cfg.UnreadDebounce,
		PollEvery: m.cfg.UnreadPollEvery,
	}, m.log)
	ne := notify.NewEngine(userID, m.store, m.bus, m.cfg.NotifyPollEvery, m.log)

	ue.OnChange(func(snap unread.Snapshot) {
		m.hub.SendToUser(userID, map[string]interface{}{
			"type":  "unread_badge",
			"badge": snap,
		})
	})
	ne.OnChange(func(b notify.Badge) {
		m.hub.SendToUser(userID, map[string]interface{}{
			"type":  "notification_badge",
			"badge": b,
		})
	})

	if err := ue.Start(ctx); err != nil {
		return nil, err
	}
	if err := ne.Start(ctx); err != nil {
		ue.Close()
		return nil, err
	}

	s := &Session{
		UserID: userID,
		Unread: ue,
		Notify: ne,
		Active: active,
		refs:   1,
	}
	m.sessions[userID] = s
	m.log.Info("session: engines started", zap.String("user", userID.String()))
	return s, nil
}

// Detach drops one reference; the last detach (sign-out, final disconnect)
// closes the engines and forgets the session.
func (m *Manager) Detach(userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return
	}
	s.refs--
	if s.refs > 0 {
		return
	}

	s.Unread.Close()
	s.Notify.Close()
	delete(m.sessions, userID)
	m.log.Info("session: engines torn down", zap.String("user", userID.String()))
}

// Get returns the live session for userID, if any.
func (m *Manager) Get(userID uuid.UUID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}
