// Package notify keeps the notification badge of one authenticated session
// consistent with server truth. Same reconciliation pattern as the unread
// engine, but the state is a single scalar plus a viewing-mute flag.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yudapramadita/lokapasar/internal/realtime"
)

// Store is the slice of the persistence gateway the engine needs.
type Store interface {
	UnreadNotificationCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) error
}

// Badge is what UI consumers observe. Unread is forced to zero while the
// alarm screen is open; Raw stays the underlying count for bookkeeping.
type Badge struct {
	Unread      int64 `json:"unread"`
	Raw         int64 `json:"raw"`
	AlarmActive bool  `json:"alarm_active"`
}

type Engine struct {
	userID   uuid.UUID
	store    Store
	bus      realtime.Subscriber
	log      *zap.Logger
	poll     time.Duration
	onChange func(Badge)

	mu          sync.Mutex
	raw         int64
	alarmActive bool

	unsubscribe func()
	done        chan struct{}
	closeOnce   sync.Once
}

func NewEngine(userID uuid.UUID, store Store, bus realtime.Subscriber, poll time.Duration, log *zap.Logger) *Engine {
	if poll <= 0 {
		poll = 10 * time.Second
	}
	return &Engine{
		userID: userID,
		store:  store,
		bus:    bus,
		log:    log.With(zap.String("user", userID.String())),
		poll:   poll,
		done:   make(chan struct{}),
	}
}

// OnChange registers the observer callback. Must be set before Start.
func (e *Engine) OnChange(fn func(Badge)) {
	e.onChange = fn
}

// Start subscribes to the user's notification channel (any event type
// triggers a refetch) and the drop-tolerance polling loop.
func (e *Engine) Start(ctx context.Context) error {
	l := realtime.NewListener().
		On("notifications", realtime.EventAll, func(realtime.Event) {
			e.Refresh(context.Background())
		})

	unsub, err := e.bus.Subscribe(ctx, realtime.NotificationChannel(e.userID), l, func() {
		go e.Refresh(context.Background())
	})
	if err != nil {
		return err
	}
	e.unsubscribe = unsub

	go e.pollLoop()
	return nil
}

// Refresh replaces the raw scalar with the authoritative count. Errors keep
// the last known value.
func (e *Engine) Refresh(ctx context.Context) {
	if e.userID == uuid.Nil {
		return
	}
	count, err := e.store.UnreadNotificationCount(ctx, e.userID)
	if err != nil {
		e.log.Warn("notify: refresh failed, keeping last known count", zap.Error(err))
		return
	}

	e.mu.Lock()
	e.raw = count
	badge := e.badgeLocked()
	e.mu.Unlock()

	e.emit(badge)
}

// MarkAllRead bulk-updates every unread notification, then zeroes the local
// scalar immediately — safe because the operation is terminal and
// all-or-nothing.
func (e *Engine) MarkAllRead(ctx context.Context) error {
	if e.userID == uuid.Nil {
		return nil
	}
	if err := e.store.MarkAllNotificationsRead(ctx, e.userID); err != nil {
		e.log.Error("notify: mark-all-read failed", zap.Error(err))
		return err
	}

	e.mu.Lock()
	e.raw = 0
	badge := e.badgeLocked()
	e.mu.Unlock()

	e.emit(badge)
	return nil
}

// SetAlarmActive mutes (or unmutes) the externally observed count while the
// alarm screen is being viewed.
func (e *Engine) SetAlarmActive(v bool) {
	e.mu.Lock()
	e.alarmActive = v
	badge := e.badgeLocked()
	e.mu.Unlock()

	e.emit(badge)
}

// Badge returns the current observable state.
func (e *Engine) Badge() Badge {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.badgeLocked()
}

// Close tears down the poll loop and subscription. Idempotent.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		if e.unsubscribe != nil {
			e.unsubscribe()
		}
	})
}

func (e *Engine) pollLoop() {
	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.Refresh(context.Background())
		case <-e.done:
			return
		}
	}
}

func (e *Engine) badgeLocked() Badge {
	b := Badge{Raw: e.raw, AlarmActive: e.alarmActive}
	if !e.alarmActive {
		b.Unread = e.raw
	}
	return b
}

func (e *Engine) emit(b Badge) {
	if e.onChange != nil {
		e.onChange(b)
	}
}
