// Package unread keeps the per-conversation unread-message counts of one
// authenticated session eventually consistent with server truth.
//
// Every optimistic mutation here is provisional: within a bounded delay an
// authoritative refetch fully replaces the map. Duplicate, dropped and
// out-of-order events are all corrected the same way, at the cost of a short
// window of possible badge inaccuracy.
package unread

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yudapramadita/lokapasar/internal/models"
	"github.com/yudapramadita/lokapasar/internal/realtime"
)

// Store is the slice of the persistence gateway the engine needs.
type Store interface {
	UnreadCounts(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]int64, error)
	MarkConversationRead(ctx context.Context, convID, userID uuid.UUID) error
	MarkMessagesRead(ctx context.Context, convID, userID uuid.UUID) error
}

// Snapshot is what UI consumers observe.
type Snapshot struct {
	Counts map[uuid.UUID]int64 `json:"counts"`
	Total  int64               `json:"total"`
}

// Config carries the reconciliation tunables.
type Config struct {
	Debounce  time.Duration // window for coalescing event bursts into one fetch
	PollEvery time.Duration // defense-in-depth polling against channel drops
}

func (c *Config) fill() {
	if c.Debounce <= 0 {
		c.Debounce = 250 * time.Millisecond
	}
	if c.PollEvery <= 0 {
		c.PollEvery = 8 * time.Second
	}
}

// Engine owns the unread map of one user session. All mutations go through
// its methods; consumers only ever see copies via Snapshot.
type Engine struct {
	userID   uuid.UUID
	store    Store
	bus      realtime.Subscriber
	active   *Active
	log      *zap.Logger
	cfg      Config
	onChange func(Snapshot)

	mu       sync.Mutex
	counts   map[uuid.UUID]int64
	total    int64
	debounce *time.Timer

	unsubscribe func()
	done        chan struct{}
	closeOnce   sync.Once
}

func NewEngine(userID uuid.UUID, store Store, bus realtime.Subscriber, active *Active, cfg Config, log *zap.Logger) *Engine {
	cfg.fill()
	return &Engine{
		userID: userID,
		store:  store,
		bus:    bus,
		active: active,
		log:    log.With(zap.String("user", userID.String())),
		cfg:    cfg,
		counts: make(map[uuid.UUID]int64),
		done:   make(chan struct{}),
	}
}

// OnChange registers the observer callback, invoked with a snapshot after
// every mutation. Must be set before Start.
func (e *Engine) OnChange(fn func(Snapshot)) {
	e.onChange = fn
}

// Start subscribes the realtime listener and the defense polling loop. The
// subscription confirmation triggers an immediate refresh to catch up on
// anything missed before the channel was live.
func (e *Engine) Start(ctx context.Context) error {
	l := realtime.NewListener().
		On("messages", realtime.EventInsert, e.handleMessageInsert).
		On("messages", realtime.EventUpdate, e.handleMessageUpdate).
		On("conversations", realtime.EventAll, func(realtime.Event) {
			// structural change; resolve promptly, no debounce
			e.Refresh(context.Background())
		})

	unsub, err := e.bus.Subscribe(ctx, realtime.UserChannel(e.userID), l, func() {
		go e.Refresh(context.Background())
	})
	if err != nil {
		return err
	}
	e.unsubscribe = unsub

	go e.pollLoop()
	return nil
}

// Refresh replaces the whole local map with freshly computed server counts.
// On error the previous state stays untouched: stale-but-available beats
// erroring out of a background reconciliation.
func (e *Engine) Refresh(ctx context.Context) {
	if e.userID == uuid.Nil {
		return
	}
	counts, err := e.store.UnreadCounts(ctx, e.userID)
	if err != nil {
		e.log.Warn("unread: refresh failed, keeping last known counts", zap.Error(err))
		return
	}

	e.mu.Lock()
	e.counts = make(map[uuid.UUID]int64, len(counts))
	for id, n := range counts {
		if n > 0 {
			e.counts[id] = n
		}
	}
	e.recomputeTotalLocked()
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emit(snap)
}

// MarkAsRead flips all unread counterparty messages of convID. Primary path is
// the idempotent procedure; on failure it falls back to the direct bulk
// update. If both fail, local state is left alone — the next authoritative
// refresh corrects it. On success the engine refetches rather than
// decrementing locally, to tolerate races with concurrent server-side change.
func (e *Engine) MarkAsRead(ctx context.Context, convID uuid.UUID) error {
	if e.userID == uuid.Nil || convID == uuid.Nil {
		return nil
	}

	if err := e.store.MarkConversationRead(ctx, convID, e.userID); err != nil {
		e.log.Warn("unread: mark-read procedure failed, using fallback",
			zap.String("conversation", convID.String()), zap.Error(err))
		if ferr := e.store.MarkMessagesRead(ctx, convID, e.userID); ferr != nil {
			e.log.Error("unread: mark-read fallback failed",
				zap.String("conversation", convID.String()), zap.Error(ferr))
			return ferr
		}
	}

	e.Refresh(ctx)
	return nil
}

// NotifyForeground is called when the app returns to the foreground; channel
// drops while backgrounded are expected, so refetch immediately.
func (e *Engine) NotifyForeground(ctx context.Context) {
	e.Refresh(ctx)
}

// Snapshot returns a copy of the current counts and total.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Close tears down the timer, the poll loop and the subscription. Idempotent.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		e.mu.Lock()
		if e.debounce != nil {
			e.debounce.Stop()
			e.debounce = nil
		}
		e.mu.Unlock()
		if e.unsubscribe != nil {
			e.unsubscribe()
		}
	})
}

func (e *Engine) handleMessageInsert(ev realtime.Event) {
	var msg models.Message
	if err := ev.DecodeNew(&msg); err != nil {
		e.log.Warn("unread: bad message insert payload", zap.Error(err))
		return
	}
	if msg.SenderID == e.userID {
		return // own message
	}

	if e.active != nil && e.active.Is(msg.ConversationID) {
		// user is looking at it: no badge, mark read instead
		go func() {
			_ = e.MarkAsRead(context.Background(), msg.ConversationID)
		}()
		return
	}

	e.mu.Lock()
	e.counts[msg.ConversationID]++
	e.recomputeTotalLocked()
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emit(snap)
	e.scheduleReconcile()
}

func (e *Engine) handleMessageUpdate(ev realtime.Event) {
	var oldMsg, newMsg models.Message
	if err := ev.DecodeNew(&newMsg); err != nil {
		e.log.Warn("unread: bad message update payload", zap.Error(err))
		return
	}
	if len(ev.Old) > 0 {
		if err := ev.DecodeOld(&oldMsg); err != nil {
			e.log.Warn("unread: bad message update old payload", zap.Error(err))
			return
		}
	}

	// only the unread -> read transition of a counterparty message matters
	if !newMsg.IsRead || oldMsg.IsRead || newMsg.SenderID == e.userID {
		return
	}

	e.mu.Lock()
	if n, ok := e.counts[newMsg.ConversationID]; ok {
		if n <= 1 {
			delete(e.counts, newMsg.ConversationID)
		} else {
			e.counts[newMsg.ConversationID] = n - 1
		}
		e.recomputeTotalLocked()
	}
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emit(snap)
	e.scheduleReconcile()
}

// scheduleReconcile arms the debounced authoritative refetch. A new event
// within the window resets it, so a burst settles into a single fetch.
func (e *Engine) scheduleReconcile() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.debounce != nil {
		e.debounce.Stop()
	}
	e.debounce = time.AfterFunc(e.cfg.Debounce, func() {
		select {
		case <-e.done:
			return
		default:
		}
		e.Refresh(context.Background())
	})
}

func (e *Engine) pollLoop() {
	ticker := time.NewTicker(e.cfg.PollEvery)
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

func (e *Engine) recomputeTotalLocked() {
	var total int64
	for _, n := range e.counts {
		total += n
	}
	e.total = total
}

func (e *Engine) snapshotLocked() Snapshot {
	counts := make(map[uuid.UUID]int64, len(e.counts))
	for id, n := range e.counts {
		counts[id] = n
	}
	return Snapshot{Counts: counts, Total: e.total}
}

func (e *Engine) emit(snap Snapshot) {
	if e.onChange != nil {
		e.onChange(snap)
	}
}
