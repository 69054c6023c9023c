// internal/realtime/bus.go
package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Handler consumes one change event.
type Handler func(Event)

// Listener multiplexes per-table/per-event handlers onto one subscription,
// like a realtime channel with several .on() registrations.
type Listener struct {
	mu       sync.RWMutex
	bindings []binding
}

type binding struct {
	table string
	typ   EventType
	fn    Handler
}

func NewListener() *Listener {
	return &Listener{}
}

// On registers fn for events of the given table and type. EventAll matches
// any type on that table.
func (l *Listener) On(table string, typ EventType, fn Handler) *Listener {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bindings = append(l.bindings, binding{table: table, typ: typ, fn: fn})
	return l
}

// Dispatch routes ev to every matching handler.
func (l *Listener) Dispatch(ev Event) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, b := range l.bindings {
		if b.table != ev.Table {
			continue
		}
		if b.typ != EventAll && b.typ != ev.Type {
			continue
		}
		b.fn(ev)
	}
}

// Publisher is the write side of the event bus.
type Publisher interface {
	Publish(ctx context.Context, channel string, ev Event) error
}

// Subscriber is the read side. Subscribe blocks until the subscription is
// confirmed, then calls onReady (the catch-up hook for events missed before
// the channel was live) and starts dispatching. The returned func tears the
// subscription down; it is safe to call more than once.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, l *Listener, onReady func()) (func(), error)
}

// Bus is both sides backed by redis pub/sub.
type Bus struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewBus(rdb *redis.Client, log *zap.Logger) *Bus {
	return &Bus{rdb: rdb, log: log}
}

func (b *Bus) Publish(ctx context.Context, channel string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel, payload).Err()
}

func (b *Bus) Subscribe(ctx context.Context, channel string, l *Listener, onReady func()) (func(), error) {
	sub := b.rdb.Subscribe(ctx, channel)

	// Wait for the subscription confirmation so callers know no further
	// events on this channel can be silently missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	if onReady != nil {
		onReady()
	}

	go func() {
		for m := range sub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				b.log.Warn("realtime: dropping malformed event",
					zap.String("channel", channel), zap.Error(err))
				continue
			}
			l.Dispatch(ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { _ = sub.Close() })
	}, nil
}
