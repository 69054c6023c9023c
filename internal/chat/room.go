package chat

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/yudapramadita/lokapasar/internal/models"
	"github.com/yudapramadita/lokapasar/internal/realtime"
)

// Room ties the message view of one open conversation to the user's realtime
// feed. onChange fires after every list mutation; the read-state coordinator
// hangs its needs-read check off it, which closes the race where a message
// lands after the room was marked read but while it is still open.
type Room struct {
	ConvID uuid.UUID
	View   *View

	unsubscribe func()
	closeOnce   sync.Once
}

// OpenRoom builds the view and subscribes it to the user's change feed.
// Callers seed it with a fetched message list via View.MergeServer and must
// Close it on leave.
func OpenRoom(ctx context.Context, bus realtime.Subscriber, convID, userID uuid.UUID, onChange func(*View)) (*Room, error) {
	v := NewView(convID, userID)
	r := &Room{ConvID: convID, View: v}

	l := realtime.NewListener().
		On("messages", realtime.EventInsert, func(ev realtime.Event) {
			var msg models.Message
			if err := ev.DecodeNew(&msg); err != nil || msg.ConversationID != convID {
				return
			}
			v.AppendConfirmed(msg)
			onChange(v)
		}).
		On("messages", realtime.EventUpdate, func(ev realtime.Event) {
			var msg models.Message
			if err := ev.DecodeNew(&msg); err != nil || msg.ConversationID != convID {
				return
			}
			v.UpdateMessage(msg)
			onChange(v)
		})

	unsub, err := bus.Subscribe(ctx, realtime.UserChannel(userID), l, nil)
	if err != nil {
		return nil, err
	}
	r.unsubscribe = unsub
	return r, nil
}

// Close tears the feed subscription down. Idempotent.
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		if r.unsubscribe != nil {
			r.unsubscribe()
		}
	})
}
