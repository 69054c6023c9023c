// Package chat holds the room message view: the merged list of
// server-confirmed and locally-pending messages a chat room renders.
package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yudapramadita/lokapasar/internal/models"
)

// Status tags a locally-pending entry; confirmed entries carry none.
type Status string

const StatusSending Status = "sending"

// pendingMatchWindow bounds how far a server timestamp may drift from the
// local send time and still be treated as the confirmation of a pending entry.
const pendingMatchWindow = 2 * time.Minute

// Entry is one renderable message. Pending entries carry a temporary numeric
// id until the server row replaces them.
type Entry struct {
	LocalID int64          `json:"local_id,omitempty"`
	Message models.Message `json:"message"`
	Status  Status         `json:"status,omitempty"`
}

// View is the message list of one open chat room. A message is never
// in-flight twice: merging de-duplicates by server id, and a pending entry is
// replaced by its confirmed version instead of coexisting with it.
type View struct {
	mu        sync.Mutex
	convID    uuid.UUID
	userID    uuid.UUID
	entries   []Entry
	nextLocal int64
}

func NewView(convID, userID uuid.UUID) *View {
	return &View{convID: convID, userID: userID, nextLocal: 1}
}

// AppendPending adds a just-sent message with a temporary id and sending
// status, before server confirmation.
func (v *View) AppendPending(text string) Entry {
	v.mu.Lock()
	defer v.mu.Unlock()

	e := Entry{
		LocalID: v.nextLocal,
		Status:  StatusSending,
		Message: models.Message{
			ConversationID: v.convID,
			SenderID:       v.userID,
			Text:           text,
			CreatedAt:      time.Now(),
		},
	}
	v.nextLocal++
	v.entries = append(v.entries, e)
	return e
}

// Confirm replaces the pending entry localID with the saved server row.
func (v *View) Confirm(localID int64, msg models.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range v.entries {
		if v.entries[i].LocalID == localID {
			v.entries[i] = Entry{Message: msg}
			break
		}
	}
	v.sortLocked()
}

// MergeServer merges a freshly fetched message list into the view:
// de-duplicated by server id, pendings replaced by their now-confirmed
// versions, display order re-sorted by created_at (arrival order is never
// trusted).
func (v *View) MergeServer(fetched []models.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	seen := make(map[uuid.UUID]bool, len(fetched))
	merged := make([]Entry, 0, len(fetched)+4)
	for _, msg := range fetched {
		if msg.ID != uuid.Nil && seen[msg.ID] {
			continue
		}
		seen[msg.ID] = true
		merged = append(merged, Entry{Message: msg})
	}

	// keep pendings the fetch did not confirm yet
	for _, e := range v.entries {
		if e.Status != StatusSending {
			continue
		}
		if v.confirmedLocked(fetched, e) {
			continue
		}
		merged = append(merged, e)
	}

	v.entries = merged
	v.sortLocked()
}

// AppendConfirmed adds a server-delivered message (realtime push) if not
// already present.
func (v *View) AppendConfirmed(msg models.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, e := range v.entries {
		if e.Message.ID == msg.ID && msg.ID != uuid.Nil {
			return
		}
	}
	v.entries = append(v.entries, Entry{Message: msg})
	v.sortLocked()
}

// UpdateMessage replaces the stored copy of a server row already in the list;
// read-state flips arrive this way. Unknown ids are ignored.
func (v *View) UpdateMessage(msg models.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if msg.ID == uuid.Nil {
		return
	}
	for i := range v.entries {
		if v.entries[i].Message.ID == msg.ID {
			v.entries[i] = Entry{Message: msg}
			return
		}
	}
}

// Entries returns a copy of the current list.
func (v *View) Entries() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Entry, len(v.entries))
	copy(out, v.entries)
	return out
}

// NeedsRead reports whether the last message is an unread counterparty
// message. The coordinator uses this after every list change to close the
// race where a message lands while the room is already active but before the
// realtime listener's active-conversation branch fires.
func (v *View) NeedsRead() bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.entries) == 0 {
		return false
	}
	last := v.entries[len(v.entries)-1]
	return last.Message.SenderID != v.userID && !last.Message.IsRead
}

func (v *View) confirmedLocked(fetched []models.Message, pending Entry) bool {
	for _, msg := range fetched {
		if msg.SenderID != pending.Message.SenderID || msg.Text != pending.Message.Text {
			continue
		}
		d := msg.CreatedAt.Sub(pending.Message.CreatedAt)
		if d < 0 {
			d = -d
		}
		if d <= pendingMatchWindow {
			return true
		}
	}
	return false
}

func (v *View) sortLocked() {
	sort.SliceStable(v.entries, func(i, j int) bool {
		return v.entries[i].Message.CreatedAt.Before(v.entries[j].Message.CreatedAt)
	})
}
