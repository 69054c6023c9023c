package unread

import (
	"sync"

	"github.com/google/uuid"
)

// Active tracks which single conversation is currently foregrounded in the
// chat UI. The aggregation engine reads it to decide increment-vs-mark-read
// on incoming message events.
type Active struct {
	mu sync.Mutex
	id uuid.UUID
	ok bool
}

func NewActive() *Active {
	return &Active{}
}

// Activate marks id as the foregrounded conversation and returns the release
// func. Callers must defer the release so the active id is cleared on every
// exit path, not just the clean one. Releasing is idempotent and only clears
// the id if it is still the one this call set (a later Activate wins).
func (a *Active) Activate(id uuid.UUID) (release func()) {
	a.mu.Lock()
	a.id = id
	a.ok = true
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			if a.ok && a.id == id {
				a.ok = false
				a.id = uuid.Nil
			}
			a.mu.Unlock()
		})
	}
}

// Get returns the active conversation id, if any.
func (a *Active) Get() (uuid.UUID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.id, a.ok
}

// Is reports whether id is currently active.
func (a *Active) Is(id uuid.UUID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ok && a.id == id
}
