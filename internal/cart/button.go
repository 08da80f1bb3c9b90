package cart

import (
	"sync"
	"sync/atomic"
	"time"
)

// Button is the busy lock of one add-to-cart trigger.
// At most one mutation per button is in flight; the lock is taken when a
// trigger starts and released on every exit path.
type Button struct {
	id       string
	busy     atomic.Bool
	disabled atomic.Bool
}

// NewButton creates an idle button.
func NewButton(id string) *Button {
	return &Button{id: id}
}

// ID returns the button identifier.
func (b *Button) ID() string { return b.id }

// Busy reports whether a mutation started from this button is in flight.
func (b *Button) Busy() bool { return b.busy.Load() }

// Disabled reports whether the button is shown as disabled.
func (b *Button) Disabled() bool { return b.disabled.Load() }

// acquire takes the lock; false means another mutation already holds it.
func (b *Button) acquire() bool {
	if !b.busy.CompareAndSwap(false, true) {
		return false
	}
	b.disabled.Store(true)
	return true
}

func (b *Button) release() {
	b.disabled.Store(false)
	b.busy.Store(false)
}

// Registry bounds. Once MaxButtons ids are known, buttons left untouched for
// ButtonIdleAfter are dropped before a new one is added.
const (
	MaxButtons      = 1024
	ButtonIdleAfter = 10 * time.Minute
)

// Buttons hands out one Button per id.
type Buttons struct {
	mu    sync.Mutex
	byID  map[string]*slot
	limit int
	idle  time.Duration
	now   func() time.Time
}

type slot struct {
	button *Button
	seen   time.Time
}

// NewButtons creates an empty registry.
func NewButtons() *Buttons {
	return &Buttons{
		byID:  make(map[string]*slot),
		limit: MaxButtons,
		idle:  ButtonIdleAfter,
		now:   time.Now,
	}
}

// Get returns the button for id, creating it on first use.
// An empty id returns nil: the trigger has no lock.
func (r *Buttons) Get(id string) *Button {
	if id == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if s, ok := r.byID[id]; ok {
		s.seen = now
		return s.button
	}
	if len(r.byID) >= r.limit {
		r.evict(now)
	}
	b := NewButton(id)
	r.byID[id] = &slot{button: b, seen: now}
	return b
}

// evict drops idle buttons. Busy buttons are never dropped. If every button
// was touched recently, the least recently used idle one goes.
func (r *Buttons) evict(now time.Time) {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, s := range r.byID {
		if s.button.Busy() {
			continue
		}
		if now.Sub(s.seen) >= r.idle {
			delete(r.byID, id)
			continue
		}
		if oldestID == "" || s.seen.Before(oldest) {
			oldestID, oldest = id, s.seen
		}
	}
	if len(r.byID) >= r.limit && oldestID != "" {
		delete(r.byID, oldestID)
	}
}

// Len returns the number of known buttons.
func (r *Buttons) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
