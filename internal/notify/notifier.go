// Package notify renders transient, typed user notifications.
//
// At most one entry is visible at a time: each new entry evicts the previous
// one, and every entry dismisses itself after a fixed display duration.
package notify

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDisplayDuration is how long an entry stays visible.
const DefaultDisplayDuration = 3 * time.Second

// Kind classifies a notification.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// ParseKind maps s onto a Kind, defaulting to KindInfo.
func ParseKind(s string) Kind {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSuccess, KindWarning, KindError:
		return k
	default:
		return KindInfo
	}
}

// Entry is a single notification.
type Entry struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// Renderer displays and removes entries.
type Renderer interface {
	Show(e Entry)
	Dismiss(e Entry)
}

// Sender is the narrow interface consumed by components that raise notifications.
type Sender interface {
	Notify(message string, kind Kind)
}

// Notifier owns the single visible notification slot.
type Notifier struct {
	renderer Renderer
	duration time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	current *Entry
	timer   *time.Timer
}

// New creates a Notifier. A non-positive duration selects DefaultDisplayDuration.
func New(r Renderer, duration time.Duration, logger *slog.Logger) *Notifier {
	if duration <= 0 {
		duration = DefaultDisplayDuration
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{renderer: r, duration: duration, logger: logger}
}

// Notify evicts the visible entry, renders a new one and schedules its dismissal.
func (n *Notifier) Notify(message string, kind Kind) {
	if kind == "" {
		kind = KindInfo
	}
	e := Entry{
		ID:        uuid.NewString(),
		Message:   message,
		Kind:      kind,
		CreatedAt: time.Now(),
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.current != nil {
		n.timer.Stop()
		n.dismiss(*n.current)
	}
	n.current = &e
	n.show(e)
	n.timer = time.AfterFunc(n.duration, func() { n.expire(e.ID) })
}

// Current returns the visible entry, if any.
func (n *Notifier) Current() (Entry, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return Entry{}, false
	}
	return *n.current, true
}

// Close dismisses the visible entry and stops its timer.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return
	}
	n.timer.Stop()
	n.dismiss(*n.current)
	n.current = nil
}

// expire dismisses the entry with id unless a newer one replaced it.
func (n *Notifier) expire(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil || n.current.ID != id {
		return
	}
	n.dismiss(*n.current)
	n.current = nil
}

func (n *Notifier) show(e Entry) {
	defer n.recoverRender("show")
	if n.renderer != nil {
		n.renderer.Show(e)
	}
}

func (n *Notifier) dismiss(e Entry) {
	defer n.recoverRender("dismiss")
	if n.renderer != nil {
		n.renderer.Dismiss(e)
	}
}

// Rendering must never take down the caller.
func (n *Notifier) recoverRender(op string) {
	if r := recover(); r != nil {
		n.logger.Error("notify: renderer panic", slog.String("op", op), slog.Any("panic", r))
	}
}
