// Package badge keeps the visible cart counter in line with the storefront's cart.
//
// The counter is never adjusted locally: every update is a full authoritative
// read, so concurrent mutations cannot make it drift.
package badge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/starford/haven/internal/models"
)

// State is what the badge displays.
type State struct {
	ItemCount int  `json:"item_count"`
	Visible   bool `json:"visible"`
}

// StateFor builds the state for an authoritative count.
func StateFor(count int) State {
	if count < 0 {
		count = 0
	}
	return State{ItemCount: count, Visible: count > 0}
}

// CartReader reads the authoritative cart state.
type CartReader interface {
	Cart(ctx context.Context) (models.CartState, error)
}

// Display renders badge state changes.
type Display interface {
	Render(s State)
}

// DisplayFunc adapts a function to a Display.
type DisplayFunc func(State)

func (f DisplayFunc) Render(s State) { f(s) }

// Reconciler owns the badge state.
type Reconciler struct {
	reader  CartReader
	display Display
	logger  *slog.Logger

	mu      sync.Mutex
	state   State
	issued  uint64 // refreshes started
	applied uint64 // sequence of the refresh currently displayed
}

// NewReconciler creates a Reconciler. display may be nil.
func NewReconciler(reader CartReader, display Display, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{reader: reader, display: display, logger: logger}
}

// Refresh refetches the cart and overwrites the badge with the result.
// On failure the previous state stays on display and the error is only logged.
// A response that arrives after a later-issued refresh was applied is dropped.
func (r *Reconciler) Refresh(ctx context.Context) {
	r.mu.Lock()
	r.issued++
	seq := r.issued
	r.mu.Unlock()

	cart, err := r.reader.Cart(ctx)
	if err != nil {
		r.logger.Error("badge: refresh failed", slog.String("error", err.Error()))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if seq < r.applied {
		r.logger.Debug("badge: stale refresh dropped", slog.Uint64("seq", seq), slog.Uint64("applied", r.applied))
		return
	}
	r.applied = seq
	r.state = StateFor(cart.ItemCount)
	if r.display != nil {
		r.display.Render(r.state)
	}
}

// State returns the displayed state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Reset hides the badge without a network read, e.g. after logout.
// Refreshes issued before the reset are dropped when they land.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued++
	r.applied = r.issued
	r.state = StateFor(0)
	if r.display != nil {
		r.display.Render(r.state)
	}
}
