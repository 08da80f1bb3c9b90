// Package cart issues add-to-cart mutations behind the auth gate and per-button
// busy locks, then reports the outcome and triggers a badge refresh on success.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/haven/internal/apperr"
	"github.com/starford/haven/internal/catalog"
	"github.com/starford/haven/internal/models"
	"github.com/starford/haven/internal/notify"
	"github.com/starford/haven/internal/session"
	"github.com/starford/haven/internal/storefront"
)

// User-facing texts.
const (
	DefaultTitle     = "Book"
	MsgAddFailed     = "Failed to add to cart"
	MsgGenericError  = "An error occurred. Please try again."
	MsgInvalidAmount = "Quantity must be a positive number"
)

// Status classifies an Outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	// StatusSkipped: the button already had a mutation in flight.
	StatusSkipped Status = "skipped"
	// StatusBlocked: the auth gate refused; the gate already notified.
	StatusBlocked Status = "blocked"
)

// Outcome is the result of one triggered cart action.
type Outcome struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	BookID  int64  `json:"book_id,omitempty"`
}

// Succeeded reports whether the mutation was accepted.
func (o Outcome) Succeeded() bool { return o.Status == StatusSuccess }

// Err maps a blocked or failed outcome onto the error taxonomy, for callers
// that report through error returns. Success and skipped yield nil.
func (o Outcome) Err() error {
	switch o.Status {
	case StatusBlocked:
		return apperr.ErrAuthRequired
	case StatusFailure:
		if o.Message == "" {
			return apperr.ErrMutation
		}
		return fmt.Errorf("%w: %s", apperr.ErrMutation, o.Message)
	default:
		return nil
	}
}

// Item is what to add.
type Item struct {
	BookID   int64
	Quantity int    // 0 means 1
	Title    string // used in the default success message
}

// Gate is the auth check performed before each mutation.
type Gate interface {
	RequireAuthOrRedirect(ctx context.Context) session.Decision
}

// Adder issues the cart-add request.
type Adder interface {
	AddToCart(ctx context.Context, item models.CartItemRequest) (storefront.AddResponse, error)
}

// Resolver turns an external descriptor into a local catalog id.
type Resolver interface {
	ResolveLocalID(ctx context.Context, d models.ExternalBookDescriptor) (int64, error)
}

// Refresher reconciles the badge after a successful mutation.
type Refresher interface {
	Refresh(ctx context.Context)
}

// Mutator runs the gate → resolve → mutate → notify → refresh pipeline.
type Mutator struct {
	gate      Gate
	adder     Adder
	resolver  Resolver
	notifier  notify.Sender
	refresher Refresher
	logger    *slog.Logger
}

// Deps groups the Mutator collaborators.
type Deps struct {
	Gate      Gate
	Adder     Adder
	Resolver  Resolver
	Notifier  notify.Sender
	Refresher Refresher
	Logger    *slog.Logger
}

// NewMutator creates a Mutator.
func NewMutator(d Deps) *Mutator {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Mutator{
		gate:      d.Gate,
		adder:     d.Adder,
		resolver:  d.Resolver,
		notifier:  d.Notifier,
		refresher: d.Refresher,
		logger:    logger,
	}
}

// AddToCart adds a catalog book. btn may be nil.
func (m *Mutator) AddToCart(ctx context.Context, item Item, btn *Button) Outcome {
	return m.guarded(ctx, btn, func() Outcome {
		return m.add(ctx, item)
	})
}

// AddExternalBookToCart saves d to the catalog, then adds it. btn may be nil.
func (m *Mutator) AddExternalBookToCart(ctx context.Context, d models.ExternalBookDescriptor, btn *Button) Outcome {
	return m.guarded(ctx, btn, func() Outcome {
		id, err := m.resolver.ResolveLocalID(ctx, d)
		if err != nil {
			reason := catalog.ReasonSaveFailed
			var resErr *catalog.ResolutionError
			if errors.As(err, &resErr) {
				reason = resErr.Reason
			}
			if errors.Is(err, apperr.ErrTransport) {
				reason = MsgGenericError
			}
			m.logger.Warn("cart: resolve failed", slog.String("title", d.Title), slog.String("error", err.Error()))
			return m.fail(reason)
		}
		return m.add(ctx, Item{BookID: id, Quantity: 1, Title: d.Title})
	})
}

// guarded applies the busy lock and the auth gate around run. The lock is
// released on every path out, including a panic in a collaborator.
func (m *Mutator) guarded(ctx context.Context, btn *Button, run func() Outcome) (out Outcome) {
	if btn != nil {
		if !btn.acquire() {
			return Outcome{Status: StatusSkipped}
		}
		defer btn.release()
	}

	if m.gate.RequireAuthOrRedirect(ctx) == session.Blocked {
		return Outcome{Status: StatusBlocked, Message: session.LoginPrompt}
	}

	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("cart: mutation panicked", slog.String("panic", fmt.Sprint(p)))
			out = m.fail(MsgGenericError)
		}
	}()
	return run()
}

func (m *Mutator) add(ctx context.Context, item Item) Outcome {
	qty := item.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return m.fail(MsgInvalidAmount)
	}

	resp, err := m.adder.AddToCart(ctx, models.CartItemRequest{BookID: item.BookID, Quantity: qty})
	if err != nil {
		msg := MsgGenericError
		if apiErr, ok := storefront.AsAPIError(err); ok {
			msg = MsgAddFailed
			if apiErr.Message != "" {
				msg = apiErr.Message
			}
		}
		m.logger.Warn("cart: add failed",
			slog.Int64("book_id", item.BookID), slog.String("error", err.Error()))
		out := m.fail(msg)
		out.BookID = item.BookID
		return out
	}

	msg := resp.Message
	if msg == "" {
		title := item.Title
		if title == "" {
			title = DefaultTitle
		}
		msg = title + " added to cart!"
	}
	m.notify(msg, notify.KindSuccess)
	if m.refresher != nil {
		m.refresher.Refresh(ctx)
	}
	return Outcome{Status: StatusSuccess, Message: msg, BookID: item.BookID}
}

func (m *Mutator) fail(msg string) Outcome {
	m.notify(msg, notify.KindError)
	return Outcome{Status: StatusFailure, Message: msg}
}

func (m *Mutator) notify(msg string, kind notify.Kind) {
	if m.notifier != nil {
		m.notifier.Notify(msg, kind)
	}
}
