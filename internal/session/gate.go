package session

import (
	"context"
	"time"

	"github.com/starford/haven/internal/notify"
)

// Gate defaults.
const (
	DefaultLoginPath     = "/login"
	DefaultRedirectDelay = 1500 * time.Millisecond
	LoginPrompt          = "Please log in to add items to cart"
)

// Decision is the outcome of an auth check.
type Decision int

const (
	Proceed Decision = iota
	Blocked
)

func (d Decision) String() string {
	if d == Blocked {
		return "blocked"
	}
	return "proceed"
}

// Navigator moves the UI to another location.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to a Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Gate enforces the redirect-on-not-authenticated policy.
// It is consulted on every gated action; nothing is cached.
type Gate struct {
	session   Context
	notifier  notify.Sender
	navigator Navigator
	loginPath string
	delay     time.Duration
}

// GateOption customizes a Gate.
type GateOption func(*Gate)

// WithLoginPath overrides the redirect target.
func WithLoginPath(p string) GateOption {
	return func(g *Gate) {
		if p != "" {
			g.loginPath = p
		}
	}
}

// WithRedirectDelay overrides the pause between the prompt and the redirect.
func WithRedirectDelay(d time.Duration) GateOption {
	return func(g *Gate) {
		if d >= 0 {
			g.delay = d
		}
	}
}

// NewGate creates a Gate.
func NewGate(sess Context, notifier notify.Sender, nav Navigator, opts ...GateOption) *Gate {
	g := &Gate{
		session:   sess,
		notifier:  notifier,
		navigator: nav,
		loginPath: DefaultLoginPath,
		delay:     DefaultRedirectDelay,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsAuthenticated reports the session state.
func (g *Gate) IsAuthenticated() bool {
	return g.session != nil && g.session.IsAuthenticated()
}

// RequireAuthOrRedirect returns Proceed for an authenticated session. Otherwise it
// raises the login prompt, schedules navigation to the login path and returns Blocked.
func (g *Gate) RequireAuthOrRedirect(_ context.Context) Decision {
	if g.IsAuthenticated() {
		return Proceed
	}
	if g.notifier != nil {
		g.notifier.Notify(LoginPrompt, notify.KindError)
	}
	if g.navigator != nil {
		path := g.loginPath
		time.AfterFunc(g.delay, func() { g.navigator.Navigate(path) })
	}
	return Blocked
}
