package bridge

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/starford/haven/internal/cart"
	"github.com/starford/haven/internal/notify"
	"github.com/starford/haven/internal/sse"
)

// Deps groups what the bridge routes drive.
type Deps struct {
	Cart     Cart
	Buttons  *cart.Buttons
	Badge    Badge
	Session  Session
	Accounts Accounts
	Notifier notify.Sender
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events *sse.Broker
	Logger *slog.Logger
}

// NewRouter creates a chi router with all bridge routes, to be mounted at /api.
// authEnabled controls whether Bearer token auth is enforced.
func NewRouter(d Deps, authEnabled bool, token string) chi.Router {
	h := &Handler{
		cart:     d.Cart,
		buttons:  d.Buttons,
		badge:    d.Badge,
		session:  d.Session,
		accounts: d.Accounts,
		notifier: d.Notifier,
		logger:   d.Logger,
	}
	if h.buttons == nil {
		h.buttons = cart.NewButtons()
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/badge", h.GetBadge)
	r.Post("/badge/refresh", h.RefreshBadge)

	r.Post("/cart/add", h.AddToCart)
	r.Post("/cart/add-external", h.AddExternal)

	r.Route("/forms", func(r chi.Router) {
		r.Post("/search", h.Search)
		r.Post("/login", h.Login)
		r.Post("/register", h.Register)
	})

	r.Get("/session", h.GetSession)
	r.Post("/session/logout", h.Logout)

	if d.Events != nil {
		r.Get("/events", d.Events.Handler(h.onConnect))
	}

	return r
}
