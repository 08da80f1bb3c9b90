package internal

import (
	"fmt"
	"log/slog"

	"github.com/starford/haven/internal/badge"
	"github.com/starford/haven/internal/cart"
	"github.com/starford/haven/internal/catalog"
	"github.com/starford/haven/internal/notify"
	"github.com/starford/haven/internal/session"
	"github.com/starford/haven/internal/storage"
	"github.com/starford/haven/internal/storefront"
)

// Core is the behavior layer shared by every front end: the bridge server,
// the CLI commands and the MCP tool server.
type Core struct {
	Session  *session.TokenSession
	Client   *storefront.Client
	Notifier *notify.Notifier
	Gate     *session.Gate
	Resolver *catalog.Resolver
	Badge    *badge.Reconciler
	Cart     *cart.Mutator
	Buttons  *cart.Buttons
}

// Surface is where a front end shows the behavior layer's effects.
type Surface struct {
	Renderer  notify.Renderer
	Navigator session.Navigator
	Display   badge.Display
}

// NewCore wires the behavior layer from cfg.
func NewCore(cfg *Config, surface Surface, logger *slog.Logger) (*Core, error) {
	store, err := storage.NewFS(cfg.Session.StateDir)
	if err != nil {
		return nil, fmt.Errorf("init state dir: %w", err)
	}
	sess, err := session.NewTokenSession(store, logger)
	if err != nil {
		return nil, fmt.Errorf("init session: %w", err)
	}

	client := storefront.NewClient(storefront.Options{
		BaseURL:   cfg.Storefront.BaseURL,
		Timeout:   cfg.Storefront.Timeout,
		RateLimit: cfg.Storefront.RateLimit,
		Burst:     cfg.Storefront.Burst,
		Tokens:    sess,
	})

	nav := surface.Navigator
	if nav == nil {
		nav = session.NavigatorFunc(func(path string) {
			logger.Info("navigation requested", slog.String("location", path))
		})
	}

	notifier := notify.New(surface.Renderer, cfg.Notify.DisplayDuration, logger)
	gate := session.NewGate(sess, notifier, nav,
		session.WithLoginPath(cfg.Session.LoginPath),
		session.WithRedirectDelay(cfg.Session.RedirectDelay),
	)
	resolver := catalog.NewResolver(client, logger)
	reconciler := badge.NewReconciler(client, surface.Display, logger)
	mutator := cart.NewMutator(cart.Deps{
		Gate:      gate,
		Adder:     client,
		Resolver:  resolver,
		Notifier:  notifier,
		Refresher: reconciler,
		Logger:    logger,
	})

	return &Core{
		Session:  sess,
		Client:   client,
		Notifier: notifier,
		Gate:     gate,
		Resolver: resolver,
		Badge:    reconciler,
		Cart:     mutator,
		Buttons:  cart.NewButtons(),
	}, nil
}

// Close dismisses any visible notification.
func (c *Core) Close() {
	c.Notifier.Close()
}
