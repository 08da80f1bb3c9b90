package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/starford/haven/internal"
	"github.com/starford/haven/internal/apperr"
	"github.com/starford/haven/internal/badge"
	"github.com/starford/haven/internal/cart"
	"github.com/starford/haven/internal/forms"
	"github.com/starford/haven/internal/mcpserver"
	"github.com/starford/haven/internal/models"
	"github.com/starford/haven/internal/notify"
	"github.com/starford/haven/internal/storefront"
)

// withCore runs fn against a behavior layer that renders to the terminal.
// Logs go to stderr so stdout stays readable.
func withCore(ctx context.Context, cmd *cli.Command, surface internal.Surface, fn func(ctx context.Context, core *internal.Core) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	core, err := internal.NewCore(cfg, surface, logger)
	if err != nil {
		return err
	}
	defer core.Close()
	return fn(ctx, core)
}

func terminal() internal.Surface {
	return internal.Surface{Renderer: notify.NewTerminal(os.Stdout)}
}

// checkForm validates f and prints each rule violation.
func checkForm(core *internal.Core, f forms.Form) error {
	err := forms.Check(f)
	if err == nil {
		return nil
	}
	core.Notifier.Notify(forms.MsgFormInvalid, notify.KindError)
	var fe forms.FieldErrors
	if errors.As(err, &fe) {
		for field, msg := range fe {
			fmt.Fprintf(os.Stdout, "  %s: %s\n", field, msg)
		}
	}
	return err
}

func accountError(core *internal.Core, err error) error {
	msg := cart.MsgGenericError
	if apiErr, ok := storefront.AsAPIError(err); ok && apiErr.Message != "" {
		msg = apiErr.Message
	}
	core.Notifier.Notify(msg, notify.KindError)
	return err
}

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in to the storefront and store the session token",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Account username"},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Account password", Sources: cli.EnvVars("HAVEN_PASSWORD")},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withCore(ctx, cmd, terminal(), func(ctx context.Context, core *internal.Core) error {
				f := forms.Login{Username: cmd.String("username"), Password: cmd.String("password")}
				if err := checkForm(core, &f); err != nil {
					return err
				}
				if err := core.Session.Login(ctx, core.Client, f.Username, f.Password); err != nil {
					return accountError(core, err)
				}
				core.Notifier.Notify("Logged in as "+f.Username, notify.KindSuccess)
				return nil
			})
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Forget the stored session token",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withCore(ctx, cmd, terminal(), func(_ context.Context, core *internal.Core) error {
				if err := core.Session.Logout(); err != nil {
					return err
				}
				core.Notifier.Notify("You have been logged out", notify.KindInfo)
				return nil
			})
		},
	}
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Create a storefront account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Account username"},
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Account email"},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Account password", Sources: cli.EnvVars("HAVEN_PASSWORD")},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withCore(ctx, cmd, terminal(), func(ctx context.Context, core *internal.Core) error {
				f := forms.Register{
					Username: cmd.String("username"),
					Email:    cmd.String("email"),
					Password: cmd.String("password"),
				}
				if err := checkForm(core, &f); err != nil {
					return err
				}
				msg, err := core.Client.Register(ctx, f.Username, f.Email, f.Password)
				if err != nil {
					return accountError(core, err)
				}
				if msg == "" {
					msg = "User registered successfully"
				}
				core.Notifier.Notify(msg, notify.KindSuccess)
				return nil
			})
		},
	}
}

// reportOutcome turns a blocked or failed outcome into a command error. The
// notification has already been printed.
func reportOutcome(out cart.Outcome) error {
	err := out.Err()
	if errors.Is(err, apperr.ErrAuthRequired) {
		fmt.Fprintln(os.Stdout, "Run `haven login` to sign in.")
	}
	if err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}
	return nil
}

func badgeSurface() internal.Surface {
	s := terminal()
	s.Display = badge.DisplayFunc(func(st badge.State) {
		color.New(color.Bold).Fprintf(os.Stdout, "🛒 %d\n", st.ItemCount)
	})
	return s
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Add a catalog book to the cart",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "book-id", Aliases: []string{"b"}, Usage: "Local catalog id", Required: true},
			&cli.IntFlag{Name: "quantity", Aliases: []string{"q"}, Usage: "Copies to add", Value: 1},
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Title for the confirmation message"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withCore(ctx, cmd, badgeSurface(), func(ctx context.Context, core *internal.Core) error {
				out := core.Cart.AddToCart(ctx, cart.Item{
					BookID:   int64(cmd.Int("book-id")),
					Quantity: int(cmd.Int("quantity")),
					Title:    cmd.String("title"),
				}, nil)
				return reportOutcome(out)
			})
		},
	}
}

func addExternalCommand() *cli.Command {
	return &cli.Command{
		Name:  "add-external",
		Usage: "Save an external (Google Books) result to the catalog and add it to the cart",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "json", Usage: "Full descriptor as JSON; overrides the other flags"},
			&cli.StringFlag{Name: "google-id", Usage: "Google Books volume id"},
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Book title"},
			&cli.StringSliceFlag{Name: "author", Aliases: []string{"a"}, Usage: "Author (repeatable)"},
			&cli.StringFlag{Name: "isbn", Usage: "ISBN-13"},
			&cli.StringFlag{Name: "published", Usage: "Published date"},
			&cli.StringFlag{Name: "thumbnail", Usage: "Cover image URL"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			d, err := descriptorFrom(cmd)
			if err != nil {
				return err
			}
			return withCore(ctx, cmd, badgeSurface(), func(ctx context.Context, core *internal.Core) error {
				return reportOutcome(core.Cart.AddExternalBookToCart(ctx, d, nil))
			})
		},
	}
}

func descriptorFrom(cmd *cli.Command) (models.ExternalBookDescriptor, error) {
	var d models.ExternalBookDescriptor
	if raw := cmd.String("json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return d, fmt.Errorf("parse --json: %w", err)
		}
		return d, nil
	}
	d = models.ExternalBookDescriptor{
		GoogleID:      cmd.String("google-id"),
		Title:         cmd.String("title"),
		Authors:       cmd.StringSlice("author"),
		PublishedDate: cmd.String("published"),
		Thumbnail:     cmd.String("thumbnail"),
	}
	if isbn := strings.TrimSpace(cmd.String("isbn")); isbn != "" {
		d.IndustryIdentifiers = []models.Identifier{{Type: "ISBN_13", Identifier: isbn}}
	}
	return d, nil
}

func badgeCommand() *cli.Command {
	return &cli.Command{
		Name:  "badge",
		Usage: "Reconcile and print the cart badge",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withCore(ctx, cmd, badgeSurface(), func(ctx context.Context, core *internal.Core) error {
				if !core.Session.IsAuthenticated() {
					fmt.Fprintln(os.Stdout, "Not logged in.")
					return nil
				}
				core.Badge.Refresh(ctx)
				return nil
			})
		},
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the cart tools over MCP stdio",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			// stdout carries the protocol: no terminal renderer.
			return withCore(ctx, cmd, internal.Surface{}, func(_ context.Context, core *internal.Core) error {
				return mcpserver.New(core.Cart, core.Badge, core.Buttons).ServeStdio()
			})
		},
	}
}
