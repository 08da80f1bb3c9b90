package bridge

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/haven/internal/apperr"
	"github.com/starford/haven/internal/badge"
	"github.com/starford/haven/internal/cart"
	"github.com/starford/haven/internal/forms"
	"github.com/starford/haven/internal/models"
	"github.com/starford/haven/internal/notify"
	"github.com/starford/haven/internal/session"
	"github.com/starford/haven/internal/storefront"
)

// Notification texts for account flows.
const (
	MsgLoggedIn   = "Logged in successfully"
	MsgLoggedOut  = "You have been logged out"
	MsgRegistered = "User registered successfully"
)

// Cart runs cart mutations.
type Cart interface {
	AddToCart(ctx context.Context, item cart.Item, btn *cart.Button) cart.Outcome
	AddExternalBookToCart(ctx context.Context, d models.ExternalBookDescriptor, btn *cart.Button) cart.Outcome
}

// Badge reconciles and reports the cart badge.
type Badge interface {
	Refresh(ctx context.Context)
	Reset()
	State() badge.State
}

// Session is the local login state.
type Session interface {
	IsAuthenticated() bool
	Username() string
	Login(ctx context.Context, auth session.Authenticator, username, password string) error
	Logout() error
}

// Accounts is the storefront's account API.
type Accounts interface {
	session.Authenticator
	Register(ctx context.Context, username, email, password string) (string, error)
}

// Handler holds the bridge route handlers.
type Handler struct {
	cart     Cart
	buttons  *cart.Buttons
	badge    Badge
	session  Session
	accounts Accounts
	notifier notify.Sender
	logger   *slog.Logger
}

// GetBadge handles GET /api/badge.
func (h *Handler) GetBadge(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.badge.State())
}

// RefreshBadge handles POST /api/badge/refresh.
func (h *Handler) RefreshBadge(w http.ResponseWriter, r *http.Request) {
	h.badge.Refresh(r.Context())
	writeJSON(w, http.StatusOK, h.badge.State())
}

// AddToCart handles POST /api/cart/add. The outcome is always reported with
// 200; the page reads its status field.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req AddToCartRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.BookID <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("book_id is required"))
		return
	}
	out := h.cart.AddToCart(r.Context(), cart.Item{
		BookID:   req.BookID,
		Quantity: req.Quantity,
		Title:    req.Title,
	}, h.buttons.Get(req.ButtonID))
	writeJSON(w, http.StatusOK, out)
}

// AddExternal handles POST /api/cart/add-external.
func (h *Handler) AddExternal(w http.ResponseWriter, r *http.Request) {
	var req AddExternalRequest
	if !readJSON(w, r, &req) {
		return
	}
	out := h.cart.AddExternalBookToCart(r.Context(), req.Book, h.buttons.Get(req.ButtonID))
	writeJSON(w, http.StatusOK, out)
}

// Search handles POST /api/forms/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var f forms.Search
	if !readJSON(w, r, &f) {
		return
	}
	if fe, ok := h.check(&f, forms.MsgSearchEmpty, notify.KindWarning); !ok {
		writeJSON(w, http.StatusUnprocessableEntity, ValidationResponse{Error: forms.MsgSearchEmpty, Errors: fe})
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Location: f.Location()})
}

// Login handles POST /api/forms/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var f forms.Login
	if !readJSON(w, r, &f) {
		return
	}
	if fe, ok := h.check(&f, forms.MsgFormInvalid, notify.KindError); !ok {
		writeJSON(w, http.StatusUnprocessableEntity, ValidationResponse{Error: forms.MsgFormInvalid, Errors: fe})
		return
	}

	if err := h.session.Login(r.Context(), h.accounts, f.Username, f.Password); err != nil {
		status, msg := h.accountFailure("login", err)
		if status == http.StatusBadRequest {
			status = http.StatusUnauthorized
		}
		h.notifier.Notify(msg, notify.KindError)
		writeJSON(w, status, errorBody(msg))
		return
	}

	h.notifier.Notify(MsgLoggedIn, notify.KindSuccess)
	h.badge.Refresh(r.Context())
	writeJSON(w, http.StatusOK, SessionResponse{Authenticated: true, Username: h.session.Username()})
}

// Register handles POST /api/forms/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var f forms.Register
	if !readJSON(w, r, &f) {
		return
	}
	if fe, ok := h.check(&f, forms.MsgFormInvalid, notify.KindError); !ok {
		writeJSON(w, http.StatusUnprocessableEntity, ValidationResponse{Error: forms.MsgFormInvalid, Errors: fe})
		return
	}

	msg, err := h.accounts.Register(r.Context(), f.Username, f.Email, f.Password)
	if err != nil {
		status, text := h.accountFailure("register", err)
		h.notifier.Notify(text, notify.KindError)
		writeJSON(w, status, errorBody(text))
		return
	}
	if msg == "" {
		msg = MsgRegistered
	}
	h.notifier.Notify(msg, notify.KindSuccess)
	writeJSON(w, http.StatusCreated, MessageResponse{Message: msg})
}

// Logout handles POST /api/session/logout.
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	if err := h.session.Logout(); err != nil {
		h.logger.Error("logout failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.notifier.Notify(MsgLoggedOut, notify.KindInfo)
	h.badge.Reset()
	writeJSON(w, http.StatusOK, SessionResponse{Authenticated: false})
}

// GetSession handles GET /api/session.
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SessionResponse{
		Authenticated: h.session.IsAuthenticated(),
		Username:      h.session.Username(),
	})
}

// onConnect refreshes the badge when an authenticated page opens the stream.
func (h *Handler) onConnect(r *http.Request) {
	if h.session.IsAuthenticated() {
		h.badge.Refresh(r.Context())
	}
}

// check validates f. On failure it raises msg and returns the field errors.
func (h *Handler) check(f forms.Form, msg string, kind notify.Kind) (forms.FieldErrors, bool) {
	err := forms.Check(f)
	if err == nil {
		return nil, true
	}
	var fe forms.FieldErrors
	if !errors.As(err, &fe) {
		fe = forms.FieldErrors{"form": err.Error()}
	}
	h.notifier.Notify(msg, kind)
	return fe, false
}

// accountFailure maps a login or register error to a status and a user message.
func (h *Handler) accountFailure(op string, err error) (int, string) {
	if apiErr, ok := storefront.AsAPIError(err); ok && apiErr.Message != "" {
		status := http.StatusBadRequest
		if apiErr.Status == http.StatusUnauthorized {
			status = http.StatusUnauthorized
		}
		return status, apiErr.Message
	}
	h.logger.Error(op+" failed", slog.String("error", err.Error()))
	if errors.Is(err, apperr.ErrTransport) {
		return http.StatusBadGateway, cart.MsgGenericError
	}
	return http.StatusInternalServerError, cart.MsgGenericError
}
