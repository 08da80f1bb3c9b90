package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/haven/internal/badge"
	"github.com/starford/haven/internal/cart"
	"github.com/starford/haven/internal/catalog"
	"github.com/starford/haven/internal/notify"
	"github.com/starford/haven/internal/session"
	"github.com/starford/haven/internal/sse"
	"github.com/starford/haven/internal/storefront"
	"github.com/starford/haven/internal/testutil"
)

type shownLog struct {
	mu      sync.Mutex
	entries []notify.Entry
}

func (l *shownLog) Show(e notify.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

func (l *shownLog) Dismiss(notify.Entry) {}

func (l *shownLog) last() (notify.Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return notify.Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

type testEnv struct {
	sf      *testutil.Storefront
	sess    *session.TokenSession
	shown   *shownLog
	broker  *sse.Broker
	router  http.Handler
	buttons *cart.Buttons
}

// newTestEnv wires the full behavior layer against a fake storefront.
// A non-empty token logs the session in before the router is built.
func newTestEnv(t *testing.T, sessionToken string, authEnabled bool, bridgeToken string) *testEnv {
	t.Helper()
	logger := testutil.QuietLogger()
	sf := testutil.NewStorefront(t)

	sess, err := session.NewTokenSession(testutil.StateDir(t), logger)
	if err != nil {
		t.Fatalf("NewTokenSession: %v", err)
	}
	if sessionToken != "" {
		sf.On(http.MethodPost, storefront.PathLogin, testutil.Reply{Body: `{"access_token":"` + sessionToken + `"}`})
		client := storefront.NewClient(storefront.Options{BaseURL: sf.URL})
		if err := sess.Login(context.Background(), client, "alice", "secret1"); err != nil {
			t.Fatalf("Login: %v", err)
		}
	}

	client := storefront.NewClient(storefront.Options{BaseURL: sf.URL, Timeout: 2 * time.Second, Tokens: sess})
	shown := &shownLog{}
	n := notify.New(shown, time.Minute, logger)
	t.Cleanup(n.Close)

	broker := sse.NewBroker()
	t.Cleanup(broker.Close)

	gate := session.NewGate(sess, n, sse.Navigator{B: broker}, session.WithRedirectDelay(time.Millisecond))
	rec := badge.NewReconciler(client, sse.Badge{B: broker}, logger)
	mut := cart.NewMutator(cart.Deps{
		Gate:      gate,
		Adder:     client,
		Resolver:  catalog.NewResolver(client, logger),
		Notifier:  n,
		Refresher: rec,
		Logger:    logger,
	})
	buttons := cart.NewButtons()

	router := NewRouter(Deps{
		Cart:     mut,
		Buttons:  buttons,
		Badge:    rec,
		Session:  sess,
		Accounts: client,
		Notifier: n,
		Events:   broker,
		Logger:   logger,
	}, authEnabled, bridgeToken)

	return &testEnv{sf: sf, sess: sess, shown: shown, broker: broker, router: router, buttons: buttons}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestAddToCart_Success(t *testing.T) {
	e := newTestEnv(t, "tok", false, "")
	e.sf.On(http.MethodPost, storefront.PathCartAdd, testutil.Reply{Body: `{"message":"Added Dune"}`})
	e.sf.On(http.MethodGet, storefront.PathCart, testutil.Reply{Body: `{"item_count":2}`})

	w := e.do(t, http.MethodPost, "/cart/add", AddToCartRequest{BookID: 7, Title: "Dune", ButtonID: "b7"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	out := decode[cart.Outcome](t, w)
	if out.Status != cart.StatusSuccess || out.Message != "Added Dune" {
		t.Errorf("outcome = %+v", out)
	}
	if n := e.sf.Count(http.MethodGet, storefront.PathCart); n != 1 {
		t.Errorf("cart reads = %d, want 1", n)
	}

	w = e.do(t, http.MethodGet, "/badge", nil)
	state := decode[badge.State](t, w)
	if state.ItemCount != 2 || !state.Visible {
		t.Errorf("badge = %+v", state)
	}
	if b := e.buttons.Get("b7"); b.Busy() {
		t.Error("button still busy after request")
	}
}

func TestAddToCart_MissingBookID(t *testing.T) {
	e := newTestEnv(t, "tok", false, "")
	w := e.do(t, http.MethodPost, "/cart/add", AddToCartRequest{Title: "Dune"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if len(e.sf.Calls()) != 1 { // the login call only
		t.Errorf("unexpected storefront calls: %+v", e.sf.Calls())
	}
}

func TestAddToCart_Unauthenticated(t *testing.T) {
	e := newTestEnv(t, "", false, "")
	w := e.do(t, http.MethodPost, "/cart/add", AddToCartRequest{BookID: 1})
	out := decode[cart.Outcome](t, w)
	if out.Status != cart.StatusBlocked {
		t.Errorf("status = %q, want blocked", out.Status)
	}
	if len(e.sf.Calls()) != 0 {
		t.Errorf("storefront contacted: %+v", e.sf.Calls())
	}
	if last, _ := e.shown.last(); last.Message != session.LoginPrompt {
		t.Errorf("notification = %q", last.Message)
	}
}

func TestAddExternal_SaveFailure(t *testing.T) {
	e := newTestEnv(t, "tok", false, "")
	e.sf.On(http.MethodPost, storefront.PathSaveGoogle, testutil.Reply{Status: http.StatusBadRequest, Body: `{"error":"Invalid book data"}`})

	w := e.do(t, http.MethodPost, "/cart/add-external", map[string]any{
		"book":      map[string]any{"google_id": "g1", "title": "Dune"},
		"button_id": "ext-g1",
	})
	out := decode[cart.Outcome](t, w)
	if out.Status != cart.StatusFailure || out.Message != "Invalid book data" {
		t.Errorf("outcome = %+v", out)
	}
	if n := e.sf.Count(http.MethodPost, storefront.PathCartAdd); n != 0 {
		t.Errorf("cart add issued %d times after failed save", n)
	}
}

func TestSearchForm(t *testing.T) {
	e := newTestEnv(t, "", false, "")

	w := e.do(t, http.MethodPost, "/forms/search", map[string]string{"query": "   "})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("blank search status = %d", w.Code)
	}
	last, _ := e.shown.last()
	if last.Message != "Please enter a search query" || last.Kind != notify.KindWarning {
		t.Errorf("notification = %+v", last)
	}

	w = e.do(t, http.MethodPost, "/forms/search", map[string]string{"query": " go lang "})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decode[SearchResponse](t, w).Location; got != "/search?query=go+lang" {
		t.Errorf("location = %q", got)
	}
}

func TestLoginForm_InvalidBlocksNetwork(t *testing.T) {
	e := newTestEnv(t, "", false, "")
	w := e.do(t, http.MethodPost, "/forms/login", map[string]string{"username": "al", "password": "123"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[ValidationResponse](t, w)
	if resp.Errors["username"] == "" || resp.Errors["password"] == "" {
		t.Errorf("errors = %+v", resp.Errors)
	}
	if len(e.sf.Calls()) != 0 {
		t.Errorf("storefront contacted: %+v", e.sf.Calls())
	}
	if last, _ := e.shown.last(); last.Message != "Please fill in all required fields correctly" {
		t.Errorf("notification = %q", last.Message)
	}
}

func TestLoginForm_Success(t *testing.T) {
	e := newTestEnv(t, "", false, "")
	e.sf.On(http.MethodPost, storefront.PathLogin, testutil.Reply{Body: `{"access_token":"fresh"}`})
	e.sf.On(http.MethodGet, storefront.PathCart, testutil.Reply{Body: `{"item_count":1}`})

	w := e.do(t, http.MethodPost, "/forms/login", map[string]string{"username": "alice", "password": "secret1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !e.sess.IsAuthenticated() || e.sess.Token() != "fresh" {
		t.Error("session not persisted")
	}
	calls := e.sf.Calls()
	if got := calls[len(calls)-1].Header.Get("Authorization"); got != "Bearer fresh" {
		t.Errorf("badge refresh auth = %q", got)
	}
}

func TestLoginForm_BadCredentials(t *testing.T) {
	e := newTestEnv(t, "", false, "")
	e.sf.On(http.MethodPost, storefront.PathLogin, testutil.Reply{Status: http.StatusUnauthorized, Body: `{"message":"Invalid credentials"}`})

	w := e.do(t, http.MethodPost, "/forms/login", map[string]string{"username": "alice", "password": "wrong12"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	if e.sess.IsAuthenticated() {
		t.Error("session should stay logged out")
	}
	if last, _ := e.shown.last(); last.Message != "Invalid credentials" || last.Kind != notify.KindError {
		t.Errorf("notification = %+v", last)
	}
}

func TestRegisterForm(t *testing.T) {
	e := newTestEnv(t, "", false, "")
	e.sf.On(http.MethodPost, storefront.PathRegister,
		testutil.Reply{Status: http.StatusCreated, Body: `{"message":"User registered successfully"}`},
		testutil.Reply{Status: http.StatusBadRequest, Body: `{"message":"User already exists"}`},
	)
	form := map[string]string{"username": "alice", "email": "alice@example.com", "password": "secret1"}

	w := e.do(t, http.MethodPost, "/forms/register", form)
	if w.Code != http.StatusCreated {
		t.Fatalf("first register = %d", w.Code)
	}
	w = e.do(t, http.MethodPost, "/forms/register", form)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "User already exists") {
		t.Errorf("body = %s", w.Body.String())
	}

	form["email"] = "not-an-email"
	w = e.do(t, http.MethodPost, "/forms/register", form)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid email = %d", w.Code)
	}
	if got := decode[ValidationResponse](t, w).Errors["email"]; got != "Please enter a valid email address" {
		t.Errorf("email error = %q", got)
	}
	if n := e.sf.Count(http.MethodPost, storefront.PathRegister); n != 2 {
		t.Errorf("register calls = %d, want 2", n)
	}
}

func TestLogout(t *testing.T) {
	e := newTestEnv(t, "tok", false, "")
	e.sf.On(http.MethodGet, storefront.PathCart, testutil.Reply{Body: `{"item_count":3}`})
	e.do(t, http.MethodPost, "/badge/refresh", nil)

	w := e.do(t, http.MethodPost, "/session/logout", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if e.sess.IsAuthenticated() {
		t.Error("still authenticated")
	}
	w = e.do(t, http.MethodGet, "/session", nil)
	if decode[SessionResponse](t, w).Authenticated {
		t.Error("session endpoint reports authenticated")
	}
	w = e.do(t, http.MethodGet, "/badge", nil)
	if state := decode[badge.State](t, w); state.Visible || state.ItemCount != 0 {
		t.Errorf("badge after logout = %+v", state)
	}
}

func TestAuthMiddleware(t *testing.T) {
	e := newTestEnv(t, "", true, "bridge-secret")

	w := e.do(t, http.MethodGet, "/badge", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/badge", nil)
	req.Header.Set("Authorization", "Bearer bridge-secret")
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("header token = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/badge?access_token=bridge-secret", nil)
	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("query token = %d", w.Code)
	}
}

func TestEvents_RefreshOnConnect(t *testing.T) {
	e := newTestEnv(t, "tok", false, "")
	e.sf.On(http.MethodGet, storefront.PathCart, testutil.Reply{Body: `{"item_count":5}`})

	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 512)
	var got strings.Builder
	for !strings.Contains(got.String(), `"item_count":5`) {
		n, err := resp.Body.Read(buf)
		got.Write(buf[:n])
		if err != nil {
			t.Fatalf("stream ended before badge event: %v (%q)", err, got.String())
		}
	}
	if !strings.Contains(got.String(), "event: badge.updated") {
		t.Errorf("stream = %q", got.String())
	}
}
