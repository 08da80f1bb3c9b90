package internal

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/starford/haven/internal/badge"
	"github.com/starford/haven/internal/cart"
	"github.com/starford/haven/internal/session"
	"github.com/starford/haven/internal/storefront"
	"github.com/starford/haven/internal/testutil"
)

func testCore(t *testing.T, sf *testutil.Storefront, surface Surface) *Core {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Storefront.BaseURL = sf.URL
	cfg.Storefront.Timeout = 2 * time.Second
	cfg.Session.StateDir = t.TempDir()
	cfg.Session.RedirectDelay = time.Millisecond

	core, err := NewCore(cfg, surface, testutil.QuietLogger())
	if err != nil {
		t.Fatalf("NewCore: %v", err)
	}
	t.Cleanup(core.Close)
	return core
}

func TestCore_BlockedUntilLogin(t *testing.T) {
	sf := testutil.NewStorefront(t)
	sf.On(http.MethodPost, storefront.PathLogin, testutil.Reply{Body: `{"access_token":"t1"}`})
	sf.On(http.MethodPost, storefront.PathCartAdd, testutil.Reply{Body: `{"message":"ok"}`})
	sf.On(http.MethodGet, storefront.PathCart, testutil.Reply{Body: `{"item_count":1}`})

	navigated := make(chan string, 1)
	var rendered []badge.State
	core := testCore(t, sf, Surface{
		Navigator: session.NavigatorFunc(func(p string) { navigated <- p }),
		Display:   badge.DisplayFunc(func(s badge.State) { rendered = append(rendered, s) }),
	})
	ctx := context.Background()

	out := core.Cart.AddToCart(ctx, cart.Item{BookID: 3}, core.Buttons.Get("b3"))
	if out.Status != cart.StatusBlocked {
		t.Fatalf("status = %q, want blocked", out.Status)
	}
	select {
	case p := <-navigated:
		if p != "/login" {
			t.Errorf("navigated to %q", p)
		}
	case <-time.After(time.Second):
		t.Fatal("no redirect")
	}

	if err := core.Session.Login(ctx, core.Client, "alice", "secret1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	out = core.Cart.AddToCart(ctx, cart.Item{BookID: 3}, core.Buttons.Get("b3"))
	if !out.Succeeded() {
		t.Fatalf("outcome = %+v", out)
	}
	if len(rendered) != 1 || rendered[0].ItemCount != 1 {
		t.Errorf("rendered = %+v", rendered)
	}
	calls := sf.Calls()
	if got := calls[len(calls)-1].Header.Get("Authorization"); got != "Bearer t1" {
		t.Errorf("authorization = %q", got)
	}
}
