package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/haven/internal/apperr"
	"github.com/starford/haven/internal/models"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func newTestClient(t *testing.T, h http.HandlerFunc, tok string) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Options{BaseURL: srv.URL + "/", Tokens: staticToken(tok)})
}

func TestCart_DecodesItemCount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, PathCart, r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_, _ = w.Write([]byte(`{"item_count": 4}`))
	}, "tok")

	st, err := c.Cart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, st.ItemCount)
}

func TestCart_MissingCountIsZero(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, "")

	st, err := c.Cart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, st.ItemCount)
}

func TestAddToCart_SendsBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathCartAdd, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"book_id": float64(7), "quantity": float64(2)}, body)
		_, _ = w.Write([]byte(`{"message":"Added"}`))
	}, "")

	resp, err := c.AddToCart(context.Background(), models.CartItemRequest{BookID: 7, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, "Added", resp.Message)
}

func TestAddToCart_RejectionIsAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Out of stock"}`))
	}, "")

	_, err := c.AddToCart(context.Background(), models.CartItemRequest{BookID: 1, Quantity: 1})
	require.Error(t, err)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Out of stock", apiErr.Message)
	assert.True(t, errors.Is(err, apperr.ErrMutation))
	assert.False(t, errors.Is(err, apperr.ErrTransport))
}

func TestLogin_RejectionUsesMessageField(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
	}, "")

	_, err := c.Login(context.Background(), "reader", "wrongpass")
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "Invalid credentials", apiErr.Message)
}

func TestLogin_ReturnsToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathLogin, r.URL.Path)
		_, _ = w.Write([]byte(`{"access_token":"jwt-here"}`))
	}, "")

	tok, err := c.Login(context.Background(), "reader", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "jwt-here", tok)
}

func TestRegister_ReturnsMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.co", body["email"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"message":"User registered successfully"}`))
	}, "")

	msg, err := c.Register(context.Background(), "reader", "a@b.co", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "User registered successfully", msg)
}

func TestSaveExternalBook_IdempotencyKeyIsStable(t *testing.T) {
	var keys []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		_, _ = w.Write([]byte(`{"book_id": 7}`))
	}, "")

	d := models.ExternalBookDescriptor{GoogleID: "g1", Title: "Dune", Authors: []string{"Frank Herbert"}}
	for i := 0; i < 2; i++ {
		id, err := c.SaveExternalBook(context.Background(), d)
		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
	}
	require.Len(t, keys, 2)
	assert.NotEmpty(t, keys[0])
	assert.Equal(t, keys[0], keys[1])
}

func TestTransportFailures(t *testing.T) {
	t.Run("undecodable body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>oops</html>`))
		}, "")
		_, err := c.Cart(context.Background())
		assert.ErrorIs(t, err, apperr.ErrTransport)
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		c := NewClient(Options{BaseURL: url})
		_, err := c.Cart(context.Background())
		assert.ErrorIs(t, err, apperr.ErrTransport)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		t.Cleanup(srv.Close)
		t.Cleanup(func() { close(release) })
		c := NewClient(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
		_, err := c.Cart(context.Background())
		assert.ErrorIs(t, err, apperr.ErrTransport)
	})
}

func TestRateLimitHonoursContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"item_count":1}`))
	}, "")
	c.limiter = NewClient(Options{RateLimit: 0.001, Burst: 1}).limiter

	_, err := c.Cart(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Cart(ctx)
	assert.ErrorIs(t, err, apperr.ErrTransport)
}
