// Package storefront is the typed HTTP client for the bookstore's cart, catalog and
// account endpoints.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/starford/haven/internal/apperr"
	"github.com/starford/haven/internal/checksum"
	"github.com/starford/haven/internal/models"
)

// Endpoint paths of the storefront collaborator.
const (
	PathCart       = "/api/cart"
	PathCartAdd    = "/api/cart/add"
	PathSaveGoogle = "/api/book/save-from-google"
	PathLogin      = "/api/login"
	PathRegister   = "/api/register"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

// TokenSource supplies the bearer token sent with each request.
// An empty token means the request goes out unauthenticated.
type TokenSource interface {
	Token() string
}

// APIError is a non-2xx response from the storefront.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("storefront: status %d", e.Status)
	}
	return fmt.Sprintf("storefront: status %d: %s", e.Status, e.Message)
}

// Is lets callers match any API rejection with apperr.ErrMutation.
func (e *APIError) Is(target error) bool {
	return target == apperr.ErrMutation
}

// Options configures a Client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second; <= 0 disables limiting
	Burst     int
	Tokens    TokenSource
	HTTP      *http.Client
}

// Client talks to the storefront collaborator.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	tokens  TokenSource
}

// NewClient creates a storefront client.
func NewClient(opts Options) *Client {
	hc := opts.HTTP
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    hc,
		limiter: limiter,
		tokens:  opts.Tokens,
	}
}

// AddResponse is the success payload of a cart-add mutation.
type AddResponse struct {
	Message string `json:"message"`
}

type saveResponse struct {
	BookID int64 `json:"book_id"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// errorPayload covers both failure shapes: {error} for cart/catalog, {message} for accounts.
type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Cart reads the authoritative cart state (GET /api/cart).
func (c *Client) Cart(ctx context.Context) (models.CartState, error) {
	var out models.CartState
	if err := c.do(ctx, http.MethodGet, PathCart, nil, nil, &out); err != nil {
		return models.CartState{}, err
	}
	return out, nil
}

// AddToCart issues the cart-add mutation (POST /api/cart/add).
func (c *Client) AddToCart(ctx context.Context, item models.CartItemRequest) (AddResponse, error) {
	var out AddResponse
	if err := c.do(ctx, http.MethodPost, PathCartAdd, item, nil, &out); err != nil {
		return AddResponse{}, err
	}
	return out, nil
}

// SaveExternalBook persists an external descriptor and returns its local id
// (POST /api/book/save-from-google). The request carries an Idempotency-Key
// derived from the descriptor so the storefront can de-duplicate saves.
func (c *Client) SaveExternalBook(ctx context.Context, d models.ExternalBookDescriptor) (int64, error) {
	key, err := checksum.SumJSON(d)
	if err != nil {
		return 0, fmt.Errorf("storefront: encode descriptor: %w", err)
	}
	var out saveResponse
	headers := map[string]string{"Idempotency-Key": key}
	if err := c.do(ctx, http.MethodPost, PathSaveGoogle, d, headers, &out); err != nil {
		return 0, err
	}
	return out.BookID, nil
}

// Login exchanges credentials for an access token (POST /api/login).
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body := map[string]string{"username": username, "password": password}
	var out loginResponse
	if err := c.do(ctx, http.MethodPost, PathLogin, body, nil, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("storefront: login: empty access token: %w", apperr.ErrTransport)
	}
	return out.AccessToken, nil
}

// Register creates an account (POST /api/register) and returns the server message.
func (c *Client) Register(ctx context.Context, username, email, password string) (string, error) {
	body := map[string]string{"username": username, "email": email, "password": password}
	var out messageResponse
	if err := c.do(ctx, http.MethodPost, PathRegister, body, nil, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// do performs one JSON round trip. Non-2xx responses become *APIError; every
// other failure (rate wait, dial, timeout, undecodable body) wraps apperr.ErrTransport.
func (c *Client) do(ctx context.Context, method, path string, in any, headers map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("storefront: %s %s: rate wait: %w: %w", method, path, apperr.ErrTransport, err)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("storefront: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("storefront: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("storefront: %s %s: %w: %w", method, path, apperr.ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("storefront: %s %s: read body: %w: %w", method, path, apperr.ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var p errorPayload
		_ = json.Unmarshal(raw, &p)
		msg := p.Error
		if msg == "" {
			msg = p.Message
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("storefront: %s %s: decode: %w: %w", method, path, apperr.ErrTransport, err)
	}
	return nil
}

// AsAPIError unwraps err into an *APIError when it is one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
