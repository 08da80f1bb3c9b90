// Package testutil provides shared test helpers: a recording storefront stand-in,
// temporary state directories and fixed sessions.
package testutil

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/starford/haven/internal/storage"
)

// Call is one request received by the fake storefront.
type Call struct {
	Method string
	Path   string
	Body   map[string]any
	Header http.Header
}

// Reply is a scripted response.
type Reply struct {
	Status int
	Body   string
}

// Storefront records every request and answers from per-route scripts.
// Routes without a script answer 404.
type Storefront struct {
	*httptest.Server

	mu      sync.Mutex
	calls   []Call
	scripts map[string][]Reply
	hooks   map[string]func(r *http.Request)
}

// NewStorefront starts a fake storefront that is closed with the test.
func NewStorefront(t *testing.T) *Storefront {
	t.Helper()
	s := &Storefront{
		scripts: make(map[string][]Reply),
		hooks:   make(map[string]func(*http.Request)),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Server.Close)
	return s
}

func routeKey(method, path string) string { return method + " " + path }

// On queues replies for method+path. The last reply repeats once the queue drains.
func (s *Storefront) On(method, path string, replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[routeKey(method, path)] = append(s.scripts[routeKey(method, path)], replies...)
}

// Hook runs fn inside the handler for method+path before replying,
// e.g. to block until the test releases the request.
func (s *Storefront) Hook(method, path string, fn func(r *http.Request)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[routeKey(method, path)] = fn
}

// Calls returns every recorded request.
func (s *Storefront) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Count returns how many requests hit method+path.
func (s *Storefront) Count(method, path string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// Bodies returns the decoded JSON bodies sent to method+path.
func (s *Storefront) Bodies(method, path string) []map[string]any {
	var out []map[string]any
	for _, c := range s.Calls() {
		if c.Method == method && c.Path == path {
			out = append(out, c.Body)
		}
	}
	return out
}

func (s *Storefront) serve(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	key := routeKey(r.Method, r.URL.Path)
	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Body: body, Header: r.Header.Clone()})
	hook := s.hooks[key]
	var reply *Reply
	if q := s.scripts[key]; len(q) > 0 {
		rep := q[0]
		reply = &rep
		if len(q) > 1 {
			s.scripts[key] = q[1:]
		}
	}
	s.mu.Unlock()

	if hook != nil {
		hook(r)
	}
	if reply == nil {
		http.NotFound(w, r)
		return
	}
	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, reply.Body)
}

// StateDir creates a temporary state directory provider.
func StateDir(t *testing.T) *storage.FS {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return fs
}

// Session is a fixed session marker.
type Session bool

// IsAuthenticated reports the fixed value.
func (s Session) IsAuthenticated() bool { return bool(s) }

// Token returns a placeholder token when authenticated.
func (s Session) Token() string {
	if s {
		return "test-token"
	}
	return ""
}

// QuietLogger returns a logger that only emits errors.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
