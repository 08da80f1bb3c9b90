// Package session answers "is the user authenticated in this client?" and enforces
// the redirect-to-login policy for gated actions.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"

	"github.com/starford/haven/internal/apperr"
	"github.com/starford/haven/internal/storage"
)

// FileName is the session file inside the state directory.
const FileName = "session.yaml"

// Context is the session capability consulted before every gated action.
type Context interface {
	IsAuthenticated() bool
}

// Authenticator exchanges credentials for an access token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// record is the on-disk session format.
type record struct {
	AccessToken string    `yaml:"access_token"`
	Username    string    `yaml:"username"`
	SavedAt     time.Time `yaml:"saved_at"`
}

// TokenSession is a Context backed by an access token persisted in the state directory.
type TokenSession struct {
	store  storage.Provider
	now    func() time.Time
	logger *slog.Logger

	mu  sync.RWMutex
	rec record
}

// NewTokenSession creates a session over store and loads any persisted token.
func NewTokenSession(store storage.Provider, logger *slog.Logger) (*TokenSession, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &TokenSession{store: store, now: time.Now, logger: logger}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load re-reads the session file. A missing file, or anything at that path
// that is not a regular file, clears the session.
func (s *TokenSession) Load() error {
	if !s.store.Exists(FileName) {
		s.set(record{})
		return nil
	}
	data, err := s.store.Read(FileName)
	if errors.Is(err, apperr.ErrNotFound) {
		s.set(record{})
		return nil
	}
	if err != nil {
		return fmt.Errorf("session: load: %w", err)
	}
	var rec record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("session: decode %s: %w", FileName, err)
	}
	s.set(rec)
	return nil
}

// IsAuthenticated reports whether a usable token is present.
// JWTs carrying an exp claim are rejected once expired; opaque tokens are
// trusted until the server says otherwise.
func (s *TokenSession) IsAuthenticated() bool {
	tok := s.Token()
	if tok == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return s.now().Before(exp.Time)
}

// Token returns the current access token, or "" when logged out.
func (s *TokenSession) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.AccessToken
}

// Username returns the name the session was established for.
func (s *TokenSession) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Username
}

// Login authenticates against auth and persists the returned token.
func (s *TokenSession) Login(ctx context.Context, auth Authenticator, username, password string) error {
	tok, err := auth.Login(ctx, username, password)
	if err != nil {
		return err
	}
	rec := record{AccessToken: tok, Username: username, SavedAt: s.now().UTC()}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := s.store.Write(FileName, data); err != nil {
		return fmt.Errorf("session: save: %w", err)
	}
	s.set(rec)
	s.logger.Info("session: logged in", slog.String("username", username))
	return nil
}

// Logout forgets the token both in memory and on disk.
func (s *TokenSession) Logout() error {
	if err := s.store.Delete(FileName); err != nil {
		return fmt.Errorf("session: logout: %w", err)
	}
	s.set(record{})
	s.logger.Info("session: logged out")
	return nil
}

func (s *TokenSession) set(rec record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = rec
}
