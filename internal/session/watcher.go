package session

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch keeps the in-memory session in step with the session file until ctx is
// cancelled, so a login or logout from another process flips IsAuthenticated.
// onChange, if non-nil, runs after every reload with the new authentication state.
func (s *TokenSession) Watch(ctx context.Context, onChange func(authenticated bool)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory: atomic writes replace the file via rename.
	if err := w.Add(s.store.Root()); err != nil {
		return err
	}
	s.logger.Info("session watcher: started", slog.String("dir", s.store.Root()))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != FileName {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			before := s.Token()
			if err := s.Load(); err != nil {
				s.logger.Warn("session watcher: reload failed", slog.String("error", err.Error()))
				continue
			}
			if s.Token() == before {
				continue
			}
			authed := s.IsAuthenticated()
			s.logger.Debug("session watcher: reloaded", slog.Bool("authenticated", authed))
			if onChange != nil {
				onChange(authed)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("session watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
