// Package catalog makes sure an externally sourced book has a local catalog id
// before anything references it.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/haven/internal/apperr"
	"github.com/starford/haven/internal/models"
	"github.com/starford/haven/internal/storefront"
)

// Failure reasons.
const (
	ReasonSaveFailed   = "Failed to save book"
	ReasonNetworkError = "network error"
)

// Saver persists an external descriptor and returns its local id.
type Saver interface {
	SaveExternalBook(ctx context.Context, d models.ExternalBookDescriptor) (int64, error)
}

// ResolutionError explains why no local id could be obtained.
// Reason is user-facing.
type ResolutionError struct {
	Reason string
	Err    error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return "catalog: " + e.Reason
	}
	return fmt.Sprintf("catalog: %s: %v", e.Reason, e.Err)
}

func (e *ResolutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{apperr.ErrResolution}
	}
	return []error{apperr.ErrResolution, e.Err}
}

// Resolver saves external books through the catalog collaborator.
// De-duplication of repeated saves is the collaborator's job; nothing is cached here.
type Resolver struct {
	saver  Saver
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(saver Saver, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{saver: saver, logger: logger}
}

// ResolveLocalID returns the local id assigned to d, or a *ResolutionError.
// It never panics: a panicking saver is reported as a network error.
func (r *Resolver) ResolveLocalID(ctx context.Context, d models.ExternalBookDescriptor) (id int64, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("catalog: save panicked", slog.Any("panic", p))
			id, err = 0, &ResolutionError{Reason: ReasonNetworkError, Err: apperr.ErrTransport}
		}
	}()

	id, err = r.saver.SaveExternalBook(ctx, d)
	switch {
	case err == nil && id > 0:
		return id, nil
	case err == nil:
		return 0, &ResolutionError{Reason: ReasonSaveFailed}
	case errors.Is(err, apperr.ErrTransport):
		r.logger.Error("catalog: save transport failure",
			slog.String("title", d.Title), slog.String("error", err.Error()))
		return 0, &ResolutionError{Reason: ReasonNetworkError, Err: err}
	}

	reason := ReasonSaveFailed
	if apiErr, ok := storefront.AsAPIError(err); ok && apiErr.Message != "" {
		reason = apiErr.Message
	}
	return 0, &ResolutionError{Reason: reason, Err: err}
}
