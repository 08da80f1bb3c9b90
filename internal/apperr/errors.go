// Package apperr holds the error taxonomy shared by the cart subsystem and the mock store.
package apperr

import "errors"

var (
	ErrAuthRequired = errors.New("authentication required")
	ErrValidation   = errors.New("validation failed")
	ErrResolution   = errors.New("catalog resolution failed")
	ErrMutation     = errors.New("cart mutation rejected")
	ErrTransport    = errors.New("transport failure")

	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrUnauthorized  = errors.New("unauthorized")
)
