// Package forms validates storefront forms before they are submitted.
package forms

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/haven/internal/apperr"
)

// User-facing texts.
const (
	MsgSearchEmpty      = "Please enter a search query"
	MsgFormInvalid      = "Please fill in all required fields correctly"
	MsgRequired         = "This field is required"
	MsgInvalidEmail     = "Please enter a valid email address"
	MsgPasswordTooShort = "Password must be at least 6 characters"
	MsgUsernameTooShort = "Username must be at least 3 characters"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var (
	required = validation.Required.Error(MsgRequired)
	email    = validation.Match(emailRe).Error(MsgInvalidEmail)
	password = validation.RuneLength(6, 0).Error(MsgPasswordTooShort)
	username = validation.RuneLength(3, 0).Error(MsgUsernameTooShort)
)

// FieldErrors maps a form field name to its message.
type FieldErrors map[string]string

// Error implements error.
func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, fe[k]))
	}
	return "forms: " + strings.Join(parts, "; ")
}

// Is matches apperr.ErrValidation.
func (fe FieldErrors) Is(target error) bool { return target == apperr.ErrValidation }

// Search is the site search form.
type Search struct {
	Query string `json:"query"`
}

// Normalize trims surrounding whitespace.
func (f *Search) Normalize() { f.Query = strings.TrimSpace(f.Query) }

// Validate rejects a blank query.
func (f Search) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Query, validation.Required.Error(MsgSearchEmpty)),
	)
}

// Location is where a valid search is submitted.
func (f Search) Location() string {
	return "/search?" + url.Values{"query": {f.Query}}.Encode()
}

// Login is the sign-in form.
type Login struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Normalize trims the username. Passwords are taken verbatim.
func (f *Login) Normalize() { f.Username = strings.TrimSpace(f.Username) }

// Validate applies the required, username and password rules.
func (f Login) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Username, required, username),
		validation.Field(&f.Password, required, password),
	)
}

// Register is the sign-up form.
type Register struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize trims username and email.
func (f *Register) Normalize() {
	f.Username = strings.TrimSpace(f.Username)
	f.Email = strings.TrimSpace(f.Email)
}

// Validate applies the required, username, email and password rules.
func (f Register) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Username, required, username),
		validation.Field(&f.Email, required, email),
		validation.Field(&f.Password, required, password),
	)
}

// Form is anything Check can validate.
type Form interface {
	Normalize()
	Validate() error
}

// Check normalizes f and validates it. A rule violation is returned as FieldErrors;
// any other error is returned unchanged.
func Check(f Form) error {
	f.Normalize()
	err := f.Validate()
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(FieldErrors, len(verrs))
	for field, ferr := range verrs {
		out[field] = ferr.Error()
	}
	return out
}
