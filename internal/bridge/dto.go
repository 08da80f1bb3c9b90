package bridge

import (
	"github.com/starford/haven/internal/forms"
	"github.com/starford/haven/internal/models"
)

// AddToCartRequest is the body of POST /api/cart/add.
type AddToCartRequest struct {
	BookID   int64  `json:"book_id"`
	Quantity int    `json:"quantity"`
	Title    string `json:"title"`
	ButtonID string `json:"button_id"`
}

// AddExternalRequest is the body of POST /api/cart/add-external.
type AddExternalRequest struct {
	Book     models.ExternalBookDescriptor `json:"book"`
	ButtonID string                        `json:"button_id"`
}

// SearchResponse carries the navigation target of a valid search.
type SearchResponse struct {
	Location string `json:"location"`
}

// ValidationResponse lists per-field rule violations.
type ValidationResponse struct {
	Error  string            `json:"error"`
	Errors forms.FieldErrors `json:"errors"`
}

// SessionResponse describes the local session.
type SessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
}

// MessageResponse wraps a storefront message.
type MessageResponse struct {
	Message string `json:"message"`
}
