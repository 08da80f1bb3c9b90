// Package models defines the domain types shared across haven.
package models

// Identifier is one entry of an external book's industry identifiers (ISBN_10, ISBN_13, ...).
type Identifier struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

// ExternalBookDescriptor is a book sourced from an external search result.
// It carries no local catalog id; the catalog resolver assigns one.
type ExternalBookDescriptor struct {
	GoogleID            string       `json:"google_id,omitempty"`
	Title               string       `json:"title"`
	Authors             []string     `json:"authors,omitempty"`
	Description         string       `json:"description,omitempty"`
	PublishedDate       string       `json:"published_date,omitempty"`
	IndustryIdentifiers []Identifier `json:"industry_identifiers,omitempty"`
	Thumbnail           string       `json:"thumbnail,omitempty"`
}

// ISBN returns the ISBN_13 identifier when present, falling back to ISBN_10.
func (d ExternalBookDescriptor) ISBN() string {
	var isbn10 string
	for _, id := range d.IndustryIdentifiers {
		switch id.Type {
		case "ISBN_13":
			return id.Identifier
		case "ISBN_10":
			isbn10 = id.Identifier
		}
	}
	return isbn10
}

// CartItemRequest is the body of a cart-add mutation.
type CartItemRequest struct {
	BookID   int64 `json:"book_id"`
	Quantity int   `json:"quantity"`
}

// CartState is the authoritative cart summary returned by the storefront.
type CartState struct {
	ItemCount int `json:"item_count"`
}
