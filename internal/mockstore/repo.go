package mockstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/haven/internal/apperr"
	"github.com/starford/haven/internal/models"
)

// UserRow represents a row in the users table.
type UserRow struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
}

// CreateUser inserts a user. A taken username yields apperr.ErrAlreadyExists.
func (db *DB) CreateUser(u UserRow) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO users (username, email, password_hash)
		VALUES (?, ?, ?)
	`, u.Username, u.Email, u.PasswordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("mockstore: user %q: %w", u.Username, apperr.ErrAlreadyExists)
		}
		return 0, fmt.Errorf("mockstore: insert user: %w", err)
	}
	return res.LastInsertId()
}

// UserByName looks a user up by username.
func (db *DB) UserByName(username string) (*UserRow, error) {
	var u UserRow
	err := db.conn.QueryRow(`
		SELECT id, username, email, password_hash FROM users WHERE username = ?
	`, username).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("mockstore: user %q: %w", username, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("mockstore: get user: %w", err)
	}
	return &u, nil
}

// SaveBook stores d and returns its id. An existing row with the same google_id,
// or else the same idempotency key, is returned instead of inserting a duplicate.
func (db *DB) SaveBook(d models.ExternalBookDescriptor, key string) (id int64, created bool, err error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, false, fmt.Errorf("mockstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if d.GoogleID != "" {
		err = tx.QueryRow(`SELECT id FROM books WHERE google_id = ?`, d.GoogleID).Scan(&id)
		if err == nil {
			return id, false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, false, fmt.Errorf("mockstore: lookup google_id: %w", err)
		}
	}
	if key != "" {
		err = tx.QueryRow(`SELECT id FROM books WHERE idempotency_key = ?`, key).Scan(&id)
		if err == nil {
			return id, false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, false, fmt.Errorf("mockstore: lookup idempotency key: %w", err)
		}
	}

	authors, _ := json.Marshal(d.Authors)
	res, err := tx.Exec(`
		INSERT INTO books (google_id, idempotency_key, title, authors, description, published_date, isbn, thumbnail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, nullable(d.GoogleID), nullable(key), d.Title, string(authors), d.Description, d.PublishedDate, d.ISBN(), d.Thumbnail)
	if err != nil {
		return 0, false, fmt.Errorf("mockstore: insert book: %w", err)
	}
	if id, err = res.LastInsertId(); err != nil {
		return 0, false, fmt.Errorf("mockstore: book id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("mockstore: commit: %w", err)
	}
	return id, true, nil
}

// BookTitle returns the title of book id.
func (db *DB) BookTitle(id int64) (string, error) {
	var title string
	err := db.conn.QueryRow(`SELECT title FROM books WHERE id = ?`, id).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("mockstore: book %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("mockstore: get book: %w", err)
	}
	return title, nil
}

// AddToCart adds qty copies of book to the user's cart.
func (db *DB) AddToCart(userID, bookID int64, qty int) error {
	if _, err := db.BookTitle(bookID); err != nil {
		return err
	}
	_, err := db.conn.Exec(`
		INSERT INTO cart_items (user_id, book_id, quantity)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, book_id) DO UPDATE SET
			quantity = quantity + excluded.quantity
	`, userID, bookID, qty)
	if err != nil {
		return fmt.Errorf("mockstore: add to cart: %w", err)
	}
	return nil
}

// CartCount returns the total quantity in the user's cart.
func (db *DB) CartCount(userID int64) (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COALESCE(SUM(quantity), 0) FROM cart_items WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("mockstore: cart count: %w", err)
	}
	return n, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	var sqErr sqlite3.Error
	return errors.As(err, &sqErr) && sqErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
