package mockstore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/haven/internal/apperr"
	"github.com/starford/haven/internal/models"
	"github.com/starford/haven/internal/storefront"
)

type ctxKey struct{}

// Server serves the storefront endpoints.
type Server struct {
	db     *DB
	tokens *Tokens
	logger *slog.Logger
	cost   int // bcrypt work factor
}

// NewServer creates a Server.
func NewServer(db *DB, tokens *Tokens, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{db: db, tokens: tokens, logger: logger, cost: bcrypt.DefaultCost}
}

// Router returns the storefront routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post(storefront.PathRegister, s.register)
	r.Post(storefront.PathLogin, s.login)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)
		r.Get(storefront.PathCart, s.cart)
		r.Post(storefront.PathCartAdd, s.addToCart)
		r.Post(storefront.PathSaveGoogle, s.saveFromGoogle)
	})
	return r
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, errorBody("Authentication required"))
			return
		}
		username, err := s.tokens.Verify(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody("Authentication required"))
			return
		}
		u, err := s.db.UserByName(username)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody("Authentication required"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, u)))
	})
}

func userFrom(r *http.Request) *UserRow {
	u, _ := r.Context().Value(ctxKey{}).(*UserRow)
	return u
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, messageBody("Missing required fields"))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		// Passwords over 72 bytes are refused by bcrypt.
		writeJSON(w, http.StatusBadRequest, messageBody("Invalid password"))
		return
	}
	_, err = s.db.CreateUser(UserRow{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			writeJSON(w, http.StatusBadRequest, messageBody("User already exists"))
			return
		}
		s.internalError(w, "register", err)
		return
	}
	s.logger.Info("mockstore: user registered", slog.String("username", req.Username))
	writeJSON(w, http.StatusCreated, messageBody("User registered successfully"))
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	u, err := s.db.UserByName(req.Username)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.internalError(w, "login", err)
		return
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		writeJSON(w, http.StatusUnauthorized, messageBody("Invalid credentials"))
		return
	}
	tok, err := s.tokens.Issue(u.Username)
	if err != nil {
		s.internalError(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": tok})
}

func (s *Server) cart(w http.ResponseWriter, r *http.Request) {
	n, err := s.db.CartCount(userFrom(r).ID)
	if err != nil {
		s.internalError(w, "cart", err)
		return
	}
	writeJSON(w, http.StatusOK, models.CartState{ItemCount: n})
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	var req models.CartItemRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.BookID <= 0 || req.Quantity < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("Invalid book or quantity"))
		return
	}
	title, err := s.db.BookTitle(req.BookID)
	if errors.Is(err, apperr.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody("Book not found"))
		return
	}
	if err != nil {
		s.internalError(w, "add to cart", err)
		return
	}
	if err := s.db.AddToCart(userFrom(r).ID, req.BookID, req.Quantity); err != nil {
		s.internalError(w, "add to cart", err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody(title+" added to cart!"))
}

func (s *Server) saveFromGoogle(w http.ResponseWriter, r *http.Request) {
	var d models.ExternalBookDescriptor
	if !readJSON(w, r, &d) {
		return
	}
	if strings.TrimSpace(d.Title) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("Invalid book data"))
		return
	}
	id, created, err := s.db.SaveBook(d, r.Header.Get("Idempotency-Key"))
	if err != nil {
		s.internalError(w, "save book", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]int64{"book_id": id})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("mockstore: "+op+" failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

func errorBody(msg string) map[string]string   { return map[string]string{"error": msg} }
func messageBody(msg string) map[string]string { return map[string]string{"message": msg} }
