// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes haven's cart tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/haven/internal/badge"
	"github.com/starford/haven/internal/cart"
	"github.com/starford/haven/internal/models"
)

// Cart runs cart mutations.
type Cart interface {
	AddToCart(ctx context.Context, item cart.Item, btn *cart.Button) cart.Outcome
	AddExternalBookToCart(ctx context.Context, d models.ExternalBookDescriptor, btn *cart.Button) cart.Outcome
}

// Badge reconciles and reports the cart badge.
type Badge interface {
	Refresh(ctx context.Context)
	State() badge.State
}

// Server wraps the MCP server with haven tools.
type Server struct {
	mcp     *server.MCPServer
	cart    Cart
	badge   Badge
	buttons *cart.Buttons
}

// New creates a new MCP server with all cart tools registered.
// buttons may be shared with another front end so both honor the same busy locks.
func New(c Cart, b Badge, buttons *cart.Buttons) *Server {
	if buttons == nil {
		buttons = cart.NewButtons()
	}
	s := &Server{cart: c, badge: b, buttons: buttons}

	s.mcp = server.NewMCPServer(
		"Haven",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("add_to_cart",
		mcp.WithDescription("Add a catalog book to the signed-in user's cart."),
		mcp.WithNumber("book_id", mcp.Required(), mcp.Description("Local catalog id of the book")),
		mcp.WithNumber("quantity", mcp.Description("Copies to add (default 1)")),
		mcp.WithString("title", mcp.Description("Book title, used in the confirmation message")),
		mcp.WithString("button_id", mcp.Description("Optional trigger id; repeated calls with the same id are skipped while one is in flight")),
	), s.addToCart)

	s.mcp.AddTool(mcp.NewTool("add_external_book_to_cart",
		mcp.WithDescription("Save an external (Google Books) result to the catalog and add it to the cart. "+
			"The book argument is a JSON object with google_id, title, authors, description, "+
			"published_date, industry_identifiers and thumbnail."),
		mcp.WithString("book", mcp.Required(), mcp.Description("External book descriptor as JSON")),
		mcp.WithString("button_id", mcp.Description("Optional trigger id")),
	), s.addExternalBookToCart)

	s.mcp.AddTool(mcp.NewTool("refresh_cart_badge",
		mcp.WithDescription("Re-read the cart from the storefront and return the badge state."),
	), s.refreshCartBadge)

	s.mcp.AddTool(mcp.NewTool("get_cart_badge",
		mcp.WithDescription("Return the last reconciled badge state without a network call."),
	), s.getCartBadge)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) addToCart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("book_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if id <= 0 {
		return mcp.NewToolResultError("book_id must be positive"), nil
	}
	item := cart.Item{
		BookID:   int64(id),
		Quantity: req.GetInt("quantity", 0),
		Title:    req.GetString("title", ""),
	}
	out := s.cart.AddToCart(ctx, item, s.buttons.Get(req.GetString("button_id", "")))
	return outcomeResult(out), nil
}

func (s *Server) addExternalBookToCart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("book")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var d models.ExternalBookDescriptor
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid book JSON: %v", err)), nil
	}
	out := s.cart.AddExternalBookToCart(ctx, d, s.buttons.Get(req.GetString("button_id", "")))
	return outcomeResult(out), nil
}

func (s *Server) refreshCartBadge(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.badge.Refresh(ctx)
	return jsonResult(s.badge.State()), nil
}

func (s *Server) getCartBadge(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.badge.State()), nil
}

// outcomeResult reports failure and blocked outcomes as tool errors.
func outcomeResult(out cart.Outcome) *mcp.CallToolResult {
	switch out.Status {
	case cart.StatusSuccess:
		return mcp.NewToolResultText(out.Message)
	case cart.StatusSkipped:
		return mcp.NewToolResultText("skipped: a request for this button is already in flight")
	default:
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", out.Status, out.Message))
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}
