package api

import (
	"context"
	"errors"
	"iter"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/papercomputeco/streamline/pkg/llm"
	"github.com/papercomputeco/streamline/pkg/logger"
)

// Streamer is the streaming completion client as the server uses it.
type Streamer interface {
	Complete(ctx context.Context, req *llm.CompletionRequest) iter.Seq2[llm.StreamEvent, error]
	Model() string
}

// Completer is the non-streaming completion client as the server uses it.
type Completer interface {
	Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.Completion, error)
}

// Server is the HTTP front end for streamline.
type Server struct {
	config Config
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server. The clients and the storage driver are
// injected so they can be shared with other components.
func NewServer(config Config) (*Server, error) {
	if config.Streamer == nil {
		return nil, errors.New("streaming client is required")
	}
	if config.Completer == nil {
		return nil, errors.New("completion client is required")
	}
	if config.Driver == nil {
		return nil, errors.New("storage driver is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		ExposeHeaders: HeaderConversationID,
	}))

	s := &Server{
		config: config,
		logger: logger.OrNop(config.Logger),
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/stats", s.handleStats)
	app.Post("/chat", s.handleChat)
	app.Get("/conversations/:id/turns", s.handleListTurns)
	app.Delete("/conversations/:id", s.handleDeleteConversation)

	if config.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCP.Handler()))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
