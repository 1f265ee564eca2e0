// Package mcp provides an MCP (Model Context Protocol) server exposing
// streamline completions and recorded conversations as tools.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/streamline/pkg/llm"
	"github.com/papercomputeco/streamline/pkg/storage"
	"github.com/papercomputeco/streamline/pkg/utils"
)

// Completer runs non-streaming completions.
type Completer interface {
	Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.Completion, error)
}

type Config struct {
	// Completer answers the complete tool.
	Completer Completer

	// Driver answers the conversation_turns tool.
	Driver storage.Driver

	// Model is used when a tool call names none.
	Model string

	// Logger is the configured logger
	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the complete and
// conversation_turns tools.
func NewServer(c Config) (*Server, error) {
	if c.Completer == nil {
		return nil, errors.New("completion client is required")
	}
	if c.Driver == nil {
		return nil, errors.New("storage driver is required")
	}
	if c.Model == "" {
		return nil, errors.New("model is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "streamline",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        completeToolName,
		Description: completeDescription,
	}, s.handleComplete)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        turnsToolName,
		Description: turnsDescription,
	}, s.handleTurns)

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying server, for in-process transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
