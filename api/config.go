// Package api provides the HTTP front end: chat completions (streamed as
// plain text or returned whole) and read access to recorded conversations.
package api

import (
	"log/slog"

	"github.com/papercomputeco/streamline/api/mcp"
	"github.com/papercomputeco/streamline/pkg/recorder"
	"github.com/papercomputeco/streamline/pkg/storage"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8000")
	ListenAddr string

	// Streamer serves "stream": true chat requests.
	Streamer Streamer

	// Completer serves "stream": false chat requests.
	Completer Completer

	// Driver is read by the conversation endpoints.
	Driver storage.Driver

	// Recorder optionally persists finished exchanges.
	Recorder *recorder.Pool

	// MCP optionally mounts an MCP server on /mcp.
	MCP *mcp.Server

	Logger *slog.Logger
}
