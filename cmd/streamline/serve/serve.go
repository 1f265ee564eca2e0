// Package servecmder provides the serve command running the streamline
// HTTP front end.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/streamline/api"
	"github.com/papercomputeco/streamline/api/mcp"
	"github.com/papercomputeco/streamline/cmd/streamline/setup"
	"github.com/papercomputeco/streamline/pkg/completion"
	"github.com/papercomputeco/streamline/pkg/config"
	"github.com/papercomputeco/streamline/pkg/logger"
	"github.com/papercomputeco/streamline/pkg/recorder"
)

type serveCommander struct {
	model       string
	endpoint    string
	baseDelay   string
	apiKey      string
	maxAttempts uint

	storageDriver string
	sqlitePath    string
	postgresDSN   string

	listen  string
	workers uint
	brokers string
	topic   string

	logFile   string
	logFormat string
	noMCP     bool

	logger *slog.Logger
}

const serveLongDesc string = `Run the streamline HTTP server.

Endpoints:
  POST   /chat                     Chat completion ("stream": true streams plain text)
  GET    /conversations/:id/turns  Recorded turns of a conversation
  DELETE /conversations/:id        Delete a conversation's turns
  GET    /stats                    Number of recorded turns
  GET    /ping                     Health check
  /mcp                             MCP tools (complete, conversation_turns)

Finished exchanges are recorded by a background worker pool into the
configured storage and announced on Kafka when brokers are configured.`

const serveShortDesc string = "Run the streamline HTTP server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	setup.AddClientFlags(cmd, &cmder.model, &cmder.endpoint, &cmder.baseDelay, &cmder.apiKey, &cmder.maxAttempts)
	config.AddStringFlag(cmd, config.StorageFlags, config.FlagStorage, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.StorageFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.StorageFlags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.ServerFlags, config.FlagListen, &cmder.listen)
	config.AddUintFlag(cmd, config.ServerFlags, config.FlagWorkers, &cmder.workers)
	config.AddStringFlag(cmd, config.ServerFlags, config.FlagBrokers, &cmder.brokers)
	config.AddStringFlag(cmd, config.ServerFlags, config.FlagTopic, &cmder.topic)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")
	cmd.Flags().StringVar(&cmder.logFormat, "log-format", string(logger.FormatPretty),
		"Console log format ("+strings.Join(logger.Formats(), ", ")+")")
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Do not mount the MCP server on /mcp")

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command) error {
	cfg, configDir, err := setup.LoadConfig(cmd,
		setup.ClientBindings(),
		setup.Binding{
			Set:  config.StorageFlags,
			Keys: []string{config.FlagStorage, config.FlagSQLite, config.FlagPostgres},
		},
		setup.Binding{
			Set:  config.ServerFlags,
			Keys: []string{config.FlagListen, config.FlagWorkers, config.FlagBrokers, config.FlagTopic},
		},
	)
	if err != nil {
		return err
	}

	closeLog, err := c.newLogger(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	opts, err := setup.ClientOptions(cfg, c.apiKey, configDir, c.logger)
	if err != nil {
		return err
	}
	streamer, err := completion.NewStreamingClient(opts...)
	if err != nil {
		return err
	}
	completer, err := completion.NewClient(opts...)
	if err != nil {
		return err
	}

	driver, err := setup.NewStorageDriver(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := setup.NewPublisher(cfg, c.logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	pool, err := recorder.NewPool(&recorder.Config{
		Driver:     driver,
		Publisher:  publisher,
		NumWorkers: cfg.Server.Workers,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating recorder: %w", err)
	}
	// Runs after the server stopped accepting requests.
	defer pool.Close()

	var mcpServer *mcp.Server
	if !c.noMCP {
		mcpServer, err = mcp.NewServer(mcp.Config{
			Completer: completer,
			Driver:    driver,
			Model:     completer.Model(),
			Logger:    c.logger,
		})
		if err != nil {
			return fmt.Errorf("creating MCP server: %w", err)
		}
	}

	server, err := api.NewServer(api.Config{
		ListenAddr: cfg.Server.Listen,
		Streamer:   streamer,
		Completer:  completer,
		Driver:     driver,
		Recorder:   pool,
		MCP:        mcpServer,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	c.logger.Info("starting streamline",
		"listen", cfg.Server.Listen,
		"model", streamer.Model(),
		"endpoint", cfg.Client.Endpoint,
		"storage", cfg.Storage.Driver,
		"mcp", mcpServer != nil,
	)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
		c.logger.Info("context done, shutting down")
	}

	if err := server.Shutdown(); err != nil {
		c.logger.Error("API server shutdown failed", "error", err)
	}
	return nil
}

// newLogger sets c.logger: --log-format output on stderr, plus JSON to
// --log-file when set. The returned func closes the log file.
func (c *serveCommander) newLogger(cmd *cobra.Command) (func(), error) {
	debug, _ := cmd.Flags().GetBool("debug")

	format, err := logger.ParseFormat(c.logFormat)
	if err != nil {
		return nil, err
	}

	console := logger.New(
		logger.WithDebug(debug),
		logger.WithFormat(format),
		logger.WithWriter(cmd.ErrOrStderr()),
	)

	if c.logFile == "" {
		c.logger = console
		return func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	file := logger.New(
		logger.WithDebug(debug),
		logger.WithFormat(logger.FormatJSON),
		logger.WithWriter(f),
	)
	c.logger = logger.Multi(console, file)

	return func() { _ = f.Close() }, nil
}
