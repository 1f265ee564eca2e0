// Package chatcmder provides the chat command for interactive, resumable
// LLM chat.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/streamline/cmd/streamline/setup"
	"github.com/papercomputeco/streamline/pkg/cliui"
	"github.com/papercomputeco/streamline/pkg/completion"
	"github.com/papercomputeco/streamline/pkg/config"
	"github.com/papercomputeco/streamline/pkg/dotdir"
	"github.com/papercomputeco/streamline/pkg/llm"
	"github.com/papercomputeco/streamline/pkg/recorder"
	"github.com/papercomputeco/streamline/pkg/storage"
	"github.com/papercomputeco/streamline/pkg/utils"
)

const chatLongDesc string = `Start an interactive chat session.

Replies are streamed as they are generated. A dropped connection is retried
with exponential backoff; text from the failed attempt is discarded from
the history and marked in the output.

The conversation is saved to session.json in the .streamline/ directory
after every exchange and resumed by the next "streamline chat". Use --new
or the /reset command to start over.

When storage.driver is sqlite or postgres, every exchange is also recorded
as conversation turns.

Commands inside the chat:
  /reset   Start a new conversation
  /exit    Quit (Ctrl+D works too)

Examples:
  streamline chat
  streamline chat --new -m openai/gpt-4o-mini --system "You are terse."
  streamline chat --storage sqlite --sqlite ./turns.db`

const chatShortDesc string = "Interactive, resumable LLM chat"

type chatCommander struct {
	model       string
	endpoint    string
	baseDelay   string
	apiKey      string
	maxAttempts uint

	storageDriver string
	sqlitePath    string
	postgresDSN   string

	system  string
	newChat bool

	configDir string
	logger    *slog.Logger
	client    *completion.StreamingClient
	driver    storage.Driver
	sessions  *dotdir.Manager
	state     *dotdir.SessionState

	in  io.Reader
	out io.Writer
	err io.Writer
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	setup.AddClientFlags(cmd, &cmder.model, &cmder.endpoint, &cmder.baseDelay, &cmder.apiKey, &cmder.maxAttempts)
	config.AddStringFlag(cmd, config.StorageFlags, config.FlagStorage, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.StorageFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.StorageFlags, config.FlagPostgres, &cmder.postgresDSN)
	cmd.Flags().StringVar(&cmder.system, "system", "", "System message for a new conversation")
	cmd.Flags().BoolVar(&cmder.newChat, "new", false, "Start a new conversation instead of resuming")

	return cmd
}

func (c *chatCommander) run(cmd *cobra.Command) error {
	cfg, configDir, err := setup.LoadConfig(cmd,
		setup.ClientBindings(),
		setup.Binding{
			Set:  config.StorageFlags,
			Keys: []string{config.FlagStorage, config.FlagSQLite, config.FlagPostgres},
		},
	)
	if err != nil {
		return err
	}

	c.configDir = configDir
	c.logger = setup.NewLogger(cmd)
	c.in = cmd.InOrStdin()
	c.out = cmd.OutOrStdout()
	c.err = cmd.ErrOrStderr()

	opts, err := setup.ClientOptions(cfg, c.apiKey, configDir, c.logger)
	if err != nil {
		return err
	}
	c.client, err = completion.NewStreamingClient(opts...)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.Storage.Driver != config.StorageMemory {
		c.driver, err = setup.NewStorageDriver(ctx, cfg, c.logger)
		if err != nil {
			return err
		}
		defer c.driver.Close()
	}

	c.sessions = dotdir.NewManager()
	if err := c.loadSession(); err != nil {
		return err
	}

	return c.loop(ctx)
}

// loadSession resumes the saved session unless --new was given.
func (c *chatCommander) loadSession() error {
	fmt.Fprintln(c.out)

	if !c.newChat {
		state, err := c.sessions.LoadSession(c.configDir)
		if err != nil {
			return fmt.Errorf("loading session state: %w", err)
		}
		if state != nil {
			c.state = state
			fmt.Fprintf(c.out, "  %s Resuming %s %s\n",
				cliui.SuccessMark,
				cliui.HashStyle.Render(utils.Truncate(state.ConversationID, 8)),
				cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(state.Messages))),
			)
		}
	}

	if c.state == nil {
		c.reset()
		fmt.Fprintf(c.out, "  %s New conversation\n", cliui.DimStyle.Render("●"))
	}

	fmt.Fprintf(c.out, "  %s %s\n\n",
		cliui.KeyStyle.Render("Model:"),
		cliui.NameStyle.Render(c.client.Model()),
	)
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /reset starts over, /exit or Ctrl+D quits."))

	return nil
}

// reset starts a new conversation, seeded with the system message.
func (c *chatCommander) reset() {
	c.state = &dotdir.SessionState{
		ConversationID: uuid.NewString(),
		Model:          c.client.Model(),
	}
	if c.system != "" {
		c.state.Messages = append(c.state.Messages, llm.SystemMessage(c.system))
	}
}

func (c *chatCommander) loop(ctx context.Context) error {
	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(c.out, cliui.UserPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit", "/quit":
			fmt.Fprintln(c.out)
			return nil
		case "/reset":
			if err := c.sessions.ClearSession(c.configDir); err != nil {
				return err
			}
			c.reset()
			fmt.Fprintf(c.out, "  %s New conversation\n\n", cliui.DimStyle.Render("●"))
			continue
		}

		if err := c.exchange(ctx, input); err != nil {
			fmt.Fprintf(c.err, "\n  %s %v\n\n", cliui.FailMark, err)
			continue
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

// exchange sends input with the history, streams the reply and, on
// success, appends both to the session. Ctrl+C cancels the reply in flight.
func (c *chatCommander) exchange(ctx context.Context, input string) error {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	messages := append(append([]llm.Message{}, c.state.Messages...), llm.UserMessage(input))
	req := llm.NewCompletionRequest(c.client.Model(), messages, true)

	c.logger.Debug("sending chat request",
		"conversation_id", c.state.ConversationID,
		"message_count", len(messages),
	)

	fmt.Fprint(c.out, cliui.AssistantPrompt)

	var col completion.Collector
	for ev, err := range c.client.Complete(turnCtx, req) {
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return errors.New("reply cancelled")
			}
			return err
		}
		col.Add(ev)

		switch ev.Kind {
		case llm.KindContent:
			fmt.Fprint(c.out, ev.Text)
		case llm.KindAttemptRestarted:
			fmt.Fprintf(c.out, "\n%s\n%s",
				cliui.WarnStyle.Render(fmt.Sprintf("[connection lost, retry %d]", ev.Attempt)),
				cliui.AssistantPrompt,
			)
		}
	}
	fmt.Fprint(c.out, "\n\n")

	comp := col.Completion()
	c.state.Messages = append(messages, llm.AssistantMessage(comp.Content))

	if err := c.sessions.SaveSession(c.state, c.configDir); err != nil {
		c.logger.Warn("failed to save session", "error", err)
	}

	if c.driver != nil {
		_, err := recorder.Record(ctx, c.driver, recorder.Job{
			ConversationID: c.state.ConversationID,
			Request:        req,
			Completion:     comp,
			Streaming:      true,
		}, c.logger)
		if err != nil {
			c.logger.Warn("failed to record exchange", "error", err)
		}
	}

	return nil
}
