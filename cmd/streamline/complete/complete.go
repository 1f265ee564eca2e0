// Package completecmder provides the complete command for one-shot
// completions.
package completecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/streamline/cmd/streamline/setup"
	"github.com/papercomputeco/streamline/pkg/cliui"
	"github.com/papercomputeco/streamline/pkg/completion"
	"github.com/papercomputeco/streamline/pkg/llm"
)

const completeLongDesc string = `Send a single prompt and print the reply.

The prompt is taken from the arguments, or from stdin when none are given.
With --stream the reply is printed fragment by fragment as it arrives;
failed requests are retried with exponential backoff either way.

Examples:
  streamline complete "Explain backpressure in one paragraph"
  streamline complete --stream -m openai/gpt-4o-mini "Write a haiku"
  cat notes.md | streamline complete --system "Summarize this" --markdown`

const completeShortDesc string = "One-shot completion"

type completeCommander struct {
	model       string
	endpoint    string
	baseDelay   string
	apiKey      string
	maxAttempts uint

	system       string
	stream       bool
	markdown     bool
	showMetadata bool
}

func NewCompleteCmd() *cobra.Command {
	cmder := &completeCommander{}

	cmd := &cobra.Command{
		Use:   "complete [prompt]",
		Short: completeShortDesc,
		Long:  completeLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args)
		},
	}

	setup.AddClientFlags(cmd, &cmder.model, &cmder.endpoint, &cmder.baseDelay, &cmder.apiKey, &cmder.maxAttempts)
	cmd.Flags().StringVar(&cmder.system, "system", "", "System message sent before the prompt")
	cmd.Flags().BoolVar(&cmder.stream, "stream", false, "Stream the reply as it is generated")
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render the reply as markdown")
	cmd.Flags().BoolVar(&cmder.showMetadata, "show-metadata", false, "Print generation id, model and token usage to stderr")

	return cmd
}

func (c *completeCommander) run(cmd *cobra.Command, args []string) error {
	if c.stream && c.markdown {
		return errors.New("--markdown cannot be combined with --stream")
	}

	prompt, err := readPrompt(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	cfg, configDir, err := setup.LoadConfig(cmd, setup.ClientBindings())
	if err != nil {
		return err
	}

	log := setup.NewLogger(cmd)

	opts, err := setup.ClientOptions(cfg, c.apiKey, configDir, log)
	if err != nil {
		return err
	}

	var messages []llm.Message
	if c.system != "" {
		messages = append(messages, llm.SystemMessage(c.system))
	}
	messages = append(messages, llm.UserMessage(prompt))

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()

	var comp *llm.Completion
	if c.stream {
		comp, err = c.runStream(ctx, cmd, opts, messages)
	} else {
		comp, err = c.runOnce(ctx, out, opts, messages)
	}
	if err != nil {
		return err
	}

	if c.showMetadata {
		printMetadata(cmd.ErrOrStderr(), comp.Metadata)
	}
	return nil
}

func (c *completeCommander) runOnce(ctx context.Context, out io.Writer, opts []completion.Option, messages []llm.Message) (*llm.Completion, error) {
	client, err := completion.NewClient(opts...)
	if err != nil {
		return nil, err
	}

	comp, err := client.Complete(ctx, llm.NewCompletionRequest(client.Model(), messages, false))
	if err != nil {
		return nil, err
	}

	text := comp.Content
	if c.markdown {
		// RenderMarkdown falls back to the raw text on error.
		text, _ = cliui.RenderMarkdown(text)
	}
	fmt.Fprint(out, text)
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(out)
	}

	return comp, nil
}

func (c *completeCommander) runStream(ctx context.Context, cmd *cobra.Command, opts []completion.Option, messages []llm.Message) (*llm.Completion, error) {
	client, err := completion.NewStreamingClient(opts...)
	if err != nil {
		return nil, err
	}

	out := cmd.OutOrStdout()

	var col completion.Collector
	for ev, err := range client.Stream(ctx, messages) {
		if err != nil {
			fmt.Fprintln(out)
			return nil, err
		}
		col.Add(ev)

		switch ev.Kind {
		case llm.KindContent:
			fmt.Fprint(out, ev.Text)
		case llm.KindAttemptRestarted:
			fmt.Fprintf(cmd.ErrOrStderr(), "\n%s\n", cliui.WarnStyle.Render(fmt.Sprintf("[connection lost, retry %d]", ev.Attempt)))
		}
	}
	fmt.Fprintln(out)

	return col.Completion(), nil
}

// readPrompt joins args, or reads all of in when there are none.
func readPrompt(in io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("reading prompt from stdin: %w", err)
	}

	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errors.New("prompt required: pass it as an argument or on stdin")
	}
	return prompt, nil
}

func printMetadata(w io.Writer, md *llm.Metadata) {
	if md == nil {
		fmt.Fprintf(w, "%s\n", cliui.DimStyle.Render("no metadata received"))
		return
	}

	row := func(key, value string) {
		if value != "" {
			fmt.Fprintf(w, "%s %s\n", cliui.KeyStyle.Render(key), cliui.ValueStyle.Render(value))
		}
	}
	count := func(n *int) string {
		if n == nil {
			return ""
		}
		return fmt.Sprint(*n)
	}

	row("generation_id:", md.GenerationID)
	row("model:", md.Model)
	row("prompt_tokens:", count(md.PromptTokens))
	row("completion_tokens:", count(md.CompletionTokens))
	row("total_tokens:", count(md.TotalTokens))
}
