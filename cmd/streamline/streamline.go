// Package streamlinecmder
package streamlinecmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/streamline/cmd/streamline/auth"
	chatcmder "github.com/papercomputeco/streamline/cmd/streamline/chat"
	completecmder "github.com/papercomputeco/streamline/cmd/streamline/complete"
	configcmder "github.com/papercomputeco/streamline/cmd/streamline/config"
	initcmder "github.com/papercomputeco/streamline/cmd/streamline/initcmd"
	servecmder "github.com/papercomputeco/streamline/cmd/streamline/serve"
	versioncmder "github.com/papercomputeco/streamline/cmd/streamline/version"
)

const streamlineLongDesc string = `Streamline talks to OpenAI-compatible chat completion APIs, streaming
replies as they are generated and retrying failed requests with
exponential backoff.

Commands:
  streamline complete "prompt"   One-shot completion (streamed with --stream)
  streamline chat                Interactive chat, resumable across runs
  streamline serve               HTTP front end with recording and MCP tools
  streamline auth <provider>     Store an API key
  streamline config              Manage persistent configuration`

const streamlineShortDesc string = "Streamline - streaming LLM completions"

func NewStreamlineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "streamline",
		Short:        streamlineShortDesc,
		Long:         streamlineLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .streamline/ config directory")

	// Add subcommands
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(completecmder.NewCompleteCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
