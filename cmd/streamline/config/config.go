// Package configcmder provides the config command for managing persistent
// streamline configuration stored in the .streamline/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent streamline configuration.

Configuration is stored as config.toml in the .streamline/ directory and
provides default values for command flags. CLI flags and STREAMLINE_*
environment variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  client.model, client.endpoint, client.api_key_env, client.restart_policy,
  client.metadata, client.referer, client.title,
  retry.max_attempts, retry.base_delay, retry.max_delay,
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  server.listen, server.workers,
  eventstream.brokers, eventstream.topic

Use subcommands to get, set, or list configuration values:
  streamline config set <key> <value>    Set a configuration value
  streamline config get <key>            Get a configuration value
  streamline config list                 List all configuration values

Examples:
  streamline config set client.model openai/gpt-4o-mini
  streamline config set retry.base_delay 250ms
  streamline config get client.endpoint
  streamline config list`

const configShortDesc string = "Manage persistent streamline configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
