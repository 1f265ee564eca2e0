package setup

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/streamline/pkg/config"
	"github.com/papercomputeco/streamline/pkg/logger"
)

// Binding names registered flags of a FlagSet to bind into viper.
type Binding struct {
	Set  config.FlagSet
	Keys []string
}

// LoadConfig resolves the command's configuration with the precedence
// flag > env > config.toml > default. It also returns the --config-dir
// override so callers can reach credentials and session state.
func LoadConfig(cmd *cobra.Command, bindings ...Binding) (*config.Config, string, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}

	for _, b := range bindings {
		config.BindRegisteredFlags(v, cmd, b.Set, b.Keys)
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}

	return cfg, configDir, nil
}

// NewLogger returns the pretty stderr logger interactive commands use,
// at debug level when --debug is set.
func NewLogger(cmd *cobra.Command) *slog.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	return logger.New(
		logger.WithDebug(debug),
		logger.WithFormat(logger.FormatPretty),
		logger.WithWriter(cmd.ErrOrStderr()),
	)
}

// ClientBindings is the binding of every ClientFlags entry.
func ClientBindings() Binding {
	return Binding{
		Set: config.ClientFlags,
		Keys: []string{
			config.FlagModel,
			config.FlagEndpoint,
			config.FlagMaxAttempts,
			config.FlagBaseDelay,
		},
	}
}

// AddClientFlags registers ClientFlags and --api-key on cmd.
func AddClientFlags(cmd *cobra.Command, model, endpoint, baseDelay, apiKey *string, maxAttempts *uint) {
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagModel, model)
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagEndpoint, endpoint)
	config.AddUintFlag(cmd, config.ClientFlags, config.FlagMaxAttempts, maxAttempts)
	config.AddStringFlag(cmd, config.ClientFlags, config.FlagBaseDelay, baseDelay)
	cmd.Flags().StringVar(apiKey, "api-key", "", "API key (overrides the configured environment variable)")
}
