package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/streamline/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the STREAMLINE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (STREAMLINE_SERVER_LISTEN, STREAMLINE_CLIENT_MODEL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("STREAMLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes a Config from the resolved viper values.
func FromViper(v *viper.Viper) (*Config, error) {
	metadata := v.GetBool("client.metadata")
	cfg := &Config{
		Version: v.GetInt("version"),
		Client: ClientConfig{
			Model:         v.GetString("client.model"),
			Endpoint:      v.GetString("client.endpoint"),
			APIKeyEnv:     v.GetString("client.api_key_env"),
			RestartPolicy: v.GetString("client.restart_policy"),
			Metadata:      &metadata,
			Referer:       v.GetString("client.referer"),
			Title:         v.GetString("client.title"),
		},
		Retry: RetryConfig{
			MaxAttempts: v.GetUint("retry.max_attempts"),
			BaseDelay:   v.GetString("retry.base_delay"),
			MaxDelay:    v.GetString("retry.max_delay"),
		},
		Storage: StorageConfig{
			Driver:      v.GetString("storage.driver"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		Server: ServerConfig{
			Listen:  v.GetString("server.listen"),
			Workers: v.GetUint("server.workers"),
		},
		EventStream: EventStreamConfig{
			Brokers: stringList(v.Get("eventstream.brokers")),
			Topic:   v.GetString("eventstream.topic"),
		},
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}
	if _, _, err := cfg.Retry.Durations(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// stringList accepts a TOML array or a comma separated string, the latter
// being what environment variables and flags carry.
func stringList(raw any) []string {
	switch val := raw.(type) {
	case string:
		return splitList(val)
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Client
	v.SetDefault("client.model", d.Client.Model)
	v.SetDefault("client.endpoint", d.Client.Endpoint)
	v.SetDefault("client.api_key_env", d.Client.APIKeyEnv)
	v.SetDefault("client.restart_policy", d.Client.RestartPolicy)
	v.SetDefault("client.metadata", d.Client.IncludeMetadata())
	v.SetDefault("client.referer", d.Client.Referer)
	v.SetDefault("client.title", d.Client.Title)

	// Retry
	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.base_delay", d.Retry.BaseDelay)
	v.SetDefault("retry.max_delay", d.Retry.MaxDelay)

	// Storage
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Server
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.workers", d.Server.Workers)

	// Event stream
	v.SetDefault("eventstream.brokers", "")
	v.SetDefault("eventstream.topic", d.EventStream.Topic)
}
