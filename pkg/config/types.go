package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent streamline configuration stored as
// config.toml in the .streamline/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Client      ClientConfig      `toml:"client"`
	Retry       RetryConfig       `toml:"retry"`
	Storage     StorageConfig     `toml:"storage"`
	Server      ServerConfig      `toml:"server"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// ClientConfig holds settings for the completion clients.
type ClientConfig struct {
	Model         string `toml:"model,omitempty"`
	Endpoint      string `toml:"endpoint,omitempty"`
	APIKeyEnv     string `toml:"api_key_env,omitempty"`
	RestartPolicy string `toml:"restart_policy,omitempty"`
	Metadata      *bool  `toml:"metadata,omitempty"`
	Referer       string `toml:"referer,omitempty"`
	Title         string `toml:"title,omitempty"`
}

// IncludeMetadata reports whether metadata records are requested. Unset means
// true.
func (c ClientConfig) IncludeMetadata() bool {
	return c.Metadata == nil || *c.Metadata
}

// RetryConfig holds the retry policy. Delays are Go duration strings
// (e.g. "500ms").
type RetryConfig struct {
	MaxAttempts uint   `toml:"max_attempts,omitempty"`
	BaseDelay   string `toml:"base_delay,omitempty"`
	MaxDelay    string `toml:"max_delay,omitempty"`
}

// Durations parses BaseDelay and MaxDelay. An empty MaxDelay is zero.
func (r RetryConfig) Durations() (base, maxDelay time.Duration, err error) {
	if r.BaseDelay != "" {
		base, err = time.ParseDuration(r.BaseDelay)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid retry.base_delay: %w", err)
		}
	}
	if r.MaxDelay != "" {
		maxDelay, err = time.ParseDuration(r.MaxDelay)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid retry.max_delay: %w", err)
		}
	}
	return base, maxDelay, nil
}

// StorageConfig selects where recorded turns are kept.
type StorageConfig struct {
	// Driver is one of "memory", "sqlite" or "postgres".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// ServerConfig holds HTTP front end settings.
type ServerConfig struct {
	Listen  string `toml:"listen,omitempty"`
	Workers uint   `toml:"workers,omitempty"`
}

// EventStreamConfig holds Kafka publishing settings. Publishing is disabled
// while Brokers is empty.
type EventStreamConfig struct {
	Brokers []string `toml:"brokers,omitempty"`
	Topic   string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"client.model": {
		get: func(c *Config) string { return c.Client.Model },
		set: func(c *Config, v string) error { c.Client.Model = v; return nil },
	},
	"client.endpoint": {
		get: func(c *Config) string { return c.Client.Endpoint },
		set: func(c *Config, v string) error { c.Client.Endpoint = v; return nil },
	},
	"client.api_key_env": {
		get: func(c *Config) string { return c.Client.APIKeyEnv },
		set: func(c *Config, v string) error { c.Client.APIKeyEnv = v; return nil },
	},
	"client.restart_policy": {
		get: func(c *Config) string { return c.Client.RestartPolicy },
		set: func(c *Config, v string) error {
			switch v {
			case "restart-marked", "restart-fresh", "resume-unsupported":
				c.Client.RestartPolicy = v
				return nil
			default:
				return fmt.Errorf("invalid value for client.restart_policy: %q", v)
			}
		},
	},
	"client.metadata": {
		get: func(c *Config) string { return strconv.FormatBool(c.Client.IncludeMetadata()) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for client.metadata: %w", err)
			}
			c.Client.Metadata = &b
			return nil
		},
	},
	"client.referer": {
		get: func(c *Config) string { return c.Client.Referer },
		set: func(c *Config, v string) error { c.Client.Referer = v; return nil },
	},
	"client.title": {
		get: func(c *Config) string { return c.Client.Title },
		set: func(c *Config, v string) error { c.Client.Title = v; return nil },
	},
	"retry.max_attempts": {
		get: func(c *Config) string { return formatUint(c.Retry.MaxAttempts) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for retry.max_attempts: %w", err)
			}
			if n == 0 {
				return fmt.Errorf("invalid value for retry.max_attempts: must be at least 1")
			}
			c.Retry.MaxAttempts = uint(n)
			return nil
		},
	},
	"retry.base_delay": {
		get: func(c *Config) string { return c.Retry.BaseDelay },
		set: durationSetter("retry.base_delay", func(c *Config, v string) { c.Retry.BaseDelay = v }),
	},
	"retry.max_delay": {
		get: func(c *Config) string { return c.Retry.MaxDelay },
		set: durationSetter("retry.max_delay", func(c *Config, v string) { c.Retry.MaxDelay = v }),
	},
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error {
			switch v {
			case StorageMemory, StorageSQLite, StoragePostgres:
				c.Storage.Driver = v
				return nil
			default:
				return fmt.Errorf("invalid value for storage.driver: %q (available: memory, sqlite, postgres)", v)
			}
		},
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"server.listen": {
		get: func(c *Config) string { return c.Server.Listen },
		set: func(c *Config, v string) error { c.Server.Listen = v; return nil },
	},
	"server.workers": {
		get: func(c *Config) string { return formatUint(c.Server.Workers) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for server.workers: %w", err)
			}
			c.Server.Workers = uint(n)
			return nil
		},
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.EventStream.Brokers = splitList(v)
			return nil
		},
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
}

func durationSetter(key string, assign func(c *Config, v string)) func(c *Config, v string) error {
	return func(c *Config, v string) error {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		assign(c, v)
		return nil
	}
}

func formatUint(n uint) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(n), 10)
}

// splitList splits a comma separated list, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
