package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag describes a CLI flag once so every command that shares it (--model on
// chat, complete and serve) registers the same name, shorthand, default and
// help text.
type Flag struct {
	// Name is the long flag name (e.g. "model").
	Name string

	// Shorthand is the one-letter short flag (e.g. "m"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "client.model").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys for AddStringFlag, AddUintFlag and BindRegisteredFlags.
const (
	FlagModel       = "model"
	FlagEndpoint    = "endpoint"
	FlagMaxAttempts = "max-attempts"
	FlagBaseDelay   = "base-delay"
	FlagListen      = "listen"
	FlagWorkers     = "workers"
	FlagStorage     = "storage"
	FlagSQLite      = "sqlite"
	FlagPostgres    = "postgres"
	FlagBrokers     = "kafka-brokers"
	FlagTopic       = "kafka-topic"
)

// ClientFlags are shared by every command that talks to the completion API.
var ClientFlags = FlagSet{
	FlagModel:       {Name: "model", Shorthand: "m", ViperKey: "client.model", Description: "Model to request completions from"},
	FlagEndpoint:    {Name: "endpoint", ViperKey: "client.endpoint", Description: "Chat completions endpoint URL"},
	FlagMaxAttempts: {Name: "max-attempts", ViperKey: "retry.max_attempts", Description: "Total attempts before giving up"},
	FlagBaseDelay:   {Name: "base-delay", ViperKey: "retry.base_delay", Description: "Base retry delay, doubled per attempt"},
}

// StorageFlags select where recorded turns go.
var StorageFlags = FlagSet{
	FlagStorage:  {Name: "storage", ViperKey: "storage.driver", Description: "Storage driver (memory, sqlite, postgres)"},
	FlagSQLite:   {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database"},
	FlagPostgres: {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
}

// ServerFlags configure the HTTP front end.
var ServerFlags = FlagSet{
	FlagListen:  {Name: "listen", Shorthand: "l", ViperKey: "server.listen", Description: "Address for the HTTP server to listen on"},
	FlagWorkers: {Name: "workers", ViperKey: "server.workers", Description: "Number of recorder workers"},
	FlagBrokers: {Name: "kafka-brokers", ViperKey: "eventstream.brokers", Description: "Comma separated Kafka brokers (empty disables publishing)"},
	FlagTopic:   {Name: "kafka-topic", ViperKey: "eventstream.topic", Description: "Kafka topic for completion events"},
}

// AddStringFlag registers fs[key] on cmd as a string flag. The default comes
// from NewDefaultConfig.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds the registered flags named by registryKeys to
// their viper keys, giving the precedence flag > env > config file > default.
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
