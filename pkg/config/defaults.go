package config

const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"

	defaultModel         = "openai/gpt-3.5-turbo"
	defaultEndpoint      = "https://openrouter.ai/api/v1/chat/completions"
	defaultAPIKeyEnv     = "OPENROUTER_API_KEY"
	defaultRestartPolicy = "restart-marked"

	defaultMaxAttempts = 3
	defaultBaseDelay   = "500ms"

	defaultStorageDriver = StorageMemory

	defaultServerListen  = ":8000"
	defaultServerWorkers = 3

	defaultTopic = "streamline.completions"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	metadata := true
	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			Model:         defaultModel,
			Endpoint:      defaultEndpoint,
			APIKeyEnv:     defaultAPIKeyEnv,
			RestartPolicy: defaultRestartPolicy,
			Metadata:      &metadata,
		},
		Retry: RetryConfig{
			MaxAttempts: defaultMaxAttempts,
			BaseDelay:   defaultBaseDelay,
		},
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		Server: ServerConfig{
			Listen:  defaultServerListen,
			Workers: defaultServerWorkers,
		},
		EventStream: EventStreamConfig{
			Topic: defaultTopic,
		},
	}
}
