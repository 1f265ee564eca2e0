package credentials

import "time"

// File is the on-disk layout of credentials.toml.
type File struct {
	Version   int                    `toml:"version"`
	Providers map[string]StoredKey `toml:"providers"`
}

// StoredKey is one provider's entry in credentials.toml.
type StoredKey struct {
	APIKey  string    `toml:"api_key"`
	SavedAt time.Time `toml:"saved_at"`
}

// Entry describes a stored key without exposing it.
type Entry struct {
	Provider string
	EnvVar   string
	Masked   string
	SavedAt  time.Time
}
