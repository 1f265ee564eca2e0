// Package credentials stores provider API keys in .streamline/credentials.toml
// and resolves the key a client should use.
package credentials

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/streamline/pkg/dotdir"
)

const (
	credentialsFile = "credentials.toml"

	fileVersion = 1
)

// envVars maps supported providers to the variable their key is read from.
var envVars = map[string]string{
	"openrouter": "OPENROUTER_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"ollama":     "OLLAMA_API_KEY",
}

// Manager reads and writes credentials.toml.
type Manager struct {
	path string
	now  func() time.Time
}

// NewManager resolves the .streamline/ directory (override first, creating
// ~/.streamline/ when none exists) and returns a Manager for its
// credentials.toml.
func NewManager(override string) (*Manager, error) {
	dir, err := dotdir.NewManager().Ensure(override)
	if err != nil {
		return nil, err
	}

	return &Manager{
		path: filepath.Join(dir, credentialsFile),
		now:  time.Now,
	}, nil
}

// GetTarget returns the path of credentials.toml.
func (m *Manager) GetTarget() string {
	return m.path
}

// Load reads credentials.toml. A missing file is an empty store.
func (m *Manager) Load() (*File, error) {
	f := &File{Version: fileVersion}

	data, err := os.ReadFile(m.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading credentials: %w", err)
	default:
		if err := toml.Unmarshal(data, f); err != nil {
			return nil, fmt.Errorf("parsing credentials: %w", err)
		}
	}

	if f.Providers == nil {
		f.Providers = map[string]StoredKey{}
	}
	return f, nil
}

// Save replaces credentials.toml with f. os.CreateTemp leaves the file
// readable by the owner only.
func (m *Manager) Save(f *File) error {
	if f == nil {
		return errors.New("cannot save nil credentials")
	}
	f.Version = fileVersion

	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".credentials-*.toml")
	if err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(f); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

// update loads the store, applies fn and saves the result.
func (m *Manager) update(fn func(*File)) error {
	f, err := m.Load()
	if err != nil {
		return err
	}
	fn(f)
	return m.Save(f)
}

// SetKey stores key for provider, replacing any previous one.
func (m *Manager) SetKey(provider, key string) error {
	return m.update(func(f *File) {
		f.Providers[provider] = StoredKey{APIKey: key, SavedAt: m.now().UTC()}
	})
}

// GetKey returns the key stored for provider, or "" when there is none.
func (m *Manager) GetKey(provider string) (string, error) {
	f, err := m.Load()
	if err != nil {
		return "", err
	}
	return f.Providers[provider].APIKey, nil
}

// RemoveKey deletes the key stored for provider and reports whether there
// was one.
func (m *Manager) RemoveKey(provider string) (bool, error) {
	var found bool
	err := m.update(func(f *File) {
		_, found = f.Providers[provider]
		delete(f.Providers, provider)
	})
	return found, err
}

// List describes every stored key, sorted by provider.
func (m *Manager) List() ([]Entry, error) {
	f, err := m.Load()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(f.Providers))
	for _, p := range slices.Sorted(maps.Keys(f.Providers)) {
		k := f.Providers[p]
		entries = append(entries, Entry{
			Provider: p,
			EnvVar:   EnvVarForProvider(p),
			Masked:   Mask(k.APIKey),
			SavedAt:  k.SavedAt,
		})
	}
	return entries, nil
}

// Mask hides all but the last four characters of key.
func Mask(key string) string {
	const visible = 4
	if len(key) <= visible*2 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 8) + key[len(key)-visible:]
}

// EnvVarForProvider returns the variable holding provider's key, or "" for
// unknown providers.
func EnvVarForProvider(provider string) string {
	return envVars[provider]
}

// ProviderForEnvVar is the inverse of EnvVarForProvider. Unknown variables
// map to their lowercased name without the _API_KEY suffix.
func ProviderForEnvVar(envVar string) string {
	for provider, name := range envVars {
		if name == envVar {
			return provider
		}
	}
	return strings.ToLower(strings.TrimSuffix(envVar, "_API_KEY"))
}

// SupportedProviders lists the providers auth accepts.
func SupportedProviders() []string {
	return []string{"openrouter", "openai", "ollama"}
}

// IsSupportedProvider reports whether provider is in SupportedProviders.
func IsSupportedProvider(provider string) bool {
	return slices.Contains(SupportedProviders(), provider)
}

// Resolve returns the API key to use, in order of precedence:
//  1. explicit, typically a --api-key flag
//  2. the envVar environment variable, read through lookup
//  3. the key stored for the provider owning envVar
//
// An empty result with a nil error means no credential was found anywhere.
// A nil manager skips the stored lookup.
func Resolve(explicit, envVar string, lookup func(string) (string, bool), m *Manager) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}
	if envVar != "" {
		if v, ok := lookup(envVar); ok && v != "" {
			return v, nil
		}
	}

	if m == nil {
		return "", nil
	}

	return m.GetKey(ProviderForEnvVar(envVar))
}
