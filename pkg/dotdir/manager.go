// Package dotdir manages the .streamline/ and ~/.streamline directories.
//
// The directory holds config.toml, credentials.toml and the session state
// that lets "streamline chat --resume" continue the previous conversation.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the streamline directory.
	dirName = ".streamline"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .streamline/ directory.
// Order of precedence is as follows:
//  1. Provided override (created if missing)
//  2. Local ./.streamline/ dir
//  3. Home ~/.streamline/ dir
//
// Returns an empty string when no override is given and neither the local
// nor the home directory exists.
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating streamline directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	if dir, ok := m.localDir(); ok {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	dir := filepath.Join(home, dirName)
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir, nil
	}

	return "", nil
}

// Ensure behaves like Target but creates ~/.streamline/ when nothing else
// resolves, so callers that write state always get a directory.
func (m *Manager) Ensure(overrideDir string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil || dir != "" {
		return dir, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	dir = filepath.Join(home, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating streamline directory %s: %w", dir, err)
	}

	return dir, nil
}

// localDir reports the ./.streamline/ directory in the current working
// directory when it exists.
func (m *Manager) localDir() (string, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false
	}

	dir := filepath.Join(cwd, dirName)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", false
	}

	return dir, true
}
