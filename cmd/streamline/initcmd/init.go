// Package initcmder provides the init command for initializing a local
// .streamline directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/streamline/pkg/cliui"
	"github.com/papercomputeco/streamline/pkg/config"
)

const (
	dirName    = ".streamline"
	configFile = "config.toml"

	fetchTimeout = 15 * time.Second
)

const initLongDesc string = `Initialize a new .streamline/ directory in the current working directory.

Creates a local .streamline/ directory that takes precedence over the default
~/.streamline/ directory for configuration, credentials and chat sessions,
and writes a config.toml with default values if none exists.

--preset writes (or overwrites) config.toml from a named provider preset
(openrouter, openai, ollama) or from a TOML file fetched over HTTP(S).

Examples:
  streamline init
  streamline init --preset ollama
  streamline init --preset https://example.com/streamline.toml`

const initShortDesc string = "Initialize a local .streamline/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}
			return runInit(cmd.Context(), cmd.OutOrStdout(), cwd, preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "",
		"Provider preset ("+strings.Join(config.ValidPresetNames(), ", ")+") or URL of a config.toml")

	return cmd
}

func runInit(ctx context.Context, w io.Writer, cwd, preset string) error {
	// Resolve the preset before touching the filesystem so a bad preset
	// leaves nothing behind.
	var cfg *config.Config
	if preset != "" {
		var err error
		cfg, err = resolvePreset(ctx, w, preset)
		if err != nil {
			return err
		}
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		fmt.Fprintf(w, "Already initialized: %s\n", dir)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .streamline directory: %w", err)
		}
		fmt.Fprintf(w, "Initialized .streamline directory: %s\n", dir)
	}

	if cfg == nil {
		_, err := os.Stat(filepath.Join(dir, configFile))
		if err == nil {
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("checking config: %w", err)
		}
		cfg = config.NewDefaultConfig()
	}

	cfger, err := config.NewConfiger(dir, true)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	label := "defaults"
	if preset != "" {
		label = preset
	}
	fmt.Fprintf(w, "%s Wrote %s to %s\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(label),
		cliui.DimStyle.Render(cfger.GetTarget()),
	)
	return nil
}

func resolvePreset(ctx context.Context, w io.Writer, preset string) (*config.Config, error) {
	if strings.HasPrefix(preset, "http://") || strings.HasPrefix(preset, "https://") {
		var cfg *config.Config
		err := cliui.Step(w, "Fetching "+preset, func() error {
			var err error
			cfg, err = fetchRemoteConfig(ctx, preset)
			return err
		})
		return cfg, err
	}
	return config.PresetConfig(preset)
}

// fetchRemoteConfig downloads and parses a config.toml.
func fetchRemoteConfig(ctx context.Context, url string) (*config.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	return config.ParseConfigTOML(data)
}
