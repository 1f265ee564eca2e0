package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/streamline/pkg/cliui"
	"github.com/papercomputeco/streamline/pkg/config"
)

const listLongDesc string = `List all configuration values.

Prints every configuration key, grouped by section, with its value from
config.toml in the .streamline/ directory. Values equal to the built-in
default are marked.

Examples:
  streamline config list`

const listShortDesc string = "List all configuration values"

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runList(cmd.OutOrStdout(), configDir)
		},
	}

	return cmd
}

func runList(w io.Writer, configDir string) error {
	cfger, err := config.NewConfiger(configDir, false)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	printTarget(w, cfger)

	keys := config.ValidConfigKeys()
	width := 0
	for _, k := range keys {
		width = max(width, len(k))
	}

	section := ""
	for _, key := range keys {
		value, err := cfger.GetConfigValue(key)
		if err != nil {
			return err
		}
		def, err := config.DefaultConfigValue(key)
		if err != nil {
			return err
		}

		if s, _, _ := strings.Cut(key, "."); s != section {
			if section != "" {
				fmt.Fprintln(w)
			}
			section = s
		}

		shown := cliui.DimStyle.Render("<not set>")
		if value != "" {
			shown = cliui.ValueStyle.Render(fmt.Sprintf("%q", value))
		}
		note := ""
		if value != "" && value == def {
			note = " " + cliui.DimStyle.Render("(default)")
		}

		fmt.Fprintf(w, "%s = %s%s\n", cliui.KeyStyle.Render(fmt.Sprintf("%-*s", width, key)), shown, note)
	}

	return nil
}
