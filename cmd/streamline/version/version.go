// Package versioncmder provides the version command.
package versioncmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/streamline/pkg/utils"
)

func NewVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the streamline version",
		Long:  "Print the version, commit and build time of this streamline binary.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(w, utils.Version)
				return nil
			}
			fmt.Fprintf(w, "streamline %s\ncommit:   %s\nbuilt at: %s\n", utils.Version, utils.Sha, utils.Buildtime)
			return nil
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print only the version")

	return cmd
}
