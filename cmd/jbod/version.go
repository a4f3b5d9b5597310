package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sigreer/jbod/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	// Skip config loading so version works without a readable config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOut {
			return writeJSON(os.Stdout, version.Get())
		}
		return version.Print(os.Stdout)
	},
}
