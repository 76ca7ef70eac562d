package main

import (
	"github.com/spf13/cobra"

	"github.com/LastGentlman/chandra/internal/api"
	"github.com/LastGentlman/chandra/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return api.Output(version.Get())
	},
}
