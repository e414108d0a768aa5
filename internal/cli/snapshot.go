package cli

import (
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Fetch every feed once and print the dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Snapshot(cmd.Context())
	},
}
