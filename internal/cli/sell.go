package cli

import (
	"github.com/spf13/cobra"
)

var sellCmd = &cobra.Command{
	Use:   "sell SYMBOL",
	Short: "Ask the engine to close an open position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Sell(cmd.Context(), args[0])
	},
}
