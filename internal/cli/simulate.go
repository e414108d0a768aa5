package cli

import (
	"github.com/spf13/cobra"
)

var simulateMessage string

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "模拟一次 fatal 状态并触发告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), simulateMessage)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateMessage, "message", "", "附加到告警末尾的文本")
}
