package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mossy-p/callroom/internal/ui"
)

var rootCmd = &cobra.Command{
	Use:   "callroom",
	Short: "Room chat and WebRTC calls from the terminal",
	Long: `callroom joins a room on a signaling server, exchanges chat messages with
the other members, and places audio or video calls to them over WebRTC.`,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
