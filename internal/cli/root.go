// Package cli implements the tsunamictl command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/SimonXuku/tsunami/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "tsunamictl",
	Short: "Closed-loop dosing engine control tool",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.FromEnv())
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(inspectCmd)
}
