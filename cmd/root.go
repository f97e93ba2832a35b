// Package cmd is the heartflow CLI: a thin host around the decision
// engine for local runs and inspection.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagVerbose bool
)

// Execute runs the CLI.
func Execute() error {
	root := &cobra.Command{
		Use:   "heartflow",
		Short: "heartflow — autonomous conversation decision engine",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if flagVerbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr,
				&slog.HandlerOptions{Level: level})))
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "heartflow.json5", "config file path")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	root.AddCommand(runCmd())
	root.AddCommand(actionsCmd())
	root.AddCommand(doctorCmd())

	return root.Execute()
}
