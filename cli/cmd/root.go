// Package cmd holds the hdlflow command tree.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "hdlflow",
	Short: "hdlflow - hardware synthesis flow orchestrator",
	Long: `hdlflow drives synthesis toolchains through generated control scripts.

A project file declares designs and per-backend flow settings; hdlflow
renders the control script, runs the tool, parses its reports and judges
the run as success, timing failure, warning failure or tool error.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger; --verbose lowers the level to debug.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(backendsCmd)
	rootCmd.AddCommand(serveCmd)
}
