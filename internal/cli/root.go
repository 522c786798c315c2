// Package cli implements the assayctl command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"assaycore/internal/core"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "assayctl",
	Short: "ELISA calibration, quality control, and SOP workflow tooling",
	Long: `assayctl drives the assay core from the command line.

Fit logistic calibration curves, evaluate control runs against the Westgard
multi-rule scheme, sequence SOP workflow steps, and export report artifacts.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(
			tint.NewHandler(os.Stderr, &tint.Options{
				Level:      level,
				TimeFormat: "15:04:05",
			}),
		))
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(fitCmd)
	rootCmd.AddCommand(qcCmd)
	rootCmd.AddCommand(sopCmd)
	rootCmd.AddCommand(exportCmd)
}

// newService opens the configured persistent store and wraps it in a service.
func newService() (*core.Service, error) {
	store, err := core.OpenPersistentStore()
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return core.NewService(store, core.WithLogger(slog.Default())), nil
}
