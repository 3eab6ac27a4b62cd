// Package commands implements the kontoexport command line.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/FACorreiaa/kontoexport/pkg/config"
)

var (
	verbose     bool
	noColor     bool
	apiBase     string
	metricsAddr string
	outDir      string

	deps *Dependencies
)

var rootCmd = &cobra.Command{
	Use:   "kontoexport",
	Short: "Convert PDF bank statements into spreadsheets",
	Long: `kontoexport uploads a PDF bank statement to a conversion service, waits for
the spreadsheet, lets you review and correct the extracted rows and saves the
result as xlsx or csv. Jobs expire on the server after a short time and can be
deleted right away.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := applyFlags(cmd, cfg); err != nil {
			return err
		}

		if noColor {
			color.NoColor = true
		}

		level := cfg.Log.SlogLevel()
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		deps, err = InitDependencies(cfg, logger)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if deps != nil {
			deps.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&apiBase, "api-base", "", "conversion service URL (overrides KONTOEXPORT_API_BASE)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	rootCmd.PersistentFlags().StringVarP(&outDir, "out", "o", "", "directory for downloaded spreadsheets (overrides KONTOEXPORT_OUTPUT_DIR)")
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("api-base") {
		cfg.API.BaseURL = apiBase
	}
	if flags.Changed("metrics-addr") {
		cfg.Observability.MetricsEnabled = true
		cfg.Observability.MetricsAddr = metricsAddr
	}
	if flags.Changed("out") {
		cfg.Output.Dir = outDir
	}
	return cfg.Validate()
}

// interactive reports whether progress animations can be drawn.
func interactive() bool {
	return !noColor && isatty.IsTerminal(os.Stderr.Fd())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
