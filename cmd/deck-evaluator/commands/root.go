// Package commands implements the deck-evaluator CLI.
package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/spherical/deck-evaluator/cmd/deck-evaluator/ui"
	"github.com/spherical/deck-evaluator/internal/config"
	"github.com/spherical/deck-evaluator/internal/observability"
)

// Version is overridden at build time with -ldflags "-X ...commands.Version=...".
var Version = "0.1.0"

var (
	cfgFile    string
	verbose    bool
	jsonOutput bool
	noColor    bool
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deck-evaluator",
		Short: "Score pitch-deck PDFs with vision and language models",
		Long: `deck-evaluator reads pitch-deck PDFs, reviews their slide design and their
content with language models, and asks a judge model for a score card per deck.
Decks are evaluated concurrently; a failing deck never affects the others.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.Init(noColor)
		},
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(newServeCmd(), newEvaluateCmd(), newVersionCmd())
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the config file selected by --config and applies CLI flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Observability.LogLevel = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to w so stdout stays clean
// for --json output.
func newLogger(cfg *config.Config, w io.Writer) *observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		Output:      w,
		ServiceName: cfg.Observability.ServiceName,
	})
}
