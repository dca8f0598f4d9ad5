package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/deck-evaluator/cmd/deck-evaluator/ui"
	"github.com/spherical/deck-evaluator/internal/api"
	"github.com/spherical/deck-evaluator/internal/loader"
	"github.com/spherical/deck-evaluator/pkg/evaluator"
)

type evaluateFlags struct {
	concurrency int
	scratchDir  string
	strategy    string
	timeout     time.Duration
	reasoning   bool
}

func newEvaluateCmd() *cobra.Command {
	var flags evaluateFlags

	cmd := &cobra.Command{
		Use:   "evaluate [dir]",
		Short: "Evaluate every deck in a directory once",
		Long: `Evaluate every PDF in dir (default: the configured source directory) and
print a score table. A missing directory is created and reported as empty.`,
		Example: `  deck-evaluator evaluate test_ppts
  deck-evaluator evaluate --json --concurrency 5 decks/`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Source.Dir = args[0]
			}
			if flags.concurrency > 0 {
				cfg.Batch.Concurrency = flags.concurrency
			}
			if flags.scratchDir != "" {
				cfg.Scratch.Root = flags.scratchDir
			}
			if flags.strategy != "" {
				cfg.Extract.Strategy = flags.strategy
			}
			if flags.timeout > 0 {
				cfg.Batch.DocumentTimeout = flags.timeout
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runEvaluate(ctx, cfg, flags, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "decks evaluated at once (overrides config)")
	cmd.Flags().StringVar(&flags.scratchDir, "scratch-dir", "", "scratch root for slide images")
	cmd.Flags().StringVar(&flags.strategy, "strategy", "", "slide asset strategy: png or jpeg")
	cmd.Flags().DurationVar(&flags.timeout, "document-timeout", 0, "deadline per deck, 0 for none")
	cmd.Flags().BoolVar(&flags.reasoning, "reasoning", false, "print the judge's reasoning")
	return cmd
}

func runEvaluate(ctx context.Context, cfg *evaluator.Config, flags evaluateFlags, stdout, stderr io.Writer) error {
	logger := newLogger(cfg, stderr)

	// Discovery first, so an empty folder needs no API key.
	docs, err := loader.New(cfg.Source.Dir, cfg.Source.Extension, logger).Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover decks: %w", err)
	}

	if len(docs) == 0 {
		msg := fmt.Sprintf("No PDFs found in '%s' folder.", cfg.Source.Dir)
		if jsonOutput {
			return writeJSON(stdout, api.MessageDTO{Message: msg})
		}
		ui.Warning(stdout, "%s", msg)
		return nil
	}

	var (
		spin *ui.Spinner
		bar  *ui.ProgressBar
		opts = []evaluator.Option{evaluator.WithLogger(logger)}
	)
	if !jsonOutput {
		spin = ui.NewSpinner(stderr, "Preparing evaluator...")
		spin.Start()

		bar = ui.NewProgressBar(stderr, len(docs), "Evaluating")
		opts = append(opts, evaluator.WithSubscriber(evaluator.PublisherFunc(func(_ context.Context, e evaluator.Event) error {
			switch e.Type {
			case evaluator.EventDocumentStarted:
				spin.Stop()
			case evaluator.EventDocumentCompleted, evaluator.EventDocumentFailed:
				bar.Add(1)
			}
			return nil
		})))
	}

	client, err := evaluator.NewClientWithConfig(cfg, opts...)
	if err != nil {
		if spin != nil {
			spin.Stop()
		}
		return err
	}
	defer client.Close()

	summary, err := client.EvaluateDocuments(ctx, docs)
	if spin != nil {
		spin.Stop()
		bar.Finish()
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(stdout, api.EvaluationResponseDTO{
			Status:         "Success",
			BatchID:        summary.BatchID,
			TotalEvaluated: summary.Total(),
			Succeeded:      summary.Succeeded,
			Failed:         summary.Failed,
			DurationMS:     summary.Duration.Milliseconds(),
			Results:        summary.Results,
		})
	}

	ui.Section(stdout, "Score cards")
	ui.ScoreTable(stdout, summary.Results)
	if flags.reasoning {
		fmt.Fprintln(stdout)
		ui.Reasoning(stdout, summary.Results)
	}
	fmt.Fprintln(stdout)
	if summary.Failed > 0 {
		ui.Warning(stdout, "%d of %d decks failed", summary.Failed, summary.Total())
	}
	ui.Success(stdout, "Evaluated %d decks in %v", summary.Total(), summary.Duration.Round(time.Millisecond))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
