package main

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/propsearch/internal/domain"
	"github.com/kailas-cloud/propsearch/internal/usecase/backfill"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Embed listings whose stored vectors are missing or stale",
	Long: `Walks the whole catalog in bounded batches and embeds every listing text
whose stored vector is missing or was computed from different text.
Re-running on an unchanged catalog makes no provider calls.`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().Int("batch-size", 0, "listings per batch (overrides config)")
	backfillCmd.Flags().Duration("pause", -1, "pause between batches that called the provider (overrides config)")
	backfillCmd.Flags().StringSlice("locale", nil, "locales to embed (default: all)")
	backfillCmd.Flags().Bool("progress", false, "show a progress bar")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	bcfg := backfill.Config{
		BatchSize:      a.cfg.Backfill.BatchSize,
		Pause:          time.Duration(a.cfg.Backfill.PauseMs) * time.Millisecond,
		Workers:        a.cfg.Backfill.Workers,
		MaxRetries:     a.cfg.Backfill.MaxRetries,
		RetryBaseDelay: time.Duration(a.cfg.Backfill.RetryBaseDelayMs) * time.Millisecond,
	}
	if n, _ := cmd.Flags().GetInt("batch-size"); n > 0 {
		bcfg.BatchSize = n
	}
	if d, _ := cmd.Flags().GetDuration("pause"); d >= 0 {
		bcfg.Pause = d
	}
	locales, _ := cmd.Flags().GetStringSlice("locale")
	for _, l := range locales {
		loc := domain.Locale(l)
		if !loc.IsValid() {
			return fmt.Errorf("unsupported locale %q", l)
		}
		bcfg.Locales = append(bcfg.Locales, loc)
	}

	svc := backfill.New(a.catalog, a.embedder, bcfg, a.logger)

	var bar *progressbar.ProgressBar
	if show, _ := cmd.Flags().GetBool("progress"); show {
		svc.WithProgress(func(scanned, total int) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("Embedding listings"),
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}
			bar.ChangeMax(total)
			_ = bar.Set(scanned)
		})
	}

	report, err := svc.Run(ctx)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return fmt.Errorf("backfill %s: %w", report.RunID, err)
	}

	a.logger.Info("Backfill complete",
		zap.String("run_id", report.RunID),
		zap.String("embedding_mode", string(a.embedder.Mode())),
	)
	fmt.Fprintf(cmd.OutOrStdout(),
		"run %s: scanned=%d embedded=%d skipped=%d failed=%d batches=%d provider_calls=%d in %s\n",
		report.RunID, report.Scanned, report.Embedded, report.Skipped, report.Failed,
		report.Batches, report.ProviderCalls, report.Duration.Round(time.Millisecond),
	)
	if report.Failed > 0 {
		return fmt.Errorf("%d listing texts failed to embed; re-run to retry", report.Failed)
	}
	return nil
}
