package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
)

// errAborted is returned when a crawl ends in the Aborted state so the process
// exits non-zero.
var errAborted = errors.New("crawl aborted")

func newCrawlCmd() *cobra.Command {
	var target, maxAttempts int
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs the crawl until the target count or attempt budget is reached",
		Long: `Loads the persisted result set and cursor, then fetches and classifies
search pages until the result set holds the target number of videos or the
attempt budget is spent. Interrupting the command stops it after the current
page; everything processed so far is kept.`,
		RunE: withApp(func(cmd *cobra.Command, appInstance App) error {
			cfg := appInstance.Config().Crawl
			if target <= 0 {
				target = cfg.TargetCount
			}
			if maxAttempts <= 0 {
				maxAttempts = cfg.MaxAttempts
			}

			outcome, runErr := appInstance.Run(cmd.Context(), target, maxAttempts)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d of %d results after %d attempts (%d new)\n",
				outcome, outcome.Results, target, outcome.Attempts, outcome.Added)
			if runErr != nil {
				return fmt.Errorf("run crawler: %w", runErr)
			}
			if outcome.Status == crawler.OutcomeAborted {
				return fmt.Errorf("%w: %s", errAborted, outcome.Reason)
			}
			appInstance.Logger().Info("crawl command finished", zap.Stringer("outcome", outcome))
			return nil
		}),
	}
	cmd.Flags().IntVar(&target, "target", 0, "number of qualifying videos to collect (default crawl.target_count)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "maximum pages to process this run (default crawl.max_attempts)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Prints the persisted cursor, cache size and result count",
		RunE: withApp(func(cmd *cobra.Command, appInstance App) error {
			report, err := appInstance.Report(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}),
	}
}

func newResetCursorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-cursor",
		Short: "Restarts pagination at the beginning of the primary profile",
		RunE: withApp(func(cmd *cobra.Command, appInstance App) error {
			return appInstance.ResetCursor(cmd.Context())
		}),
	}
}

func newResetCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-cache",
		Short: "Forgets every cached classification so videos are checked again",
		RunE: withApp(func(cmd *cobra.Command, appInstance App) error {
			return appInstance.ResetCache(cmd.Context())
		}),
	}
}
