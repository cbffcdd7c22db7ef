// Package cmd defines and implements the CLI commands for the dualsub executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/dualsub-crawler/internal/app"
	"github.com/JakeFAU/dualsub-crawler/internal/config"
	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
	"github.com/JakeFAU/dualsub-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use, so tests can
// inject a fake.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	Run(ctx context.Context, targetCount, maxAttempts int) (crawler.Outcome, error)
	Report(ctx context.Context) (app.Report, error)
	ResetCursor(ctx context.Context) error
	ResetCache(ctx context.Context) error
}

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgFile string) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	a, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "dualsub",
		Short: "Finds videos with dual-language captions.",
		Long: `dualsub crawls YouTube search results page by page, keeps the videos
whose titles and captions show they are primarily in the target language
with both required caption languages available, and accumulates them into
a durable result set. Progress is checkpointed so an interrupted crawl
resumes where it stopped.`,
		SilenceUsage: true,

		// Build the services once and hand them to the subcommand.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment variables use the DUALSUB_ prefix")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newResetCursorCmd())
	cmd.AddCommand(newResetCacheCmd())

	return cmd
}

// Execute runs the CLI and exits non-zero on failure.
func Execute(ctx context.Context) {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// withApp adapts fn into a RunE that closes the services however fn ends.
// PersistentPostRun is skipped by cobra when RunE fails, so it cannot be used.
func withApp(fn func(cmd *cobra.Command, a App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer appInstance.Close()
		return fn(cmd, appInstance)
	}
}
