// Package app builds and holds the long-lived services of a crawl, acting as
// a dependency injection container for the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gcsstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/dualsub-crawler/internal/api"
	"github.com/JakeFAU/dualsub-crawler/internal/classifier"
	"github.com/JakeFAU/dualsub-crawler/internal/clock/system"
	"github.com/JakeFAU/dualsub-crawler/internal/config"
	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
	gcsexport "github.com/JakeFAU/dualsub-crawler/internal/export/gcs"
	s3export "github.com/JakeFAU/dualsub-crawler/internal/export/s3"
	"github.com/JakeFAU/dualsub-crawler/internal/id/uuid"
	"github.com/JakeFAU/dualsub-crawler/internal/logging"
	"github.com/JakeFAU/dualsub-crawler/internal/metrics"
	"github.com/JakeFAU/dualsub-crawler/internal/notify"
	kafkanotify "github.com/JakeFAU/dualsub-crawler/internal/notify/kafka"
	memorynotify "github.com/JakeFAU/dualsub-crawler/internal/notify/memory"
	pubsubnotify "github.com/JakeFAU/dualsub-crawler/internal/notify/pubsub"
	"github.com/JakeFAU/dualsub-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/dualsub-crawler/internal/storage/local"
	"github.com/JakeFAU/dualsub-crawler/internal/storage/memory"
	"github.com/JakeFAU/dualsub-crawler/internal/storage/postgres"
	redisstore "github.com/JakeFAU/dualsub-crawler/internal/storage/redis"
	"github.com/JakeFAU/dualsub-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/dualsub-crawler/internal/youtube"
)

const (
	exportTimeout   = 2 * time.Minute
	shutdownTimeout = 10 * time.Second
)

// Provider is the external search and caption source.
type Provider interface {
	crawler.SearchProvider
	crawler.TrackLookup
}

// Option customizes NewApp.
type Option func(*options)

type options struct {
	provider Provider
	registry *prometheus.Registry
}

// WithProvider replaces the YouTube client.
func WithProvider(p Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithRegistry registers metrics with reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// Report summarizes the persisted state of a crawl for the status command.
type Report struct {
	Crawl      string         `json:"crawl"`
	Cursor     crawler.Cursor `json:"cursor"`
	Classified int            `json:"classified"`
	Results    int            `json:"results"`
	Target     int            `json:"target"`
}

// App holds all the shared, long-lived services of one process.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	runID       string
	metrics     *metrics.Metrics
	checkpoints crawler.CheckpointStore
	results     crawler.ResultStore
	exporter    crawler.Exporter
	notifier    crawler.Notifier
	engine      *crawler.Engine
	closers     []func() error
}

// NewApp instantiates the providers selected by cfg and wires the engine. It
// fails fast if any of them cannot be initialized; whatever was opened before
// the failure is closed again.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	runID := uuid.New().MustNewID()
	a := &App{
		cfg:     cfg,
		logger:  logging.ForRun(logger, cfg.Crawl.Name, runID),
		runID:   runID,
		metrics: metrics.New(o.registry),
	}
	a.logger.Info("initializing application services",
		zap.String("checkpoint", cfg.Checkpoint.Provider),
		zap.String("results", cfg.Results.Provider),
		zap.String("export", cfg.Export.Provider),
		zap.String("notify", cfg.Notify.Provider),
	)
	if err := a.init(ctx, o); err != nil {
		a.Close()
		return nil, err
	}
	a.logger.Info("application services initialized")
	return a, nil
}

func (a *App) init(ctx context.Context, o options) error {
	if err := a.initStores(ctx); err != nil {
		return err
	}
	exporter, err := a.newExporter(ctx)
	if err != nil {
		return fmt.Errorf("init exporter: %w", err)
	}
	a.exporter = exporter
	notifier, err := a.newNotifier(ctx)
	if err != nil {
		return fmt.Errorf("init notifier: %w", err)
	}
	a.notifier = notifier

	provider := o.provider
	if provider == nil {
		limiter := ratelimit.New(ratelimit.Config{
			RPS:     a.cfg.YouTube.RequestsPerSecond,
			Burst:   a.cfg.YouTube.Burst,
			Shared:  a.cfg.YouTube.SharedLimit,
			OnDelay: a.metrics.ObserveRateLimitDelay,
		})
		client, err := youtube.New(ctx, youtube.Config{
			APIKey:               a.cfg.YouTube.APIKey,
			Endpoint:             a.cfg.YouTube.Endpoint,
			TranslationLanguages: a.cfg.YouTube.TranslationLanguages,
		}, limiter, a.logger.Named("youtube"))
		if err != nil {
			return fmt.Errorf("init youtube client: %w", err)
		}
		provider = client
	}

	chain, err := classifier.New(classifier.Config{
		Script:            a.cfg.Classifier.Script,
		TargetLanguage:    a.cfg.Classifier.TargetLanguage,
		RequiredLanguages: a.cfg.Classifier.RequiredLanguages,
		CallTimeout:       a.cfg.Crawl.CallTimeout,
	}, provider, a.logger.Named("classifier"), classifier.WithRecorder(a.metrics))
	if err != nil {
		return fmt.Errorf("init classifier: %w", err)
	}

	engineOpts := []crawler.Option{
		crawler.WithRecorder(a.metrics),
		crawler.WithClock(system.New()),
		crawler.WithRunID(a.runID),
	}
	if notifier != nil {
		engineOpts = append(engineOpts, crawler.WithNotifier(notifier))
	}
	a.engine = crawler.NewEngine(
		a.cfg.Engine(),
		provider,
		chain,
		a.checkpoints,
		a.results,
		a.logger.Named("engine"),
		engineOpts...,
	)
	return nil
}

// initStores opens the checkpoint and result backends. When both sections
// name the same provider a single store serves both roles.
func (a *App) initStores(ctx context.Context) error {
	crawl := a.cfg.Crawl.Name
	opened := map[string]any{}
	open := func(provider string) (any, error) {
		if s, ok := opened[provider]; ok {
			return s, nil
		}
		var (
			store any
			err   error
		)
		switch provider {
		case config.ProviderLocal:
			store, err = local.New(local.Config{Dir: a.cfg.Checkpoint.Dir, ResultsPath: a.cfg.Results.Path})
		case config.ProviderPostgres:
			var pg *postgres.Store
			pg, err = postgres.New(ctx, postgres.Config{
				DSN:             a.cfg.Postgres.DSN,
				Crawl:           crawl,
				MaxConns:        a.cfg.Postgres.MaxConns,
				MinConns:        a.cfg.Postgres.MinConns,
				MaxConnLifetime: a.cfg.Postgres.MaxConnLifetime,
				Migrate:         a.cfg.Postgres.Migrate,
			})
			if err == nil {
				a.closers = append(a.closers, func() error { pg.Close(); return nil })
				store = pg
			}
		case config.ProviderRedis:
			var rs *redisstore.Store
			rs, err = redisstore.New(ctx, redisstore.Config{
				Address:   a.cfg.Redis.Address,
				Password:  a.cfg.Redis.Password,
				DB:        a.cfg.Redis.DB,
				KeyPrefix: a.cfg.Redis.KeyPrefix,
				Crawl:     crawl,
			})
			if err == nil {
				a.closers = append(a.closers, rs.Close)
				store = rs
			}
		case config.ProviderSQLite:
			var sq *sqlite.Store
			sq, err = sqlite.Open(ctx, sqlite.Config{Path: a.cfg.SQLite.Path, Crawl: crawl})
			if err == nil {
				a.closers = append(a.closers, sq.Close)
				store = sq
			}
		default:
			return nil, fmt.Errorf("unknown storage provider: %s", provider)
		}
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", provider, err)
		}
		opened[provider] = store
		return store, nil
	}

	if a.cfg.Checkpoint.Provider == config.ProviderMemory {
		a.checkpoints = memory.NewCheckpointStore()
	} else {
		store, err := open(a.cfg.Checkpoint.Provider)
		if err != nil {
			return err
		}
		checkpoints, ok := store.(crawler.CheckpointStore)
		if !ok {
			return fmt.Errorf("%s cannot hold checkpoints", a.cfg.Checkpoint.Provider)
		}
		a.checkpoints = checkpoints
	}

	if a.cfg.Results.Provider == config.ProviderMemory {
		a.results = memory.NewResultStore()
		return nil
	}
	store, err := open(a.cfg.Results.Provider)
	if err != nil {
		return err
	}
	results, ok := store.(crawler.ResultStore)
	if !ok {
		return fmt.Errorf("%s cannot hold results", a.cfg.Results.Provider)
	}
	a.results = results
	return nil
}

func (a *App) newExporter(ctx context.Context) (crawler.Exporter, error) {
	switch a.cfg.Export.Provider {
	case "", config.ProviderNone:
		return nil, nil
	case config.ProviderGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return gcsexport.New(client, gcsexport.Config{Bucket: a.cfg.Export.GCS.Bucket, Prefix: a.cfg.Export.Prefix})
	case config.ProviderS3:
		return s3export.New(ctx, s3export.Config{
			Bucket:       a.cfg.Export.S3.Bucket,
			Prefix:       a.cfg.Export.Prefix,
			Region:       a.cfg.Export.S3.Region,
			Profile:      a.cfg.Export.S3.Profile,
			Endpoint:     a.cfg.Export.S3.Endpoint,
			UsePathStyle: a.cfg.Export.S3.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown export provider: %s", a.cfg.Export.Provider)
	}
}

func (a *App) newNotifier(ctx context.Context) (crawler.Notifier, error) {
	switch a.cfg.Notify.Provider {
	case "", config.ProviderNone:
		return nil, nil
	case config.ProviderLog:
		return notify.NewLogNotifier(a.logger.Named("notify")), nil
	case config.ProviderMemory:
		return memorynotify.New(), nil
	case config.ProviderPubSub:
		n, err := pubsubnotify.New(ctx, pubsubnotify.Config{
			ProjectID: a.cfg.Notify.PubSub.ProjectID,
			TopicID:   a.cfg.Notify.PubSub.TopicID,
			Crawl:     a.cfg.Crawl.Name,
			RunID:     a.runID,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, n.Close)
		return n, nil
	case config.ProviderKafka:
		n, err := kafkanotify.New(kafkanotify.Config{
			Brokers: a.cfg.Notify.Kafka.Brokers,
			Topic:   a.cfg.Notify.Kafka.Topic,
			Crawl:   a.cfg.Crawl.Name,
			RunID:   a.runID,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, n.Close)
		return n, nil
	default:
		return nil, fmt.Errorf("unknown notify provider: %s", a.cfg.Notify.Provider)
	}
}

// Config returns the configuration the services were built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// RunID identifies this process's run in logs and notifications.
func (a *App) RunID() string {
	return a.runID
}

// Engine exposes the wired crawl engine.
func (a *App) Engine() *crawler.Engine {
	return a.engine
}

// Run executes one crawl. It serves the status API for the duration of the
// run when server.addr is set, and exports a snapshot of the result set when
// the run added entries.
func (a *App) Run(ctx context.Context, targetCount, maxAttempts int) (crawler.Outcome, error) {
	stop := a.startServer()
	defer stop()

	outcome, err := a.engine.RunUntil(ctx, targetCount, maxAttempts)
	if outcome.Added > 0 {
		a.export(ctx)
	}
	return outcome, err
}

func (a *App) export(ctx context.Context) {
	if a.exporter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exportTimeout)
	defer cancel()
	entries, err := a.results.LoadResults(ctx)
	if err != nil {
		a.logger.Warn("load results for export failed", zap.Error(err))
		return
	}
	location, err := a.exporter.Export(ctx, entries)
	if err != nil {
		a.logger.Warn("result export failed", zap.Error(err))
		return
	}
	a.logger.Info("results exported", zap.String("location", location), zap.Int("results", len(entries)))
}

func (a *App) startServer() func() {
	if a.cfg.Server.Addr == "" {
		return func() {}
	}
	handler := api.NewServer(
		a.engine,
		a.results,
		a.metrics.Handler(),
		a.metrics.Middleware,
		api.Config{APIKey: a.cfg.Server.APIKey, RequestTimeout: a.cfg.Server.RequestTimeout},
		a.logger.Named("api"),
	).Handler()
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.String("addr", a.cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
	}
}

// Report reads the persisted cursor, cache size and result count.
func (a *App) Report(ctx context.Context) (Report, error) {
	cursor, err := a.checkpoints.Cursor(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("read cursor: %w", err)
	}
	classified, err := a.checkpoints.ClassificationCount(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("count classifications: %w", err)
	}
	results, err := a.results.LoadResults(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load results: %w", err)
	}
	return Report{
		Crawl:      a.cfg.Crawl.Name,
		Cursor:     cursor,
		Classified: classified,
		Results:    len(results),
		Target:     a.cfg.Crawl.TargetCount,
	}, nil
}

// ResetCursor rewinds pagination to the start of the primary profile.
func (a *App) ResetCursor(ctx context.Context) error {
	if err := a.checkpoints.ResetCursor(ctx); err != nil {
		return fmt.Errorf("reset cursor: %w", err)
	}
	a.logger.Info("cursor reset")
	return nil
}

// ResetCache forgets every cached verdict. Results are kept.
func (a *App) ResetCache(ctx context.Context) error {
	if err := a.checkpoints.ResetClassifications(ctx); err != nil {
		return fmt.Errorf("reset classifications: %w", err)
	}
	a.logger.Info("classification cache reset")
	return nil
}

// Close gracefully shuts down all services in reverse order of creation.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	// Sync commonly fails on stderr/stdout; best effort only.
	_ = a.logger.Sync()
}
