// Package config loads and validates dualsub configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
)

// ErrInvalid marks configuration that cannot drive a crawl.
var ErrInvalid = errors.New("invalid configuration")

// Provider names accepted by the pluggable sections.
const (
	ProviderNone     = "none"
	ProviderMemory   = "memory"
	ProviderLocal    = "local"
	ProviderPostgres = "postgres"
	ProviderRedis    = "redis"
	ProviderSQLite   = "sqlite"
	ProviderGCS      = "gcs"
	ProviderS3       = "s3"
	ProviderLog      = "log"
	ProviderPubSub   = "pubsub"
	ProviderKafka    = "kafka"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	YouTube    YouTubeConfig    `mapstructure:"youtube"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Results    ResultsConfig    `mapstructure:"results"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	SQLite     SQLiteConfig     `mapstructure:"sqlite"`
	Export     ExportConfig     `mapstructure:"export"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// CrawlConfig holds the run parameters of the engine.
type CrawlConfig struct {
	Name               string                `mapstructure:"name"`
	TargetCount        int                   `mapstructure:"target_count"`
	MaxAttempts        int                   `mapstructure:"max_attempts"`
	EmptyPageThreshold int                   `mapstructure:"empty_page_threshold"`
	PageSize           int                   `mapstructure:"page_size"`
	CallTimeout        time.Duration         `mapstructure:"call_timeout"`
	PrimaryProfile     crawler.SourceProfile `mapstructure:"primary_profile"`
	FallbackProfile    crawler.SourceProfile `mapstructure:"fallback_profile"`
}

// ClassifierConfig selects the script and languages an item must carry.
type ClassifierConfig struct {
	Script            string   `mapstructure:"script"`
	TargetLanguage    string   `mapstructure:"target_language"`
	RequiredLanguages []string `mapstructure:"required_languages"`
}

// YouTubeConfig configures the search and caption client.
type YouTubeConfig struct {
	APIKey               string   `mapstructure:"api_key"`
	Endpoint             string   `mapstructure:"endpoint"`
	RequestsPerSecond    float64  `mapstructure:"requests_per_second"`
	Burst                int      `mapstructure:"burst"`
	SharedLimit          bool     `mapstructure:"shared_limit"`
	TranslationLanguages []string `mapstructure:"translation_languages"`
}

// CheckpointConfig selects where verdicts and the cursor are kept.
type CheckpointConfig struct {
	Provider string `mapstructure:"provider"`
	Dir      string `mapstructure:"dir"`
}

// ResultsConfig selects where the result set is kept.
type ResultsConfig struct {
	Provider string `mapstructure:"provider"`
	// Path overrides the results document location for the local provider.
	Path string `mapstructure:"path"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// RedisConfig controls access to Redis.
type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SQLiteConfig points at the database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// ExportConfig configures result snapshot uploads.
type ExportConfig struct {
	Provider string          `mapstructure:"provider"`
	Prefix   string          `mapstructure:"prefix"`
	GCS      GCSExportConfig `mapstructure:"gcs"`
	S3       S3ExportConfig  `mapstructure:"s3"`
}

// GCSExportConfig names the destination bucket.
type GCSExportConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// S3ExportConfig names the destination bucket and client overrides.
type S3ExportConfig struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	Profile      string `mapstructure:"profile"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// NotifyConfig configures new-result announcements.
type NotifyConfig struct {
	Provider string       `mapstructure:"provider"`
	PubSub   PubSubConfig `mapstructure:"pubsub"`
	Kafka    KafkaConfig  `mapstructure:"kafka"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// KafkaConfig lists brokers and the destination topic.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ServerConfig controls the optional status server. An empty Addr disables it.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from an optional .env file, disk and environment.
func Load(path string) (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("DUALSUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("youtube.api_key", "DUALSUB_YOUTUBE_API_KEY", "GOOGLE_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind api key: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawl.name", "default")
	v.SetDefault("crawl.target_count", 100)
	v.SetDefault("crawl.max_attempts", 50)
	v.SetDefault("crawl.empty_page_threshold", crawler.DefaultEmptyPageThreshold)
	v.SetDefault("crawl.page_size", crawler.DefaultPageSize)
	v.SetDefault("crawl.call_timeout", "15s")
	v.SetDefault("crawl.primary_profile.name", "egypt")
	v.SetDefault("crawl.primary_profile.region_code", "EG")
	v.SetDefault("crawl.primary_profile.relevance_language", "ar")
	v.SetDefault("crawl.fallback_profile.name", "saudi")
	v.SetDefault("crawl.fallback_profile.region_code", "SA")
	v.SetDefault("crawl.fallback_profile.relevance_language", "ar")
	v.SetDefault("classifier.script", "Arabic")
	v.SetDefault("classifier.target_language", "ar")
	v.SetDefault("classifier.required_languages", []string{"ar", "en"})
	v.SetDefault("youtube.requests_per_second", 5.0)
	v.SetDefault("youtube.burst", 5)
	v.SetDefault("youtube.shared_limit", true)
	v.SetDefault("youtube.translation_languages", []string{"ar", "en", "fr", "de", "es"})
	v.SetDefault("checkpoint.provider", ProviderLocal)
	v.SetDefault("checkpoint.dir", "data")
	v.SetDefault("results.provider", ProviderLocal)
	v.SetDefault("postgres.max_conns", 4)
	v.SetDefault("postgres.min_conns", 0)
	v.SetDefault("postgres.max_conn_lifetime", "30m")
	v.SetDefault("postgres.migrate", true)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.key_prefix", "dualsub")
	v.SetDefault("sqlite.path", "data/dualsub.db")
	v.SetDefault("export.provider", ProviderNone)
	v.SetDefault("export.prefix", "dualsub")
	v.SetDefault("notify.provider", ProviderNone)
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.YouTube.APIKey == "" {
		return fmt.Errorf("%w: youtube.api_key must be set (or GOOGLE_API_KEY)", ErrInvalid)
	}
	if err := c.Engine().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Crawl.CallTimeout < 0 {
		return fmt.Errorf("%w: crawl.call_timeout must be >= 0", ErrInvalid)
	}
	if c.Classifier.Script == "" || c.Classifier.TargetLanguage == "" {
		return fmt.Errorf("%w: classifier.script and classifier.target_language must be set", ErrInvalid)
	}
	if len(c.Classifier.RequiredLanguages) == 0 {
		return fmt.Errorf("%w: classifier.required_languages must not be empty", ErrInvalid)
	}
	if c.YouTube.RequestsPerSecond < 0 || c.YouTube.Burst < 0 {
		return fmt.Errorf("%w: youtube rate limits must be >= 0", ErrInvalid)
	}

	switch c.Checkpoint.Provider {
	case ProviderLocal, ProviderMemory:
	case ProviderPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("%w: postgres.dsn is required for the postgres checkpoint provider", ErrInvalid)
		}
	case ProviderRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("%w: redis.address is required for the redis checkpoint provider", ErrInvalid)
		}
	case ProviderSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("%w: sqlite.path is required for the sqlite checkpoint provider", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown checkpoint.provider %q", ErrInvalid, c.Checkpoint.Provider)
	}
	if c.Checkpoint.Provider == ProviderLocal && c.Checkpoint.Dir == "" {
		return fmt.Errorf("%w: checkpoint.dir is required for the local checkpoint provider", ErrInvalid)
	}

	switch c.Results.Provider {
	case ProviderLocal:
		if c.Checkpoint.Dir == "" {
			return fmt.Errorf("%w: checkpoint.dir is required for local results", ErrInvalid)
		}
	case ProviderMemory:
	case ProviderPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("%w: postgres.dsn is required for the postgres results provider", ErrInvalid)
		}
	case ProviderSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("%w: sqlite.path is required for the sqlite results provider", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown results.provider %q", ErrInvalid, c.Results.Provider)
	}

	switch c.Export.Provider {
	case "", ProviderNone:
	case ProviderGCS:
		if c.Export.GCS.Bucket == "" {
			return fmt.Errorf("%w: export.gcs.bucket is required", ErrInvalid)
		}
	case ProviderS3:
		if c.Export.S3.Bucket == "" {
			return fmt.Errorf("%w: export.s3.bucket is required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown export.provider %q", ErrInvalid, c.Export.Provider)
	}

	switch c.Notify.Provider {
	case "", ProviderNone, ProviderLog, ProviderMemory:
	case ProviderPubSub:
		if c.Notify.PubSub.ProjectID == "" || c.Notify.PubSub.TopicID == "" {
			return fmt.Errorf("%w: notify.pubsub.project_id and topic_id are required", ErrInvalid)
		}
	case ProviderKafka:
		if len(c.Notify.Kafka.Brokers) == 0 || c.Notify.Kafka.Topic == "" {
			return fmt.Errorf("%w: notify.kafka.brokers and topic are required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown notify.provider %q", ErrInvalid, c.Notify.Provider)
	}
	return nil
}

// Engine converts the crawl section into engine parameters.
func (c Config) Engine() crawler.Config {
	return crawler.Config{
		Name:               c.Crawl.Name,
		TargetCount:        c.Crawl.TargetCount,
		MaxAttempts:        c.Crawl.MaxAttempts,
		EmptyPageThreshold: c.Crawl.EmptyPageThreshold,
		PageSize:           c.Crawl.PageSize,
		CallTimeout:        c.Crawl.CallTimeout,
		Primary:            c.Crawl.PrimaryProfile,
		Fallback:           c.Crawl.FallbackProfile,
	}
}
