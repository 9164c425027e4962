// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Workers    WorkersConfig    `mapstructure:"workers"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Places     PlacesConfig     `mapstructure:"places"`
	Products   ProductsConfig   `mapstructure:"products"`
	Directions DirectionsConfig `mapstructure:"directions"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         DBConfig         `mapstructure:"db"`
	Publisher  PublisherConfig  `mapstructure:"publisher"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// WorkersConfig governs the job execution pool.
type WorkersConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	QueueDepth  int `mapstructure:"queue_depth"`
}

// BrowserConfig configures the headless browser pool.
type BrowserConfig struct {
	Headless       bool   `mapstructure:"headless"`
	MaxParallel    int    `mapstructure:"max_parallel"`
	NavTimeoutSec  int    `mapstructure:"nav_timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	AcceptLanguage string `mapstructure:"accept_language"`
}

// PlacesConfig governs the maps listing scraper.
type PlacesConfig struct {
	SearchBaseURL      string  `mapstructure:"search_base_url"`
	PlacePageQPS       float64 `mapstructure:"place_page_qps"`
	MaxPlacesDefault   int     `mapstructure:"max_places_default"`
	MaxScrollsDefault  int     `mapstructure:"max_scrolls_default"`
	ExtractEmails      bool    `mapstructure:"extract_emails"`
	EmailFetchParallel int     `mapstructure:"email_fetch_parallel"`
}

// ProductsConfig governs the storefront product scraper.
type ProductsConfig struct {
	StorefrontURL     string `mapstructure:"storefront_url"`
	MaxParallelStores int    `mapstructure:"max_parallel_stores"`
	MaxStoresDefault  int    `mapstructure:"max_stores_default"`
}

// DirectionsConfig configures the routing API client.
type DirectionsConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxConcurrent  int    `mapstructure:"max_concurrent"`
}

// StorageConfig selects and configures the artifact blob store.
type StorageConfig struct {
	Backend     string   `mapstructure:"backend"`
	Prefix      string   `mapstructure:"prefix"`
	ContentType string   `mapstructure:"content_type"`
	GCSBucket   string   `mapstructure:"gcs_bucket"`
	LocalDir    string   `mapstructure:"local_dir"`
	S3          S3Config `mapstructure:"s3"`
}

// S3Config holds S3-compatible endpoint settings.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

// DBConfig selects and configures the job metadata store.
type DBConfig struct {
	Backend  string `mapstructure:"backend"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PublisherConfig selects and configures the completion event publisher.
type PublisherConfig struct {
	Backend string       `mapstructure:"backend"`
	Topic   string       `mapstructure:"topic"`
	PubSub  PubSubConfig `mapstructure:"pubsub"`
	Kafka   KafkaConfig  `mapstructure:"kafka"`
}

// PubSubConfig holds Google Cloud Pub/Sub settings.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// KafkaConfig holds Kafka broker settings.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COMPSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout_seconds", 60)
	v.SetDefault("workers.concurrency", 2)
	v.SetDefault("workers.queue_depth", 64)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.max_parallel", 2)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("browser.accept_language", "en-US,en")
	v.SetDefault("places.search_base_url", "https://www.google.com/maps/search/")
	v.SetDefault("places.place_page_qps", 0.5)
	v.SetDefault("places.max_places_default", 10)
	v.SetDefault("places.max_scrolls_default", 3)
	v.SetDefault("places.email_fetch_parallel", 2)
	v.SetDefault("products.max_parallel_stores", 2)
	v.SetDefault("products.max_stores_default", 50)
	v.SetDefault("directions.timeout_seconds", 15)
	v.SetDefault("directions.max_concurrent", 4)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.prefix", "artifacts")
	v.SetDefault("storage.content_type", "text/csv; charset=utf-8")
	v.SetDefault("db.backend", "memory")
	v.SetDefault("publisher.backend", "memory")
	v.SetDefault("publisher.topic", "jobs.completed")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Workers.Concurrency <= 0 {
		return fmt.Errorf("workers.concurrency must be > 0")
	}
	if c.Workers.QueueDepth <= 0 {
		return fmt.Errorf("workers.queue_depth must be > 0")
	}
	if c.Browser.MaxParallel <= 0 {
		return fmt.Errorf("browser.max_parallel must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case "memory", "local", "gcs", "s3":
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs, s3")
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
	}
	if c.Storage.Backend == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir must be set for the local backend")
	}
	switch c.DB.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("db.backend must be one of memory, postgres")
	}
	if c.DB.Backend == "postgres" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set for the postgres backend")
	}
	switch c.Publisher.Backend {
	case "memory", "pubsub", "kafka":
	default:
		return fmt.Errorf("publisher.backend must be one of memory, pubsub, kafka")
	}
	if c.Publisher.Backend == "pubsub" && c.Publisher.PubSub.ProjectID == "" {
		return fmt.Errorf("publisher.pubsub.project_id must be set for the pubsub backend")
	}
	if c.Publisher.Backend == "kafka" && len(c.Publisher.Kafka.Brokers) == 0 {
		return fmt.Errorf("publisher.kafka.brokers must be set for the kafka backend")
	}
	return nil
}

// ServerTimeout returns the request timeout as a duration.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// DirectionsTimeout returns the routing client timeout as a duration.
func (c Config) DirectionsTimeout() time.Duration {
	return time.Duration(c.Directions.TimeoutSeconds) * time.Second
}

// NavTimeout returns the browser navigation timeout as a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSec) * time.Second
}
