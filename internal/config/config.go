// Package config centralizes how the summarizer reads environment variables
// and exposes them as strongly typed Go values.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every variable name, e.g. SUMMARIZER_ENDPOINT.
const Prefix = "SUMMARIZER"

// Config represents runtime configuration for the binaries. The remote
// endpoint, size limit, and timeout are explicit so nothing silently inherits
// a platform default.
type Config struct {
	Address           string        `envconfig:"ADDRESS" default:":8080"`
	Endpoint          string        `envconfig:"ENDPOINT" default:"https://jtwx63qbu1.execute-api.us-east-1.amazonaws.com/default/pdf-summarizer-function"`
	RequestTimeout    time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`
	MaxFileSize       int64         `envconfig:"MAX_FILE_BYTES" default:"26214400"`
	AcceptedType      string        `envconfig:"ACCEPTED_TYPE" default:"application/pdf"`
	AcceptedExtension string        `envconfig:"ACCEPTED_EXTENSION" default:".pdf"`
	RevealInterval    time.Duration `envconfig:"REVEAL_INTERVAL" default:"15ms"`
	QueueDepth        int           `envconfig:"QUEUE_DEPTH" default:"1"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// Optional diagnostics journal. Empty keeps the journal in memory.
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Optional summary archive: asynq on redis, objects on S3/MinIO.
	RedisAddr      string `envconfig:"REDIS_ADDR"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD"`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`
	S3Endpoint     string `envconfig:"S3_ENDPOINT"`
	S3AccessKey    string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey    string `envconfig:"S3_SECRET_KEY"`
	S3UseSSL       bool   `envconfig:"S3_USE_SSL" default:"false"`
	S3Region       string `envconfig:"S3_REGION" default:"us-east-1"`
	SummaryBucket  string `envconfig:"SUMMARY_BUCKET" default:"summaries"`
	ArchiveWorkers int    `envconfig:"WORKERS" default:"2"`
	// ArchiveURLTTL bounds the lifetime of presigned archive links.
	ArchiveURLTTL time.Duration `envconfig:"ARCHIVE_URL_TTL" default:"15m"`
}

const (
	defaultMaxFileSize    = 25 << 20 // 25 MiB
	defaultRequestTimeout = 60 * time.Second
	defaultRevealInterval = 15 * time.Millisecond
	defaultQueueDepth     = 1
	defaultWorkerCount    = 2
	defaultArchiveURLTTL  = 15 * time.Minute
)

// Load reads configuration from the environment, then replaces non-positive
// values with defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(Prefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("set %s_ENDPOINT", Prefix)
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.RevealInterval <= 0 {
		cfg.RevealInterval = defaultRevealInterval
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if cfg.ArchiveWorkers <= 0 {
		cfg.ArchiveWorkers = defaultWorkerCount
	}
	if cfg.ArchiveURLTTL <= 0 {
		cfg.ArchiveURLTTL = defaultArchiveURLTTL
	}
	return cfg, nil
}

// ArchiveEnabled reports whether successful summaries should be queued.
func (c *Config) ArchiveEnabled() bool {
	return c.RedisAddr != ""
}

// StorageEnabled reports whether an object store is configured.
func (c *Config) StorageEnabled() bool {
	return c.S3Endpoint != ""
}
