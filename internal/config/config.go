// Package config loads the worker configuration from config.yaml and
// NOTIFY_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sungwon/notification-pipeline/internal/auth"
	"github.com/sungwon/notification-pipeline/internal/logger"
	"github.com/sungwon/notification-pipeline/internal/msgstore"
	"github.com/sungwon/notification-pipeline/internal/provider"
	"github.com/sungwon/notification-pipeline/internal/queue"
	"github.com/sungwon/notification-pipeline/internal/retry"
	"github.com/sungwon/notification-pipeline/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. NOTIFY_QUEUE_URL
// overrides queue.url.
const EnvPrefix = "NOTIFY"

// Config holds all application configuration.
type Config struct {
	Queue    queue.Config            `mapstructure:"queue"`
	DLQ      queue.DLQConfig         `mapstructure:"dlq"`
	Retry    retry.Config            `mapstructure:"retry"`
	Logging  LoggingConfig           `mapstructure:"logging"`
	HTTP     HTTPConfig              `mapstructure:"http"`
	Auth     auth.JWTConfig          `mapstructure:"auth"`
	Database storage.Config          `mapstructure:"database"`
	Email    provider.ProviderConfig `mapstructure:"email"`
	Breaker  provider.BreakerConfig  `mapstructure:"breaker"`
	Metrics  MetricsConfig           `mapstructure:"metrics"`
	Archive  msgstore.Config         `mapstructure:"archive"`
	Health   HealthConfig            `mapstructure:"health"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Output     string `mapstructure:"output"` // stdout, console, file
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxFiles   int    `mapstructure:"max_files"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Service    string `mapstructure:"service"`
}

// Logger converts the section into a logger.LoggingConfig.
func (c LoggingConfig) Logger() logger.LoggingConfig {
	return logger.LoggingConfig{
		Level:      c.Level,
		Output:     c.Output,
		FilePath:   c.FilePath,
		MaxSizeMB:  c.MaxSizeMB,
		MaxFiles:   c.MaxFiles,
		MaxAgeDays: c.MaxAgeDays,
		Service:    c.Service,
	}
}

// HTTPConfig holds the operational HTTP server configuration.
type HTTPConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MetricsConfig selects the metric sinks fed by the in-memory collector.
type MetricsConfig struct {
	Prometheus bool `mapstructure:"prometheus"`
	CloudWatch bool `mapstructure:"cloudwatch"`
	// Namespace is the CloudWatch namespace.
	Namespace string `mapstructure:"namespace"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
}

// HealthConfig holds dependency probe settings.
type HealthConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// setDefaults registers every key with a default so that environment
// overrides apply even when config.yaml omits the key.
func setDefaults(v *viper.Viper) {
	q := queue.DefaultConfig()
	v.SetDefault("queue.type", q.Type)
	v.SetDefault("queue.url", "")
	v.SetDefault("queue.region", q.Region)
	v.SetDefault("queue.endpoint", "")
	v.SetDefault("queue.workers", q.Workers)
	v.SetDefault("queue.batch_size", q.BatchSize)
	v.SetDefault("queue.max_receive_count", q.MaxReceiveCount)
	v.SetDefault("queue.retry_cap", 0)
	v.SetDefault("queue.process_timeout", q.ProcessTimeout)
	v.SetDefault("queue.shutdown_timeout", q.ShutdownTimeout)
	v.SetDefault("queue.error_backoff", q.ErrorBackoff)
	v.SetDefault("queue.wait_time_seconds", q.WaitTimeSeconds)
	v.SetDefault("queue.visibility_timeout", q.VisibilityTimeout)
	v.SetDefault("queue.redis_addr", q.RedisAddr)
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.stream", q.Stream)
	v.SetDefault("queue.group", q.Group)
	v.SetDefault("queue.consumer", q.Consumer)
	v.SetDefault("queue.block_timeout", q.BlockTimeout)

	d := queue.DefaultDLQConfig()
	v.SetDefault("dlq.type", d.Type)
	v.SetDefault("dlq.url", "")
	v.SetDefault("dlq.region", d.Region)
	v.SetDefault("dlq.endpoint", "")
	v.SetDefault("dlq.redis_addr", d.RedisAddr)
	v.SetDefault("dlq.redis_password", "")
	v.SetDefault("dlq.redis_db", 0)
	v.SetDefault("dlq.stream", d.Stream)

	r := retry.DefaultConfig()
	v.SetDefault("retry.max_retries", r.MaxRetries)
	v.SetDefault("retry.base_delay", r.BaseDelay)
	v.SetDefault("retry.max_delay", r.MaxDelay)
	v.SetDefault("retry.factor", r.Factor)
	v.SetDefault("retry.jitter_fraction", r.JitterFraction)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_files", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.service", "notification-worker")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)

	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_expiry", time.Hour)
	v.SetDefault("auth.issuer", "notification-worker")
	v.SetDefault("auth.audience", "")

	v.SetDefault("database.url", "")
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.connect_timeout", 10*time.Second)

	v.SetDefault("email.type", "stdout")
	v.SetDefault("email.from", "")
	v.SetDefault("email.api_key", "")
	v.SetDefault("email.endpoint", "")
	v.SetDefault("email.timeout", 30*time.Second)
	v.SetDefault("email.smtp_host", "")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.tls_mode", "starttls")

	b := provider.DefaultBreakerConfig()
	v.SetDefault("breaker.enabled", b.Enabled)
	v.SetDefault("breaker.consecutive_failures", b.ConsecutiveFailures)
	v.SetDefault("breaker.interval", b.Interval)
	v.SetDefault("breaker.timeout", b.Timeout)
	v.SetDefault("breaker.max_half_open_requests", b.MaxHalfOpenRequests)

	v.SetDefault("metrics.prometheus", true)
	v.SetDefault("metrics.cloudwatch", false)
	v.SetDefault("metrics.namespace", "NotificationPipeline")
	v.SetDefault("metrics.region", "us-east-1")
	v.SetDefault("metrics.endpoint", "")

	v.SetDefault("archive.type", "none")
	v.SetDefault("archive.path", "./archive")
	v.SetDefault("archive.s3_bucket", "")
	v.SetDefault("archive.s3_prefix", "")
	v.SetDefault("archive.s3_endpoint", "")
	v.SetDefault("archive.s3_region", "us-east-1")

	v.SetDefault("health.interval", 30*time.Second)
	v.SetDefault("health.timeout", 10*time.Second)
}

// Load reads configuration from the given config directory path. It looks
// for a file named "config.yaml" in that directory; an empty path skips the
// file and uses defaults plus environment only. Environment variables with
// prefix NOTIFY_ override file values, e.g. NOTIFY_DLQ_URL overrides dlq.url.
func Load(configPath string) (*Config, error) {
	return load(configPath, true)
}

// LoadForLambda is Load for the Lambda entry point. SQS invokes the function
// with its records, so the source queue section is not validated.
func LoadForLambda(configPath string) (*Config, error) {
	return load(configPath, false)
}

func load(configPath string, pollsQueue bool) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(pollsQueue); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and cross-field constraints.
func (c *Config) Validate() error {
	return c.validate(true)
}

func (c *Config) validate(pollsQueue bool) error {
	var errs []error

	if pollsQueue {
		switch c.Queue.Type {
		case "sqs":
			if c.Queue.URL == "" {
				errs = append(errs, errors.New("queue.url is required for the sqs queue"))
			}
		case "redis":
		default:
			errs = append(errs, fmt.Errorf("queue.type %q is not one of sqs, redis", c.Queue.Type))
		}
	}

	switch c.DLQ.Type {
	case "sqs":
		if c.DLQ.URL == "" {
			errs = append(errs, errors.New("dlq.url is required for the sqs dead letter queue"))
		}
	case "redis":
	default:
		errs = append(errs, fmt.Errorf("dlq.type %q is not one of sqs, redis", c.DLQ.Type))
	}

	if c.Queue.MaxReceiveCount < 1 {
		errs = append(errs, errors.New("queue.max_receive_count must be at least 1"))
	}
	if c.Queue.RetryCap < 0 {
		errs = append(errs, errors.New("queue.retry_cap must not be negative"))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("retry.max_retries must not be negative"))
	}
	if c.Retry.BaseDelay > c.Retry.MaxDelay {
		errs = append(errs, errors.New("retry.base_delay must not exceed retry.max_delay"))
	}
	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction > 1 {
		errs = append(errs, errors.New("retry.jitter_fraction must be within [0, 1]"))
	}

	if err := c.Email.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("email: %w", err))
	}

	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		errs = append(errs, errors.New("logging.file_path is required for file output"))
	}

	if c.Archive.Type == "s3" && c.Archive.S3Bucket == "" {
		errs = append(errs, errors.New("archive.s3_bucket is required for the s3 archive"))
	}

	return errors.Join(errs...)
}
