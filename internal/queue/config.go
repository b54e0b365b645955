package queue

import "time"

// Config holds configuration for the source queue and the poller.
type Config struct {
	// Type selects the queue backend: "sqs" (default) or "redis".
	Type            string `mapstructure:"type"`
	Workers         int    `mapstructure:"workers"`
	BatchSize       int    `mapstructure:"batch_size"`
	MaxReceiveCount int    `mapstructure:"max_receive_count"`
	// RetryCap caps the per-category in-process retry budget. 0 leaves the
	// category budget uncapped.
	RetryCap        int           `mapstructure:"retry_cap"`
	ProcessTimeout  time.Duration `mapstructure:"process_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	ErrorBackoff    time.Duration `mapstructure:"error_backoff"`

	// SQS-specific config
	URL               string `mapstructure:"url"`
	Region            string `mapstructure:"region"`
	Endpoint          string `mapstructure:"endpoint"`
	WaitTimeSeconds   int32  `mapstructure:"wait_time_seconds"`  // long poll seconds, default 20
	VisibilityTimeout int32  `mapstructure:"visibility_timeout"` // seconds, default 30

	// Redis-specific config
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Stream        string        `mapstructure:"stream"`
	Group         string        `mapstructure:"group"`
	Consumer      string        `mapstructure:"consumer"`
	BlockTimeout  time.Duration `mapstructure:"block_timeout"`
}

// DLQConfig holds configuration for the dead-letter destination.
type DLQConfig struct {
	// Type selects the publisher: "sqs" (default) or "redis".
	Type     string `mapstructure:"type"`
	URL      string `mapstructure:"url"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Stream        string `mapstructure:"stream"`
}

// DefaultConfig returns a Config with sensible defaults. A single worker
// processes each batch sequentially.
func DefaultConfig() Config {
	return Config{
		Type:              "sqs",
		Workers:           1,
		BatchSize:         10,
		MaxReceiveCount:   1,
		ProcessTimeout:    5 * time.Minute,
		ShutdownTimeout:   30 * time.Second,
		ErrorBackoff:      time.Second,
		Region:            "us-east-1",
		WaitTimeSeconds:   20,
		VisibilityTimeout: 30,
		RedisAddr:         "localhost:6379",
		Stream:            "notifications",
		Group:             "notification-worker",
		Consumer:          "worker-1",
		BlockTimeout:      5 * time.Second,
	}
}

// DefaultDLQConfig returns a DLQConfig with sensible defaults.
func DefaultDLQConfig() DLQConfig {
	return DLQConfig{
		Type:      "sqs",
		Region:    "us-east-1",
		RedisAddr: "localhost:6379",
		Stream:    "notifications:dlq",
	}
}

// withDefaults fills zero fields from DefaultConfig and clamps the batch size
// to the SQS maximum of 10.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Type == "" {
		c.Type = d.Type
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.BatchSize <= 0 || c.BatchSize > 10 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxReceiveCount <= 0 {
		c.MaxReceiveCount = d.MaxReceiveCount
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = d.ProcessTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = d.ErrorBackoff
	}
	if c.WaitTimeSeconds <= 0 {
		c.WaitTimeSeconds = d.WaitTimeSeconds
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = d.VisibilityTimeout
	}
	if c.Stream == "" {
		c.Stream = d.Stream
	}
	if c.Group == "" {
		c.Group = d.Group
	}
	if c.Consumer == "" {
		c.Consumer = d.Consumer
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = d.BlockTimeout
	}
	return c
}
