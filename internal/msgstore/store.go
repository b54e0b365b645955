// Package msgstore archives message bodies that are too large to travel
// inline, such as oversized dead-letter payloads. Keys may contain "/" to
// group related objects.
package msgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a requested object does not exist.
var ErrNotFound = errors.New("msgstore: object not found")

// ErrInvalidKey is returned for keys that are empty or escape the store.
var ErrInvalidKey = errors.New("msgstore: invalid key")

// MessageStore defines the interface for archive backends.
type MessageStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Config holds configuration for creating a MessageStore.
type Config struct {
	Type       string `mapstructure:"type"` // "none", "local", or "s3"
	Path       string `mapstructure:"path"` // base directory for local store
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
	S3Region   string `mapstructure:"s3_region"`
}

// New creates a MessageStore based on the provided configuration. It returns
// a nil store when Type is empty or "none". Unsupported types fall back to
// local storage with a warning.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (MessageStore, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "local":
		return NewLocalFileStore(cfg.Path)
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("msgstore: s3_bucket is required")
		}
		return NewS3StoreFromConfig(ctx, cfg)
	default:
		logger.Warn().
			Str("type", cfg.Type).
			Msg("unsupported store type, defaulting to local")
		return NewLocalFileStore(cfg.Path)
	}
}

// validKey rejects keys that are empty, absolute, or contain ".." segments.
func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "" {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
