// Package store provides the small key-value persistence layer the fingerprint
// repository and the alert queue sit on. Values are opaque byte slices.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Store is a persistent key-value store. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set replaces the value for key.
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendRedis  = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend  string `mapstructure:"backend"`
	Path     string `mapstructure:"path"`
	RedisURL string `mapstructure:"redis_url"`
}

// Open returns the backend named in opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendBolt, "":
		return OpenBolt(opts.Path)
	case BackendRedis:
		return DialRedis(ctx, opts.RedisURL)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
