package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by a Backend when the key is absent or expired.
var ErrMiss = errors.New("catalog: cache miss")

// Backend is the key-value store holding serialized snapshots.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
