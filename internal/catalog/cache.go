// Package catalog provides a read-through cache for the resource catalog.
//
// Snapshots are stored as JSON in a Backend under one fixed key. Concurrent
// misses share a single load, and a load that started before Invalidate never
// writes its result back.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/example/roombook/internal/metrics"
)

// ResourcesKey is the fixed key of the resource catalog snapshot.
const ResourcesKey = "roombook:catalog:resources"

const (
	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"
)

// Loader reads the authoritative value.
type Loader[T any] func(ctx context.Context) (T, error)

// Options tunes a Cache.
type Options struct {
	Key string
	// TTL is the freshness window of a stored snapshot.
	TTL time.Duration
	// Timeout bounds every backend call.
	Timeout time.Duration
	// LoadTimeout bounds one shared load from the authoritative store.
	LoadTimeout time.Duration
	Logger      *slog.Logger
}

// Cache is a read-through cache of a single value of type T.
type Cache[T any] struct {
	backend     Backend
	load        Loader[T]
	key         string
	ttl         time.Duration
	timeout     time.Duration
	loadTimeout time.Duration
	logger      *slog.Logger

	group singleflight.Group
	// writeMu orders generation checks before Set against Invalidate.
	writeMu    sync.Mutex
	generation atomic.Uint64
}

// New creates a Cache reading through load.
func New[T any](backend Backend, load Loader[T], opts Options) *Cache[T] {
	if opts.Key == "" {
		opts.Key = ResourcesKey
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache[T]{
		backend:     backend,
		load:        load,
		key:         opts.Key,
		ttl:         opts.TTL,
		timeout:     opts.Timeout,
		loadTimeout: opts.LoadTimeout,
		logger:      opts.Logger.With(slog.String("component", "catalog_cache"), slog.String("key", opts.Key)),
	}
}

// Get returns the cached snapshot when fresh. Otherwise it loads, stores and
// returns the authoritative value with fromCache=false. Backend failures
// degrade to a load; only loader errors are returned.
//
// Concurrent misses share one load, detached from the caller that started it
// and bounded by LoadTimeout. Each caller returns as soon as its own ctx is done.
func (c *Cache[T]) Get(ctx context.Context) (value T, fromCache bool, err error) {
	if cached, ok := c.read(ctx); ok {
		metrics.CatalogRequests.WithLabelValues(resultHit).Inc()
		return cached, true, nil
	}

	gen := c.generation.Load()
	results := c.group.DoChan(fmt.Sprintf("%s#%d", c.key, gen), func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()
		loaded, err := c.load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.store(context.WithoutCancel(ctx), gen, loaded)
		return loaded, nil
	})

	select {
	case <-ctx.Done():
		return value, false, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return value, false, res.Err
		}
		return res.Val.(T), false, nil
	}
}

// Invalidate evicts the snapshot. Loads already in flight will not store
// their result. The returned error only reports the backend delete.
func (c *Cache[T]) Invalidate(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.generation.Add(1)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.backend.Delete(ctx, c.key); err != nil {
		metrics.CatalogInvalidations.WithLabelValues("error").Inc()
		return fmt.Errorf("catalog: invalidate %s: %w", c.key, err)
	}
	metrics.CatalogInvalidations.WithLabelValues("ok").Inc()
	return nil
}

func (c *Cache[T]) read(ctx context.Context) (T, bool) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.backend.Get(ctx, c.key)
	switch {
	case errors.Is(err, ErrMiss):
		metrics.CatalogRequests.WithLabelValues(resultMiss).Inc()
		return zero, false
	case err != nil:
		metrics.CatalogRequests.WithLabelValues(resultError).Inc()
		c.logger.WarnContext(ctx, "catalog cache read failed; loading from store", slog.Any("error", err))
		return zero, false
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		metrics.CatalogRequests.WithLabelValues(resultError).Inc()
		c.logger.WarnContext(ctx, "catalog cache entry unreadable; loading from store", slog.Any("error", err))
		return zero, false
	}
	return value, true
}

func (c *Cache[T]) store(ctx context.Context, gen uint64, value T) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.WarnContext(ctx, "catalog snapshot not encodable", slog.Any("error", err))
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.generation.Load() != gen {
		c.logger.DebugContext(ctx, "catalog invalidated during load; snapshot discarded")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.backend.Set(ctx, c.key, raw, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "catalog cache write failed", slog.Any("error", err))
	}
}
