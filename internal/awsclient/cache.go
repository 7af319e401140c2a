// Package awsclient builds provider clients from static credentials and caches one
// client per credential set, tracking every client it builds so Shutdown can close them.
package awsclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/objectfs/cloudkit/internal/cache"
	"github.com/objectfs/cloudkit/internal/metrics"
	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
	"github.com/objectfs/cloudkit/pkg/types"
	"github.com/objectfs/cloudkit/pkg/utils"
)

// shutdownConcurrency bounds how many clients close at once.
const shutdownConcurrency = 8

// Handle pairs a client with the function that releases its resources.
type Handle[C any] struct {
	Client C

	closeOnce sync.Once
	closeFn   func() error
	closeErr  error
}

// NewHandle wraps client. closeFn may be nil.
func NewHandle[C any](client C, closeFn func() error) *Handle[C] {
	return &Handle[C]{Client: client, closeFn: closeFn}
}

// Close releases the client once; later calls return the first result.
func (h *Handle[C]) Close() error {
	h.closeOnce.Do(func() {
		if h.closeFn != nil {
			h.closeErr = h.closeFn()
		}
	})
	return h.closeErr
}

// Builder constructs a client for one credential set. It must not perform network
// round-trips; invalid credentials surface on the first API call.
type Builder[C any] func(ctx context.Context, creds types.Credentials) (*Handle[C], error)

// Options configures a ClientCache.
type Options struct {
	Name    string
	Cache   *cache.CacheConfig
	Logger  *slog.Logger
	Metrics *metrics.Collector
}

// ClientCache hands out one shared client per credential set.
type ClientCache[C any] struct {
	name    string
	build   Builder[C]
	cache   *cache.ResourceCache[string, *Handle[C]]
	logger  *slog.Logger
	metrics *metrics.Collector

	mu      sync.Mutex
	tracked map[*Handle[C]]struct{}
}

// NewClientCache creates a cache that builds clients with build.
func NewClientCache[C any](build Builder[C], opts Options) *ClientCache[C] {
	name := opts.Name
	if name == "" {
		name = "clients"
	}

	cfg := cache.DefaultCacheConfig()
	if opts.Cache != nil {
		cfg = *opts.Cache
	}
	cfg.Name = name

	cc := &ClientCache[C]{
		name:    name,
		build:   build,
		logger:  utils.OrDiscard(opts.Logger).With("component", "client_cache", "cache", name),
		metrics: opts.Metrics,
		tracked: make(map[*Handle[C]]struct{}),
	}
	cc.cache = cache.NewResourceCache[string, *Handle[C]](&cfg,
		cache.WithRecorder[string, *Handle[C]](opts.Metrics),
		cache.WithOnEvict(func(key string, _ *Handle[C], reason cache.EvictReason) {
			// Evicted clients may still be in use; they stay tracked until Shutdown.
			cc.logger.Debug("client evicted", "reason", reason.String())
		}))

	return cc
}

// GetClient returns the cached client for creds, building it on first use.
func (cc *ClientCache[C]) GetClient(ctx context.Context, creds types.Credentials) (C, error) {
	var zero C

	if err := creds.Validate(); err != nil {
		return zero, err
	}

	handle, err := cc.cache.GetOrCreate(creds.Key(), func() (*Handle[C], error) {
		// Concurrent callers for creds share this build.
		h, err := cc.build(context.WithoutCancel(ctx), creds)
		if err != nil {
			return nil, ckerrors.NewError(ckerrors.ErrCodeInternalError, "failed to build client").
				WithComponent(cc.name).
				WithContext("credentials", creds.String()).
				WithCause(err)
		}
		cc.track(h)
		cc.logger.Info("client created", "access_key", creds.AccessKey, "region", creds.Region)
		return h, nil
	})
	if err != nil {
		return zero, err
	}
	return handle.Client, nil
}

// Len returns the number of cached clients.
func (cc *ClientCache[C]) Len() int {
	return cc.cache.Size()
}

// Tracked returns the number of clients that Shutdown would close.
func (cc *ClientCache[C]) Tracked() int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return len(cc.tracked)
}

// Stats returns the underlying cache statistics.
func (cc *ClientCache[C]) Stats() types.CacheStats {
	return cc.cache.Stats()
}

// Shutdown closes every client built so far and empties the cache. It is safe to
// call repeatedly, and the cache builds fresh clients if used again afterwards.
func (cc *ClientCache[C]) Shutdown(ctx context.Context) error {
	cc.mu.Lock()
	handles := make([]*Handle[C], 0, len(cc.tracked))
	for h := range cc.tracked {
		handles = append(handles, h)
	}
	cc.tracked = make(map[*Handle[C]]struct{})
	cc.mu.Unlock()

	cc.cache.InvalidateAll()
	cc.metrics.UpdateTrackedClients(cc.name, 0)

	if len(handles) == 0 {
		return nil
	}

	var (
		errMu sync.Mutex
		errs  []error
		g     errgroup.Group
	)
	g.SetLimit(shutdownConcurrency)
	for _, h := range handles {
		h := h
		g.Go(func() error {
			if err := h.Close(); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ckerrors.Canceled("Shutdown", ctx.Err()).WithComponent(cc.name)
	}

	cc.logger.Info("clients closed", "count", len(handles), "failures", len(errs))
	if len(errs) > 0 {
		return ckerrors.NewError(ckerrors.ErrCodeShutdownFailed, "failed to close clients").
			WithComponent(cc.name).
			WithDetail("failures", len(errs)).
			WithCause(errors.Join(errs...))
	}
	return nil
}

// Close shuts the cache down and stops its background expiry sweep.
func (cc *ClientCache[C]) Close(ctx context.Context) error {
	err := cc.Shutdown(ctx)
	cc.cache.Close()
	return err
}

func (cc *ClientCache[C]) track(h *Handle[C]) {
	cc.mu.Lock()
	cc.tracked[h] = struct{}{}
	n := len(cc.tracked)
	cc.mu.Unlock()

	cc.metrics.UpdateTrackedClients(cc.name, n)
}
