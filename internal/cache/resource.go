package cache

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	ckerrors "github.com/objectfs/cloudkit/pkg/errors"
	"github.com/objectfs/cloudkit/pkg/types"
)

// Defaults applied when a CacheConfig leaves a field at zero.
const (
	DefaultMaxEntries      = 100
	DefaultTTL             = time.Hour
	DefaultCleanupInterval = time.Minute
)

// CacheConfig represents cache configuration
type CacheConfig struct {
	Name            string        `yaml:"name"`
	MaxEntries      int           `yaml:"max_entries" validate:"gte=0"`
	TTL             time.Duration `yaml:"ttl" validate:"gte=0s"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" validate:"gte=0s"`
}

// DefaultCacheConfig returns the configuration used for nil or zero settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries:      DefaultMaxEntries,
		TTL:             DefaultTTL,
		CleanupInterval: DefaultCleanupInterval,
	}
}

// EvictReason tells an OnEvict callback why an entry left the cache.
type EvictReason int

const (
	EvictCapacity EvictReason = iota
	EvictExpired
	EvictInvalidated
	EvictReplaced
)

func (r EvictReason) String() string {
	switch r {
	case EvictCapacity:
		return "capacity"
	case EvictExpired:
		return "expired"
	case EvictInvalidated:
		return "invalidated"
	case EvictReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Recorder receives cache hit, miss and size observations.
type Recorder interface {
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
	UpdateCacheSize(cache string, entries int)
}

// Option configures a ResourceCache.
type Option[K comparable, V any] func(*ResourceCache[K, V])

// WithOnEvict registers a callback run, outside the cache lock, for every entry that leaves the cache.
func WithOnEvict[K comparable, V any](fn func(key K, value V, reason EvictReason)) Option[K, V] {
	return func(c *ResourceCache[K, V]) {
		c.onEvict = fn
	}
}

// WithRecorder reports hits, misses and size to r.
func WithRecorder[K comparable, V any](r Recorder) Option[K, V] {
	return func(c *ResourceCache[K, V]) {
		c.recorder = r
	}
}

// WithClock replaces time.Now, for tests that need to move time forward.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *ResourceCache[K, V]) {
		c.now = now
	}
}

// ResourceCache is a bounded, concurrent cache-aside map. Entries expire a fixed
// time after their last access and the least recently used entry is evicted when
// the cache is full. GetOrCreate runs the factory at most once per key at a time.
type ResourceCache[K comparable, V any] struct {
	mu        sync.RWMutex
	items     map[K]*resourceEntry[K, V]
	evictList *list.List

	// Configuration
	config   CacheConfig
	onEvict  func(K, V, EvictReason)
	recorder Recorder
	now      func() time.Time

	group singleflight.Group

	// Statistics
	hits          atomic.Uint64
	misses        atomic.Uint64
	constructions atomic.Uint64
	evictions     atomic.Uint64

	stopOnce sync.Once
	stop     chan struct{}
}

type resourceEntry[K comparable, V any] struct {
	key        K
	value      V
	createdAt  time.Time
	accessTime time.Time
	element    *list.Element
}

type evicted[K comparable, V any] struct {
	key    K
	value  V
	reason EvictReason
}

// NewResourceCache creates a cache. A nil config, or zero fields, take the defaults.
func NewResourceCache[K comparable, V any](config *CacheConfig, opts ...Option[K, V]) *ResourceCache[K, V] {
	cfg := DefaultCacheConfig()
	if config != nil {
		cfg.Name = config.Name
		if config.MaxEntries > 0 {
			cfg.MaxEntries = config.MaxEntries
		}
		if config.TTL > 0 {
			cfg.TTL = config.TTL
		}
		if config.CleanupInterval > 0 {
			cfg.CleanupInterval = config.CleanupInterval
		}
	}

	c := &ResourceCache[K, V]{
		items:     make(map[K]*resourceEntry[K, V]),
		evictList: list.New(),
		config:    cfg,
		now:       time.Now,
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.cleanupExpired()

	return c
}

// Has reports whether a live entry exists for key. It does not count as a hit.
func (c *ResourceCache[K, V]) Has(key K) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.items[key]
	return exists && !c.isExpired(entry)
}

// Get returns the cached value or an ENTRY_NOT_FOUND error.
func (c *ResourceCache[K, V]) Get(key K) (V, error) {
	value, ok := c.lookup(key)
	if !ok {
		c.recordMiss()
		var zero V
		return zero, ckerrors.EntryNotFound(fmt.Sprint(key)).WithComponent(c.component())
	}
	c.recordHit()
	return value, nil
}

// GetOrCreate returns the cached value for key, building it with factory on a miss.
// Concurrent callers for the same key share one factory invocation. Factory errors
// are returned to every waiter and nothing is cached.
func (c *ResourceCache[K, V]) GetOrCreate(key K, factory func() (V, error)) (V, error) {
	if value, ok := c.lookup(key); ok {
		c.recordHit()
		return value, nil
	}

	built := false
	result, err, _ := c.group.Do(flightKey(key), func() (interface{}, error) {
		// A previous flight may have stored the value after our lookup.
		if value, ok := c.lookup(key); ok {
			return value, nil
		}

		value, err := factory()
		if err != nil {
			return nil, err
		}
		built = true
		c.constructions.Add(1)
		c.Put(key, value)
		return value, nil
	})
	if err != nil {
		c.recordMiss()
		var zero V
		return zero, err
	}

	if built {
		c.recordMiss()
	} else {
		c.recordHit()
	}
	value, _ := result.(V)
	return value, nil
}

// Put stores value under key, replacing any existing entry.
func (c *ResourceCache[K, V]) Put(key K, value V) {
	var out []evicted[K, V]

	c.mu.Lock()
	now := c.now()
	if entry, exists := c.items[key]; exists {
		out = append(out, evicted[K, V]{key: key, value: entry.value, reason: EvictReplaced})
		entry.value = value
		entry.createdAt = now
		entry.accessTime = now
		c.evictList.MoveToFront(entry.element)
	} else {
		entry := &resourceEntry[K, V]{
			key:        key,
			value:      value,
			createdAt:  now,
			accessTime: now,
		}
		entry.element = c.evictList.PushFront(entry)
		c.items[key] = entry
		out = append(out, c.evictIfNeeded()...)
	}
	size := len(c.items)
	c.mu.Unlock()

	c.updateSize(size)
	c.notify(out)
}

// Invalidate removes key and reports whether it was present.
func (c *ResourceCache[K, V]) Invalidate(key K) bool {
	c.mu.Lock()
	entry, exists := c.items[key]
	if exists {
		c.removeEntry(entry)
	}
	size := len(c.items)
	c.mu.Unlock()

	if !exists {
		return false
	}
	c.updateSize(size)
	c.notify([]evicted[K, V]{{key: key, value: entry.value, reason: EvictInvalidated}})
	return true
}

// InvalidateAll removes every entry.
func (c *ResourceCache[K, V]) InvalidateAll() {
	c.mu.Lock()
	out := make([]evicted[K, V], 0, len(c.items))
	for key, entry := range c.items {
		out = append(out, evicted[K, V]{key: key, value: entry.value, reason: EvictInvalidated})
	}
	c.items = make(map[K]*resourceEntry[K, V])
	c.evictList.Init()
	c.mu.Unlock()

	c.evictions.Add(uint64(len(out)))
	c.updateSize(0)
	c.notify(out)
}

// Size returns the number of live entries.
func (c *ResourceCache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, entry := range c.items {
		if !c.isExpired(entry) {
			n++
		}
	}
	return n
}

// HitCount returns the number of lookups served from the cache.
func (c *ResourceCache[K, V]) HitCount() int64 {
	return int64(c.hits.Load())
}

// ConstructionCount returns how many times a factory produced a value.
func (c *ResourceCache[K, V]) ConstructionCount() int64 {
	return int64(c.constructions.Load())
}

// Keys returns the keys of live entries, most recently used first.
func (c *ResourceCache[K, V]) Keys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]K, 0, len(c.items))
	for e := c.evictList.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*resourceEntry[K, V])
		if !c.isExpired(entry) {
			keys = append(keys, entry.key)
		}
	}
	return keys
}

// Stats returns cache statistics
func (c *ResourceCache[K, V]) Stats() types.CacheStats {
	size := c.Size()
	stats := types.CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Constructions: c.constructions.Load(),
		Evictions:     c.evictions.Load(),
		Size:          size,
		Capacity:      c.config.MaxEntries,
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	if stats.Capacity > 0 {
		stats.Utilization = float64(size) / float64(stats.Capacity)
	}
	return stats
}

// Config returns the effective configuration.
func (c *ResourceCache[K, V]) Config() CacheConfig {
	return c.config
}

// Close stops the background expiry sweep. Entries stay readable.
func (c *ResourceCache[K, V]) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// Helper methods

// lookup returns a live value and refreshes its access time. Expired entries are dropped.
func (c *ResourceCache[K, V]) lookup(key K) (V, bool) {
	var zero V

	c.mu.Lock()
	entry, exists := c.items[key]
	if !exists {
		c.mu.Unlock()
		return zero, false
	}

	if c.isExpired(entry) {
		c.removeEntry(entry)
		size := len(c.items)
		c.mu.Unlock()

		c.updateSize(size)
		c.notify([]evicted[K, V]{{key: key, value: entry.value, reason: EvictExpired}})
		return zero, false
	}

	entry.accessTime = c.now()
	c.evictList.MoveToFront(entry.element)
	value := entry.value
	c.mu.Unlock()

	return value, true
}

func (c *ResourceCache[K, V]) isExpired(entry *resourceEntry[K, V]) bool {
	if c.config.TTL <= 0 {
		return false
	}
	return c.now().Sub(entry.accessTime) > c.config.TTL
}

func (c *ResourceCache[K, V]) removeEntry(entry *resourceEntry[K, V]) {
	if entry.element != nil {
		c.evictList.Remove(entry.element)
	}
	delete(c.items, entry.key)
	c.evictions.Add(1)
}

func (c *ResourceCache[K, V]) evictIfNeeded() []evicted[K, V] {
	maxEntries := c.config.MaxEntries
	if maxEntries <= 0 {
		return nil
	}

	var out []evicted[K, V]
	for len(c.items) > maxEntries && c.evictList.Len() > 0 {
		entry := c.evictList.Back().Value.(*resourceEntry[K, V])
		c.removeEntry(entry)
		out = append(out, evicted[K, V]{key: entry.key, value: entry.value, reason: EvictCapacity})
	}
	return out
}

func (c *ResourceCache[K, V]) cleanupExpired() {
	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *ResourceCache[K, V]) sweep() {
	var out []evicted[K, V]

	c.mu.Lock()
	for _, entry := range c.items {
		if c.isExpired(entry) {
			c.removeEntry(entry)
			out = append(out, evicted[K, V]{key: entry.key, value: entry.value, reason: EvictExpired})
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if len(out) > 0 {
		c.updateSize(size)
		c.notify(out)
	}
}

func (c *ResourceCache[K, V]) notify(out []evicted[K, V]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range out {
		c.onEvict(e.key, e.value, e.reason)
	}
}

func (c *ResourceCache[K, V]) recordHit() {
	c.hits.Add(1)
	if c.recorder != nil {
		c.recorder.RecordCacheHit(c.config.Name)
	}
}

func (c *ResourceCache[K, V]) recordMiss() {
	c.misses.Add(1)
	if c.recorder != nil {
		c.recorder.RecordCacheMiss(c.config.Name)
	}
}

func (c *ResourceCache[K, V]) updateSize(size int) {
	if c.recorder != nil {
		c.recorder.UpdateCacheSize(c.config.Name, size)
	}
}

func (c *ResourceCache[K, V]) component() string {
	if c.config.Name == "" {
		return "cache"
	}
	return "cache:" + c.config.Name
}

// flightKey renders key for singleflight. %#v keeps distinct keys distinct, including quoted strings.
func flightKey[K comparable](key K) string {
	return fmt.Sprintf("%#v", key)
}
