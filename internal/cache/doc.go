/*
Package cache provides the bounded, concurrent cache-aside map that backs every
client and resource cache in cloudkit.

# Semantics

ResourceCache[K, V] keeps at most MaxEntries values (default 100). Each entry
expires TTL after its last access (default one hour); expired entries are dropped
lazily on lookup and by a background sweep every CleanupInterval. When the cache is
full the least recently used entry is evicted.

	c := cache.NewResourceCache[string, *Client](nil)
	defer c.Close()

	client, err := c.GetOrCreate("AKIA/us-east-1", func() (*Client, error) {
		return buildClient()
	})

# Construction races

GetOrCreate collapses concurrent misses for the same key onto a single factory call
through golang.org/x/sync/singleflight. Different keys never wait on each other and
the cache lock is never held while a factory runs. A factory error reaches every
waiter and leaves the cache unchanged, so the next call tries again.

# Eviction callbacks

WithOnEvict registers a callback that receives the key, the value and an EvictReason
(capacity, expired, invalidated or replaced). Callbacks run after the lock is
released. Owners of closable values use it to track, not to close, values that may
still be in use elsewhere.

# Statistics

HitCount counts lookups served from the cache; a miss that runs the factory is not a
hit, so N sequential GetOrCreate calls on one key report N-1 hits. Stats returns the
full types.CacheStats and WithRecorder forwards observations to a metrics collector.
*/
package cache
