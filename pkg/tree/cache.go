// Package tree builds the locally materialized view of the on-chain binary tree.
//
// A build starts at the focus user's node and walks breadth-first, fetching
// each node's direct links through a DirectsCache and recursing only into
// nodes present in the ExpansionSet. Every node gets its layout position at
// enqueue time; a Mapping is rebuilt wholesale on every request.
package tree

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/kraitsura/refnet/pkg/model"
)

// DirectsSource performs the remote parent -> {left, right} lookup.
type DirectsSource interface {
	GetDirects(ctx context.Context, id model.NodeID) (model.DirectLinks, error)
}

// CacheStats reports lookup counters since the cache was created.
type CacheStats struct {
	Entries     int   `json:"entries"`
	Hits        int64 `json:"hits"`
	RemoteCalls int64 `json:"remote_calls"`
	Failures    int64 `json:"failures"`
}

// DirectsCache memoizes successful direct-link lookups by node id.
// Failed lookups are never stored, so the next Get for the same id retries.
// Entries live until Clear; there is no expiry.
type DirectsCache struct {
	source DirectsSource

	mu      sync.RWMutex
	entries map[model.NodeID]model.DirectLinks
	gen     uint64 // bumped by Clear so in-flight fetches don't repopulate

	group singleflight.Group

	hits        atomic.Int64
	remoteCalls atomic.Int64
	failures    atomic.Int64
}

// NewDirectsCache creates an empty cache in front of source.
func NewDirectsCache(source DirectsSource) *DirectsCache {
	return &DirectsCache{
		source:  source,
		entries: make(map[model.NodeID]model.DirectLinks),
	}
}

// Get returns the direct links for id, calling the source at most once per
// miss. Concurrent misses for the same id share a single remote call.
// On failure the zero DirectLinks is returned along with the error.
//
// The shared call does not inherit the caller's cancellation: a caller whose
// ctx is done returns ctx.Err() immediately while the fetch keeps running for
// the others. Sources bound each call with their own timeout.
func (c *DirectsCache) Get(ctx context.Context, id model.NodeID) (model.DirectLinks, error) {
	if links, ok := c.Peek(id); ok {
		c.hits.Add(1)
		directsLookups.WithLabelValues("hit").Inc()
		return links, nil
	}

	// A lookup started before Clear must not be joined by one started after
	// it, so the generation is part of the key.
	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()
	key := strconv.FormatUint(gen, 10) + ":" + strconv.FormatUint(uint64(id), 10)

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		c.mu.RLock()
		if links, ok := c.entries[id]; ok && c.gen == gen {
			c.mu.RUnlock()
			return links, nil
		}
		c.mu.RUnlock()

		c.remoteCalls.Add(1)
		links, err := c.source.GetDirects(fetchCtx, id)
		if err != nil {
			c.failures.Add(1)
			directsLookups.WithLabelValues("error").Inc()
			return model.DirectLinks{}, err
		}
		directsLookups.WithLabelValues("miss").Inc()

		c.mu.Lock()
		if c.gen == gen {
			c.entries[id] = links
		}
		c.mu.Unlock()
		return links, nil
	})

	select {
	case <-ctx.Done():
		return model.DirectLinks{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return model.DirectLinks{}, r.Err
		}
		return r.Val.(model.DirectLinks), nil
	}
}

// Peek returns a cached entry without touching the source or the counters.
func (c *DirectsCache) Peek(id model.NodeID) (model.DirectLinks, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	links, ok := c.entries[id]
	return links, ok
}

// Clear discards every entry. Subsequent lookups are misses.
func (c *DirectsCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[model.NodeID]model.DirectLinks)
	c.gen++
}

// Len returns the number of cached entries.
func (c *DirectsCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of the lookup counters.
func (c *DirectsCache) Stats() CacheStats {
	return CacheStats{
		Entries:     c.Len(),
		Hits:        c.hits.Load(),
		RemoteCalls: c.remoteCalls.Load(),
		Failures:    c.failures.Load(),
	}
}
