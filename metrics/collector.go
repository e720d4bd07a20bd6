// Package metrics provides in-process resolution metrics.
//
// The Collector accumulates counters across one engine invocation. It is a
// leaf package with no internal dependencies; the coordinator records into
// it live and the stats surface reads a Snapshot at the end.
package metrics

import (
	"sync"

	"github.com/prospect-io/prospector/types"
)

// Snapshot is an immutable point-in-time view of all collected metrics.
// Safe to read concurrently after creation.
type Snapshot struct {
	// Resolution outcomes
	ResolutionsByStatus map[types.Status]int64

	// Cache
	CacheHits   int64
	CacheMisses int64

	// Backends
	BackendCalls  map[string]int64
	BackendErrors map[string]int64
}

// Collector accumulates metrics during one engine invocation.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	resolutionsByStatus map[types.Status]int64
	cacheHits           int64
	cacheMisses         int64
	backendCalls        map[string]int64
	backendErrors       map[string]int64
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		resolutionsByStatus: make(map[types.Status]int64),
		backendCalls:        make(map[string]int64),
		backendErrors:       make(map[string]int64),
	}
}

// IncResolution records one completed resolution by final status.
func (c *Collector) IncResolution(status types.Status) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.resolutionsByStatus[status]++
	c.mu.Unlock()
}

// IncCacheHit records a resolution served from the result cache.
func (c *Collector) IncCacheHit() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.cacheHits++
	c.mu.Unlock()
}

// IncCacheMiss records a cache miss.
func (c *Collector) IncCacheMiss() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.cacheMisses++
	c.mu.Unlock()
}

// IncBackendCall records one Search call against the named backend.
func (c *Collector) IncBackendCall(backend string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.backendCalls[backend]++
	c.mu.Unlock()
}

// IncBackendError records an error-status result from the named backend.
func (c *Collector) IncBackendError(backend string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.backendErrors[backend]++
	c.mu.Unlock()
}

// Snapshot returns an immutable copy of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{
			ResolutionsByStatus: map[types.Status]int64{},
			BackendCalls:        map[string]int64{},
			BackendErrors:       map[string]int64{},
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		ResolutionsByStatus: make(map[types.Status]int64, len(c.resolutionsByStatus)),
		CacheHits:           c.cacheHits,
		CacheMisses:         c.cacheMisses,
		BackendCalls:        make(map[string]int64, len(c.backendCalls)),
		BackendErrors:       make(map[string]int64, len(c.backendErrors)),
	}
	for k, v := range c.resolutionsByStatus {
		snap.ResolutionsByStatus[k] = v
	}
	for k, v := range c.backendCalls {
		snap.BackendCalls[k] = v
	}
	for k, v := range c.backendErrors {
		snap.BackendErrors[k] = v
	}
	return snap
}
