package cache

import (
	"sync"
	"time"
)

// Result is the outcome of the last validation of one target.
type Result struct {
	At       time.Time
	Owner    string
	Host     string
	Duration time.Duration
	Err      error
}

func (r Result) OK() bool { return r.Err == nil }

// Cache is the interface used by batch jobs and the metrics renderer.
type Cache interface {
	Set(targetID string, r Result)
	Snapshot() map[string]Result
}

// MemCache keeps results in memory. Nothing is persisted; a restart starts
// empty. Entries older than maxAge are evicted on Snapshot.
type MemCache struct {
	maxAge time.Duration
	now    func() time.Time

	mu   sync.Mutex
	data map[string]Result
}

// NewMemCache returns a cache; maxAge <= 0 keeps entries forever.
func NewMemCache(maxAge time.Duration) *MemCache {
	return &MemCache{
		maxAge: maxAge,
		now:    time.Now,
		data:   make(map[string]Result),
	}
}

func (c *MemCache) Set(targetID string, r Result) {
	if r.At.IsZero() {
		r.At = c.now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[targetID] = r
}

func (c *MemCache) Snapshot() map[string]Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]Result, len(c.data))
	for k, v := range c.data {
		if c.maxAge > 0 && c.now().Sub(v.At) > c.maxAge {
			delete(c.data, k)
			continue
		}
		out[k] = v
	}
	return out
}
