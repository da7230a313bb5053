package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/fdg312/adreport/internal/storage"
)

// Cache is a best-effort copy of job snapshots. Implementations return
// copies the caller may modify.
type Cache interface {
	Get(ctx context.Context, id string) (*storage.ImportJob, bool, error)
	Set(ctx context.Context, job *storage.ImportJob) error
	Delete(ctx context.Context, id string) error
}

type cacheEntry struct {
	job     *storage.ImportJob
	expires time.Time
}

// MemoryCache is a process-local Cache with a TTL per entry.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(ctx context.Context, id string) (*storage.ImportJob, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if c.now().After(e.expires) {
		c.mu.Lock()
		delete(c.entries, id)
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.job.Clone(), true, nil
}

func (c *MemoryCache) Set(ctx context.Context, job *storage.ImportJob) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[job.ID] = cacheEntry{job: job.Clone(), expires: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)
	return nil
}
