package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	appmetering "github.com/propfolio/backend/internal/application/metering"
	"github.com/propfolio/backend/internal/domain/metering"
)

// summaryEntry is a cached summary with its expiration
type summaryEntry struct {
	summary   *metering.MonthlySummary
	expiresAt time.Time
}

// InMemorySummaryCache implements the summary cache on a local map. This is
// suitable for single-instance deployments and testing.
type InMemorySummaryCache struct {
	mu        sync.RWMutex
	entries   map[string]summaryEntry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemorySummaryCache creates a new in-memory summary cache.
// It starts a background goroutine to clean up expired entries.
func NewInMemorySummaryCache() *InMemorySummaryCache {
	cache := &InMemorySummaryCache{
		entries:  make(map[string]summaryEntry),
		stopChan: make(chan struct{}),
	}

	cache.wg.Add(1)
	go cache.cleanupLoop()

	return cache
}

func summaryKey(tenantID uuid.UUID, period time.Time) string {
	return tenantID.String() + ":" + metering.PeriodKey(period)
}

// Get retrieves a cached summary; (nil, nil) on a cache miss
func (c *InMemorySummaryCache) Get(ctx context.Context, tenantID uuid.UUID, period time.Time) (*metering.MonthlySummary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.entries[summaryKey(tenantID, period)]
	if !exists {
		return nil, nil
	}
	if time.Now().After(e.expiresAt) {
		return nil, nil
	}
	return e.summary, nil
}

// Set caches a summary with a TTL
func (c *InMemorySummaryCache) Set(ctx context.Context, summary *metering.MonthlySummary, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[summaryKey(summary.TenantID, summary.Period)] = summaryEntry{
		summary:   summary,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Invalidate removes a cached summary
func (c *InMemorySummaryCache) Invalidate(ctx context.Context, tenantID uuid.UUID, period time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, summaryKey(tenantID, period))
	return nil
}

// Close stops the cleanup goroutine and releases resources.
// Safe to call multiple times.
func (c *InMemorySummaryCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

// cleanupLoop periodically removes expired entries
func (c *InMemorySummaryCache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes expired entries from the cache
func (c *InMemorySummaryCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Size returns the number of entries in the cache (for testing/monitoring)
func (c *InMemorySummaryCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Ensure InMemorySummaryCache implements SummaryCache
var _ appmetering.SummaryCache = (*InMemorySummaryCache)(nil)
