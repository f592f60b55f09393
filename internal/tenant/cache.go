package tenant

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atende-labs/atendai/internal/domain"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTTL           = 5 * time.Minute
	defaultIdleThreshold = 30 * time.Minute
	defaultSweepInterval = time.Minute
)

type cacheEntry struct {
	config    *domain.TenantConfig
	fetchedAt time.Time

	// minVersion is the floor announced by the newest invalidation event.
	// Fetches returning an older version are served but never cached, so
	// the cached version stays monotonically non-decreasing.
	minVersion int64

	lastUsed atomic.Int64 // unix nanos, touched on every read
}

// Cache is the in-memory tenant config cache. Reads within the TTL never
// touch the network; expired entries are refreshed once per key regardless
// of how many resolvers are waiting.
type Cache struct {
	fetcher       Fetcher
	ttl           time.Duration
	idleThreshold time.Duration
	sweepInterval time.Duration

	mu      sync.RWMutex
	entries map[string]*cacheEntry
	group   singleflight.Group
	now     func() time.Time

	fetches atomic.Int64

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// CacheConfig holds the settings for constructing a Cache.
type CacheConfig struct {
	TTL           time.Duration
	IdleThreshold time.Duration
	SweepInterval time.Duration
}

// NewCache creates a Cache over the given fetcher and starts its idle
// sweeper. Call Stop on shutdown.
func NewCache(fetcher Fetcher, cfg CacheConfig) *Cache {
	c := &Cache{
		fetcher:       fetcher,
		ttl:           cfg.TTL,
		idleThreshold: cfg.IdleThreshold,
		sweepInterval: cfg.SweepInterval,
		entries:       make(map[string]*cacheEntry),
		now:           time.Now,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
	if c.ttl <= 0 {
		c.ttl = defaultTTL
	}
	if c.idleThreshold <= 0 {
		c.idleThreshold = defaultIdleThreshold
	}
	if c.sweepInterval <= 0 {
		c.sweepInterval = defaultSweepInterval
	}

	go c.sweepLoop()
	return c
}

// Resolve returns the tenant's config. Within the TTL this is a pure map
// read. On expiry a single fetch per key is performed; concurrent resolvers
// for the same tenant wait on it while other tenants are unaffected. On
// remote failure the last-known-good value is served; with no cached value
// the call fails with ConfigUnavailable.
func (c *Cache) Resolve(ctx context.Context, tenantID string) (*domain.TenantConfig, error) {
	if tenantID == "" {
		return nil, domain.ErrConfigUnavailable
	}

	now := c.now()

	// config and fetchedAt are mutated under the write lock by install and
	// Invalidate, so both reads must happen before the read lock is dropped.
	c.mu.RLock()
	entry, ok := c.entries[tenantID]
	var cached *domain.TenantConfig
	if ok && now.Sub(entry.fetchedAt) < c.ttl {
		cached = entry.config
	}
	c.mu.RUnlock()

	if cached != nil {
		entry.lastUsed.Store(now.UnixNano())
		return cached, nil
	}

	cfg, err := c.refresh(ctx, tenantID)
	if err == nil {
		return cfg, nil
	}

	// Remote failure: fall back to the last-known-good value if any.
	c.mu.RLock()
	entry, ok = c.entries[tenantID]
	if ok {
		cached = entry.config
	}
	c.mu.RUnlock()
	if ok {
		entry.lastUsed.Store(c.now().UnixNano())
		log.Printf("tenant cache: serving stale config for %s after fetch failure: %v", tenantID, err)
		return cached, nil
	}

	return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfigUnavailable, "tenant configuration unavailable", err)
}

// Invalidate applies an out-of-band invalidation event. Versions that are
// not strictly newer than the cached one are ignored, which protects
// against out-of-order delivery. A strictly newer version triggers an eager
// refresh so the entry is replaced before its TTL expires. Returns whether
// the event was applied.
func (c *Cache) Invalidate(ctx context.Context, tenantID string, newVersion int64) (bool, error) {
	if tenantID == "" || newVersion <= 0 {
		return false, domain.ErrInvalidInvalidation
	}

	c.mu.Lock()
	entry, ok := c.entries[tenantID]
	if ok {
		if newVersion <= entry.config.Version || newVersion <= entry.minVersion {
			c.mu.Unlock()
			return false, nil
		}
		entry.minVersion = newVersion
		// Expire the entry so concurrent resolvers refresh instead of
		// serving the superseded config.
		entry.fetchedAt = time.Time{}
	}
	c.mu.Unlock()

	if !ok {
		// Nothing cached for this tenant; the next Resolve fetches fresh.
		return false, nil
	}

	if _, err := c.refresh(ctx, tenantID); err != nil {
		return true, err
	}
	return true, nil
}

// refresh performs a deduplicated fetch for one tenant and installs the
// result, guarded by the version monotonicity rules.
func (c *Cache) refresh(ctx context.Context, tenantID string) (*domain.TenantConfig, error) {
	result, err, _ := c.group.Do(tenantID, func() (interface{}, error) {
		c.fetches.Add(1)
		cfg, err := c.fetcher.FetchConfig(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		c.install(cfg)
		return cfg, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.TenantConfig), nil
}

func (c *Cache) install(cfg *domain.TenantConfig) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[cfg.TenantID]
	if ok {
		if cfg.Version < entry.config.Version || cfg.Version < entry.minVersion {
			// A stale fetch must never displace a newer cached value or
			// satisfy a newer announced version. Leave the entry expired
			// so the next resolver retries.
			return
		}
		entry.config = cfg
		entry.fetchedAt = now
		entry.lastUsed.Store(now.UnixNano())
		return
	}

	entry = &cacheEntry{config: cfg, fetchedAt: now}
	entry.lastUsed.Store(now.UnixNano())
	c.entries[cfg.TenantID] = entry
}

// FetchCount reports how many remote fetches the cache has performed.
func (c *Cache) FetchCount() int64 {
	return c.fetches.Load()
}

// Len returns the number of cached tenants.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop terminates the idle sweeper.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		<-c.doneChan
	})
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	defer close(c.doneChan)

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep evicts entries unused for longer than the idle threshold. This is
// independent of the TTL: it bounds memory for churny tenant populations.
func (c *Cache) sweep() {
	cutoff := c.now().Add(-c.idleThreshold).UnixNano()

	c.mu.Lock()
	for tenantID, entry := range c.entries {
		if entry.lastUsed.Load() < cutoff {
			delete(c.entries, tenantID)
		}
	}
	c.mu.Unlock()
}
