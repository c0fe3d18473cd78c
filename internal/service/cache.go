package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gleadbet/nest/internal/sdm"
)

// DefaultCacheTTL collapses bursts of near-simultaneous reads into one
// upstream call.
const DefaultCacheTTL = 5 * time.Second

type fetchFunc func(ctx context.Context) ([]sdm.RawDevice, error)

// deviceCache is the single process-wide slot for the most recent device
// list. It is shared across all sessions (one upstream project assumed).
// The clock is injected so TTL behavior is testable without sleeping.
type deviceCache struct {
	ttl   time.Duration
	clock func() time.Time

	mu        sync.Mutex
	devices   []sdm.RawDevice
	fetchedAt time.Time

	group singleflight.Group
}

func newDeviceCache(ttl time.Duration, clock func() time.Time) *deviceCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &deviceCache{ttl: ttl, clock: clock}
}

// get returns the cached list while it is fresh, otherwise fetches and
// stores. Concurrent misses share one upstream call. A failed fetch
// propagates; a stale entry is never served as a fallback.
func (c *deviceCache) get(ctx context.Context, force bool, fetch fetchFunc) ([]sdm.RawDevice, error) {
	if !force {
		c.mu.Lock()
		if !c.fetchedAt.IsZero() && c.clock().Sub(c.fetchedAt) < c.ttl {
			devices := c.devices
			c.mu.Unlock()
			return devices, nil
		}
		c.mu.Unlock()
	}

	v, err, _ := c.group.Do("devices", func() (any, error) {
		devices, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.devices = devices
		c.fetchedAt = c.clock()
		c.mu.Unlock()
		return devices, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]sdm.RawDevice), nil
}

// invalidate empties the slot so the next read goes upstream. Called on
// every write-path mutation.
func (c *deviceCache) invalidate() {
	c.mu.Lock()
	c.devices = nil
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
