package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/subwaylab/metrofuse/model"
)

// In-process Cache for single-node deployments and tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	feedTs  int64
	feedSet bool

	ttl time.Duration
	now func() time.Time
}

type memoryEntry struct {
	entry   Entry
	expires time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		entries: map[string]memoryEntry{},
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryCache) Arrivals(ctx context.Context, baseStopID string, direction string) (*Entry, error) {
	c.mu.RLock()
	me, found := c.entries[arrivalKey(baseStopID, direction)]
	c.mu.RUnlock()

	if !found || c.now().After(me.expires) {
		return nil, ErrMiss
	}

	entry := me.entry
	return &entry, nil
}

func (c *MemoryCache) SetArrivals(ctx context.Context, baseStopID string, direction string, arrivals []model.Prediction, asOf int64) error {
	now := c.now()

	c.mu.Lock()
	c.entries[arrivalKey(baseStopID, direction)] = memoryEntry{
		entry: Entry{
			Arrivals: arrivals,
			AsOf:     asOf,
			CachedAt: now.Unix(),
		},
		expires: now.Add(c.ttl),
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) SetFeedUpdate(ctx context.Context, ts int64) error {
	c.mu.Lock()
	c.feedTs = ts
	c.feedSet = true
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) FeedAge(ctx context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.feedSet {
		return 0, ErrMiss
	}
	return c.now().Unix() - c.feedTs, nil
}

func (c *MemoryCache) StopsWithArrivals(ctx context.Context) ([]string, error) {
	now := c.now()

	c.mu.RLock()
	seen := map[string]bool{}
	for key, me := range c.entries {
		if now.After(me.expires) {
			continue
		}
		// arrivals:<base>:<direction>
		parts := strings.Split(key, ":")
		if len(parts) == 3 {
			seen[parts[1]] = true
		}
	}
	c.mu.RUnlock()

	stops := []string{}
	for stop := range seen {
		stops = append(stops, stop)
	}
	sort.Strings(stops)
	return stops, nil
}

func (c *MemoryCache) EntryCount(ctx context.Context) (int, error) {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, me := range c.entries {
		if !now.After(me.expires) {
			count++
		}
	}
	return count, nil
}

func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}
