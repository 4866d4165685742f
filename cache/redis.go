package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/subwaylab/metrofuse/model"
)

// Redis-backed Cache, for sharing predictions across processes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisCache{
		client: redis.NewClient(opts),
		ttl:    ttl,
	}, nil
}

func (c *RedisCache) Arrivals(ctx context.Context, baseStopID string, direction string) (*Entry, error) {
	buf, err := c.client.Get(ctx, arrivalKey(baseStopID, direction)).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("reading arrivals: %w", err)
	}

	entry := &Entry{}
	if err := json.Unmarshal(buf, entry); err != nil {
		return nil, fmt.Errorf("unmarshaling entry: %w", err)
	}

	return entry, nil
}

func (c *RedisCache) SetArrivals(ctx context.Context, baseStopID string, direction string, arrivals []model.Prediction, asOf int64) error {
	buf, err := json.Marshal(Entry{
		Arrivals: arrivals,
		AsOf:     asOf,
		CachedAt: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshaling entry: %w", err)
	}

	err = c.client.Set(ctx, arrivalKey(baseStopID, direction), buf, c.ttl).Err()
	if err != nil {
		return fmt.Errorf("writing arrivals: %w", err)
	}

	return nil
}

func (c *RedisCache) SetFeedUpdate(ctx context.Context, ts int64) error {
	err := c.client.Set(ctx, feedUpdateKey, strconv.FormatInt(ts, 10), 0).Err()
	if err != nil {
		return fmt.Errorf("writing feed update: %w", err)
	}
	return nil
}

func (c *RedisCache) FeedAge(ctx context.Context) (int64, error) {
	val, err := c.client.Get(ctx, feedUpdateKey).Result()
	if err == redis.Nil {
		return 0, ErrMiss
	}
	if err != nil {
		return 0, fmt.Errorf("reading feed update: %w", err)
	}

	ts, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing feed update '%s': %w", val, err)
	}

	return time.Now().Unix() - ts, nil
}

func (c *RedisCache) StopsWithArrivals(ctx context.Context) ([]string, error) {
	keys, err := c.client.Keys(ctx, "arrivals:*").Result()
	if err != nil {
		return nil, fmt.Errorf("listing arrival keys: %w", err)
	}

	seen := map[string]bool{}
	for _, key := range keys {
		parts := strings.Split(key, ":")
		if len(parts) == 3 {
			seen[parts[1]] = true
		}
	}

	stops := []string{}
	for stop := range seen {
		stops = append(stops, stop)
	}
	sort.Strings(stops)
	return stops, nil
}

func (c *RedisCache) EntryCount(ctx context.Context) (int, error) {
	keys, err := c.client.Keys(ctx, "arrivals:*").Result()
	if err != nil {
		return 0, fmt.Errorf("listing arrival keys: %w", err)
	}
	return len(keys), nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}
