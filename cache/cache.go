// Package cache holds short-lived arrival predictions keyed by
// station and direction. Entries expire on a TTL so stale predictions
// never outlive the feed that produced them.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/subwaylab/metrofuse/model"
)

// ErrMiss is returned for keys that are absent or expired.
var ErrMiss = errors.New("cache miss")

const (
	DefaultTTL = 90 * time.Second

	feedUpdateKey = "feed:last_update"
)

// One cache entry: the predictions for a station/direction pair, the
// poll cycle timestamp they were computed against, and the moment
// they were written.
type Entry struct {
	Arrivals []model.Prediction `json:"arrivals"`
	AsOf     int64              `json:"as_of_ts"`
	CachedAt int64              `json:"cached_at"`
}

type Cache interface {
	// Arrivals reads the entry for a base stop ID and direction.
	// Returns ErrMiss when absent or expired.
	Arrivals(ctx context.Context, baseStopID string, direction string) (*Entry, error)

	// SetArrivals writes an entry, stamping CachedAt.
	SetArrivals(ctx context.Context, baseStopID string, direction string, arrivals []model.Prediction, asOf int64) error

	// SetFeedUpdate records the timestamp of the last successful
	// poll cycle. Not subject to the TTL.
	SetFeedUpdate(ctx context.Context, ts int64) error

	// FeedAge returns seconds since the last successful poll
	// cycle. Returns ErrMiss when no cycle has completed.
	FeedAge(ctx context.Context) (int64, error)

	// StopsWithArrivals lists base stop IDs with at least one
	// live entry, sorted.
	StopsWithArrivals(ctx context.Context) ([]string, error)

	// EntryCount counts live arrival entries.
	EntryCount(ctx context.Context) (int, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

type Health struct {
	OK             bool  `json:"ok"`
	EntryCount     int   `json:"entry_count"`
	FeedAgeSeconds int64 `json:"feed_age_seconds"`
}

// CheckHealth summarizes a cache's state. FeedAgeSeconds is -1 until
// a poll cycle has completed.
func CheckHealth(ctx context.Context, c Cache) Health {
	h := Health{FeedAgeSeconds: -1}

	if err := c.Ping(ctx); err != nil {
		return h
	}
	h.OK = true

	if count, err := c.EntryCount(ctx); err == nil {
		h.EntryCount = count
	}
	if age, err := c.FeedAge(ctx); err == nil {
		h.FeedAgeSeconds = age
	}

	return h
}

func arrivalKey(baseStopID, direction string) string {
	return fmt.Sprintf("arrivals:%s:%s", baseStopID, direction)
}
