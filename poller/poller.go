// Package poller keeps the arrivals cache fresh by fetching realtime
// feeds on a fixed interval and turning trip updates into per-station
// predictions.
package poller

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/subwaylab/metrofuse/cache"
	"github.com/subwaylab/metrofuse/downloader"
	"github.com/subwaylab/metrofuse/model"
	"github.com/subwaylab/metrofuse/parse"
)

const (
	DefaultInterval     = 45 * time.Second
	DefaultFetchTimeout = 10 * time.Second
	DefaultBackoff      = 30 * time.Second

	// Predictions further out than this are noise.
	maxETASeconds = 3600
)

// One realtime feed endpoint. Headers typically carry an API key.
type FeedSpec struct {
	URL     string
	Headers map[string]string
}

type CycleStats struct {
	Feeds       int
	FailedFeeds int
	Predictions int
	Stations    int
}

type Poller struct {
	feeds      []FeedSpec
	cache      cache.Cache
	downloader downloader.Downloader

	Interval     time.Duration
	FetchTimeout time.Duration
	Backoff      time.Duration

	// HeadsignFunc derives a rider-facing headsign from a trip.
	// The default doesn't consult the static schedule.
	HeadsignFunc func(tripID, routeID string) string

	TimeNow func() time.Time
}

func New(feeds []FeedSpec, c cache.Cache, d downloader.Downloader) *Poller {
	return &Poller{
		feeds:        feeds,
		cache:        c,
		downloader:   d,
		Interval:     DefaultInterval,
		FetchTimeout: DefaultFetchTimeout,
		Backoff:      DefaultBackoff,
		HeadsignFunc: defaultHeadsign,
		TimeNow:      time.Now,
	}
}

func defaultHeadsign(tripID, routeID string) string {
	return fmt.Sprintf("%s Train", routeID)
}

// Run polls until ctx is canceled. A failed cycle backs off instead
// of waiting for the next tick. If a cycle overruns the interval the
// next one starts immediately; there is no catch-up.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		stats, err := p.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("poll cycle failed, backing off %s: %v", p.Backoff, err)

			select {
			case <-time.After(p.Backoff):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		log.Printf(
			"poll cycle: %d/%d feeds ok, %d predictions across %d stations",
			stats.Feeds-stats.FailedFeeds, stats.Feeds, stats.Predictions, stats.Stations)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type groupKey struct {
	Base      string
	Direction string
}

// Poll runs one cycle: fetch all feeds in parallel, decode, group
// predictions by station and direction, and replace the cache
// entries. Every entry written in a cycle carries the cycle's start
// time. Fails only when no feed produced data.
func (p *Poller) Poll(ctx context.Context) (CycleStats, error) {
	stats := CycleStats{Feeds: len(p.feeds)}
	t0 := p.TimeNow().Unix()

	type fetchResult struct {
		spec FeedSpec
		rt   *parse.Realtime
		err  error
	}

	results := make([]fetchResult, len(p.feeds))
	var wg sync.WaitGroup
	for i, spec := range p.feeds {
		wg.Add(1)
		go func(i int, spec FeedSpec) {
			defer wg.Done()

			body, err := p.downloader.Get(ctx, spec.URL, spec.Headers, downloader.GetOptions{
				Timeout: p.FetchTimeout,
			})
			if err != nil {
				results[i] = fetchResult{spec: spec, err: fmt.Errorf("fetching: %w", err)}
				return
			}

			rt, err := parse.ParseRealtime(body)
			if err != nil {
				results[i] = fetchResult{spec: spec, err: fmt.Errorf("decoding: %w", err)}
				return
			}

			results[i] = fetchResult{spec: spec, rt: rt}
		}(i, spec)
	}
	wg.Wait()

	groups := map[groupKey][]model.Prediction{}
	for _, result := range results {
		if result.err != nil {
			stats.FailedFeeds++
			log.Printf("feed %s skipped: %v", result.spec.URL, result.err)
			continue
		}

		for _, update := range result.rt.Updates {
			headsign := p.HeadsignFunc(update.TripID, update.RouteID)

			for _, event := range update.Events {
				direction := model.DirectionOf(event.StopID)
				if direction == "" {
					continue
				}

				eta := event.Time - t0
				if eta < 0 || eta > maxETASeconds {
					continue
				}

				key := groupKey{Base: model.BaseStopID(event.StopID), Direction: direction}
				groups[key] = append(groups[key], model.Prediction{
					RouteID:  update.RouteID,
					Headsign: headsign,
					ETA:      int(eta),
				})
				stats.Predictions++
			}
		}
	}

	if stats.FailedFeeds == stats.Feeds && stats.Feeds > 0 {
		return stats, fmt.Errorf("all %d feeds failed", stats.Feeds)
	}

	stations := map[string]bool{}
	for key, predictions := range groups {
		if err := p.cache.SetArrivals(ctx, key.Base, key.Direction, predictions, t0); err != nil {
			return stats, fmt.Errorf("writing arrivals for %s:%s: %w", key.Base, key.Direction, err)
		}
		stations[key.Base] = true
	}
	stats.Stations = len(stations)

	if err := p.cache.SetFeedUpdate(ctx, t0); err != nil {
		return stats, fmt.Errorf("writing feed update: %w", err)
	}

	return stats, nil
}
