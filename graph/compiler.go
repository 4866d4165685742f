// Package graph compiles the static schedule into a directed station
// graph for routing. Nodes are directional platform IDs. Edges are
// either revenue hops between consecutive stops on a trip, or
// transfer edges carrying a penalty instead of a travel time.
package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/subwaylab/metrofuse/model"
	"github.com/subwaylab/metrofuse/storage"
)

const (
	// Floor for observed hop times. Schedules sometimes claim
	// zero-second hops between adjacent stations.
	MinEdgeSeconds = 60

	// Used when a stop_time timestamp fails to parse.
	DefaultEdgeSeconds = 120

	// Defaults for declared transfers without min_transfer_time.
	TransferPenaltyMin = 180
	TransferPenaltyMax = 300

	// Penalty for switching platforms within one station. High
	// enough that the router only does it when necessary.
	PlatformTransferPenalty = 300
)

type Stats struct {
	ConsecutiveEdges int
	TransferEdges    int
	PlatformEdges    int
	TotalEdges       int
}

type Compiler struct {
	storage storage.Storage

	// DefaultEdge overrides DefaultEdgeSeconds when > 0.
	DefaultEdge int

	// PenaltyMin and PenaltyMax override the declared-transfer
	// penalty defaults when > 0.
	PenaltyMin int
	PenaltyMax int
}

func NewCompiler(s storage.Storage) *Compiler {
	return &Compiler{storage: s}
}

type edgeKey struct {
	From  string
	To    string
	Route string
}

// Compile rebuilds the station graph from the current static dataset
// and commits it in one replace. The result only depends on the
// dataset, so recompiling without a reload is a no-op.
func (c *Compiler) Compile(ctx context.Context) (Stats, error) {
	stats := Stats{}

	reader, err := c.storage.Reader()
	if err != nil {
		return stats, fmt.Errorf("getting reader: %w", err)
	}

	edges := map[edgeKey]*model.GraphEdge{}
	order := []edgeKey{}
	add := func(e *model.GraphEdge) bool {
		key := edgeKey{e.FromStopID, e.ToStopID, e.RouteID}
		if _, found := edges[key]; found {
			return false
		}
		edges[key] = e
		order = append(order, key)
		return true
	}

	stats.ConsecutiveEdges, err = c.compileConsecutive(reader, add)
	if err != nil {
		return stats, fmt.Errorf("compiling consecutive edges: %w", err)
	}

	stats.TransferEdges, err = c.compileTransfers(reader, add)
	if err != nil {
		return stats, fmt.Errorf("compiling transfer edges: %w", err)
	}

	// Sources seen so far. Platform transfers only connect
	// platforms that something departs from.
	sources := map[string]bool{}
	for key := range edges {
		sources[key.From] = true
	}

	stats.PlatformEdges, err = c.compilePlatformTransfers(reader, sources, add)
	if err != nil {
		return stats, fmt.Errorf("compiling platform transfers: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return stats, err
	}

	committed := make([]*model.GraphEdge, 0, len(order))
	for _, key := range order {
		committed = append(committed, edges[key])
	}

	if err := c.storage.ReplaceGraphEdges(committed); err != nil {
		return stats, fmt.Errorf("committing graph: %w", err)
	}

	stats.TotalEdges = len(committed)
	return stats, nil
}

// compileConsecutive derives revenue edges from consecutive
// stop_times within each trip. Parallel observations of the same hop
// on the same route collapse to their mean.
func (c *Compiler) compileConsecutive(reader storage.FeedReader, add func(*model.GraphEdge) bool) (int, error) {
	trips, err := reader.Trips()
	if err != nil {
		return 0, fmt.Errorf("reading trips: %w", err)
	}
	routeOf := map[string]string{}
	for _, t := range trips {
		routeOf[t.ID] = t.RouteID
	}

	stopTimes, err := reader.StopTimesByTrip()
	if err != nil {
		return 0, fmt.Errorf("reading stop times: %w", err)
	}

	observed := map[edgeKey][]int{}
	keys := []edgeKey{}

	for i := 1; i < len(stopTimes); i++ {
		prev, cur := stopTimes[i-1], stopTimes[i]
		if prev.TripID != cur.TripID {
			continue
		}
		if cur.StopSequence != prev.StopSequence+1 {
			continue
		}
		if prev.Departure == "" || cur.Arrival == "" {
			continue
		}

		travel := c.defaultEdge()
		dep, depErr := model.ParseTravelTime(prev.Departure)
		arr, arrErr := model.ParseTravelTime(cur.Arrival)
		if depErr == nil && arrErr == nil {
			travel = arr - dep
			if travel < MinEdgeSeconds {
				travel = MinEdgeSeconds
			}
		}

		key := edgeKey{prev.StopID, cur.StopID, routeOf[cur.TripID]}
		if _, found := observed[key]; !found {
			keys = append(keys, key)
		}
		observed[key] = append(observed[key], travel)
	}

	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Route < b.Route
	})

	count := 0
	for _, key := range keys {
		times := observed[key]
		sum := 0
		for _, t := range times {
			sum += t
		}

		if add(&model.GraphEdge{
			FromStopID: key.From,
			ToStopID:   key.To,
			RouteID:    key.Route,
			TravelTime: sum / len(times),
		}) {
			count++
		}
	}

	return count, nil
}

// compileTransfers materializes declared transfers. Base station IDs
// expand to all four directional variants; the router drops edges
// whose endpoints never materialized.
func (c *Compiler) compileTransfers(reader storage.FeedReader, add func(*model.GraphEdge) bool) (int, error) {
	transfers, err := reader.Transfers()
	if err != nil {
		return 0, fmt.Errorf("reading transfers: %w", err)
	}

	count := 0
	for _, transfer := range transfers {
		if transfer.FromStopID == transfer.ToStopID {
			continue
		}
		if transfer.Type == model.TransferTypeNotPossible {
			continue
		}

		penalty := transfer.MinTransferTime
		if penalty == 0 {
			switch transfer.Type {
			case model.TransferTypeRecommended, model.TransferTypeTimed:
				penalty = c.penaltyMin()
			default:
				penalty = c.penaltyMax()
			}
		}

		for _, from := range directionalVariations(transfer.FromStopID) {
			for _, to := range directionalVariations(transfer.ToStopID) {
				if add(&model.GraphEdge{
					FromStopID:      from,
					ToStopID:        to,
					RouteID:         model.RouteIDTransfer,
					IsTransfer:      true,
					TransferPenalty: penalty,
				}) {
					count++
				}
			}
		}
	}

	return count, nil
}

// compilePlatformTransfers connects sibling platforms of one station,
// so a trip can reverse direction at a penalty.
func (c *Compiler) compilePlatformTransfers(reader storage.FeedReader, sources map[string]bool, add func(*model.GraphEdge) bool) (int, error) {
	stops, err := reader.Stops()
	if err != nil {
		return 0, fmt.Errorf("reading stops: %w", err)
	}

	// Both station entries and bare platform entries land on the
	// same base ID, so feeds without parent stations still work.
	baseIDs := []string{}
	seen := map[string]bool{}
	for _, stop := range stops {
		baseID := model.BaseStopID(stop.ID)
		if !seen[baseID] {
			seen[baseID] = true
			baseIDs = append(baseIDs, baseID)
		}
	}
	sort.Strings(baseIDs)

	count := 0
	for _, baseID := range baseIDs {
		platforms := []string{}
		for _, direction := range model.Directions {
			platform := baseID + direction
			if sources[platform] {
				platforms = append(platforms, platform)
			}
		}

		if len(platforms) < 2 {
			continue
		}

		for _, from := range platforms {
			for _, to := range platforms {
				if from == to {
					continue
				}
				if add(&model.GraphEdge{
					FromStopID:      from,
					ToStopID:        to,
					RouteID:         model.RouteIDPlatformTransfer,
					IsTransfer:      true,
					TransferPenalty: PlatformTransferPenalty,
				}) {
					count++
				}
			}
		}
	}

	return count, nil
}

func (c *Compiler) defaultEdge() int {
	if c.DefaultEdge > 0 {
		return c.DefaultEdge
	}
	return DefaultEdgeSeconds
}

func (c *Compiler) penaltyMin() int {
	if c.PenaltyMin > 0 {
		return c.PenaltyMin
	}
	return TransferPenaltyMin
}

func (c *Compiler) penaltyMax() int {
	if c.PenaltyMax > 0 {
		return c.PenaltyMax
	}
	return TransferPenaltyMax
}

// directionalVariations expands a base stop ID to its four possible
// platform IDs. IDs already carrying a direction pass through as is.
func directionalVariations(stopID string) []string {
	if model.DirectionOf(stopID) != "" {
		return []string{stopID}
	}

	variations := make([]string, 0, len(model.Directions))
	for _, direction := range model.Directions {
		variations = append(variations, stopID+direction)
	}
	return variations
}
