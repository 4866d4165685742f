// Package router answers origin/destination queries over the
// compiled station graph, overlaying live first-leg wait times from
// the arrivals cache.
package router

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/subwaylab/metrofuse/cache"
	"github.com/subwaylab/metrofuse/model"
	"github.com/subwaylab/metrofuse/storage"
)

const DefaultMaxTransfers = 3

var (
	ErrOriginNotFound      = errors.New("origin not found")
	ErrDestinationNotFound = errors.New("destination not found")
	ErrNoRoute             = errors.New("no route")
)

type Leg struct {
	RouteID       string `json:"route_id"`
	FromStopID    string `json:"from_stop_id"`
	ToStopID      string `json:"to_stop_id"`
	BoardIn       int    `json:"board_in_s"`
	Run           int    `json:"run_s"`
	IsTransferLeg bool   `json:"is_transfer_leg"`
}

type Itinerary struct {
	Legs      []Leg    `json:"legs"`
	Transfers int      `json:"transfers"`
	TotalETA  int      `json:"total_eta_s"`
	Alerts    []string `json:"alerts"`
}

type edge struct {
	To              string
	RouteID         string
	TravelTime      int
	IsTransfer      bool
	TransferPenalty int
}

// Immutable graph snapshot. Queries in flight keep using the
// snapshot they started with even across an Invalidate.
type graph struct {
	adjacency map[string][]edge
	nodes     map[string]bool
}

type Router struct {
	storage storage.Storage
	cache   cache.Cache

	// MaxTransfers bounds the transfer count per itinerary. Zero
	// is a valid bound; New sets the default.
	MaxTransfers int

	snapshot atomic.Pointer[graph]
	loadMu   sync.Mutex
}

func New(s storage.Storage, c cache.Cache) *Router {
	return &Router{
		storage:      s,
		cache:        c,
		MaxTransfers: DefaultMaxTransfers,
	}
}

// Invalidate drops the in-process graph snapshot. The next query
// reloads from storage.
func (r *Router) Invalidate() {
	r.snapshot.Store(nil)
}

// loadGraph builds the adjacency snapshot. Revenue edges define the
// node set; transfer edges pointing at platforms that never
// materialized are dropped here rather than at compile time.
func (r *Router) loadGraph() (*graph, error) {
	if g := r.snapshot.Load(); g != nil {
		return g, nil
	}

	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	if g := r.snapshot.Load(); g != nil {
		return g, nil
	}

	edges, err := r.storage.GraphEdges()
	if err != nil {
		return nil, fmt.Errorf("reading graph edges: %w", err)
	}

	g := &graph{
		adjacency: map[string][]edge{},
		nodes:     map[string]bool{},
	}

	for _, e := range edges {
		if !e.IsTransfer {
			g.nodes[e.FromStopID] = true
			g.nodes[e.ToStopID] = true
		}
	}

	for _, e := range edges {
		if e.IsTransfer && (!g.nodes[e.FromStopID] || !g.nodes[e.ToStopID]) {
			continue
		}
		g.adjacency[e.FromStopID] = append(g.adjacency[e.FromStopID], edge{
			To:              e.ToStopID,
			RouteID:         e.RouteID,
			TravelTime:      e.TravelTime,
			IsTransfer:      e.IsTransfer,
			TransferPenalty: e.TransferPenalty,
		})
	}

	r.snapshot.Store(g)
	return g, nil
}

// expand resolves an endpoint to the directional platforms backing
// it. A directional ID maps to itself when it is a node; a base ID
// maps to whichever of its four platforms exist.
func (g *graph) expand(stopID string) []string {
	if model.DirectionOf(stopID) != "" {
		if g.nodes[stopID] {
			return []string{stopID}
		}
		return nil
	}

	platforms := []string{}
	for _, direction := range model.Directions {
		platform := stopID + direction
		if g.nodes[platform] {
			platforms = append(platforms, platform)
		}
	}
	return platforms
}

// Route finds the fastest itinerary between two endpoints. Endpoints
// may be base station IDs or directional platform IDs.
func (r *Router) Route(ctx context.Context, origin, destination string) (*Itinerary, error) {
	if origin == destination {
		return &Itinerary{Legs: []Leg{}, Alerts: []string{}}, nil
	}

	g, err := r.loadGraph()
	if err != nil {
		return nil, fmt.Errorf("loading graph: %w", err)
	}

	origins := g.expand(origin)
	if len(origins) == 0 {
		return nil, ErrOriginNotFound
	}
	destinations := g.expand(destination)
	if len(destinations) == 0 {
		return nil, ErrDestinationNotFound
	}

	// Outer search over every (origin, destination) platform pair.
	// The winner has the smallest sum of revenue travel times;
	// ties go to the first candidate in N, S, E, W order.
	var best []pathEdge
	bestTravel := 0
	for _, o := range origins {
		for _, d := range destinations {
			if o == d {
				continue
			}

			path := g.dijkstra(o, d, r.MaxTransfers)
			if path == nil {
				continue
			}

			travel := 0
			for _, pe := range path {
				if !pe.IsTransfer {
					travel += pe.TravelTime
				}
			}

			if best == nil || travel < bestTravel {
				best = path
				bestTravel = travel
			}
		}
	}

	if best == nil {
		return nil, ErrNoRoute
	}

	return r.buildItinerary(ctx, best), nil
}

type pathEdge struct {
	From       string
	To         string
	RouteID    string
	TravelTime int
	IsTransfer bool
}

type searchState struct {
	node      string
	transfers int
}

type queueItem struct {
	state searchState
	cost  int
}

type priorityQueue []queueItem

func (q priorityQueue) Len() int            { return len(q) }
func (q priorityQueue) Less(i, j int) bool  { return q[i].cost < q[j].cost }
func (q priorityQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x interface{}) { *q = append(*q, x.(queueItem)) }
func (q *priorityQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// dijkstra searches over (node, transferCount) states. Edge cost is
// travel time plus transfer penalty; both are non-negative. Returns
// nil when the destination is unreachable under the transfer bound.
func (g *graph) dijkstra(start, end string, maxTransfers int) []pathEdge {
	startState := searchState{node: start}

	type cameFrom struct {
		prev searchState
		via  pathEdge
	}

	bestCost := map[searchState]int{startState: 0}
	prev := map[searchState]cameFrom{}
	visited := map[searchState]bool{}

	pq := &priorityQueue{{state: startState}}
	heap.Init(pq)

	for pq.Len() > 0 {
		item := heap.Pop(pq).(queueItem)
		state := item.state

		if visited[state] {
			continue
		}
		visited[state] = true

		if state.node == end {
			// Reconstruct in forward order
			path := []pathEdge{}
			for state != startState {
				cf := prev[state]
				path = append(path, cf.via)
				state = cf.prev
			}
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return path
		}

		for _, e := range g.adjacency[state.node] {
			transfers := state.transfers
			if e.IsTransfer {
				transfers++
			}
			if transfers > maxTransfers {
				continue
			}

			next := searchState{node: e.To, transfers: transfers}
			cost := item.cost + e.TravelTime + e.TransferPenalty

			if known, found := bestCost[next]; found && cost >= known {
				continue
			}
			bestCost[next] = cost
			prev[next] = cameFrom{
				prev: state,
				via: pathEdge{
					From:       state.node,
					To:         e.To,
					RouteID:    e.RouteID,
					TravelTime: e.TravelTime,
					IsTransfer: e.IsTransfer,
				},
			}
			heap.Push(pq, queueItem{state: next, cost: cost})
		}
	}

	return nil
}

// buildItinerary drops transfer edges and turns the rest into legs.
// Only the first leg consults the live cache; the rest board on
// schedule.
func (r *Router) buildItinerary(ctx context.Context, path []pathEdge) *Itinerary {
	itinerary := &Itinerary{
		Legs:   []Leg{},
		Alerts: []string{},
	}

	for _, pe := range path {
		if pe.IsTransfer {
			continue
		}

		boardIn := pe.TravelTime
		if len(itinerary.Legs) == 0 {
			if eta, found := r.liveBoardingTime(ctx, pe.From, pe.RouteID); found {
				boardIn = eta
			}
		}

		itinerary.Legs = append(itinerary.Legs, Leg{
			RouteID:       pe.RouteID,
			FromStopID:    pe.From,
			ToStopID:      pe.To,
			BoardIn:       boardIn,
			Run:           pe.TravelTime,
			IsTransferLeg: len(itinerary.Legs) > 0,
		})
	}

	for _, leg := range itinerary.Legs {
		itinerary.TotalETA += leg.BoardIn + leg.Run
		if leg.IsTransferLeg {
			itinerary.Transfers++
		}
	}

	return itinerary
}

// liveBoardingTime looks for the soonest cached prediction for a
// route at a platform's base station. All four direction buckets are
// consulted: feeds are not consistent about platform labels.
func (r *Router) liveBoardingTime(ctx context.Context, stopID, routeID string) (int, bool) {
	if r.cache == nil {
		return 0, false
	}

	base := model.BaseStopID(stopID)

	bestETA := 0
	found := false
	for _, direction := range model.Directions {
		entry, err := r.cache.Arrivals(ctx, base, direction)
		if err != nil {
			// Cache misses and backend errors both fall back
			// to the scheduled time.
			continue
		}

		for _, p := range entry.Arrivals {
			if p.RouteID != routeID {
				continue
			}
			if !found || p.ETA < bestETA {
				bestETA = p.ETA
				found = true
			}
		}
	}

	return bestETA, found
}
