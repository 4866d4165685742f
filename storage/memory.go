package storage

import (
	"sort"
	"strings"
	"sync"

	"github.com/subwaylab/metrofuse/model"
)

// In memory implementation of Storage below. Used in tests and for
// running the engine without a database.

type MemoryStorage struct {
	mu      sync.RWMutex
	dataset *memoryDataset
	edges   []*model.GraphEdge
}

type memoryDataset struct {
	agencies      map[string]*model.Agency
	stops         map[string]*model.Stop
	routes        map[string]*model.Route
	trips         map[string]*model.Trip
	calendars     []*model.Calendar
	calendarDates []*model.CalendarDate
	transfers     []*model.Transfer
	stopTimes     []*model.StopTime
	routesByStop  map[string]map[string]bool
}

func newMemoryDataset() *memoryDataset {
	return &memoryDataset{
		agencies:     map[string]*model.Agency{},
		stops:        map[string]*model.Stop{},
		routes:       map[string]*model.Route{},
		trips:        map[string]*model.Trip{},
		routesByStop: map[string]map[string]bool{},
	}
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{dataset: newMemoryDataset()}
}

// MemoryFeedWriter accumulates a full dataset and swaps it in on
// Close, so readers never see a half-written revision.
type MemoryFeedWriter struct {
	storage *MemoryStorage
	dataset *memoryDataset
}

func (s *MemoryStorage) Writer() (FeedWriter, error) {
	return &MemoryFeedWriter{
		storage: s,
		dataset: newMemoryDataset(),
	}, nil
}

func (s *MemoryStorage) Reader() (FeedReader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &MemoryFeedReader{dataset: s.dataset}, nil
}

func (s *MemoryStorage) ReplaceGraphEdges(edges []*model.GraphEdge) error {
	replacement := make([]*model.GraphEdge, len(edges))
	copy(replacement, edges)

	s.mu.Lock()
	s.edges = replacement
	s.mu.Unlock()
	return nil
}

func (s *MemoryStorage) GraphEdges() ([]*model.GraphEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edges := make([]*model.GraphEdge, len(s.edges))
	copy(edges, s.edges)
	return edges, nil
}

func (w *MemoryFeedWriter) WriteAgency(agency *model.Agency) error {
	w.dataset.agencies[agency.ID] = agency
	return nil
}

func (w *MemoryFeedWriter) WriteStop(stop *model.Stop) error {
	w.dataset.stops[stop.ID] = stop
	return nil
}

func (w *MemoryFeedWriter) WriteRoute(route *model.Route) error {
	w.dataset.routes[route.ID] = route
	return nil
}

func (w *MemoryFeedWriter) BeginTrips() error { return nil }

func (w *MemoryFeedWriter) WriteTrip(trip *model.Trip) error {
	w.dataset.trips[trip.ID] = trip
	return nil
}

func (w *MemoryFeedWriter) EndTrips() error { return nil }

func (w *MemoryFeedWriter) WriteCalendar(cal *model.Calendar) error {
	w.dataset.calendars = append(w.dataset.calendars, cal)
	return nil
}

func (w *MemoryFeedWriter) WriteCalendarDate(cd *model.CalendarDate) error {
	w.dataset.calendarDates = append(w.dataset.calendarDates, cd)
	return nil
}

func (w *MemoryFeedWriter) BeginStopTimes() error { return nil }

func (w *MemoryFeedWriter) WriteStopTime(stopTime *model.StopTime) error {
	w.dataset.stopTimes = append(w.dataset.stopTimes, stopTime)

	if trip, found := w.dataset.trips[stopTime.TripID]; found {
		routes, found := w.dataset.routesByStop[stopTime.StopID]
		if !found {
			routes = map[string]bool{}
			w.dataset.routesByStop[stopTime.StopID] = routes
		}
		routes[trip.RouteID] = true
	}

	return nil
}

func (w *MemoryFeedWriter) EndStopTimes() error {
	sort.SliceStable(w.dataset.stopTimes, func(i, j int) bool {
		a, b := w.dataset.stopTimes[i], w.dataset.stopTimes[j]
		if a.TripID != b.TripID {
			return a.TripID < b.TripID
		}
		return a.StopSequence < b.StopSequence
	})
	return nil
}

func (w *MemoryFeedWriter) WriteTransfer(transfer *model.Transfer) error {
	w.dataset.transfers = append(w.dataset.transfers, transfer)
	return nil
}

func (w *MemoryFeedWriter) Close() error {
	w.storage.mu.Lock()
	w.storage.dataset = w.dataset
	w.storage.mu.Unlock()
	return nil
}

type MemoryFeedReader struct {
	dataset *memoryDataset
}

func (r *MemoryFeedReader) Agencies() ([]*model.Agency, error) {
	agencies := []*model.Agency{}
	for _, a := range r.dataset.agencies {
		agencies = append(agencies, a)
	}
	return agencies, nil
}

func (r *MemoryFeedReader) Stops() ([]*model.Stop, error) {
	stops := []*model.Stop{}
	for _, s := range r.dataset.stops {
		stops = append(stops, s)
	}
	return stops, nil
}

func (r *MemoryFeedReader) Routes() ([]*model.Route, error) {
	routes := []*model.Route{}
	for _, rt := range r.dataset.routes {
		routes = append(routes, rt)
	}
	return routes, nil
}

func (r *MemoryFeedReader) Trips() ([]*model.Trip, error) {
	trips := []*model.Trip{}
	for _, t := range r.dataset.trips {
		trips = append(trips, t)
	}
	return trips, nil
}

func (r *MemoryFeedReader) Calendars() ([]*model.Calendar, error) {
	return append([]*model.Calendar{}, r.dataset.calendars...), nil
}

func (r *MemoryFeedReader) CalendarDates() ([]*model.CalendarDate, error) {
	return append([]*model.CalendarDate{}, r.dataset.calendarDates...), nil
}

func (r *MemoryFeedReader) Transfers() ([]*model.Transfer, error) {
	return append([]*model.Transfer{}, r.dataset.transfers...), nil
}

func (r *MemoryFeedReader) Stop(id string) (*model.Stop, error) {
	stop, found := r.dataset.stops[id]
	if !found {
		return nil, ErrNotFound
	}
	return stop, nil
}

func (r *MemoryFeedReader) StopTimesByTrip() ([]*model.StopTime, error) {
	return append([]*model.StopTime{}, r.dataset.stopTimes...), nil
}

func (r *MemoryFeedReader) SearchStops(q string, limit int) ([]*model.Stop, error) {
	q = strings.ToLower(q)

	stops := []*model.Stop{}
	for _, s := range r.dataset.stops {
		if s.LocationType != model.LocationTypeStop {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(s.ID), q) &&
			!strings.Contains(strings.ToLower(s.Name), q) {
			continue
		}
		stops = append(stops, s)
	}

	sort.Slice(stops, func(i, j int) bool {
		return stops[i].ID < stops[j].ID
	})

	if limit > 0 && len(stops) > limit {
		stops = stops[:limit]
	}

	return stops, nil
}

func (r *MemoryFeedReader) NearbyStops(lat float64, lon float64, limit int) ([]*model.Stop, error) {
	stops := []*model.Stop{}
	for _, s := range r.dataset.stops {
		if s.LocationType != model.LocationTypeStop {
			continue
		}
		stops = append(stops, s)
	}

	sortStopsByDistance(stops, lat, lon)

	if limit > 0 && len(stops) > limit {
		stops = stops[:limit]
	}

	return stops, nil
}

func (r *MemoryFeedReader) RoutesServing(stopID string) ([]string, error) {
	routes := []string{}
	for routeID := range r.dataset.routesByStop[stopID] {
		routes = append(routes, routeID)
	}
	sort.Strings(routes)
	return routes, nil
}
