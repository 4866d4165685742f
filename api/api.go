// Package api exposes arrivals, routing and stop search over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/subwaylab/metrofuse/cache"
	"github.com/subwaylab/metrofuse/model"
	"github.com/subwaylab/metrofuse/router"
	"github.com/subwaylab/metrofuse/storage"
)

const defaultStopLimit = 10

type Server struct {
	storage storage.Storage
	cache   cache.Cache
	router  *router.Router
}

func New(s storage.Storage, c cache.Cache, r *router.Router) *Server {
	return &Server{storage: s, cache: c, router: r}
}

// Handler builds the HTTP routing table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/v1/arrivals", s.getArrivals)
	r.Get("/v1/arrivals/{stopID}", s.getArrivalsByStop)
	r.Get("/v1/route", s.getRoute)
	r.Get("/v1/stops", s.getStops)
	r.Get("/healthz", s.getHealth)

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

// Arrival is a prediction tagged with the platform direction it was
// read from.
type Arrival struct {
	model.Prediction
	Direction string `json:"direction"`
}

type arrivalsResponse struct {
	StopID   string    `json:"stop_id"`
	Arrivals []Arrival `json:"arrivals"`
	AsOf     int64     `json:"as_of_ts,omitempty"`
}

func (s *Server) getArrivals(w http.ResponseWriter, r *http.Request) {
	stopID := r.URL.Query().Get("stop_id")
	if stopID == "" {
		writeError(w, http.StatusBadRequest, "stop_id is required")
		return
	}

	directions := model.Directions
	if d := r.URL.Query().Get("direction"); d != "" {
		directions = []string{d}
	}

	s.writeArrivals(w, r, stopID, directions)
}

func (s *Server) getArrivalsByStop(w http.ResponseWriter, r *http.Request) {
	s.writeArrivals(w, r, chi.URLParam(r, "stopID"), model.Directions)
}

// writeArrivals merges the live entries for the given directions into
// one board, soonest first. A station with no live entries gets an
// empty board, not an error.
func (s *Server) writeArrivals(w http.ResponseWriter, r *http.Request, stopID string, directions []string) {
	ctx := r.Context()
	base := model.BaseStopID(stopID)

	resp := arrivalsResponse{StopID: base, Arrivals: []Arrival{}}
	for _, direction := range directions {
		entry, err := s.cache.Arrivals(ctx, base, direction)
		if errors.Is(err, cache.ErrMiss) {
			continue
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "reading arrivals")
			return
		}

		for _, p := range entry.Arrivals {
			resp.Arrivals = append(resp.Arrivals, Arrival{Prediction: p, Direction: direction})
		}
		if entry.AsOf > resp.AsOf {
			resp.AsOf = entry.AsOf
		}
	}

	sort.SliceStable(resp.Arrivals, func(i, j int) bool {
		return resp.Arrivals[i].ETA < resp.Arrivals[j].ETA
	})

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getRoute(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	if from == to {
		writeError(w, http.StatusBadRequest, "same-endpoint")
		return
	}

	itinerary, err := s.router.Route(r.Context(), from, to)
	switch {
	case errors.Is(err, router.ErrOriginNotFound),
		errors.Is(err, router.ErrDestinationNotFound),
		errors.Is(err, router.ErrNoRoute):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "routing failed")
		return
	}

	writeJSON(w, http.StatusOK, itinerary)
}

type stopView struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

type stopsResponse struct {
	Stops []stopView `json:"stops"`
}

func (s *Server) getStops(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := defaultStopLimit
	if v := query.Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	reader, err := s.storage.Reader()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "opening store")
		return
	}

	var stops []*model.Stop
	if near := query.Get("near"); near != "" {
		lat, lon, ok := parseLatLon(near)
		if !ok {
			writeError(w, http.StatusBadRequest, "near must be lat,lon")
			return
		}
		stops, err = reader.NearbyStops(lat, lon, limit)
	} else {
		q := query.Get("q")
		// A bare wildcard lists every platform.
		if q == "*" {
			q = ""
		}
		stops, err = reader.SearchStops(q, limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "searching stops")
		return
	}

	resp := stopsResponse{Stops: []stopView{}}
	for _, stop := range stops {
		resp.Stops = append(resp.Stops, stopView{
			ID:   stop.ID,
			Name: stop.Name,
			Lat:  stop.Lat,
			Lon:  stop.Lon,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	OK    bool         `json:"ok"`
	Store bool         `json:"store_ok"`
	Cache cache.Health `json:"cache"`
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Cache: cache.CheckHealth(r.Context(), s.cache),
	}

	if _, err := s.storage.Reader(); err == nil {
		resp.Store = true
	}
	resp.OK = resp.Store && resp.Cache.OK

	status := http.StatusOK
	if !resp.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func parseLatLon(value string) (float64, float64, bool) {
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
