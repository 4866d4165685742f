package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subwaylab/metrofuse/cache"
	"github.com/subwaylab/metrofuse/model"
	"github.com/subwaylab/metrofuse/router"
	"github.com/subwaylab/metrofuse/storage"
)

func testServer(t *testing.T) (*httptest.Server, *cache.MemoryCache, *storage.MemoryStorage) {
	s := storage.NewMemoryStorage()

	writer, err := s.Writer()
	require.NoError(t, err)
	require.NoError(t, writer.WriteStop(&model.Stop{ID: "101N", Name: "Van Cortlandt Park-242 St", Lat: 40.889, Lon: -73.898}))
	require.NoError(t, writer.WriteStop(&model.Stop{ID: "142S", Name: "South Ferry", Lat: 40.702, Lon: -74.013}))
	require.NoError(t, writer.Close())

	require.NoError(t, s.ReplaceGraphEdges([]*model.GraphEdge{
		{FromStopID: "101N", ToStopID: "103N", RouteID: "1", TravelTime: 300},
		{FromStopID: "142S", ToStopID: "143S", RouteID: "9", TravelTime: 200},
	}))

	c := cache.NewMemoryCache(90 * time.Second)
	r := router.New(s, c)

	server := httptest.NewServer(New(s, c, r).Handler())
	t.Cleanup(server.Close)
	return server, c, s
}

func get(t *testing.T, url string, out interface{}) int {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestGetArrivals(t *testing.T) {
	server, c, _ := testServer(t)
	ctx := context.Background()

	require.NoError(t, c.SetArrivals(ctx, "101", "N", []model.Prediction{
		{RouteID: "1", Headsign: "1 Train", ETA: 240},
		{RouteID: "1", Headsign: "1 Train", ETA: 60},
	}, 1700000000))
	require.NoError(t, c.SetArrivals(ctx, "101", "S", []model.Prediction{
		{RouteID: "1", Headsign: "1 Train", ETA: 120},
	}, 1700000000))

	var resp arrivalsResponse
	status := get(t, server.URL+"/v1/arrivals?stop_id=101&direction=N", &resp)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "101", resp.StopID)
	assert.Equal(t, int64(1700000000), resp.AsOf)
	require.Len(t, resp.Arrivals, 2)
	// Soonest first
	assert.Equal(t, 60, resp.Arrivals[0].ETA)
	assert.Equal(t, "N", resp.Arrivals[0].Direction)
	assert.Equal(t, 240, resp.Arrivals[1].ETA)
}

func TestGetArrivalsMerged(t *testing.T) {
	server, c, _ := testServer(t)
	ctx := context.Background()

	require.NoError(t, c.SetArrivals(ctx, "101", "N", []model.Prediction{
		{RouteID: "1", ETA: 240},
	}, 1700000000))
	require.NoError(t, c.SetArrivals(ctx, "101", "S", []model.Prediction{
		{RouteID: "1", ETA: 120},
	}, 1700000000))

	var resp arrivalsResponse
	status := get(t, server.URL+"/v1/arrivals/101", &resp)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, resp.Arrivals, 2)
	assert.Equal(t, "S", resp.Arrivals[0].Direction)
	assert.Equal(t, "N", resp.Arrivals[1].Direction)
}

func TestGetArrivalsDirectionalStopID(t *testing.T) {
	server, c, _ := testServer(t)

	require.NoError(t, c.SetArrivals(context.Background(), "101", "N", []model.Prediction{
		{RouteID: "1", ETA: 60},
	}, 1700000000))

	// A platform ID resolves to its parent station's board.
	var resp arrivalsResponse
	status := get(t, server.URL+"/v1/arrivals/101N", &resp)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "101", resp.StopID)
	require.Len(t, resp.Arrivals, 1)
}

func TestGetArrivalsEmpty(t *testing.T) {
	server, _, _ := testServer(t)

	var resp arrivalsResponse
	status := get(t, server.URL+"/v1/arrivals?stop_id=R16", &resp)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, resp.Arrivals)
	assert.Zero(t, resp.AsOf)
}

func TestGetArrivalsMissingStopID(t *testing.T) {
	server, _, _ := testServer(t)
	status := get(t, server.URL+"/v1/arrivals", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestGetRoute(t *testing.T) {
	server, _, _ := testServer(t)

	var it router.Itinerary
	status := get(t, server.URL+"/v1/route?from=101N&to=103N", &it)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, it.Legs, 1)
	assert.Equal(t, "1", it.Legs[0].RouteID)
	assert.Equal(t, 600, it.TotalETA)
}

func TestGetRouteErrors(t *testing.T) {
	server, _, _ := testServer(t)

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"missing params", "from=101N", http.StatusBadRequest},
		{"same endpoint", "from=101N&to=101N", http.StatusBadRequest},
		{"unknown origin", "from=999N&to=103N", http.StatusNotFound},
		{"unknown destination", "from=101N&to=999N", http.StatusNotFound},
		{"no route", "from=101N&to=142S", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp errorResponse
			status := get(t, server.URL+"/v1/route?"+tt.query, &resp)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestGetStops(t *testing.T) {
	server, _, _ := testServer(t)

	var resp stopsResponse
	status := get(t, server.URL+"/v1/stops?q=ferry", &resp)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, resp.Stops, 1)
	assert.Equal(t, "142S", resp.Stops[0].ID)
	assert.Equal(t, "South Ferry", resp.Stops[0].Name)
}

func TestGetStopsWildcard(t *testing.T) {
	server, _, _ := testServer(t)

	var resp stopsResponse
	status := get(t, server.URL+"/v1/stops?q=*", &resp)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, resp.Stops, 2)
}

func TestGetStopsNearby(t *testing.T) {
	server, _, _ := testServer(t)

	var resp stopsResponse
	status := get(t, server.URL+"/v1/stops?near=40.70,-74.01&limit=1", &resp)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, resp.Stops, 1)
	assert.Equal(t, "142S", resp.Stops[0].ID)
}

func TestGetStopsBadParams(t *testing.T) {
	server, _, _ := testServer(t)

	assert.Equal(t, http.StatusBadRequest, get(t, server.URL+"/v1/stops?near=uptown", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, server.URL+"/v1/stops?limit=-1", nil))
}

func TestGetHealth(t *testing.T) {
	server, c, _ := testServer(t)

	var resp healthResponse
	status := get(t, server.URL+"/healthz", &resp)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, resp.OK)
	assert.True(t, resp.Store)
	assert.Equal(t, int64(-1), resp.Cache.FeedAgeSeconds)

	require.NoError(t, c.SetFeedUpdate(context.Background(), time.Now().Unix()))
	status = get(t, server.URL+"/healthz", &resp)
	require.Equal(t, http.StatusOK, status)
	assert.GreaterOrEqual(t, resp.Cache.FeedAgeSeconds, int64(0))
}
