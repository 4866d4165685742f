package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subwaylab/metrofuse/model"
	"github.com/subwaylab/metrofuse/storage"
)

func testStorage(t *testing.T, name string) storage.Storage {
	switch name {
	case "memory":
		return storage.NewMemoryStorage()
	case "sqlite":
		s, err := storage.NewSQLiteStorage()
		require.NoError(t, err)
		return s
	}
	t.Fatalf("unknown backend %s", name)
	return nil
}

func backends(t *testing.T, f func(t *testing.T, s storage.Storage)) {
	for _, name := range []string{"memory", "sqlite"} {
		t.Run(name, func(t *testing.T) {
			f(t, testStorage(t, name))
		})
	}
}

func writeFixture(t *testing.T, s storage.Storage) {
	w, err := s.Writer()
	require.NoError(t, err)

	require.NoError(t, w.WriteAgency(&model.Agency{
		ID: "MTA", Name: "Metro Transit", URL: "https://transit.example", Timezone: "America/New_York",
	}))

	stops := []*model.Stop{
		{ID: "101", Name: "Van Cortlandt Park-242 St", Lat: 40.889, Lon: -73.898, LocationType: model.LocationTypeStation},
		{ID: "101N", Name: "Van Cortlandt Park-242 St", Lat: 40.889, Lon: -73.898, ParentStation: "101"},
		{ID: "101S", Name: "Van Cortlandt Park-242 St", Lat: 40.889, Lon: -73.898, ParentStation: "101"},
		{ID: "103N", Name: "238 St", Lat: 40.884, Lon: -73.900, ParentStation: "103"},
		{ID: "103S", Name: "238 St", Lat: 40.884, Lon: -73.900, ParentStation: "103"},
		{ID: "R16N", Name: "Times Sq-42 St", Lat: 40.754, Lon: -73.986, ParentStation: "R16"},
	}
	for _, stop := range stops {
		require.NoError(t, w.WriteStop(stop))
	}

	require.NoError(t, w.WriteRoute(&model.Route{
		ID: "1", AgencyID: "MTA", ShortName: "1", LongName: "Broadway - 7 Avenue Local", Type: model.RouteTypeSubway,
	}))

	require.NoError(t, w.BeginTrips())
	require.NoError(t, w.WriteTrip(&model.Trip{
		ID: "t1", RouteID: "1", ServiceID: "Weekday", Headsign: "South Ferry",
	}))
	require.NoError(t, w.EndTrips())

	require.NoError(t, w.WriteCalendar(&model.Calendar{
		ServiceID: "Weekday", StartDate: "20250101", EndDate: "20251231", Weekday: 0b0111110,
	}))
	require.NoError(t, w.WriteCalendarDate(&model.CalendarDate{
		ServiceID: "Weekday", Date: "20250704", ExceptionType: 2,
	}))

	require.NoError(t, w.BeginStopTimes())
	for _, st := range []*model.StopTime{
		{TripID: "t1", StopID: "103S", StopSequence: 2, Arrival: "08:02:00", Departure: "08:02:30"},
		{TripID: "t1", StopID: "101S", StopSequence: 1, Arrival: "08:00:00", Departure: "08:00:30"},
	} {
		require.NoError(t, w.WriteStopTime(st))
	}
	require.NoError(t, w.EndStopTimes())

	require.NoError(t, w.WriteTransfer(&model.Transfer{
		FromStopID: "101", ToStopID: "103", Type: model.TransferTypeMinimumTime, MinTransferTime: 120,
	}))

	require.NoError(t, w.Close())
}

func TestStorageRoundTrip(t *testing.T) {
	backends(t, func(t *testing.T, s storage.Storage) {
		writeFixture(t, s)

		r, err := s.Reader()
		require.NoError(t, err)

		agencies, err := r.Agencies()
		require.NoError(t, err)
		require.Len(t, agencies, 1)
		assert.Equal(t, "MTA", agencies[0].ID)
		assert.Equal(t, "America/New_York", agencies[0].Timezone)

		stops, err := r.Stops()
		require.NoError(t, err)
		assert.Len(t, stops, 6)

		routes, err := r.Routes()
		require.NoError(t, err)
		require.Len(t, routes, 1)
		assert.Equal(t, model.RouteTypeSubway, routes[0].Type)

		trips, err := r.Trips()
		require.NoError(t, err)
		require.Len(t, trips, 1)
		assert.Equal(t, "South Ferry", trips[0].Headsign)

		calendars, err := r.Calendars()
		require.NoError(t, err)
		assert.Len(t, calendars, 1)

		calendarDates, err := r.CalendarDates()
		require.NoError(t, err)
		assert.Len(t, calendarDates, 1)

		transfers, err := r.Transfers()
		require.NoError(t, err)
		require.Len(t, transfers, 1)
		assert.Equal(t, 120, transfers[0].MinTransferTime)
	})
}

func TestStorageStopLookup(t *testing.T) {
	backends(t, func(t *testing.T, s storage.Storage) {
		writeFixture(t, s)

		r, err := s.Reader()
		require.NoError(t, err)

		stop, err := r.Stop("101N")
		require.NoError(t, err)
		assert.Equal(t, "Van Cortlandt Park-242 St", stop.Name)

		_, err = r.Stop("nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestStorageStopTimesOrdered(t *testing.T) {
	backends(t, func(t *testing.T, s storage.Storage) {
		writeFixture(t, s)

		r, err := s.Reader()
		require.NoError(t, err)

		// Written out of order, read back ordered by trip and sequence.
		stopTimes, err := r.StopTimesByTrip()
		require.NoError(t, err)
		require.Len(t, stopTimes, 2)
		assert.Equal(t, "101S", stopTimes[0].StopID)
		assert.Equal(t, "103S", stopTimes[1].StopID)
		assert.Equal(t, "08:00:00", stopTimes[0].Arrival)
	})
}

func TestStorageSearchStops(t *testing.T) {
	backends(t, func(t *testing.T, s storage.Storage) {
		writeFixture(t, s)

		r, err := s.Reader()
		require.NoError(t, err)

		// Only platforms match, never parent stations.
		stops, err := r.SearchStops("cortlandt", 0)
		require.NoError(t, err)
		require.Len(t, stops, 2)
		assert.Equal(t, "101N", stops[0].ID)
		assert.Equal(t, "101S", stops[1].ID)

		stops, err = r.SearchStops("", 0)
		require.NoError(t, err)
		assert.Len(t, stops, 5)

		stops, err = r.SearchStops("", 2)
		require.NoError(t, err)
		assert.Len(t, stops, 2)

		stops, err = r.SearchStops("no such stop", 0)
		require.NoError(t, err)
		assert.Empty(t, stops)
	})
}

func TestStorageNearbyStops(t *testing.T) {
	backends(t, func(t *testing.T, s storage.Storage) {
		writeFixture(t, s)

		r, err := s.Reader()
		require.NoError(t, err)

		stops, err := r.NearbyStops(40.754, -73.986, 1)
		require.NoError(t, err)
		require.Len(t, stops, 1)
		assert.Equal(t, "R16N", stops[0].ID)

		stops, err = r.NearbyStops(40.889, -73.898, 3)
		require.NoError(t, err)
		require.Len(t, stops, 3)
		assert.Equal(t, "101", model.BaseStopID(stops[0].ID))
	})
}

func TestStorageRoutesServing(t *testing.T) {
	backends(t, func(t *testing.T, s storage.Storage) {
		writeFixture(t, s)

		r, err := s.Reader()
		require.NoError(t, err)

		routes, err := r.RoutesServing("101S")
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, routes)

		routes, err = r.RoutesServing("101N")
		require.NoError(t, err)
		assert.Empty(t, routes)
	})
}

func TestStorageGraphEdges(t *testing.T) {
	backends(t, func(t *testing.T, s storage.Storage) {
		edges, err := s.GraphEdges()
		require.NoError(t, err)
		assert.Empty(t, edges)

		first := []*model.GraphEdge{
			{FromStopID: "101S", ToStopID: "103S", RouteID: "1", TravelTime: 90},
			{FromStopID: "101N", ToStopID: "103N", RouteID: "TRANSFER", IsTransfer: true, TransferPenalty: 180},
		}
		require.NoError(t, s.ReplaceGraphEdges(first))

		edges, err = s.GraphEdges()
		require.NoError(t, err)
		require.Len(t, edges, 2)

		byKey := map[string]*model.GraphEdge{}
		for _, e := range edges {
			byKey[e.FromStopID+"|"+e.ToStopID+"|"+e.RouteID] = e
		}
		require.Contains(t, byKey, "101S|103S|1")
		assert.Equal(t, 90, byKey["101S|103S|1"].TravelTime)
		assert.False(t, byKey["101S|103S|1"].IsTransfer)
		require.Contains(t, byKey, "101N|103N|TRANSFER")
		assert.True(t, byKey["101N|103N|TRANSFER"].IsTransfer)
		assert.Equal(t, 180, byKey["101N|103N|TRANSFER"].TransferPenalty)

		// A replace fully discards the previous set.
		second := []*model.GraphEdge{
			{FromStopID: "103S", ToStopID: "104S", RouteID: "1", TravelTime: 75},
		}
		require.NoError(t, s.ReplaceGraphEdges(second))

		edges, err = s.GraphEdges()
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, "103S", edges[0].FromStopID)

		require.NoError(t, s.ReplaceGraphEdges(nil))
		edges, err = s.GraphEdges()
		require.NoError(t, err)
		assert.Empty(t, edges)
	})
}

func TestStorageWriterReplacesDataset(t *testing.T) {
	backends(t, func(t *testing.T, s storage.Storage) {
		writeFixture(t, s)

		w, err := s.Writer()
		require.NoError(t, err)
		require.NoError(t, w.WriteStop(&model.Stop{ID: "201N", Name: "Wakefield", ParentStation: "201"}))
		require.NoError(t, w.Close())

		r, err := s.Reader()
		require.NoError(t, err)

		stops, err := r.Stops()
		require.NoError(t, err)
		require.Len(t, stops, 1)
		assert.Equal(t, "201N", stops[0].ID)
	})
}
