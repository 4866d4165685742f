package storage

import (
	"errors"

	"github.com/subwaylab/metrofuse/model"
)

// ErrNotFound is returned by lookups for records that don't exist.
var ErrNotFound = errors.New("not found")

// Storage holds one revision of a parsed static feed, plus the
// materialized station graph derived from it.
type Storage interface {
	// Writer starts a replacement of the static dataset. The
	// previous revision remains readable until Close.
	Writer() (FeedWriter, error)

	// Reader reads the current static dataset.
	Reader() (FeedReader, error)

	// ReplaceGraphEdges swaps the full edge set in one commit.
	// Readers observe either the old set or the new one.
	ReplaceGraphEdges(edges []*model.GraphEdge) error

	// GraphEdges scans the current edge set.
	GraphEdges() ([]*model.GraphEdge, error)
}

// Writes GTFS records for a static feed revision.
//
// As stop_times tends to be very large, BeginStopTimes() and
// EndStopTimes() are called before and after all calls to
// WriteStopTime(), allowing transactions/batching/whathaveyou. Same
// deal for trips.
type FeedWriter interface {
	WriteAgency(agency *model.Agency) error
	WriteStop(stop *model.Stop) error
	WriteRoute(route *model.Route) error
	BeginTrips() error
	WriteTrip(trip *model.Trip) error
	EndTrips() error
	WriteCalendar(cal *model.Calendar) error
	WriteCalendarDate(caldate *model.CalendarDate) error
	BeginStopTimes() error
	WriteStopTime(stopTime *model.StopTime) error
	EndStopTimes() error
	WriteTransfer(transfer *model.Transfer) error
	Close() error
}

type FeedReader interface {
	Agencies() ([]*model.Agency, error)
	Stops() ([]*model.Stop, error)
	Routes() ([]*model.Route, error)
	Trips() ([]*model.Trip, error)
	Calendars() ([]*model.Calendar, error)
	CalendarDates() ([]*model.CalendarDate, error)
	Transfers() ([]*model.Transfer, error)

	// Stop looks up a single stop. Returns ErrNotFound for
	// unknown IDs.
	Stop(id string) (*model.Stop, error)

	// All stop_times, ordered by trip_id and stop_sequence, so
	// that consecutive records within a trip are adjacent.
	StopTimesByTrip() ([]*model.StopTime, error)

	// Platforms whose ID or name contains q (case-insensitive).
	// A blank q matches every platform. At most limit results
	// (pass 0 for no limit.)
	SearchStops(q string, limit int) ([]*model.Stop, error)

	// Platforms near given lat/lon, ordered by distance. At most
	// limit results (pass 0 for no limit.)
	NearbyStops(lat float64, lon float64, limit int) ([]*model.Stop, error)

	// Distinct route IDs with a trip passing through the stop.
	RoutesServing(stopID string) ([]string, error)
}
