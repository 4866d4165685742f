package storage

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/subwaylab/metrofuse/model"
)

type SQLiteConfig struct {
	OnDisk bool
	Path   string
}

type SQLiteStorage struct {
	SQLiteConfig

	db *sql.DB
}

const sqliteStaticSchema = `
CREATE TABLE agency (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    url TEXT NOT NULL,
    timezone TEXT NOT NULL
);

CREATE TABLE stops (
    id TEXT PRIMARY KEY,
    code TEXT,
    name TEXT NOT NULL,
    desc TEXT,
    lat REAL NOT NULL,
    lon REAL NOT NULL,
    url TEXT,
    location_type INTEGER NOT NULL,
    parent_station TEXT,
    platform_code TEXT
);
CREATE INDEX stops_parent_station ON stops (parent_station);

CREATE TABLE routes (
    id TEXT PRIMARY KEY,
    agency_id TEXT,
    short_name TEXT,
    long_name TEXT NOT NULL,
    desc TEXT,
    type INTEGER NOT NULL,
    url TEXT,
    color TEXT,
    text_color TEXT
);

CREATE TABLE trips (
    id TEXT PRIMARY KEY,
    route_id TEXT NOT NULL,
    service_id TEXT NOT NULL,
    headsign TEXT,
    short_name TEXT,
    direction_id INTEGER
);
CREATE INDEX trips_route_id ON trips (route_id);

CREATE TABLE stop_times (
    trip_id TEXT NOT NULL,
    stop_id TEXT NOT NULL,
    stop_sequence INTEGER NOT NULL,
    arrival_time TEXT NOT NULL,
    departure_time TEXT NOT NULL,
    headsign TEXT
);
CREATE INDEX stop_times_trip_id ON stop_times (trip_id);
CREATE INDEX stop_times_stop_id ON stop_times (stop_id);

CREATE TABLE calendar (
    service_id TEXT PRIMARY KEY,
    start_date TEXT NOT NULL,
    end_date TEXT NOT NULL,
    weekday INTEGER NOT NULL
);

CREATE TABLE calendar_dates (
    service_id TEXT NOT NULL,
    date TEXT NOT NULL,
    exception_type INTEGER NOT NULL
);

CREATE TABLE transfers (
    from_stop_id TEXT NOT NULL,
    to_stop_id TEXT NOT NULL,
    transfer_type INTEGER NOT NULL,
    min_transfer_time INTEGER NOT NULL,
PRIMARY KEY (from_stop_id, to_stop_id)
);`

var sqliteStaticTables = []string{
	"agency", "stops", "routes", "trips", "stop_times",
	"calendar", "calendar_dates", "transfers",
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	onDisk := false
	path := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		path = cfg[0].Path
	}

	sourceName := ":memory:"
	if onDisk {
		sourceName = path
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS graph_edges (
    from_stop_id TEXT NOT NULL,
    to_stop_id TEXT NOT NULL,
    route_id TEXT NOT NULL,
    travel_time_seconds INTEGER NOT NULL,
    is_transfer INTEGER NOT NULL,
    transfer_penalty_seconds INTEGER NOT NULL,
PRIMARY KEY (from_stop_id, to_stop_id, route_id)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating graph_edges table: %w", err)
	}

	return &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{OnDisk: onDisk, Path: path},
		db:           db,
	}, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type SQLiteFeedWriter struct {
	tx                  *sql.Tx
	stopTimeInsertQuery *sql.Stmt
}

// Writer recreates the static tables inside a transaction. The
// previous revision stays readable until Close commits.
func (s *SQLiteStorage) Writer() (FeedWriter, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	for _, table := range sqliteStaticTables {
		if _, err := tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("dropping %s: %w", table, err)
		}
	}

	if _, err := tx.Exec(sqliteStaticSchema); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("creating static tables: %w", err)
	}

	return &SQLiteFeedWriter{tx: tx}, nil
}

func (w *SQLiteFeedWriter) WriteAgency(a *model.Agency) error {
	_, err := w.tx.Exec(`
INSERT INTO agency (id, name, url, timezone)
VALUES (?, ?, ?, ?)`,
		a.ID, a.Name, a.URL, a.Timezone)
	if err != nil {
		return fmt.Errorf("inserting agency: %w", err)
	}
	return nil
}

func (w *SQLiteFeedWriter) WriteStop(stop *model.Stop) error {
	_, err := w.tx.Exec(`
INSERT INTO stops (id, code, name, desc, lat, lon, url, location_type, parent_station, platform_code)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stop.ID,
		stop.Code,
		stop.Name,
		stop.Desc,
		stop.Lat,
		stop.Lon,
		stop.URL,
		stop.LocationType,
		stop.ParentStation,
		stop.PlatformCode,
	)
	if err != nil {
		return fmt.Errorf("inserting stop: %w", err)
	}
	return nil
}

func (w *SQLiteFeedWriter) WriteRoute(route *model.Route) error {
	_, err := w.tx.Exec(`
INSERT INTO routes (id, agency_id, short_name, long_name, desc, type, url, color, text_color)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		route.ID,
		route.AgencyID,
		route.ShortName,
		route.LongName,
		route.Desc,
		route.Type,
		route.URL,
		route.Color,
		route.TextColor,
	)
	if err != nil {
		return fmt.Errorf("inserting route: %w", err)
	}
	return nil
}

func (w *SQLiteFeedWriter) BeginTrips() error { return nil }

func (w *SQLiteFeedWriter) WriteTrip(trip *model.Trip) error {
	_, err := w.tx.Exec(`
INSERT INTO trips (id, route_id, service_id, headsign, short_name, direction_id)
VALUES (?, ?, ?, ?, ?, ?)`,
		trip.ID,
		trip.RouteID,
		trip.ServiceID,
		trip.Headsign,
		trip.ShortName,
		trip.DirectionID,
	)
	if err != nil {
		return fmt.Errorf("inserting trip: %w", err)
	}
	return nil
}

func (w *SQLiteFeedWriter) EndTrips() error { return nil }

func (w *SQLiteFeedWriter) WriteCalendar(cal *model.Calendar) error {
	_, err := w.tx.Exec(`
INSERT INTO calendar (service_id, start_date, end_date, weekday)
VALUES (?, ?, ?, ?)`,
		cal.ServiceID, cal.StartDate, cal.EndDate, cal.Weekday)
	if err != nil {
		return fmt.Errorf("inserting calendar: %w", err)
	}
	return nil
}

func (w *SQLiteFeedWriter) WriteCalendarDate(cd *model.CalendarDate) error {
	_, err := w.tx.Exec(`
INSERT INTO calendar_dates (service_id, date, exception_type)
VALUES (?, ?, ?)`,
		cd.ServiceID, cd.Date, cd.ExceptionType)
	if err != nil {
		return fmt.Errorf("inserting calendar date: %w", err)
	}
	return nil
}

func (w *SQLiteFeedWriter) BeginStopTimes() error {
	var err error
	w.stopTimeInsertQuery, err = w.tx.Prepare(`
INSERT INTO stop_times (trip_id, stop_id, stop_sequence, arrival_time, departure_time, headsign)
VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing stop_time insert: %w", err)
	}
	return nil
}

func (w *SQLiteFeedWriter) WriteStopTime(stopTime *model.StopTime) error {
	_, err := w.stopTimeInsertQuery.Exec(
		stopTime.TripID,
		stopTime.StopID,
		stopTime.StopSequence,
		stopTime.Arrival,
		stopTime.Departure,
		stopTime.Headsign,
	)
	if err != nil {
		return fmt.Errorf("inserting stop_time: %w", err)
	}
	return nil
}

func (w *SQLiteFeedWriter) EndStopTimes() error {
	err := w.stopTimeInsertQuery.Close()
	w.stopTimeInsertQuery = nil
	if err != nil {
		return fmt.Errorf("closing stop_time insert: %w", err)
	}
	return nil
}

func (w *SQLiteFeedWriter) WriteTransfer(transfer *model.Transfer) error {
	_, err := w.tx.Exec(`
INSERT INTO transfers (from_stop_id, to_stop_id, transfer_type, min_transfer_time)
VALUES (?, ?, ?, ?)`,
		transfer.FromStopID,
		transfer.ToStopID,
		transfer.Type,
		transfer.MinTransferTime,
	)
	if err != nil {
		return fmt.Errorf("inserting transfer: %w", err)
	}
	return nil
}

func (w *SQLiteFeedWriter) Close() error {
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("committing static dataset: %w", err)
	}
	return nil
}

type SQLiteFeedReader struct {
	db *sql.DB
}

func (s *SQLiteStorage) Reader() (FeedReader, error) {
	return &SQLiteFeedReader{db: s.db}, nil
}

const graphEdgeBatchSize = 1000

func (s *SQLiteStorage) ReplaceGraphEdges(edges []*model.GraphEdge) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM graph_edges"); err != nil {
		tx.Rollback()
		return fmt.Errorf("truncating graph_edges: %w", err)
	}

	for i := 0; i < len(edges); i += graphEdgeBatchSize {
		end := i + graphEdgeBatchSize
		if end > len(edges) {
			end = len(edges)
		}

		placeholders := []string{}
		params := []interface{}{}
		for _, e := range edges[i:end] {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?)")
			params = append(params,
				e.FromStopID, e.ToStopID, e.RouteID,
				e.TravelTime, e.IsTransfer, e.TransferPenalty)
		}

		_, err = tx.Exec(`
INSERT INTO graph_edges (from_stop_id, to_stop_id, route_id, travel_time_seconds, is_transfer, transfer_penalty_seconds)
VALUES `+strings.Join(placeholders, ", "), params...)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting graph edges: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing graph edges: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) GraphEdges() ([]*model.GraphEdge, error) {
	rows, err := s.db.Query(`
SELECT from_stop_id, to_stop_id, route_id, travel_time_seconds, is_transfer, transfer_penalty_seconds
FROM graph_edges`)
	if err != nil {
		return nil, fmt.Errorf("querying graph edges: %w", err)
	}
	defer rows.Close()

	edges := []*model.GraphEdge{}
	for rows.Next() {
		e := &model.GraphEdge{}
		err := rows.Scan(
			&e.FromStopID,
			&e.ToStopID,
			&e.RouteID,
			&e.TravelTime,
			&e.IsTransfer,
			&e.TransferPenalty,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning graph edge: %w", err)
		}
		edges = append(edges, e)
	}

	return edges, nil
}

func (r *SQLiteFeedReader) Agencies() ([]*model.Agency, error) {
	rows, err := r.db.Query(`
SELECT id, name, url, timezone
FROM agency`)
	if err != nil {
		return nil, fmt.Errorf("querying agencies: %w", err)
	}
	defer rows.Close()

	agencies := []*model.Agency{}
	for rows.Next() {
		a := &model.Agency{}
		if err := rows.Scan(&a.ID, &a.Name, &a.URL, &a.Timezone); err != nil {
			return nil, fmt.Errorf("scanning agency: %w", err)
		}
		agencies = append(agencies, a)
	}

	return agencies, nil
}

func scanStops(rows *sql.Rows) ([]*model.Stop, error) {
	stops := []*model.Stop{}
	for rows.Next() {
		s := &model.Stop{}
		err := rows.Scan(
			&s.ID,
			&s.Code,
			&s.Name,
			&s.Desc,
			&s.Lat,
			&s.Lon,
			&s.URL,
			&s.LocationType,
			&s.ParentStation,
			&s.PlatformCode,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning stop: %w", err)
		}
		stops = append(stops, s)
	}
	return stops, nil
}

func (r *SQLiteFeedReader) Stops() ([]*model.Stop, error) {
	rows, err := r.db.Query(`
SELECT id, code, name, desc, lat, lon, url, location_type, parent_station, platform_code
FROM stops`)
	if err != nil {
		return nil, fmt.Errorf("querying stops: %w", err)
	}
	defer rows.Close()

	return scanStops(rows)
}

func (r *SQLiteFeedReader) Stop(id string) (*model.Stop, error) {
	s := &model.Stop{}
	err := r.db.QueryRow(`
SELECT id, code, name, desc, lat, lon, url, location_type, parent_station, platform_code
FROM stops
WHERE id = ?`, id).Scan(
		&s.ID,
		&s.Code,
		&s.Name,
		&s.Desc,
		&s.Lat,
		&s.Lon,
		&s.URL,
		&s.LocationType,
		&s.ParentStation,
		&s.PlatformCode,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying stop: %w", err)
	}
	return s, nil
}

func (r *SQLiteFeedReader) Routes() ([]*model.Route, error) {
	rows, err := r.db.Query(`
SELECT id, agency_id, short_name, long_name, desc, type, url, color, text_color
FROM routes`)
	if err != nil {
		return nil, fmt.Errorf("querying routes: %w", err)
	}
	defer rows.Close()

	routes := []*model.Route{}
	for rows.Next() {
		rt := &model.Route{}
		err := rows.Scan(
			&rt.ID,
			&rt.AgencyID,
			&rt.ShortName,
			&rt.LongName,
			&rt.Desc,
			&rt.Type,
			&rt.URL,
			&rt.Color,
			&rt.TextColor,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning route: %w", err)
		}
		routes = append(routes, rt)
	}

	return routes, nil
}

func (r *SQLiteFeedReader) Trips() ([]*model.Trip, error) {
	rows, err := r.db.Query(`
SELECT id, route_id, service_id, headsign, short_name, direction_id
FROM trips`)
	if err != nil {
		return nil, fmt.Errorf("querying trips: %w", err)
	}
	defer rows.Close()

	trips := []*model.Trip{}
	for rows.Next() {
		t := &model.Trip{}
		err := rows.Scan(
			&t.ID,
			&t.RouteID,
			&t.ServiceID,
			&t.Headsign,
			&t.ShortName,
			&t.DirectionID,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning trip: %w", err)
		}
		trips = append(trips, t)
	}

	return trips, nil
}

func (r *SQLiteFeedReader) Calendars() ([]*model.Calendar, error) {
	rows, err := r.db.Query(`
SELECT service_id, start_date, end_date, weekday
FROM calendar`)
	if err != nil {
		return nil, fmt.Errorf("querying calendar: %w", err)
	}
	defer rows.Close()

	calendars := []*model.Calendar{}
	for rows.Next() {
		c := &model.Calendar{}
		if err := rows.Scan(&c.ServiceID, &c.StartDate, &c.EndDate, &c.Weekday); err != nil {
			return nil, fmt.Errorf("scanning calendar: %w", err)
		}
		calendars = append(calendars, c)
	}

	return calendars, nil
}

func (r *SQLiteFeedReader) CalendarDates() ([]*model.CalendarDate, error) {
	rows, err := r.db.Query(`
SELECT service_id, date, exception_type
FROM calendar_dates`)
	if err != nil {
		return nil, fmt.Errorf("querying calendar dates: %w", err)
	}
	defer rows.Close()

	calendarDates := []*model.CalendarDate{}
	for rows.Next() {
		cd := &model.CalendarDate{}
		if err := rows.Scan(&cd.ServiceID, &cd.Date, &cd.ExceptionType); err != nil {
			return nil, fmt.Errorf("scanning calendar date: %w", err)
		}
		calendarDates = append(calendarDates, cd)
	}

	return calendarDates, nil
}

func (r *SQLiteFeedReader) Transfers() ([]*model.Transfer, error) {
	rows, err := r.db.Query(`
SELECT from_stop_id, to_stop_id, transfer_type, min_transfer_time
FROM transfers`)
	if err != nil {
		return nil, fmt.Errorf("querying transfers: %w", err)
	}
	defer rows.Close()

	transfers := []*model.Transfer{}
	for rows.Next() {
		t := &model.Transfer{}
		if err := rows.Scan(&t.FromStopID, &t.ToStopID, &t.Type, &t.MinTransferTime); err != nil {
			return nil, fmt.Errorf("scanning transfer: %w", err)
		}
		transfers = append(transfers, t)
	}

	return transfers, nil
}

func (r *SQLiteFeedReader) StopTimesByTrip() ([]*model.StopTime, error) {
	rows, err := r.db.Query(`
SELECT trip_id, stop_id, headsign, stop_sequence, arrival_time, departure_time
FROM stop_times
ORDER BY trip_id, stop_sequence`)
	if err != nil {
		return nil, fmt.Errorf("querying stop times: %w", err)
	}
	defer rows.Close()

	stopTimes := []*model.StopTime{}
	for rows.Next() {
		st := &model.StopTime{}
		err := rows.Scan(
			&st.TripID,
			&st.StopID,
			&st.Headsign,
			&st.StopSequence,
			&st.Arrival,
			&st.Departure,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning stop time: %w", err)
		}
		stopTimes = append(stopTimes, st)
	}

	return stopTimes, nil
}

func (r *SQLiteFeedReader) SearchStops(q string, limit int) ([]*model.Stop, error) {
	query := `
SELECT id, code, name, desc, lat, lon, url, location_type, parent_station, platform_code
FROM stops
WHERE location_type = 0`

	params := []interface{}{}
	if q != "" {
		query += " AND (LOWER(id) LIKE ? OR LOWER(name) LIKE ?)"
		pattern := "%" + strings.ToLower(q) + "%"
		params = append(params, pattern, pattern)
	}

	query += " ORDER BY id"
	if limit > 0 {
		query += " LIMIT ?"
		params = append(params, limit)
	}

	rows, err := r.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("searching stops: %w", err)
	}
	defer rows.Close()

	return scanStops(rows)
}

func (r *SQLiteFeedReader) NearbyStops(lat float64, lon float64, limit int) ([]*model.Stop, error) {
	stops, err := r.SearchStops("", 0)
	if err != nil {
		return nil, fmt.Errorf("getting platforms: %w", err)
	}

	sortStopsByDistance(stops, lat, lon)

	if limit > 0 && len(stops) > limit {
		stops = stops[:limit]
	}

	return stops, nil
}

func (r *SQLiteFeedReader) RoutesServing(stopID string) ([]string, error) {
	rows, err := r.db.Query(`
SELECT DISTINCT trips.route_id
FROM stop_times
INNER JOIN trips ON stop_times.trip_id = trips.id
WHERE stop_times.stop_id = ?
ORDER BY trips.route_id`, stopID)
	if err != nil {
		return nil, fmt.Errorf("querying routes serving stop: %w", err)
	}
	defer rows.Close()

	routes := []string{}
	for rows.Next() {
		var routeID string
		if err := rows.Scan(&routeID); err != nil {
			return nil, fmt.Errorf("scanning route_id: %w", err)
		}
		routes = append(routes, routeID)
	}

	return routes, nil
}
