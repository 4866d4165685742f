package parse

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subwaylab/metrofuse/model"
	"github.com/subwaylab/metrofuse/storage"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	buf := &bytes.Buffer{}
	w := zip.NewWriter(buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func validFeed() map[string]string {
	return map[string]string{
		"agency.txt": `agency_id,agency_name,agency_url,agency_timezone
MTA,Metro Transit,https://transit.example,America/New_York`,
		"routes.txt": `route_id,route_short_name,route_long_name,route_type
1,1,Broadway Local,1`,
		"calendar.txt": `service_id,start_date,end_date,monday,tuesday,wednesday,thursday,friday,saturday,sunday
Weekday,20250101,20251231,1,1,1,1,1,0,0`,
		"trips.txt": `trip_id,route_id,service_id,trip_headsign
t1,1,Weekday,South Ferry`,
		"stops.txt": `stop_id,stop_name,stop_lat,stop_lon,location_type,parent_station
101,Van Cortlandt Park,40.889,-73.898,1,
101N,Van Cortlandt Park,40.889,-73.898,0,101
101S,Van Cortlandt Park,40.889,-73.898,0,101
103N,238 St,40.884,-73.900,0,
103S,238 St,40.884,-73.900,0,`,
		"stop_times.txt": `trip_id,stop_id,stop_sequence,arrival_time,departure_time
t1,101S,1,08:00:00,08:00:30
t1,103S,2,08:02:00,08:02:30`,
		"transfers.txt": `from_stop_id,to_stop_id,transfer_type,min_transfer_time
101,103,2,120`,
	}
}

func TestParseStaticZip(t *testing.T) {
	s := storage.NewMemoryStorage()
	w, err := s.Writer()
	require.NoError(t, err)

	static, err := ParseStatic(w, buildZip(t, validFeed()))
	require.NoError(t, err)

	assert.Equal(t, "America/New_York", static.Timezone)
	assert.Equal(t, 5, static.Stops)
	assert.Equal(t, 1, static.Routes)
	assert.Equal(t, 1, static.Trips)
	assert.Equal(t, 2, static.StopTimes)
	assert.Equal(t, 1, static.Transfers)

	r, err := s.Reader()
	require.NoError(t, err)

	stopTimes, err := r.StopTimesByTrip()
	require.NoError(t, err)
	require.Len(t, stopTimes, 2)
	// Times keep their original form
	assert.Equal(t, "08:00:00", stopTimes[0].Arrival)
	assert.Equal(t, "08:00:30", stopTimes[0].Departure)

	transfers, err := r.Transfers()
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, model.TransferTypeMinimumTime, transfers[0].Type)
	assert.Equal(t, 120, transfers[0].MinTransferTime)
}

func TestParseStaticDir(t *testing.T) {
	dir := t.TempDir()
	for name, content := range validFeed() {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}

	s := storage.NewMemoryStorage()
	w, err := s.Writer()
	require.NoError(t, err)

	static, err := ParseStaticDir(w, dir)
	require.NoError(t, err)
	assert.Equal(t, 5, static.Stops)
	assert.Equal(t, 1, static.Transfers)
}

func TestParseStaticMissingFiles(t *testing.T) {
	// transfers.txt is optional
	feed := validFeed()
	delete(feed, "transfers.txt")
	s := storage.NewMemoryStorage()
	w, err := s.Writer()
	require.NoError(t, err)
	static, err := ParseStatic(w, buildZip(t, feed))
	require.NoError(t, err)
	assert.Equal(t, 0, static.Transfers)

	// stops.txt is not
	feed = validFeed()
	delete(feed, "stops.txt")
	w, err = storage.NewMemoryStorage().Writer()
	require.NoError(t, err)
	_, err = ParseStatic(w, buildZip(t, feed))
	assert.ErrorContains(t, err, "missing stops.txt")

	// need at least one of calendar.txt and calendar_dates.txt
	feed = validFeed()
	delete(feed, "calendar.txt")
	w, err = storage.NewMemoryStorage().Writer()
	require.NoError(t, err)
	_, err = ParseStatic(w, buildZip(t, feed))
	assert.ErrorContains(t, err, "missing calendar.txt and calendar_dates.txt")
}

func TestParseStaticBadZip(t *testing.T) {
	w, err := storage.NewMemoryStorage().Writer()
	require.NoError(t, err)
	_, err = ParseStatic(w, []byte("this is not a zip file"))
	assert.ErrorContains(t, err, "unzipping")
}

func TestParseTransfers(t *testing.T) {
	stops := map[string]bool{"101": true, "103": true}

	for _, tc := range []struct {
		name    string
		content string
		count   int
		err     string
	}{
		{
			"valid",
			`from_stop_id,to_stop_id,transfer_type,min_transfer_time
101,103,2,120
103,101,0,`,
			2,
			"",
		},
		{
			"unknown_stop",
			`from_stop_id,to_stop_id,transfer_type,min_transfer_time
101,999,2,120`,
			0,
			"unknown to_stop_id",
		},
		{
			"bad_type",
			`from_stop_id,to_stop_id,transfer_type,min_transfer_time
101,103,7,120`,
			0,
			"illegal transfer_type",
		},
		{
			"duplicate_pair",
			`from_stop_id,to_stop_id,transfer_type,min_transfer_time
101,103,2,120
101,103,1,60`,
			0,
			"duplicate transfer pair",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w, err := storage.NewMemoryStorage().Writer()
			require.NoError(t, err)

			count, err := ParseTransfers(w, strings.NewReader(tc.content), stops)
			if tc.err != "" {
				assert.ErrorContains(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.count, count)
		})
	}
}

func TestParseStopTimesValidation(t *testing.T) {
	trips := map[string]bool{"t1": true}
	stops := map[string]bool{"101S": true}

	for _, tc := range []struct {
		name    string
		content string
		err     string
	}{
		{
			"bad_arrival",
			`trip_id,stop_id,stop_sequence,arrival_time,departure_time
t1,101S,1,junk,08:00:30`,
			"parsing arrival_time",
		},
		{
			"unknown_trip",
			`trip_id,stop_id,stop_sequence,arrival_time,departure_time
t9,101S,1,08:00:00,08:00:30`,
			"unknown trip_id",
		},
		{
			"unknown_stop",
			`trip_id,stop_id,stop_sequence,arrival_time,departure_time
t1,999N,1,08:00:00,08:00:30`,
			"unknown stop_id",
		},
		{
			"duplicate_sequence",
			`trip_id,stop_id,stop_sequence,arrival_time,departure_time
t1,101S,1,08:00:00,08:00:30
t1,101S,1,08:05:00,08:05:30`,
			"duplicate stop_sequence",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w, err := storage.NewMemoryStorage().Writer()
			require.NoError(t, err)
			require.NoError(t, w.BeginStopTimes())

			_, err = ParseStopTimes(w, strings.NewReader(tc.content), trips, stops)
			assert.ErrorContains(t, err, tc.err)
		})
	}
}
