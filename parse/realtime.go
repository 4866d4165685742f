package parse

import (
	"fmt"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	proto "google.golang.org/protobuf/proto"
)

// A single predicted stop event from a trip_update entity. Time is
// unix epoch seconds, taken from arrival when set, departure
// otherwise.
type StopEvent struct {
	StopID string
	Time   int64
}

type TripUpdate struct {
	TripID  string
	RouteID string
	Events  []StopEvent
}

// Key data from one GTFS Realtime feed.
type Realtime struct {
	Timestamp uint64
	Updates   []*TripUpdate
}

// ParseRealtime decodes a GTFS Realtime protobuf and extracts
// trip_update entities. Entities without a trip descriptor or without
// any usable stop events are dropped, not errors: partial feeds are
// the norm.
func ParseRealtime(feed []byte) (*Realtime, error) {
	f := &gtfsproto.FeedMessage{}
	err := proto.Unmarshal(feed, f)
	if err != nil {
		return nil, fmt.Errorf("unmarshaling protobuf: %w", err)
	}

	header := f.GetHeader()

	version := header.GetGtfsRealtimeVersion()
	if version != "2.0" && version != "1.0" {
		return nil, fmt.Errorf("version %s not supported", version)
	}

	if header.GetIncrementality() != gtfsproto.FeedHeader_FULL_DATASET {
		return nil, fmt.Errorf("feed incrementality %s not supported", header.GetIncrementality())
	}

	rt := &Realtime{
		Timestamp: header.GetTimestamp(),
		Updates:   []*TripUpdate{},
	}

	for _, entity := range f.GetEntity() {
		// We only care about TripUpdates
		if entity.TripUpdate == nil {
			continue
		}

		trip := entity.TripUpdate.Trip
		if trip == nil {
			continue
		}

		update := &TripUpdate{
			TripID:  trip.GetTripId(),
			RouteID: trip.GetRouteId(),
		}

		for _, stu := range entity.TripUpdate.GetStopTimeUpdate() {
			stopID := stu.GetStopId()
			if stopID == "" {
				continue
			}

			var t int64
			if stu.Arrival != nil && stu.Arrival.Time != nil {
				t = stu.Arrival.GetTime()
			} else if stu.Departure != nil && stu.Departure.Time != nil {
				t = stu.Departure.GetTime()
			} else {
				continue
			}

			update.Events = append(update.Events, StopEvent{
				StopID: stopID,
				Time:   t,
			})
		}

		if len(update.Events) == 0 {
			continue
		}

		rt.Updates = append(rt.Updates, update)
	}

	return rt, nil
}
