package parse

import (
	"testing"

	gtfsproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	proto "google.golang.org/protobuf/proto"
)

func buildFeed(t *testing.T, header *gtfsproto.FeedHeader, entities ...*gtfsproto.FeedEntity) []byte {
	buf, err := proto.Marshal(&gtfsproto.FeedMessage{
		Header: header,
		Entity: entities,
	})
	require.NoError(t, err)
	return buf
}

func fullDatasetHeader(timestamp uint64) *gtfsproto.FeedHeader {
	return &gtfsproto.FeedHeader{
		GtfsRealtimeVersion: proto.String("2.0"),
		Incrementality:      gtfsproto.FeedHeader_FULL_DATASET.Enum(),
		Timestamp:           proto.Uint64(timestamp),
	}
}

func TestParseRealtime(t *testing.T) {
	feed := buildFeed(t, fullDatasetHeader(1700000000),
		&gtfsproto.FeedEntity{
			Id: proto.String("e1"),
			TripUpdate: &gtfsproto.TripUpdate{
				Trip: &gtfsproto.TripDescriptor{
					TripId:  proto.String("t1"),
					RouteId: proto.String("1"),
				},
				StopTimeUpdate: []*gtfsproto.TripUpdate_StopTimeUpdate{
					{
						StopId: proto.String("101N"),
						Arrival: &gtfsproto.TripUpdate_StopTimeEvent{
							Time: proto.Int64(1700000060),
						},
					},
					{
						StopId: proto.String("103N"),
						Departure: &gtfsproto.TripUpdate_StopTimeEvent{
							Time: proto.Int64(1700000120),
						},
					},
				},
			},
		},
		// Vehicle positions are ignored
		&gtfsproto.FeedEntity{
			Id:      proto.String("e2"),
			Vehicle: &gtfsproto.VehiclePosition{},
		},
	)

	rt, err := ParseRealtime(feed)
	require.NoError(t, err)

	assert.Equal(t, uint64(1700000000), rt.Timestamp)
	require.Len(t, rt.Updates, 1)
	assert.Equal(t, "t1", rt.Updates[0].TripID)
	assert.Equal(t, "1", rt.Updates[0].RouteID)
	require.Len(t, rt.Updates[0].Events, 2)
	assert.Equal(t, StopEvent{StopID: "101N", Time: 1700000060}, rt.Updates[0].Events[0])
	assert.Equal(t, StopEvent{StopID: "103N", Time: 1700000120}, rt.Updates[0].Events[1])
}

func TestParseRealtimeArrivalPreferred(t *testing.T) {
	feed := buildFeed(t, fullDatasetHeader(100),
		&gtfsproto.FeedEntity{
			Id: proto.String("e1"),
			TripUpdate: &gtfsproto.TripUpdate{
				Trip: &gtfsproto.TripDescriptor{TripId: proto.String("t1")},
				StopTimeUpdate: []*gtfsproto.TripUpdate_StopTimeUpdate{
					{
						StopId:    proto.String("101N"),
						Arrival:   &gtfsproto.TripUpdate_StopTimeEvent{Time: proto.Int64(60)},
						Departure: &gtfsproto.TripUpdate_StopTimeEvent{Time: proto.Int64(90)},
					},
					// No time at all: dropped
					{
						StopId: proto.String("103N"),
					},
				},
			},
		},
	)

	rt, err := ParseRealtime(feed)
	require.NoError(t, err)
	require.Len(t, rt.Updates, 1)
	require.Len(t, rt.Updates[0].Events, 1)
	assert.Equal(t, int64(60), rt.Updates[0].Events[0].Time)
}

func TestParseRealtimeEmptyUpdatesDropped(t *testing.T) {
	feed := buildFeed(t, fullDatasetHeader(100),
		&gtfsproto.FeedEntity{
			Id: proto.String("e1"),
			TripUpdate: &gtfsproto.TripUpdate{
				Trip: &gtfsproto.TripDescriptor{TripId: proto.String("t1")},
			},
		},
	)

	rt, err := ParseRealtime(feed)
	require.NoError(t, err)
	assert.Empty(t, rt.Updates)
}

func TestParseRealtimeBadHeader(t *testing.T) {
	// Unsupported version
	feed := buildFeed(t, &gtfsproto.FeedHeader{
		GtfsRealtimeVersion: proto.String("3.0"),
	})
	_, err := ParseRealtime(feed)
	assert.ErrorContains(t, err, "version 3.0 not supported")

	// Incremental feeds not supported
	feed = buildFeed(t, &gtfsproto.FeedHeader{
		GtfsRealtimeVersion: proto.String("2.0"),
		Incrementality:      gtfsproto.FeedHeader_DIFFERENTIAL.Enum(),
	})
	_, err = ParseRealtime(feed)
	assert.ErrorContains(t, err, "incrementality")

	// Garbage bytes
	_, err = ParseRealtime([]byte("definitely not a protobuf"))
	assert.ErrorContains(t, err, "unmarshaling protobuf")
}
