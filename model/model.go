package model

import (
	"strconv"
	"strings"
)

// Holds all external facing types and constants.

type LocationType int

const (
	LocationTypeStop LocationType = iota
	LocationTypeStation
	LocationTypeEntranceExit
	LocationTypeGenericNode
	LocationTypeBoardingArea
)

type RouteType int

const (
	RouteTypeTram       RouteType = 0
	RouteTypeSubway     RouteType = 1
	RouteTypeRail       RouteType = 2
	RouteTypeBus        RouteType = 3
	RouteTypeFerry      RouteType = 4
	RouteTypeCable      RouteType = 5
	RouteTypeAerial     RouteType = 6
	RouteTypeFunicular  RouteType = 7
	RouteTypeTrolleybus RouteType = 11
	RouteTypeMonorail   RouteType = 12
)

type TransferType int8

const (
	TransferTypeRecommended TransferType = 0
	TransferTypeTimed       TransferType = 1
	TransferTypeMinimumTime TransferType = 2
	TransferTypeNotPossible TransferType = 3
)

// Sentinel route IDs for materialized transfer edges.
const (
	RouteIDTransfer         = "TRANSFER"
	RouteIDPlatformTransfer = "PLATFORM_TRANSFER"
)

type Agency struct {
	ID       string
	Name     string
	URL      string
	Timezone string
}

type Calendar struct {
	ServiceID string
	StartDate string
	EndDate   string
	Weekday   int8
}

type CalendarDate struct {
	ServiceID     string
	Date          string
	ExceptionType int8
}

type Stop struct {
	ID            string
	Code          string
	Name          string
	Desc          string
	Lat           float64
	Lon           float64
	URL           string
	LocationType  LocationType
	ParentStation string
	PlatformCode  string
}

type Trip struct {
	ID          string
	RouteID     string
	ServiceID   string
	Headsign    string
	ShortName   string
	DirectionID int8
}

type Route struct {
	ID        string
	AgencyID  string
	ShortName string
	LongName  string
	Desc      string
	Type      RouteType
	URL       string
	Color     string
	TextColor string
}

type StopTime struct {
	TripID       string
	StopID       string
	Headsign     string
	StopSequence uint32
	Arrival      string
	Departure    string
}

type Transfer struct {
	FromStopID      string
	ToStopID        string
	Type            TransferType
	MinTransferTime int // seconds, 0 when unset
}

// A directed edge of the materialized station graph. Nodes are
// directional platform IDs; parent stations never appear.
type GraphEdge struct {
	FromStopID      string
	ToStopID        string
	RouteID         string
	TravelTime      int // seconds
	IsTransfer      bool
	TransferPenalty int // seconds
}

// A single predicted arrival at a platform.
type Prediction struct {
	RouteID  string `json:"route_id"`
	Headsign string `json:"headsign"`
	ETA      int    `json:"eta_s"`
}

// Directions recognized as platform suffixes, in stable order.
var Directions = []string{"N", "S", "E", "W"}

func isDirection(c byte) bool {
	return c == 'N' || c == 'S' || c == 'E' || c == 'W'
}

// DirectionOf returns the direction suffix of a platform ID, or ""
// when the ID carries none.
func DirectionOf(stopID string) string {
	if stopID == "" {
		return ""
	}
	if c := stopID[len(stopID)-1]; isDirection(c) {
		return string(c)
	}
	return ""
}

// BaseStopID strips a trailing direction suffix, if any. Two platforms
// sharing a base ID are sibling platforms of one station.
func BaseStopID(stopID string) string {
	if DirectionOf(stopID) != "" {
		return stopID[:len(stopID)-1]
	}
	return stopID
}

// ParseTravelTime parses a GTFS "HH:MM:SS" timestamp into seconds
// since midnight. Hours may exceed 24 for overnight service.
func ParseTravelTime(s string) (int, error) {
	split := strings.Split(s, ":")
	if len(split) != 3 {
		return 0, &TimeParseError{s}
	}

	hms := [3]int{}
	for i, str := range split {
		j, err := strconv.Atoi(strings.TrimSpace(str))
		if err != nil {
			return 0, &TimeParseError{s}
		}
		hms[i] = j
	}

	if hms[0] < 0 || hms[1] < 0 || hms[1] > 59 || hms[2] < 0 || hms[2] > 59 {
		return 0, &TimeParseError{s}
	}

	return hms[0]*3600 + hms[1]*60 + hms[2], nil
}

type TimeParseError struct {
	Value string
}

func (e *TimeParseError) Error() string {
	return "invalid GTFS time '" + e.Value + "'"
}
