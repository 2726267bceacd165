package tfl

// Provider payload shapes. Field names mirror the provider's JSON; only the
// fields the pipeline and query engine consume are modelled.

// Line is an entry from the line-by-mode listing.
type Line struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ModeName string `json:"modeName"`
}

// LineRef identifies a line inside nested payloads.
type LineRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SequenceStop is one station within an ordered route sequence.
type SequenceStop struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Lat             float64   `json:"lat"`
	Lon             float64   `json:"lon"`
	ParentID        string    `json:"parentId"`
	TopMostParentID string    `json:"topMostParentId"`
	Zone            string    `json:"zone"`
	Modes           []string  `json:"modes"`
	Lines           []LineRef `json:"lines"`
}

// HubID returns the station's hub identity: the top-most parent when the
// provider supplies one, otherwise the station's own ID.
func (s SequenceStop) HubID() string {
	if s.TopMostParentID != "" {
		return s.TopMostParentID
	}
	return s.ID
}

// StopPointSequence is one branch run of a route sequence.
type StopPointSequence struct {
	LineID    string         `json:"lineId"`
	BranchID  int            `json:"branchId"`
	Direction string         `json:"direction"`
	StopPoint []SequenceStop `json:"stopPoint"`
}

// RouteSequence is the provider's route/sequence payload for one direction
// of one line.
type RouteSequence struct {
	LineID             string              `json:"lineId"`
	LineName           string              `json:"lineName"`
	Direction          string              `json:"direction"`
	Mode               string              `json:"mode"`
	StopPointSequences []StopPointSequence `json:"stopPointSequences"`
}

// StopPoint is an entry from the radius stop-point search.
type StopPoint struct {
	NaptanID      string   `json:"naptanId"`
	CommonName    string   `json:"commonName"`
	Lat           float64  `json:"lat"`
	Lon           float64  `json:"lon"`
	Distance      float64  `json:"distance"`
	StopType      string   `json:"stopType"`
	HubNaptanCode string   `json:"hubNaptanCode"`
	Modes         []string `json:"modes"`
}

// HubID returns the hub the stop belongs to, falling back to the stop's own
// ID for stops outside any hub.
func (s StopPoint) HubID() string {
	if s.HubNaptanCode != "" {
		return s.HubNaptanCode
	}
	return s.NaptanID
}

type stopPointSearch struct {
	StopPoints []StopPoint `json:"stopPoints"`
}

// StationInterval is a single arrival offset within a timetable route.
type StationInterval struct {
	StopID        string  `json:"stopId"`
	TimeToArrival float64 `json:"timeToArrival"`
}

// StationIntervals is one interval group: an ordered run of stations with
// offsets in minutes relative to the departure stop.
type StationIntervals struct {
	ID        string            `json:"id"`
	Intervals []StationInterval `json:"intervals"`
}

// TimetableRoute is one routing of a line within a timetable payload.
type TimetableRoute struct {
	StationIntervals []StationIntervals `json:"stationIntervals"`
}

// Timetable is the schedule block of a timetable payload.
type Timetable struct {
	DepartureStopID string           `json:"departureStopId"`
	Routes          []TimetableRoute `json:"routes"`
}

// TimetableResponse is the provider's timetable payload for one line from
// one departure stop.
type TimetableResponse struct {
	LineID    string    `json:"lineId"`
	Timetable Timetable `json:"timetable"`
}

// RouteOption names the line a journey leg rides.
type RouteOption struct {
	LineIdentifier *LineRef `json:"lineIdentifier"`
}

// JourneyLeg is one leg of a planned journey.
type JourneyLeg struct {
	Duration     int           `json:"duration"`
	Mode         ModeRef       `json:"mode"`
	RouteOptions []RouteOption `json:"routeOptions"`
}

// ModeRef identifies a transport mode inside nested payloads.
type ModeRef struct {
	ID string `json:"id"`
}

// Journey is a single planned journey with its total duration in minutes.
type Journey struct {
	Duration int          `json:"duration"`
	Legs     []JourneyLeg `json:"legs"`
}

type journeyResults struct {
	Journeys []Journey `json:"journeys"`
}

// JourneyOptions controls a journey-planner call. Zero-valued fields are
// omitted from the request.
type JourneyOptions struct {
	Mode       string
	Date       string // yyyyMMdd
	Time       string // HHmm
	Preference string // e.g. "leastinterchange"
}
