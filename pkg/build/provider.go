package build

import (
	"context"

	"github.com/midpoint-labs/midpoint/pkg/tfl"
)

// Provider is the slice of the transit API the pipeline consumes. Satisfied
// by *tfl.Client; tests substitute fakes.
type Provider interface {
	LinesForModes(ctx context.Context, modes []string) ([]tfl.Line, error)
	RouteSequence(ctx context.Context, lineID, direction string) (*tfl.RouteSequence, error)
	StopsNear(ctx context.Context, lat, lon float64, radiusM int) ([]tfl.StopPoint, error)
	Timetable(ctx context.Context, lineID, fromStopID string) (*tfl.TimetableResponse, error)
	TimetableBetween(ctx context.Context, lineID, fromStopID, toStopID string) (*tfl.TimetableResponse, error)
	PlanJourneys(ctx context.Context, from, to string, opts tfl.JourneyOptions) ([]tfl.Journey, error)
	JourneyDuration(ctx context.Context, from, to string, opts tfl.JourneyOptions) (float64, error)
}

var _ Provider = (*tfl.Client)(nil)
