package build

import (
	"context"
	"fmt"

	"github.com/midpoint-labs/midpoint/pkg/tfl"
)

type fakeProvider struct {
	linesForModes    func(ctx context.Context, modes []string) ([]tfl.Line, error)
	routeSequence    func(ctx context.Context, lineID, direction string) (*tfl.RouteSequence, error)
	stopsNear        func(ctx context.Context, lat, lon float64, radiusM int) ([]tfl.StopPoint, error)
	timetable        func(ctx context.Context, lineID, fromStopID string) (*tfl.TimetableResponse, error)
	timetableBetween func(ctx context.Context, lineID, fromStopID, toStopID string) (*tfl.TimetableResponse, error)
	planJourneys     func(ctx context.Context, from, to string, opts tfl.JourneyOptions) ([]tfl.Journey, error)
}

var _ Provider = (*fakeProvider)(nil)

func (f *fakeProvider) LinesForModes(ctx context.Context, modes []string) ([]tfl.Line, error) {
	if f.linesForModes != nil {
		return f.linesForModes(ctx, modes)
	}
	return nil, nil
}

func (f *fakeProvider) RouteSequence(ctx context.Context, lineID, direction string) (*tfl.RouteSequence, error) {
	if f.routeSequence != nil {
		return f.routeSequence(ctx, lineID, direction)
	}
	return nil, fmt.Errorf("line %s: %w", lineID, tfl.ErrNotFound)
}

func (f *fakeProvider) StopsNear(ctx context.Context, lat, lon float64, radiusM int) ([]tfl.StopPoint, error) {
	if f.stopsNear != nil {
		return f.stopsNear(ctx, lat, lon, radiusM)
	}
	return nil, nil
}

func (f *fakeProvider) Timetable(ctx context.Context, lineID, fromStopID string) (*tfl.TimetableResponse, error) {
	if f.timetable != nil {
		return f.timetable(ctx, lineID, fromStopID)
	}
	return nil, fmt.Errorf("timetable %s from %s: %w", lineID, fromStopID, tfl.ErrNotFound)
}

func (f *fakeProvider) TimetableBetween(ctx context.Context, lineID, fromStopID, toStopID string) (*tfl.TimetableResponse, error) {
	if f.timetableBetween != nil {
		return f.timetableBetween(ctx, lineID, fromStopID, toStopID)
	}
	return nil, fmt.Errorf("timetable %s: %w", lineID, tfl.ErrNotFound)
}

func (f *fakeProvider) PlanJourneys(ctx context.Context, from, to string, opts tfl.JourneyOptions) ([]tfl.Journey, error) {
	if f.planJourneys != nil {
		return f.planJourneys(ctx, from, to, opts)
	}
	return nil, fmt.Errorf("journey %s -> %s: %w", from, to, tfl.ErrNoJourney)
}

func (f *fakeProvider) JourneyDuration(ctx context.Context, from, to string, opts tfl.JourneyOptions) (float64, error) {
	journeys, err := f.PlanJourneys(ctx, from, to, opts)
	if err != nil {
		return 0, err
	}
	best := journeys[0].Duration
	for _, j := range journeys[1:] {
		if j.Duration < best {
			best = j.Duration
		}
	}
	return float64(best), nil
}
