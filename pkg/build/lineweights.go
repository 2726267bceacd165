package build

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/midpoint-labs/midpoint/pkg/graph"
	"github.com/midpoint-labs/midpoint/pkg/tfl"
)

const (
	// minSegmentMinutes clamps timetable-derived durations; adjacent
	// stations are never truly instantaneous.
	minSegmentMinutes = 0.1
	// spreadWarnMinutes is the max-min spread above which per-edge
	// samples get a warning before averaging.
	spreadWarnMinutes = 2.0
)

// calculateTimetableWeights runs stage 5: replay each cached timetable's
// arrival offsets into directional hub-to-hub durations, keep only tuples
// matching a graph edge on the same line, and average per edge. Segments on
// the fallback allow-list are resolved through the journey planner.
func (p *Pipeline) calculateTimetableWeights(ctx context.Context, g *graph.Graph, timetables map[string]*LineTimetables) ([]WeightRecord, error) {
	stationHub := stationHubIndex(g)
	counter := &malformedCounter{}

	type edgeKey struct{ from, to string }
	var records []WeightRecord

	for _, lineID := range timetabledLines() {
		lt := timetables[lineID]
		if lt == nil {
			p.log.Warn("no timetables for line", "line", lineID)
			continue
		}

		samples := make(map[edgeKey][]float64)
		for _, tt := range lt.Timetables {
			if tt == nil {
				continue
			}
			p.collectIntervalSamples(g, stationHub, lineID, tt, counter, func(from, to string, d float64) {
				k := edgeKey{from, to}
				samples[k] = append(samples[k], d)
			})
		}

		keys := make([]edgeKey, 0, len(samples))
		for k := range samples {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].from != keys[j].from {
				return keys[i].from < keys[j].from
			}
			return keys[i].to < keys[j].to
		})

		for _, k := range keys {
			minutes, ok := p.reduceSamples(lineID, k.from, k.to, samples[k])
			if !ok {
				continue
			}
			records = append(records, WeightRecord{
				Source:          k.from,
				Target:          k.to,
				Line:            lineID,
				Mode:            lineModes[lineID],
				DurationMinutes: minutes,
				CalculatedAt:    p.clock.Now().UTC(),
			})
		}
	}

	if err := counter.check(p.cfg.MalformedFraction); err != nil {
		return nil, err
	}

	fallback, err := p.resolveFallbacks(ctx, g, stationHub, records)
	if err != nil {
		return nil, err
	}
	records = append(records, fallback...)

	p.log.Info("timetable weights calculated", "records", len(records))
	return records, nil
}

// collectIntervalSamples walks one timetable payload. Each interval run is
// the departure stop followed by stops with cumulative arrival offsets;
// consecutive differences are segment durations.
func (p *Pipeline) collectIntervalSamples(g *graph.Graph, stationHub map[string]string, lineID string, tt *tfl.TimetableResponse, counter *malformedCounter, emit func(from, to string, d float64)) {
	departure := tt.Timetable.DepartureStopID
	for _, route := range tt.Timetable.Routes {
		for _, si := range route.StationIntervals {
			prevStop := departure
			prevOffset := 0.0
			for _, interval := range si.Intervals {
				if interval.StopID == "" || math.IsNaN(interval.TimeToArrival) || math.IsInf(interval.TimeToArrival, 0) {
					counter.malformed()
					continue
				}
				counter.ok()

				d := interval.TimeToArrival - prevOffset
				fromHub, okFrom := stationHub[prevStop]
				toHub, okTo := stationHub[interval.StopID]
				prevStop = interval.StopID
				prevOffset = interval.TimeToArrival

				if !okFrom || !okTo || fromHub == toHub {
					continue
				}
				if _, ok := g.Edge(fromHub, toHub, lineID); !ok {
					continue
				}
				emit(fromHub, toHub, d)
			}
		}
	}
}

// reduceSamples averages one edge's samples: non-positive values dropped,
// mean clamped and rounded to one decimal.
func (p *Pipeline) reduceSamples(lineID, from, to string, samples []float64) (float64, bool) {
	var kept []float64
	for _, d := range samples {
		if d > 0 {
			kept = append(kept, d)
		}
	}
	if len(kept) == 0 {
		return 0, false
	}

	min, max := kept[0], kept[0]
	sum := 0.0
	for _, d := range kept {
		sum += d
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	if max-min > spreadWarnMinutes {
		p.log.Warn("wide duration spread across timetables",
			"line", lineID, "from", from, "to", to, "min", min, "max", max)
	}

	mean := sum / float64(len(kept))
	if mean < minSegmentMinutes {
		mean = minSegmentMinutes
	}
	return roundTenth(mean), true
}

// resolveFallbacks weights the allow-listed segments timetables cannot
// cover, using the journey planner.
func (p *Pipeline) resolveFallbacks(ctx context.Context, g *graph.Graph, stationHub map[string]string, existing []WeightRecord) ([]WeightRecord, error) {
	have := make(map[[3]string]bool, len(existing))
	for _, r := range existing {
		have[[3]string{r.Source, r.Target, r.Line}] = true
	}

	var out []WeightRecord
	for _, fb := range journeyFallbacks {
		fromHub, okFrom := stationHub[fb.FromStop]
		toHub, okTo := stationHub[fb.ToStop]
		if !okFrom || !okTo {
			p.log.Warn("fallback stops not in graph", "line", fb.Line,
				"from", fb.FromStop, "to", fb.ToStop)
			continue
		}
		if _, ok := g.Edge(fromHub, toHub, fb.Line); !ok {
			continue
		}
		if have[[3]string{fromHub, toHub, fb.Line}] {
			continue
		}

		minutes, err := p.provider.JourneyDuration(ctx, fb.FromStop, fb.ToStop,
			tfl.JourneyOptions{Mode: lineModes[fb.Line]})
		if err != nil {
			if errors.Is(err, tfl.ErrAuth) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			p.log.Warn("fallback journey unavailable", "line", fb.Line,
				"from", fb.FromStop, "to", fb.ToStop, "error", err)
			continue
		}
		if minutes < minSegmentMinutes {
			minutes = minSegmentMinutes
		}
		out = append(out, WeightRecord{
			Source:          fromHub,
			Target:          toHub,
			Line:            fb.Line,
			Mode:            lineModes[fb.Line],
			DurationMinutes: roundTenth(minutes),
			CalculatedAt:    p.clock.Now().UTC(),
		})
	}
	return out, nil
}

// stationHubIndex maps every constituent stop ID to its hub.
func stationHubIndex(g *graph.Graph) map[string]string {
	idx := make(map[string]string)
	for _, h := range g.Hubs() {
		idx[h.ID] = h.ID
		for _, s := range h.ConstituentStations {
			idx[s.NaptanID] = h.ID
		}
	}
	return idx
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
