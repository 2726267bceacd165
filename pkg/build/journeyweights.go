package build

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/midpoint-labs/midpoint/pkg/graph"
	"github.com/midpoint-labs/midpoint/pkg/tfl"
)

// Overground and Elizabeth line schedules vary through the day, so their
// journeys are planned for a fixed off-peak Saturday late morning.
const (
	journeyDate       = "20250510"
	journeyTime       = "1100"
	journeyPreference = "leastinterchange"

	// minJourneyMinutes clamps journey-derived durations; the planner
	// rounds short hops down to zero.
	minJourneyMinutes = 1.0
)

// calculateJourneyWeights runs stage 6: weight every overground and
// Elizabeth line edge still missing a record by asking the journey planner
// for a single-leg ride on that line, each direction independently.
func (p *Pipeline) calculateJourneyWeights(ctx context.Context, g *graph.Graph, existing []WeightRecord) ([]WeightRecord, error) {
	have := make(map[[3]string]bool, len(existing))
	for _, r := range existing {
		have[[3]string{r.Source, r.Target, r.Line}] = true
	}
	wanted := make(map[string]bool)
	for _, line := range overgroundLines() {
		wanted[line] = true
	}

	var (
		mu  sync.Mutex
		out []WeightRecord
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.cfg.JourneyWorkers)

	for _, e := range g.Edges() {
		if e.Transfer {
			continue
		}
		if !wanted[e.Line] {
			continue
		}
		if have[[3]string{e.Source, e.Target, e.Line}] {
			continue
		}

		eg.Go(func() error {
			record, err := p.weighJourneyEdge(egCtx, g, e)
			if err != nil {
				return err
			}
			if record != nil {
				mu.Lock()
				out = append(out, *record)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Line < b.Line
	})

	p.log.Info("journey weights calculated", "records", len(out))
	return out, nil
}

func (p *Pipeline) weighJourneyEdge(ctx context.Context, g *graph.Graph, e graph.Edge) (*WeightRecord, error) {
	from, _ := g.Hub(e.Source)
	to, _ := g.Hub(e.Target)

	journeys, err := p.provider.PlanJourneys(ctx, from.PrimaryNaptanID, to.PrimaryNaptanID, tfl.JourneyOptions{
		Mode:       e.Mode,
		Date:       journeyDate,
		Time:       journeyTime,
		Preference: journeyPreference,
	})
	if err != nil {
		if errors.Is(err, tfl.ErrAuth) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		p.log.Warn("journey unavailable for edge", "line", e.Line,
			"from", e.Source, "to", e.Target, "error", err)
		return nil, nil
	}

	durations := singleLegDurations(journeys, e.Line)
	if len(durations) == 0 {
		p.log.Warn("no single-leg journey matched edge line", "line", e.Line,
			"from", e.Source, "to", e.Target)
		return nil, nil
	}

	minutes := meanWithoutOutliers(durations)
	if minutes < minJourneyMinutes {
		minutes = minJourneyMinutes
	}
	return &WeightRecord{
		Source:          e.Source,
		Target:          e.Target,
		Line:            e.Line,
		Mode:            e.Mode,
		DurationMinutes: roundTenth(minutes),
		CalculatedAt:    p.clock.Now().UTC(),
	}, nil
}

// singleLegDurations keeps the durations of journeys that consist of one
// transit leg on the wanted line, ignoring any walking approach legs.
func singleLegDurations(journeys []tfl.Journey, lineID string) []float64 {
	var out []float64
	for _, j := range journeys {
		transitLegs := 0
		matched := false
		for _, leg := range j.Legs {
			if leg.Mode.ID == "walking" {
				continue
			}
			transitLegs++
			for _, opt := range leg.RouteOptions {
				if opt.LineIdentifier != nil && opt.LineIdentifier.ID == lineID {
					matched = true
				}
			}
		}
		if transitLegs == 1 && matched {
			out = append(out, float64(j.Duration))
		}
	}
	return out
}

// meanWithoutOutliers drops values deviating from the median by more than
// twice the median absolute deviation, then averages the rest.
func meanWithoutOutliers(values []float64) float64 {
	med := median(values)
	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = math.Abs(v - med)
	}
	mad := median(deviations)

	var kept []float64
	if mad == 0 {
		kept = values
	} else {
		for _, v := range values {
			if math.Abs(v-med) <= 2*mad {
				kept = append(kept, v)
			}
		}
	}
	sum := 0.0
	for _, v := range kept {
		sum += v
	}
	return sum / float64(len(kept))
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
