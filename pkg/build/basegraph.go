package build

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/midpoint-labs/midpoint/pkg/graph"
	"github.com/midpoint-labs/midpoint/pkg/tfl"
)

// buildBaseGraph runs stage 1: fetch both directions of every known line's
// route sequence, fold stations into hubs by top-most parent, and emit
// null-weighted directed line edges between consecutive hubs.
func (p *Pipeline) buildBaseGraph(ctx context.Context) (*graph.Graph, error) {
	g := graph.New()
	counter := &malformedCounter{}
	ranks := &hubRanks{m: make(map[string]int)}

	lines, err := p.discoverLines(ctx)
	if err != nil {
		return nil, err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.cfg.SequenceWorkers)

	for _, lineID := range lines {
		for _, direction := range []string{"inbound", "outbound"} {
			eg.Go(func() error {
				seq, err := p.provider.RouteSequence(egCtx, lineID, direction)
				if err != nil {
					if errors.Is(err, tfl.ErrNotFound) {
						p.log.Warn("no route sequence for line",
							"line", lineID, "direction", direction)
						return nil
					}
					return err
				}
				p.ingestSequence(g, ranks, counter, lineID, direction, seq)
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := counter.check(p.cfg.MalformedFraction); err != nil {
		return nil, err
	}

	applyCorrections(g, p.log)
	finalizeHubs(g)

	p.log.Info("base graph assembled", "hubs", g.NumHubs(), "edges", g.NumEdges())
	return g, nil
}

// discoverLines asks the provider which lines serve the graph's modes and
// keeps those with a curated mode mapping. The curated list is the fallback
// when the listing is unavailable or empty.
func (p *Pipeline) discoverLines(ctx context.Context) ([]string, error) {
	listed, err := p.provider.LinesForModes(ctx,
		[]string{ModeTube, ModeDLR, ModeElizabeth, ModeOverground})
	if err != nil {
		if errors.Is(err, tfl.ErrAuth) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		p.log.Warn("line listing unavailable, using curated line set", "error", err)
		return knownLines(), nil
	}

	var out []string
	for _, l := range listed {
		if _, known := lineModes[l.ID]; known {
			out = append(out, l.ID)
			continue
		}
		p.log.Warn("ignoring line without a mode mapping", "line", l.ID, "mode", l.ModeName)
	}
	if len(out) == 0 {
		return knownLines(), nil
	}
	sort.Strings(out)
	return out, nil
}

// hubRanks tracks, per hub, the best mode rank whose station supplied the
// representative coordinates.
type hubRanks struct {
	mu sync.Mutex
	m  map[string]int
}

// better records the candidate rank and reports whether it beats the
// current representative.
func (r *hubRanks) better(hubID string, rank int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.m[hubID]; ok && cur >= rank {
		return false
	}
	r.m[hubID] = rank
	return true
}

func (p *Pipeline) ingestSequence(g *graph.Graph, ranks *hubRanks, counter *malformedCounter, lineID, direction string, seq *tfl.RouteSequence) {
	mode := lineModes[lineID]
	lineName := seq.LineName
	if lineName == "" {
		lineName = lineDisplayName(lineID)
	}

	for _, run := range seq.StopPointSequences {
		hubIDs := make([]string, len(run.StopPoint))
		for i, stop := range run.StopPoint {
			if stop.ID == "" || stop.Name == "" || (stop.Lat == 0 && stop.Lon == 0) {
				counter.malformed()
				hubIDs[i] = ""
				continue
			}
			counter.ok()
			hubIDs[i] = stop.HubID()
			p.upsertStop(g, ranks, lineID, stop)
		}

		for i := 0; i+1 < len(run.StopPoint); i++ {
			from, to := hubIDs[i], hubIDs[i+1]
			if from == "" || to == "" || from == to {
				continue
			}
			if _, err := g.AddEdge(graph.Edge{
				Source:    from,
				Target:    to,
				Key:       lineID,
				Line:      lineID,
				LineName:  lineName,
				Mode:      mode,
				Direction: direction,
			}); err != nil {
				p.log.Warn("rejected line edge", "error", err)
			}
		}
	}
}

func (p *Pipeline) upsertStop(g *graph.Graph, ranks *hubRanks, lineID string, stop tfl.SequenceStop) {
	hubID := stop.HubID()

	lines := []string{lineID}
	for _, l := range stop.Lines {
		if _, known := lineModes[l.ID]; known {
			lines = append(lines, l.ID)
		}
	}
	var modes []string
	bestRank := -1
	for _, m := range stop.Modes {
		switch m {
		case ModeTube, ModeDLR, ModeElizabeth, ModeOverground:
			modes = append(modes, m)
			if r := modeRank(m); r > bestRank {
				bestRank = r
			}
		}
	}
	if len(modes) == 0 {
		modes = []string{lineModes[lineID]}
		bestRank = modeRank(lineModes[lineID])
	}

	var zone *string
	if stop.Zone != "" {
		z := stop.Zone
		zone = &z
	}

	g.UpsertHub(graph.Hub{
		ID:                  hubID,
		Name:                cleanStationName(stop.Name),
		Lat:                 stop.Lat,
		Lon:                 stop.Lon,
		Zone:                zone,
		Modes:               modes,
		Lines:               lines,
		ConstituentStations: []graph.Station{{Name: stop.Name, NaptanID: stop.ID}},
	})
	if ranks.better(hubID, bestRank) {
		g.SetHubCoordinates(hubID, stop.Lat, stop.Lon)
	}
}

// finalizeHubs orders constituents deterministically and derives each hub's
// primary stop ID: the first constituent that is a real stop rather than a
// hub umbrella record, else the hub's own ID.
func finalizeHubs(g *graph.Graph) {
	for _, h := range g.Hubs() {
		g.UpdateHub(h.ID, func(hub *graph.Hub) {
			sort.Slice(hub.ConstituentStations, func(i, j int) bool {
				return hub.ConstituentStations[i].NaptanID < hub.ConstituentStations[j].NaptanID
			})
			hub.PrimaryNaptanID = hub.ID
			for _, s := range hub.ConstituentStations {
				if !strings.HasPrefix(s.NaptanID, "HUB") {
					hub.PrimaryNaptanID = s.NaptanID
					break
				}
			}
		})
	}
}

var stationNameSuffixes = []string{
	" Underground Station",
	" DLR Station",
	" Rail Station",
	" Station",
}

func cleanStationName(name string) string {
	for _, suffix := range stationNameSuffixes {
		if cut, ok := strings.CutSuffix(name, suffix); ok {
			return cut
		}
	}
	return name
}
