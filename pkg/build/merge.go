package build

import (
	"fmt"

	"github.com/midpoint-labs/midpoint/pkg/graph"
)

// mergeWeights runs stage 8: splice every calculated weight into its edge,
// drop any non-transfer edge left unweighted, and prune unweightable
// transfer pairs unless configured to keep them.
func (p *Pipeline) mergeWeights(g *graph.Graph, records []WeightRecord) (*graph.Graph, error) {
	for _, r := range records {
		if !g.SetEdgeWeight(r.Source, r.Target, r.Line, graph.Float64(r.DurationMinutes)) {
			return nil, fmt.Errorf("weight record %s -> %s [%s] has no edge", r.Source, r.Target, r.Line)
		}
	}

	dropped := 0
	pruned := 0
	for _, e := range g.Edges() {
		if e.Weight != nil {
			continue
		}
		if e.Transfer {
			if p.cfg.KeepNullTransfers {
				continue
			}
			if g.RemoveEdge(e.Source, e.Target, e.Key) {
				pruned++
			}
			continue
		}
		// Should be empty after the gate; removing is the fail-safe.
		p.log.Warn("dropping unweighted line edge",
			"from", e.Source, "to", e.Target, "line", e.Line)
		if g.RemoveEdge(e.Source, e.Target, e.Key) {
			dropped++
		}
	}

	p.log.Info("weights merged",
		"records", len(records), "dropped_line_edges", dropped, "pruned_transfers", pruned)
	return g, nil
}
