package build

import (
	"fmt"
	"math"
	"slices"

	"github.com/midpoint-labs/midpoint/pkg/graph"
)

// maxEdgeMinutes bounds a single hub-to-hub segment; anything longer is a
// data error, not a train.
const maxEdgeMinutes = 180.0

// ValidationReport is the stage-7 diff between the graph structure and the
// calculated weights. An empty report means the merge may proceed.
type ValidationReport struct {
	MissingWeights      []string `json:"missing_weights"`
	OrphanRecords       []string `json:"orphan_records"`
	DuplicateRecords    []string `json:"duplicate_records"`
	BadDurations        []string `json:"bad_durations"`
	MalformedRecords    []string `json:"malformed_records"`
	AsymmetricTransfers []string `json:"asymmetric_transfers"`
	LineMembership      []string `json:"line_membership"`
}

// OK reports whether every check passed.
func (r *ValidationReport) OK() bool {
	return r.ProblemCount() == 0
}

// ProblemCount returns the total number of recorded problems.
func (r *ValidationReport) ProblemCount() int {
	return len(r.MissingWeights) + len(r.OrphanRecords) + len(r.DuplicateRecords) +
		len(r.BadDurations) + len(r.MalformedRecords) + len(r.AsymmetricTransfers) +
		len(r.LineMembership)
}

// validateWeights cross-checks the calculated weights against the graph:
// exactly one record per non-transfer edge and vice versa, sane durations,
// intact transfer twins, and line membership at both endpoints.
func validateWeights(g *graph.Graph, records []WeightRecord) *ValidationReport {
	report := &ValidationReport{}

	type triple struct{ source, target, line string }
	counts := make(map[triple]int, len(records))

	for _, r := range records {
		name := fmt.Sprintf("%s -> %s [%s]", r.Source, r.Target, r.Line)
		if r.Source == "" || r.Target == "" || r.Line == "" || r.Mode == "" || r.CalculatedAt.IsZero() {
			report.MalformedRecords = append(report.MalformedRecords,
				fmt.Sprintf("%s: missing required fields", name))
			continue
		}
		if math.IsNaN(r.DurationMinutes) || math.IsInf(r.DurationMinutes, 0) ||
			r.DurationMinutes <= 0 || r.DurationMinutes > maxEdgeMinutes {
			report.BadDurations = append(report.BadDurations,
				fmt.Sprintf("%s: duration %v minutes out of range (0, %v]", name, r.DurationMinutes, maxEdgeMinutes))
		}
		counts[triple{r.Source, r.Target, r.Line}]++
	}

	for _, e := range g.Edges() {
		name := fmt.Sprintf("%s -> %s [%s]", e.Source, e.Target, e.Key)

		if e.Transfer {
			twin, ok := g.Edge(e.Target, e.Source, graph.TransferKey)
			switch {
			case !ok:
				report.AsymmetricTransfers = append(report.AsymmetricTransfers,
					fmt.Sprintf("%s: reverse transfer missing", name))
			case (e.Weight == nil) != (twin.Weight == nil):
				report.AsymmetricTransfers = append(report.AsymmetricTransfers,
					fmt.Sprintf("%s: one direction weighted, the other null", name))
			case e.Weight != nil && math.Abs(*e.Weight-*twin.Weight) > 0.01:
				report.AsymmetricTransfers = append(report.AsymmetricTransfers,
					fmt.Sprintf("%s: weights differ (%v vs %v)", name, *e.Weight, *twin.Weight))
			}
			continue
		}

		switch n := counts[triple{e.Source, e.Target, e.Key}]; {
		case n == 0:
			report.MissingWeights = append(report.MissingWeights,
				fmt.Sprintf("%s: no calculated weight", name))
		case n > 1:
			report.DuplicateRecords = append(report.DuplicateRecords,
				fmt.Sprintf("%s: %d records", name, n))
		}

		src, _ := g.Hub(e.Source)
		dst, _ := g.Hub(e.Target)
		if !slices.Contains(src.Lines, e.Line) || !slices.Contains(dst.Lines, e.Line) {
			report.LineMembership = append(report.LineMembership,
				fmt.Sprintf("%s: line not in both endpoints' line sets", name))
		}
	}

	edgeSet := make(map[triple]bool)
	for _, e := range g.Edges() {
		if !e.Transfer {
			edgeSet[triple{e.Source, e.Target, e.Key}] = true
		}
	}
	for t := range counts {
		if !edgeSet[t] {
			report.OrphanRecords = append(report.OrphanRecords,
				fmt.Sprintf("%s -> %s [%s]: record has no graph edge", t.source, t.target, t.line))
		}
	}

	slices.Sort(report.MissingWeights)
	slices.Sort(report.OrphanRecords)
	slices.Sort(report.DuplicateRecords)
	slices.Sort(report.BadDurations)
	slices.Sort(report.MalformedRecords)
	slices.Sort(report.AsymmetricTransfers)
	slices.Sort(report.LineMembership)
	return report
}
