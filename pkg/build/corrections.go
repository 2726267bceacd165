package build

import (
	"log/slog"

	"github.com/midpoint-labs/midpoint/pkg/graph"
)

// CorrectionOp is the kind of a hand-applied data correction.
type CorrectionOp string

const (
	// OpRemoveHubLine drops a line from a hub's line membership and
	// removes every edge of that line touching the hub.
	OpRemoveHubLine CorrectionOp = "remove_hub_line"
	// OpAddEdge inserts a line edge in both directions between two hubs.
	OpAddEdge CorrectionOp = "add_edge"
)

// Correction is one audited fix for a known provider data error.
type Correction struct {
	Op       CorrectionOp
	Hub      string
	OtherHub string
	Line     string
	Reason   string
}

// corrections is the complete list of known provider data errors fixed
// after the base graph is assembled.
var corrections = []Correction{
	{
		Op:     OpRemoveHubLine,
		Hub:    "940GZZLUWIG",
		Line:   "metropolitan",
		Reason: "provider still lists the Metropolitan line at Willesden Green; it has not stopped there in regular service",
	},
	{
		Op:       OpAddEdge,
		Hub:      "940GZZLUFYR",
		OtherHub: "940GZZLUWYP",
		Line:     "metropolitan",
		Reason:   "fast Metropolitan services run Finchley Road to Wembley Park non-stop; sequence data omits the segment",
	},
}

// applyCorrections mutates the graph per the corrections list. Every
// applied correction is logged with its reason.
func applyCorrections(g *graph.Graph, log *slog.Logger) {
	for _, c := range corrections {
		switch c.Op {
		case OpRemoveHubLine:
			removed := g.RemoveHubLine(c.Hub, c.Line)
			for _, e := range g.Edges() {
				if e.Key != c.Line {
					continue
				}
				if e.Source == c.Hub || e.Target == c.Hub {
					g.RemoveEdge(e.Source, e.Target, e.Key)
					removed = true
				}
			}
			log.Info("applied data correction",
				"op", string(c.Op), "hub", c.Hub, "line", c.Line,
				"effective", removed, "reason", c.Reason)

		case OpAddEdge:
			if !g.HasHub(c.Hub) || !g.HasHub(c.OtherHub) {
				log.Warn("skipping data correction, hub missing",
					"op", string(c.Op), "hub", c.Hub, "other_hub", c.OtherHub, "line", c.Line)
				continue
			}
			mode := lineModes[c.Line]
			for _, dir := range [][2]string{{c.Hub, c.OtherHub}, {c.OtherHub, c.Hub}} {
				_, err := g.AddEdge(graph.Edge{
					Source:    dir[0],
					Target:    dir[1],
					Key:       c.Line,
					Line:      c.Line,
					LineName:  lineDisplayName(c.Line),
					Mode:      mode,
					Direction: "unknown",
				})
				if err != nil {
					log.Warn("data correction edge rejected", "error", err)
				}
			}
			g.AddHubLine(c.Hub, c.Line)
			g.AddHubLine(c.OtherHub, c.Line)
			log.Info("applied data correction",
				"op", string(c.Op), "hub", c.Hub, "other_hub", c.OtherHub,
				"line", c.Line, "reason", c.Reason)
		}
	}
}
