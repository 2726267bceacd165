package graph

import (
	"encoding/json"
	"fmt"
)

// Node-link form, the on-disk contract for every graph artifact. Nodes are
// emitted sorted by ID and links by (source, target, key) so repeated
// encodes of the same graph are byte-identical.

type nodeLinkDoc struct {
	Directed   bool            `json:"directed"`
	Multigraph bool            `json:"multigraph"`
	Graph      map[string]any  `json:"graph"`
	Nodes      []nodeLinkNode  `json:"nodes"`
	Links      []nodeLinkEdge  `json:"links"`
}

type nodeLinkNode struct {
	Name                string    `json:"name"`
	Lat                 float64   `json:"lat"`
	Lon                 float64   `json:"lon"`
	Zone                *string   `json:"zone"`
	Modes               []string  `json:"modes"`
	Lines               []string  `json:"lines"`
	ConstituentStations []Station `json:"constituent_stations"`
	PrimaryNaptanID     string    `json:"primary_naptan_id"`
	ID                  string    `json:"id"`
}

type nodeLinkEdge struct {
	Line      string   `json:"line,omitempty"`
	LineName  string   `json:"line_name,omitempty"`
	Mode      string   `json:"mode,omitempty"`
	Direction string   `json:"direction,omitempty"`
	Branch    *string  `json:"branch,omitempty"`
	Transfer  bool     `json:"transfer,omitempty"`
	Weight    *float64 `json:"weight"`
	Source    string   `json:"source"`
	Target    string   `json:"target"`
	Key       string   `json:"key"`
}

// MarshalNodeLink encodes the graph as indented node-link JSON.
func (g *Graph) MarshalNodeLink() ([]byte, error) {
	doc := nodeLinkDoc{
		Directed:   true,
		Multigraph: true,
		Graph:      map[string]any{},
		Nodes:      []nodeLinkNode{},
		Links:      []nodeLinkEdge{},
	}
	for _, h := range g.Hubs() {
		modes := h.Modes
		if modes == nil {
			modes = []string{}
		}
		lines := h.Lines
		if lines == nil {
			lines = []string{}
		}
		stations := h.ConstituentStations
		if stations == nil {
			stations = []Station{}
		}
		doc.Nodes = append(doc.Nodes, nodeLinkNode{
			Name:                h.Name,
			Lat:                 h.Lat,
			Lon:                 h.Lon,
			Zone:                h.Zone,
			Modes:               modes,
			Lines:               lines,
			ConstituentStations: stations,
			PrimaryNaptanID:     h.PrimaryNaptanID,
			ID:                  h.ID,
		})
	}
	for _, e := range g.Edges() {
		doc.Links = append(doc.Links, nodeLinkEdge{
			Line:      e.Line,
			LineName:  e.LineName,
			Mode:      e.Mode,
			Direction: e.Direction,
			Branch:    e.Branch,
			Transfer:  e.Transfer,
			Weight:    e.Weight,
			Source:    e.Source,
			Target:    e.Target,
			Key:       e.Key,
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// UnmarshalNodeLink decodes node-link JSON into a graph.
func UnmarshalNodeLink(data []byte) (*Graph, error) {
	var doc nodeLinkDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding node-link document: %w", err)
	}
	if !doc.Directed || !doc.Multigraph {
		return nil, fmt.Errorf("node-link document must be a directed multigraph")
	}

	g := New()
	for _, n := range doc.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("node with empty id")
		}
		g.UpsertHub(Hub{
			ID:                  n.ID,
			Name:                n.Name,
			Lat:                 n.Lat,
			Lon:                 n.Lon,
			Zone:                n.Zone,
			Modes:               n.Modes,
			Lines:               n.Lines,
			ConstituentStations: n.ConstituentStations,
			PrimaryNaptanID:     n.PrimaryNaptanID,
		})
	}
	for _, l := range doc.Links {
		if l.Key == "" {
			return nil, fmt.Errorf("link %s->%s with empty key", l.Source, l.Target)
		}
		if _, err := g.AddEdge(Edge{
			Source:    l.Source,
			Target:    l.Target,
			Key:       l.Key,
			Line:      l.Line,
			LineName:  l.LineName,
			Mode:      l.Mode,
			Direction: l.Direction,
			Branch:    l.Branch,
			Transfer:  l.Transfer,
			Weight:    l.Weight,
		}); err != nil {
			return nil, err
		}
	}
	return g, nil
}
