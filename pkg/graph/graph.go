// Package graph holds the weighted transit multigraph shared by the build
// pipeline and the query engine. Nodes are interchange hubs, edges are
// directed line segments or walking transfers, keyed by line ID so parallel
// lines between the same pair of hubs stay distinct.
package graph

import (
	"fmt"
	"sort"
	"sync"
)

// TransferKey is the edge key reserved for walking transfers.
const TransferKey = "transfer"

// Station is a single stop point folded into a hub.
type Station struct {
	Name     string `json:"name"`
	NaptanID string `json:"naptan_id"`
}

// Hub is an interchange node. Its ID is the provider's top-most parent
// identifier, so physically-linked stations collapse into one node.
type Hub struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Lat                 float64   `json:"lat"`
	Lon                 float64   `json:"lon"`
	Zone                *string   `json:"zone"`
	Modes               []string  `json:"modes"`
	Lines               []string  `json:"lines"`
	ConstituentStations []Station `json:"constituent_stations"`
	PrimaryNaptanID     string    `json:"primary_naptan_id"`
}

// Edge is a directed segment between two hubs. Key is the line ID for ride
// segments and TransferKey for walking transfers. A nil Weight means the
// duration has not been calculated yet.
type Edge struct {
	Source    string
	Target    string
	Key       string
	Line      string
	LineName  string
	Mode      string
	Direction string
	Branch    *string
	Transfer  bool
	Weight    *float64
}

type edgeID struct {
	source, target, key string
}

// Graph is a directed multigraph with at most one edge per
// (source, target, key) triple. Safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	hubs  map[string]*Hub
	edges map[edgeID]*Edge
}

func New() *Graph {
	return &Graph{
		hubs:  make(map[string]*Hub),
		edges: make(map[edgeID]*Edge),
	}
}

// UpsertHub inserts the hub or merges it into an existing node with the same
// ID. Modes, lines and constituents are set-unioned; coordinates, name and
// zone are taken from the incoming hub only when not already set.
func (g *Graph) UpsertHub(h Hub) {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.hubs[h.ID]
	if !ok {
		cp := h
		cp.Modes = dedupe(h.Modes)
		cp.Lines = dedupe(h.Lines)
		cp.ConstituentStations = append([]Station(nil), h.ConstituentStations...)
		g.hubs[h.ID] = &cp
		return
	}

	existing.Modes = dedupe(append(existing.Modes, h.Modes...))
	existing.Lines = dedupe(append(existing.Lines, h.Lines...))
	for _, s := range h.ConstituentStations {
		if !containsStation(existing.ConstituentStations, s.NaptanID) {
			existing.ConstituentStations = append(existing.ConstituentStations, s)
		}
	}
	if existing.Zone == nil && h.Zone != nil {
		existing.Zone = h.Zone
	}
	if existing.Name == "" {
		existing.Name = h.Name
	}
	if existing.PrimaryNaptanID == "" {
		existing.PrimaryNaptanID = h.PrimaryNaptanID
	}
}

// UpdateHub runs fn against the stored hub under the graph lock. fn must
// not call back into the graph.
func (g *Graph) UpdateHub(id string, fn func(*Hub)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.hubs[id]
	if !ok {
		return false
	}
	fn(h)
	return true
}

// SetHubCoordinates overrides the representative coordinates of a hub.
func (g *Graph) SetHubCoordinates(id string, lat, lon float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h, ok := g.hubs[id]; ok {
		h.Lat = lat
		h.Lon = lon
	}
}

// Hub returns a copy of the hub, or false when absent.
func (g *Graph) Hub(id string) (Hub, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	h, ok := g.hubs[id]
	if !ok {
		return Hub{}, false
	}
	return *h, true
}

// HasHub reports whether the hub exists.
func (g *Graph) HasHub(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.hubs[id]
	return ok
}

// Hubs returns all hubs sorted by ID.
func (g *Graph) Hubs() []Hub {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Hub, 0, len(g.hubs))
	for _, h := range g.hubs {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NumHubs returns the node count.
func (g *Graph) NumHubs() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.hubs)
}

// AddEdge inserts the edge unless the (source, target, key) triple already
// exists. Returns true when the edge was added.
func (g *Graph) AddEdge(e Edge) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.hubs[e.Source]; !ok {
		return false, fmt.Errorf("edge %s->%s [%s]: unknown source hub", e.Source, e.Target, e.Key)
	}
	if _, ok := g.hubs[e.Target]; !ok {
		return false, fmt.Errorf("edge %s->%s [%s]: unknown target hub", e.Source, e.Target, e.Key)
	}
	id := edgeID{e.Source, e.Target, e.Key}
	if _, ok := g.edges[id]; ok {
		return false, nil
	}
	cp := e
	g.edges[id] = &cp
	return true, nil
}

// Edge returns a copy of the edge for the triple, or false when absent.
func (g *Graph) Edge(source, target, key string) (Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[edgeID{source, target, key}]
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// HasLineEdge reports whether any non-transfer edge joins the two hubs in
// either direction.
func (g *Graph) HasLineEdge(a, b string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for id := range g.edges {
		if id.key == TransferKey {
			continue
		}
		if (id.source == a && id.target == b) || (id.source == b && id.target == a) {
			return true
		}
	}
	return false
}

// Edges returns all edges sorted by (source, target, key).
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Key < b.Key
	})
	return out
}

// NumEdges returns the edge count.
func (g *Graph) NumEdges() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// EdgesFrom returns the outgoing edges of a hub, sorted by (target, key).
func (g *Graph) EdgesFrom(source string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for id, e := range g.edges {
		if id.source == source {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// SetEdgeWeight sets the weight of an existing edge. Returns false when the
// triple does not exist.
func (g *Graph) SetEdgeWeight(source, target, key string, weight *float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.edges[edgeID{source, target, key}]
	if !ok {
		return false
	}
	e.Weight = weight
	return true
}

// RemoveEdge deletes the edge for the triple. Returns true when it existed.
func (g *Graph) RemoveEdge(source, target, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := edgeID{source, target, key}
	if _, ok := g.edges[id]; !ok {
		return false
	}
	delete(g.edges, id)
	return true
}

// RemoveHubLine drops a line from a hub's line membership.
func (g *Graph) RemoveHubLine(id, line string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.hubs[id]
	if !ok {
		return false
	}
	kept := h.Lines[:0]
	removed := false
	for _, l := range h.Lines {
		if l == line {
			removed = true
			continue
		}
		kept = append(kept, l)
	}
	h.Lines = kept
	return removed
}

// AddHubLine adds a line to a hub's line membership.
func (g *Graph) AddHubLine(id, line string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.hubs[id]
	if !ok {
		return false
	}
	for _, l := range h.Lines {
		if l == line {
			return true
		}
	}
	h.Lines = append(h.Lines, line)
	sort.Strings(h.Lines)
	return true
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func containsStation(stations []Station, naptanID string) bool {
	for _, s := range stations {
		if s.NaptanID == naptanID {
			return true
		}
	}
	return false
}

// Float64 returns a pointer to v. Convenience for edge weights.
func Float64(v float64) *float64 { return &v }
