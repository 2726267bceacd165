package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMidpoint_Graph_UpsertHub(t *testing.T) {
	t.Parallel()

	t.Run("merges stations sharing a hub id", func(t *testing.T) {
		t.Parallel()

		g := New()
		g.UpsertHub(Hub{
			ID: "H", Name: "Stratford", Lat: 51.54, Lon: -0.003,
			Modes: []string{"tube"}, Lines: []string{"Lm"},
			ConstituentStations: []Station{{Name: "X1", NaptanID: "X1"}},
			PrimaryNaptanID:     "X1",
		})
		g.UpsertHub(Hub{
			ID:    "H",
			Modes: []string{"overground"}, Lines: []string{"Lo"},
			ConstituentStations: []Station{{Name: "X2", NaptanID: "X2"}},
		})
		g.UpsertHub(Hub{
			ID:    "H",
			Modes: []string{"tube"}, Lines: []string{"Lm"},
			ConstituentStations: []Station{{Name: "X3", NaptanID: "X3"}},
		})

		require.Equal(t, 1, g.NumHubs())
		h, ok := g.Hub("H")
		require.True(t, ok)
		require.Equal(t, "Stratford", h.Name)
		require.ElementsMatch(t, []string{"tube", "overground"}, h.Modes)
		require.ElementsMatch(t, []string{"Lm", "Lo"}, h.Lines)
		require.Len(t, h.ConstituentStations, 3)
		require.Equal(t, "X1", h.PrimaryNaptanID)
	})

	t.Run("does not duplicate constituents", func(t *testing.T) {
		t.Parallel()

		g := New()
		g.UpsertHub(Hub{ID: "H", ConstituentStations: []Station{{NaptanID: "X1"}}})
		g.UpsertHub(Hub{ID: "H", ConstituentStations: []Station{{NaptanID: "X1"}}})
		h, _ := g.Hub("H")
		require.Len(t, h.ConstituentStations, 1)
	})

	t.Run("keeps first coordinates and fills missing zone", func(t *testing.T) {
		t.Parallel()

		zone := "2"
		g := New()
		g.UpsertHub(Hub{ID: "H", Lat: 51.5, Lon: -0.1})
		g.UpsertHub(Hub{ID: "H", Lat: 99, Lon: 99, Zone: &zone})
		h, _ := g.Hub("H")
		require.Equal(t, 51.5, h.Lat)
		require.Equal(t, -0.1, h.Lon)
		require.NotNil(t, h.Zone)
		require.Equal(t, "2", *h.Zone)
	})
}

func TestMidpoint_Graph_Edges(t *testing.T) {
	t.Parallel()

	newPair := func() *Graph {
		g := New()
		g.UpsertHub(Hub{ID: "A"})
		g.UpsertHub(Hub{ID: "B"})
		return g
	}

	t.Run("add is idempotent per triple", func(t *testing.T) {
		t.Parallel()

		g := newPair()
		added, err := g.AddEdge(Edge{Source: "A", Target: "B", Key: "central", Line: "central"})
		require.NoError(t, err)
		require.True(t, added)
		added, err = g.AddEdge(Edge{Source: "A", Target: "B", Key: "central", Line: "central"})
		require.NoError(t, err)
		require.False(t, added)
		require.Equal(t, 1, g.NumEdges())
	})

	t.Run("parallel lines stay distinct", func(t *testing.T) {
		t.Parallel()

		g := newPair()
		_, err := g.AddEdge(Edge{Source: "A", Target: "B", Key: "central"})
		require.NoError(t, err)
		_, err = g.AddEdge(Edge{Source: "A", Target: "B", Key: "victoria"})
		require.NoError(t, err)
		require.Equal(t, 2, g.NumEdges())
	})

	t.Run("rejects edges with unknown endpoints", func(t *testing.T) {
		t.Parallel()

		g := newPair()
		_, err := g.AddEdge(Edge{Source: "A", Target: "Z", Key: "central"})
		require.Error(t, err)
	})

	t.Run("line edge lookup ignores transfers and direction", func(t *testing.T) {
		t.Parallel()

		g := newPair()
		_, err := g.AddEdge(Edge{Source: "B", Target: "A", Key: "central"})
		require.NoError(t, err)
		require.True(t, g.HasLineEdge("A", "B"))

		g2 := newPair()
		_, err = g2.AddEdge(Edge{Source: "A", Target: "B", Key: TransferKey, Transfer: true})
		require.NoError(t, err)
		require.False(t, g2.HasLineEdge("A", "B"))
	})

	t.Run("set weight on existing triple only", func(t *testing.T) {
		t.Parallel()

		g := newPair()
		_, err := g.AddEdge(Edge{Source: "A", Target: "B", Key: "central"})
		require.NoError(t, err)
		require.True(t, g.SetEdgeWeight("A", "B", "central", Float64(2.5)))
		require.False(t, g.SetEdgeWeight("B", "A", "central", Float64(2.5)))
		e, ok := g.Edge("A", "B", "central")
		require.True(t, ok)
		require.NotNil(t, e.Weight)
		require.Equal(t, 2.5, *e.Weight)
	})
}

func TestMidpoint_Graph_NodeLink(t *testing.T) {
	t.Parallel()

	build := func() *Graph {
		g := New()
		zone := "1"
		g.UpsertHub(Hub{
			ID: "HUBB", Name: "Bank", Lat: 51.513, Lon: -0.089, Zone: &zone,
			Modes: []string{"tube"}, Lines: []string{"central", "northern"},
			ConstituentStations: []Station{{Name: "Bank", NaptanID: "940GZZLUBNK"}},
			PrimaryNaptanID:     "940GZZLUBNK",
		})
		g.UpsertHub(Hub{ID: "HUBL", Name: "Liverpool Street", Lat: 51.517, Lon: -0.082})
		_, _ = g.AddEdge(Edge{
			Source: "HUBB", Target: "HUBL", Key: "central", Line: "central",
			LineName: "Central", Mode: "tube", Direction: "outbound", Weight: Float64(2.0),
		})
		_, _ = g.AddEdge(Edge{
			Source: "HUBB", Target: "HUBL", Key: TransferKey, Line: "walking",
			Mode: "walking", Transfer: true,
		})
		return g
	}

	t.Run("roundtrip preserves hubs and edges", func(t *testing.T) {
		t.Parallel()

		g := build()
		data, err := g.MarshalNodeLink()
		require.NoError(t, err)

		got, err := UnmarshalNodeLink(data)
		require.NoError(t, err)
		require.Equal(t, g.Hubs(), got.Hubs())
		require.Equal(t, g.Edges(), got.Edges())

		e, ok := got.Edge("HUBB", "HUBL", TransferKey)
		require.True(t, ok)
		require.True(t, e.Transfer)
		require.Nil(t, e.Weight)
	})

	t.Run("encoding is deterministic", func(t *testing.T) {
		t.Parallel()

		a, err := build().MarshalNodeLink()
		require.NoError(t, err)
		b, err := build().MarshalNodeLink()
		require.NoError(t, err)
		require.Equal(t, a, b)
	})

	t.Run("rejects non-multigraph documents", func(t *testing.T) {
		t.Parallel()

		_, err := UnmarshalNodeLink([]byte(`{"directed":true,"multigraph":false,"graph":{},"nodes":[],"links":[]}`))
		require.Error(t, err)
	})
}

func TestMidpoint_Graph_Haversine(t *testing.T) {
	t.Parallel()

	t.Run("symmetric", func(t *testing.T) {
		t.Parallel()
		d1 := Haversine(51.516, -0.176, 51.504, -0.019)
		d2 := Haversine(51.504, -0.019, 51.516, -0.176)
		require.InDelta(t, d1, d2, 1e-12)
	})

	t.Run("ladbroke grove to canary wharf is about 11 km", func(t *testing.T) {
		t.Parallel()
		d := Haversine(51.516, -0.176, 51.504, -0.019)
		require.InDelta(t, 11.0, d, 0.5)
	})

	t.Run("zero distance to itself", func(t *testing.T) {
		t.Parallel()
		require.InDelta(t, 0, Haversine(51.5, -0.1, 51.5, -0.1), 1e-12)
	})
}
