package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func lineEdge(src, dst, line string, w float64) Edge {
	return Edge{Source: src, Target: dst, Key: line, Line: line, Mode: "tube", Weight: Float64(w)}
}

func transferEdge(src, dst string, w float64) Edge {
	return Edge{Source: src, Target: dst, Key: TransferKey, Line: "walking", Mode: "walking", Transfer: true, Weight: Float64(w)}
}

func buildGraph(t *testing.T, hubs []string, edges []Edge) *Graph {
	t.Helper()
	g := New()
	for _, h := range hubs {
		g.UpsertHub(Hub{ID: h})
	}
	for _, e := range edges {
		_, err := g.AddEdge(e)
		require.NoError(t, err)
	}
	return g
}

func TestMidpoint_Dijkstra_ChangePenalty(t *testing.T) {
	t.Parallel()

	t.Run("penalised direct route loses to longer single-line route", func(t *testing.T) {
		t.Parallel()

		g := buildGraph(t, []string{"A", "B", "C", "D"}, []Edge{
			lineEdge("A", "B", "L1", 3),
			lineEdge("B", "C", "L2", 4),
			lineEdge("A", "D", "L1", 10),
			lineEdge("D", "C", "L1", 1),
		})

		cost, hops, err := g.ShortestPath("A", "C")
		require.NoError(t, err)
		require.Equal(t, 11.0, cost)
		require.Equal(t, []PathHop{{Hub: "A"}, {Hub: "D", Line: "L1"}, {Hub: "C", Line: "L1"}}, hops)
	})

	t.Run("same line has no penalty", func(t *testing.T) {
		t.Parallel()

		g := buildGraph(t, []string{"A", "B", "C"}, []Edge{
			lineEdge("A", "B", "L1", 3),
			lineEdge("B", "C", "L1", 4),
		})
		cost, _, err := g.ShortestPath("A", "C")
		require.NoError(t, err)
		require.Equal(t, 7.0, cost)
	})

	t.Run("distinct consecutive lines cost five extra", func(t *testing.T) {
		t.Parallel()

		g := buildGraph(t, []string{"A", "B", "C"}, []Edge{
			lineEdge("A", "B", "L1", 3),
			lineEdge("B", "C", "L2", 4),
		})
		cost, _, err := g.ShortestPath("A", "C")
		require.NoError(t, err)
		require.Equal(t, 12.0, cost)
	})

	t.Run("transfer-only path incurs no penalty", func(t *testing.T) {
		t.Parallel()

		g := buildGraph(t, []string{"A", "B", "C"}, []Edge{
			transferEdge("A", "B", 2),
			transferEdge("B", "C", 2),
		})
		cost, _, err := g.ShortestPath("A", "C")
		require.NoError(t, err)
		require.Equal(t, 4.0, cost)
	})

	t.Run("transfer between distinct lines absorbs the penalty", func(t *testing.T) {
		t.Parallel()

		g := buildGraph(t, []string{"A", "B", "C", "D"}, []Edge{
			lineEdge("A", "B", "L1", 3),
			transferEdge("B", "C", 2),
			lineEdge("C", "D", "L2", 4),
		})
		cost, _, err := g.ShortestPath("A", "D")
		require.NoError(t, err)
		require.Equal(t, 9.0, cost)
	})

	t.Run("first boarding is free", func(t *testing.T) {
		t.Parallel()

		g := buildGraph(t, []string{"A", "B"}, []Edge{lineEdge("A", "B", "L1", 3)})
		cost, _, err := g.ShortestPath("A", "B")
		require.NoError(t, err)
		require.Equal(t, 3.0, cost)
	})
}

func TestMidpoint_Dijkstra_AllCosts(t *testing.T) {
	t.Parallel()

	t.Run("returns minimum over incoming lines", func(t *testing.T) {
		t.Parallel()

		g := buildGraph(t, []string{"A", "B", "C", "D"}, []Edge{
			lineEdge("A", "B", "L1", 3),
			lineEdge("B", "C", "L2", 4),
			lineEdge("A", "D", "L1", 10),
			lineEdge("D", "C", "L1", 1),
		})
		costs, err := g.AllCosts("A")
		require.NoError(t, err)
		require.Equal(t, 0.0, costs["A"])
		require.Equal(t, 3.0, costs["B"])
		require.Equal(t, 11.0, costs["C"])
		require.Equal(t, 10.0, costs["D"])
	})

	t.Run("unreachable hubs are absent", func(t *testing.T) {
		t.Parallel()

		g := buildGraph(t, []string{"A", "B", "Z"}, []Edge{lineEdge("A", "B", "L1", 3)})
		costs, err := g.AllCosts("A")
		require.NoError(t, err)
		_, ok := costs["Z"]
		require.False(t, ok)
	})

	t.Run("edges without weight are ignored", func(t *testing.T) {
		t.Parallel()

		g := buildGraph(t, []string{"A", "B"}, []Edge{
			{Source: "A", Target: "B", Key: "L1", Line: "L1"},
		})
		costs, err := g.AllCosts("A")
		require.NoError(t, err)
		_, ok := costs["B"]
		require.False(t, ok)
	})

	t.Run("unknown start hub errors", func(t *testing.T) {
		t.Parallel()

		g := New()
		_, err := g.AllCosts("missing")
		require.Error(t, err)
	})
}

func TestMidpoint_Dijkstra_NoPath(t *testing.T) {
	t.Parallel()

	g := buildGraph(t, []string{"A", "B"}, nil)
	_, _, err := g.ShortestPath("A", "B")
	require.ErrorIs(t, err, ErrNoPath)
}
