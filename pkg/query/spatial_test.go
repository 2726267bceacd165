package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/midpoint-labs/midpoint/pkg/graph"
)

func hubAt(id string, lat, lon float64) graph.Hub {
	return graph.Hub{ID: id, Name: id, Lat: lat, Lon: lon}
}

func hubIDs(hubs []graph.Hub) []string {
	out := make([]string, len(hubs))
	for i, h := range hubs {
		out[i] = h.ID
	}
	return out
}

func TestMidpoint_Spatial_Ellipse(t *testing.T) {
	t.Parallel()

	ladbrokeGrove := hubAt("HUBLG", 51.516, -0.176)
	canaryWharf := hubAt("HUBCW", 51.504, -0.019)

	t.Run("hub near a focus qualifies", func(t *testing.T) {
		t.Parallel()

		inside := ellipsePredicate(ladbrokeGrove, canaryWharf)
		// Paddington: the focal-distance sum is well under 1.2x the
		// inter-focal distance.
		require.True(t, inside(51.517, -0.176))
	})

	t.Run("hub far off the axis is rejected", func(t *testing.T) {
		t.Parallel()

		inside := ellipsePredicate(ladbrokeGrove, canaryWharf)
		require.False(t, inside(51.6, -0.5))
	})

	t.Run("boundary hubs within tolerance qualify", func(t *testing.T) {
		t.Parallel()

		a := hubAt("HUBA", 51.50, -0.20)
		b := hubAt("HUBB", 51.50, 0.00)
		inside := ellipsePredicate(a, b)

		// A hub a touch beyond the strict boundary but within half a
		// percent of the major axis.
		lat, lon := 51.5416, -0.10
		major := 1.2 * graph.Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
		sum := graph.Haversine(lat, lon, a.Lat, a.Lon) + graph.Haversine(lat, lon, b.Lat, b.Lon)
		require.Greater(t, sum, major)
		require.LessOrEqual(t, sum, major*1.005)
		require.True(t, inside(lat, lon))

		// Beyond the tolerance band the hub is still rejected.
		require.False(t, inside(51.56, -0.10))
	})

	t.Run("both foci always qualify", func(t *testing.T) {
		t.Parallel()

		inside := ellipsePredicate(ladbrokeGrove, canaryWharf)
		require.True(t, inside(ladbrokeGrove.Lat, ladbrokeGrove.Lon))
		require.True(t, inside(canaryWharf.Lat, canaryWharf.Lon))
	})
}

func TestMidpoint_Spatial_Hull(t *testing.T) {
	t.Parallel()

	triangle := []graph.Hub{
		hubAt("HUB1", 51.50, -0.20),
		hubAt("HUB2", 51.50, -0.05),
		hubAt("HUB3", 51.56, -0.12),
	}

	t.Run("interior hub is inside the buffered hull", func(t *testing.T) {
		t.Parallel()

		inside := regionPredicate(triangle)
		require.True(t, inside(51.52, -0.12))
	})

	t.Run("exterior hub is outside", func(t *testing.T) {
		t.Parallel()

		inside := regionPredicate(triangle)
		require.False(t, inside(51.40, -0.12))
		require.False(t, inside(51.52, -0.30))
	})

	t.Run("hull vertices stay inside after buffering", func(t *testing.T) {
		t.Parallel()

		inside := regionPredicate(triangle)
		for _, h := range triangle {
			require.True(t, inside(h.Lat, h.Lon), h.ID)
		}
	})

	t.Run("collinear starts fall back to the extreme-point ellipse", func(t *testing.T) {
		t.Parallel()

		line := []graph.Hub{
			hubAt("HUB1", 51.50, -0.20),
			hubAt("HUB2", 51.50, -0.12),
			hubAt("HUB3", 51.50, -0.05),
		}
		inside := regionPredicate(line)
		require.True(t, inside(51.50, -0.12))
		require.False(t, inside(51.80, -0.12))
	})
}

func TestMidpoint_Spatial_Coverage(t *testing.T) {
	t.Parallel()

	t.Run("two starts shrink to the middle ground", func(t *testing.T) {
		t.Parallel()

		a := hubAt("HUBA", 51.50, -0.10)
		b := hubAt("HUBB", 51.50, -0.14)
		center, radius := coverageCircle([]graph.Hub{a, b})

		require.InDelta(t, 51.50, center.lat, 1e-9)
		require.InDelta(t, -0.12, center.lon, 1e-9)

		d := graph.Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
		require.InDelta(t, 0.7*d/2, radius, 1e-9)
		// The circle excludes the starts themselves.
		require.Greater(t, graph.Haversine(a.Lat, a.Lon, center.lat, center.lon), radius)
	})

	t.Run("at least seventy percent of starts are enclosed", func(t *testing.T) {
		t.Parallel()

		starts := []graph.Hub{
			hubAt("HUB1", 51.50, -0.10),
			hubAt("HUB2", 51.51, -0.11),
			hubAt("HUB3", 51.52, -0.12),
			hubAt("HUB4", 51.53, -0.13),
			hubAt("HUB5", 51.70, -0.40), // far outlier
		}
		center, radius := coverageCircle(starts)

		enclosed := 0
		for _, s := range starts {
			if graph.Haversine(s.Lat, s.Lon, center.lat, center.lon) <= radius {
				enclosed++
			}
		}
		require.GreaterOrEqual(t, float64(enclosed), 0.7*float64(len(starts)))
		// The outlier is not what sets the radius.
		require.Less(t, radius, graph.Haversine(51.70, -0.40, center.lat, center.lon))
	})
}

func TestMidpoint_Spatial_Candidates(t *testing.T) {
	t.Parallel()

	t.Run("start hubs are always candidates", func(t *testing.T) {
		t.Parallel()

		starts := []graph.Hub{
			hubAt("HUBA", 51.50, -0.10),
			hubAt("HUBB", 51.50, -0.14),
		}
		// Both starts sit outside their own coverage circle, yet they
		// must remain in the candidate set.
		got := candidateHubs(starts, starts)
		require.ElementsMatch(t, []string{"HUBA", "HUBB"}, hubIDs(got))
	})

	t.Run("ellipse and coverage intersect for non-start hubs", func(t *testing.T) {
		t.Parallel()

		starts := []graph.Hub{
			hubAt("HUBA", 51.50, -0.10),
			hubAt("HUBB", 51.50, -0.14),
		}
		all := append([]graph.Hub{
			// middle ground; inside ellipse but outside coverage;
			// outside both.
			hubAt("HUBMID", 51.50, -0.12),
			hubAt("HUBNEARA", 51.50, -0.101),
			hubAt("HUBFAR", 51.60, -0.50),
		}, starts...)

		got := hubIDs(candidateHubs(starts, all))
		require.Contains(t, got, "HUBMID")
		require.Contains(t, got, "HUBA")
		require.Contains(t, got, "HUBB")
		require.NotContains(t, got, "HUBNEARA")
		require.NotContains(t, got, "HUBFAR")
	})

	t.Run("every start of a large group remains a candidate", func(t *testing.T) {
		t.Parallel()

		starts := []graph.Hub{
			hubAt("HUB1", 51.50, -0.20),
			hubAt("HUB2", 51.50, -0.05),
			hubAt("HUB3", 51.56, -0.12),
			hubAt("HUB4", 51.53, -0.25),
		}
		got := hubIDs(candidateHubs(starts, starts))
		require.ElementsMatch(t, []string{"HUB1", "HUB2", "HUB3", "HUB4"}, got)
	})
}
