package build

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/midpoint-labs/midpoint/pkg/graph"
	"github.com/midpoint-labs/midpoint/pkg/tfl"
)

func twoHubGraph() *graph.Graph {
	g := graph.New()
	g.UpsertHub(graph.Hub{ID: "HUBP", Name: "Kensington (Olympia)", Lat: 51.501, Lon: -0.225, PrimaryNaptanID: "940GP"})
	g.UpsertHub(graph.Hub{ID: "HUBQ", Name: "West Kensington", Lat: 51.500, Lon: -0.226, PrimaryNaptanID: "940GQ"})
	return g
}

func TestMidpoint_Build_ProximityTransfers(t *testing.T) {
	t.Parallel()

	nearbyStop := func(hubID string) []tfl.StopPoint {
		return []tfl.StopPoint{{
			NaptanID: "940GX", CommonName: "Nearby", Distance: 180,
			HubNaptanCode: hubID, Modes: []string{"tube"},
		}}
	}

	t.Run("adds both directions and records the pair once", func(t *testing.T) {
		t.Parallel()

		g := twoHubGraph()
		provider := &fakeProvider{
			stopsNear: func(ctx context.Context, lat, lon float64, radiusM int) ([]tfl.StopPoint, error) {
				if lat == 51.501 {
					return nearbyStop("HUBQ"), nil
				}
				return nearbyStop("HUBP"), nil
			},
		}

		pairs, err := newTestPipeline(t, provider).addProximityTransfers(context.Background(), g)
		require.NoError(t, err)
		require.Len(t, pairs, 1)
		require.Equal(t, TransferPair{A: "HUBP", B: "HUBQ", APrimary: "940GP", BPrimary: "940GQ"}, pairs[0])

		e, ok := g.Edge("HUBP", "HUBQ", graph.TransferKey)
		require.True(t, ok)
		require.True(t, e.Transfer)
		require.Equal(t, "walking", e.Mode)
		require.Nil(t, e.Weight)
		_, ok = g.Edge("HUBQ", "HUBP", graph.TransferKey)
		require.True(t, ok)
	})

	t.Run("skips pairs already joined by a line edge", func(t *testing.T) {
		t.Parallel()

		g := twoHubGraph()
		_, err := g.AddEdge(graph.Edge{Source: "HUBP", Target: "HUBQ", Key: "district", Line: "district"})
		require.NoError(t, err)

		provider := &fakeProvider{
			stopsNear: func(ctx context.Context, lat, lon float64, radiusM int) ([]tfl.StopPoint, error) {
				if lat == 51.501 {
					return nearbyStop("HUBQ"), nil
				}
				return nearbyStop("HUBP"), nil
			},
		}

		pairs, err := newTestPipeline(t, provider).addProximityTransfers(context.Background(), g)
		require.NoError(t, err)
		require.Empty(t, pairs)
		_, ok := g.Edge("HUBP", "HUBQ", graph.TransferKey)
		require.False(t, ok)
	})

	t.Run("ignores stops outside the radius and unknown hubs", func(t *testing.T) {
		t.Parallel()

		g := twoHubGraph()
		provider := &fakeProvider{
			stopsNear: func(ctx context.Context, lat, lon float64, radiusM int) ([]tfl.StopPoint, error) {
				return []tfl.StopPoint{
					{NaptanID: "940GFAR", HubNaptanCode: "HUBQ", Distance: 400},
					{NaptanID: "910GNR", HubNaptanCode: "HUBNATRAIL", Distance: 100},
				}, nil
			},
		}

		pairs, err := newTestPipeline(t, provider).addProximityTransfers(context.Background(), g)
		require.NoError(t, err)
		require.Empty(t, pairs)
	})
}

func TestMidpoint_Build_TransferWeights(t *testing.T) {
	t.Parallel()

	pair := TransferPair{A: "HUBP", B: "HUBQ", APrimary: "940GP", BPrimary: "940GQ"}

	weightedPairGraph := func(t *testing.T) *graph.Graph {
		t.Helper()
		g := twoHubGraph()
		require.NoError(t, addTransferEdges(g, "HUBP", "HUBQ"))
		return g
	}

	t.Run("writes the walking duration to both directions", func(t *testing.T) {
		t.Parallel()

		g := weightedPairGraph(t)
		provider := &fakeProvider{
			planJourneys: func(ctx context.Context, from, to string, opts tfl.JourneyOptions) ([]tfl.Journey, error) {
				require.Equal(t, "walking", opts.Mode)
				require.Equal(t, "940GP", from)
				require.Equal(t, "940GQ", to)
				return []tfl.Journey{{Duration: 3}}, nil
			},
		}

		err := newTestPipeline(t, provider).calculateTransferWeights(context.Background(), g, []TransferPair{pair})
		require.NoError(t, err)

		ab, _ := g.Edge("HUBP", "HUBQ", graph.TransferKey)
		ba, _ := g.Edge("HUBQ", "HUBP", graph.TransferKey)
		require.NotNil(t, ab.Weight)
		require.NotNil(t, ba.Weight)
		require.Equal(t, 3.0, *ab.Weight)
		require.Equal(t, 3.0, *ba.Weight)
	})

	t.Run("leaves weight null when no journey exists", func(t *testing.T) {
		t.Parallel()

		g := weightedPairGraph(t)
		provider := &fakeProvider{} // default: NoJourney

		err := newTestPipeline(t, provider).calculateTransferWeights(context.Background(), g, []TransferPair{pair})
		require.NoError(t, err)
		ab, _ := g.Edge("HUBP", "HUBQ", graph.TransferKey)
		require.Nil(t, ab.Weight)
	})

	t.Run("auth failure halts the stage", func(t *testing.T) {
		t.Parallel()

		g := weightedPairGraph(t)
		provider := &fakeProvider{
			planJourneys: func(ctx context.Context, from, to string, opts tfl.JourneyOptions) ([]tfl.Journey, error) {
				return nil, tfl.ErrAuth
			},
		}
		err := newTestPipeline(t, provider).calculateTransferWeights(context.Background(), g, []TransferPair{pair})
		require.True(t, errors.Is(err, tfl.ErrAuth))
	})
}
