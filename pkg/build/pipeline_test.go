package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/midpoint-labs/midpoint/pkg/testutil"
	"github.com/midpoint-labs/midpoint/pkg/tfl"
)

// worldProvider simulates a tiny network: victoria (tube) A-B and windrush
// (overground) B-C. Everything else is absent.
func worldProvider(overgroundMinutes int) *fakeProvider {
	stopA := seqStop("940GA", "Alpha Underground Station", "HUBA", 51.50, -0.10, []string{"tube"}, "victoria")
	stopB := seqStop("940GB", "Beta Underground Station", "HUBB", 51.51, -0.11, []string{"tube", "overground"}, "victoria", "windrush")
	stopC := seqStop("910GC", "Gamma Rail Station", "HUBC", 51.52, -0.12, []string{"overground"}, "windrush")

	return &fakeProvider{
		routeSequence: func(ctx context.Context, lineID, direction string) (*tfl.RouteSequence, error) {
			switch {
			case lineID == "victoria" && direction == "inbound":
				return sequenceOf(lineID, direction, stopA, stopB), nil
			case lineID == "victoria" && direction == "outbound":
				return sequenceOf(lineID, direction, stopB, stopA), nil
			case lineID == "windrush" && direction == "inbound":
				return sequenceOf(lineID, direction, stopB, stopC), nil
			case lineID == "windrush" && direction == "outbound":
				return sequenceOf(lineID, direction, stopC, stopB), nil
			}
			return nil, tfl.ErrNotFound
		},
		timetable: func(ctx context.Context, lineID, fromStopID string) (*tfl.TimetableResponse, error) {
			if lineID != "victoria" {
				return nil, tfl.ErrNotFound
			}
			// One terminal rooted at each end covers both directions.
			departure, next := "940GA", "940GB"
			if fromStopID == "940GZZLUBXN" {
				departure, next = "940GB", "940GA"
			}
			return &tfl.TimetableResponse{
				LineID: "victoria",
				Timetable: tfl.Timetable{
					DepartureStopID: departure,
					Routes: []tfl.TimetableRoute{{
						StationIntervals: []tfl.StationIntervals{{
							ID:        "0",
							Intervals: []tfl.StationInterval{{StopID: next, TimeToArrival: 2}},
						}},
					}},
				},
			}, nil
		},
		planJourneys: func(ctx context.Context, from, to string, opts tfl.JourneyOptions) ([]tfl.Journey, error) {
			if opts.Mode == ModeOverground {
				return []tfl.Journey{{
					Duration: overgroundMinutes,
					Legs: []tfl.JourneyLeg{{
						Mode:         tfl.ModeRef{ID: "overground"},
						RouteOptions: []tfl.RouteOption{{LineIdentifier: &tfl.LineRef{ID: "windrush"}}},
					}},
				}}, nil
			}
			return nil, tfl.ErrNoJourney
		},
	}
}

func TestMidpoint_Build_Pipeline(t *testing.T) {
	t.Parallel()

	t.Run("full run produces a weighted final graph", func(t *testing.T) {
		t.Parallel()

		dataDir := t.TempDir()
		p, err := New(Config{
			Logger:   testutil.NewLogger(),
			Provider: worldProvider(7),
			DataDir:  dataDir,
		})
		require.NoError(t, err)
		require.NoError(t, p.Run(context.Background()))

		for _, name := range []string{
			fileBaseGraph, fileTransferGraph, fileTransferPairs,
			fileWeightedGraph, fileWeights, fileValidation, fileFinalGraph, fileTerminals,
		} {
			_, err := os.Stat(filepath.Join(dataDir, name))
			require.NoError(t, err, "artifact %s", name)
		}

		final, err := ReadGraph(filepath.Join(dataDir, fileFinalGraph))
		require.NoError(t, err)
		require.Equal(t, 3, final.NumHubs())

		ab, ok := final.Edge("HUBA", "HUBB", "victoria")
		require.True(t, ok)
		require.Equal(t, 2.0, *ab.Weight)
		ba, ok := final.Edge("HUBB", "HUBA", "victoria")
		require.True(t, ok)
		require.Equal(t, 2.0, *ba.Weight)
		bc, ok := final.Edge("HUBB", "HUBC", "windrush")
		require.True(t, ok)
		require.Equal(t, 7.0, *bc.Weight)

		// No non-transfer edge may remain unweighted.
		for _, e := range final.Edges() {
			if !e.Transfer {
				require.NotNil(t, e.Weight, "edge %s -> %s [%s]", e.Source, e.Target, e.Key)
			}
		}
	})

	t.Run("validation failure halts before the final artifact", func(t *testing.T) {
		t.Parallel()

		dataDir := t.TempDir()
		p, err := New(Config{
			Logger:   testutil.NewLogger(),
			Provider: worldProvider(250), // beyond the duration ceiling
			DataDir:  dataDir,
		})
		require.NoError(t, err)

		err = p.Run(context.Background())
		require.ErrorIs(t, err, ErrValidation)

		_, statErr := os.Stat(filepath.Join(dataDir, fileFinalGraph))
		require.True(t, os.IsNotExist(statErr))
		_, statErr = os.Stat(filepath.Join(dataDir, fileValidation))
		require.NoError(t, statErr, "the diff report is still published")
	})

	t.Run("cancelled context aborts between stages", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p, err := New(Config{
			Logger:   testutil.NewLogger(),
			Provider: worldProvider(7),
			DataDir:  t.TempDir(),
		})
		require.NoError(t, err)
		require.Error(t, p.Run(ctx))
	})

	t.Run("config requires logger, provider and data dir", func(t *testing.T) {
		t.Parallel()

		_, err := New(Config{Provider: &fakeProvider{}, DataDir: "x"})
		require.Error(t, err)
		_, err = New(Config{Logger: testutil.NewLogger(), DataDir: "x"})
		require.Error(t, err)
		_, err = New(Config{Logger: testutil.NewLogger(), Provider: &fakeProvider{}})
		require.Error(t, err)
	})

	t.Run("graph artifacts reload cleanly", func(t *testing.T) {
		t.Parallel()

		dataDir := t.TempDir()
		p, err := New(Config{
			Logger:   testutil.NewLogger(),
			Provider: worldProvider(7),
			DataDir:  dataDir,
		})
		require.NoError(t, err)
		require.NoError(t, p.Run(context.Background()))

		base, err := ReadGraph(filepath.Join(dataDir, fileBaseGraph))
		require.NoError(t, err)
		for _, e := range base.Edges() {
			require.Nil(t, e.Weight)
		}

		var pairs []TransferPair
		require.NoError(t, readJSON(filepath.Join(dataDir, fileTransferPairs), &pairs))
		require.Empty(t, pairs)

		var records []WeightRecord
		require.NoError(t, readJSON(filepath.Join(dataDir, fileWeights), &records))
		require.Len(t, records, 4)

		g, ok := base.Hub("HUBB")
		require.True(t, ok)
		require.ElementsMatch(t, []string{"victoria", "windrush"}, g.Lines)
	})
}
