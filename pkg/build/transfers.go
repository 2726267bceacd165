package build

import (
	"context"
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/midpoint-labs/midpoint/pkg/graph"
	"github.com/midpoint-labs/midpoint/pkg/tfl"
)

// addProximityTransfers runs stage 2: for every hub, search for rail and
// metro stops within the proximity radius and add null-weighted walking
// transfer edges to nearby hubs that have no direct line connection.
// Returns the unordered hub pairs for stage 3 to weight.
func (p *Pipeline) addProximityTransfers(ctx context.Context, g *graph.Graph) ([]TransferPair, error) {
	var (
		mu    sync.Mutex
		pairs = make(map[[2]string]struct{})
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.cfg.SequenceWorkers)

	for _, hub := range g.Hubs() {
		eg.Go(func() error {
			stops, err := p.provider.StopsNear(egCtx, hub.Lat, hub.Lon, p.cfg.ProximityRadiusM)
			if err != nil {
				if errors.Is(err, tfl.ErrNotFound) {
					return nil
				}
				return err
			}
			for _, stop := range stops {
				if stop.Distance > float64(p.cfg.ProximityRadiusM) {
					continue
				}
				otherID := stop.HubID()
				if otherID == hub.ID {
					continue
				}
				// Stops whose hub is not in the graph are
				// national-rail-only; they carry no usable edges.
				if !g.HasHub(otherID) {
					continue
				}
				if g.HasLineEdge(hub.ID, otherID) {
					continue
				}
				if err := addTransferEdges(g, hub.ID, otherID); err != nil {
					return err
				}
				key := orderPair(hub.ID, otherID)
				mu.Lock()
				pairs[key] = struct{}{}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]TransferPair, 0, len(pairs))
	for key := range pairs {
		a, _ := g.Hub(key[0])
		b, _ := g.Hub(key[1])
		out = append(out, TransferPair{
			A:        key[0],
			B:        key[1],
			APrimary: a.PrimaryNaptanID,
			BPrimary: b.PrimaryNaptanID,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})

	p.log.Info("proximity transfers added", "pairs", len(out))
	return out, nil
}

func addTransferEdges(g *graph.Graph, a, b string) error {
	for _, dir := range [][2]string{{a, b}, {b, a}} {
		if _, err := g.AddEdge(graph.Edge{
			Source:   dir[0],
			Target:   dir[1],
			Key:      graph.TransferKey,
			Line:     "walking",
			Mode:     "walking",
			Transfer: true,
		}); err != nil {
			return err
		}
	}
	return nil
}

func orderPair(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}
