package build

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/midpoint-labs/midpoint/pkg/graph"
	"github.com/midpoint-labs/midpoint/pkg/tfl"
)

// calculateTransferWeights runs stage 3: ask the journey planner for the
// walking duration of every recorded transfer pair and write it to both
// directed transfer edges. Pairs the planner cannot route stay null and are
// handled by the merge policy.
func (p *Pipeline) calculateTransferWeights(ctx context.Context, g *graph.Graph, pairs []TransferPair) error {
	var weighted, missed atomic.Int64

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.cfg.JourneyWorkers)

	for _, pair := range pairs {
		eg.Go(func() error {
			minutes, err := p.provider.JourneyDuration(
				egCtx, pair.APrimary, pair.BPrimary, tfl.JourneyOptions{Mode: "walking"})
			if err != nil {
				if errors.Is(err, tfl.ErrAuth) || errors.Is(err, context.Canceled) {
					return err
				}
				missed.Add(1)
				p.log.Warn("walking journey unavailable, transfer left unweighted",
					"from", pair.APrimary, "to", pair.BPrimary, "error", err)
				return nil
			}
			if minutes <= 0 {
				missed.Add(1)
				p.log.Warn("walking journey returned non-positive duration",
					"from", pair.APrimary, "to", pair.BPrimary, "minutes", minutes)
				return nil
			}
			g.SetEdgeWeight(pair.A, pair.B, graph.TransferKey, graph.Float64(minutes))
			g.SetEdgeWeight(pair.B, pair.A, graph.TransferKey, graph.Float64(minutes))
			weighted.Add(1)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	p.log.Info("transfer weights calculated",
		"weighted", weighted.Load(), "missed", missed.Load())
	return nil
}
