// Package build implements the eight-stage offline pipeline that turns
// provider line sequences, timetables and journey-planner results into the
// weighted hub multigraph consumed by the query engine.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/midpoint-labs/midpoint/pkg/graph"
)

// ErrValidation is returned when the stage-7 gate rejects the collected
// weights. The final artifact is not written.
var ErrValidation = errors.New("weight validation failed")

// ErrTooManyMalformed is returned when more than the allowed fraction of a
// stage's records are malformed.
var ErrTooManyMalformed = errors.New("too many malformed records")

// Config holds build pipeline configuration.
type Config struct {
	Logger   *slog.Logger
	Provider Provider
	Clock    clockwork.Clock

	// DataDir receives all stage artifacts.
	DataDir string

	ProximityRadiusM  int     // transfer search radius, default 250
	SequenceWorkers   int     // default 8
	JourneyWorkers    int     // default 8
	TimetableWorkers  int     // default 2
	MalformedFraction float64 // per-stage halt threshold, default 0.01

	// KeepNullTransfers leaves unweightable transfer edges in the final
	// artifact instead of pruning them.
	KeepNullTransfers bool
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Provider == nil {
		return fmt.Errorf("provider is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	return nil
}

// Pipeline runs the graph construction stages in order.
type Pipeline struct {
	log      *slog.Logger
	cfg      Config
	provider Provider
	clock    clockwork.Clock
	runID    string
}

// New builds a pipeline from the configuration.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid build config: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ProximityRadiusM <= 0 {
		cfg.ProximityRadiusM = 250
	}
	if cfg.SequenceWorkers <= 0 {
		cfg.SequenceWorkers = 8
	}
	if cfg.JourneyWorkers <= 0 {
		cfg.JourneyWorkers = 8
	}
	if cfg.TimetableWorkers <= 0 {
		cfg.TimetableWorkers = 2
	}
	if cfg.MalformedFraction <= 0 {
		cfg.MalformedFraction = 0.01
	}

	runID := uuid.NewString()
	return &Pipeline{
		log:      cfg.Logger.With("run_id", runID),
		cfg:      cfg,
		provider: cfg.Provider,
		clock:    cfg.Clock,
		runID:    runID,
	}, nil
}

func (p *Pipeline) path(name string) string {
	return filepath.Join(p.cfg.DataDir, name)
}

// Run executes stages 1 through 8. On any error no further artifacts are
// written; already-published artifacts from completed stages remain.
func (p *Pipeline) Run(ctx context.Context) error {
	start := p.clock.Now()
	p.log.Info("build started", "data_dir", p.cfg.DataDir)

	g, pairs, err := p.runConstruction(ctx)
	if err != nil {
		return err
	}

	records, err := p.runWeighting(ctx, g)
	if err != nil {
		return err
	}

	if err := p.runGate(ctx, g, records); err != nil {
		return err
	}

	p.log.Info("build finished",
		"elapsed", p.clock.Since(start).Round(time.Millisecond),
		"hubs", g.NumHubs(), "edges", g.NumEdges(), "transfer_pairs", len(pairs))
	return nil
}

// runConstruction covers stages 1-3: base graph, proximity transfers,
// transfer weights.
func (p *Pipeline) runConstruction(ctx context.Context) (*graph.Graph, []TransferPair, error) {
	g, err := runStage(p, ctx, 1, "base hub graph", func(ctx context.Context) (*graph.Graph, error) {
		g, err := p.buildBaseGraph(ctx)
		if err != nil {
			return nil, err
		}
		if err := writeGraph(p.path(fileBaseGraph), g); err != nil {
			return nil, err
		}
		if err := writeJSON(p.path(fileTerminals), terminalStations); err != nil {
			return nil, err
		}
		return g, nil
	})
	if err != nil {
		return nil, nil, err
	}

	pairs, err := runStage(p, ctx, 2, "proximity transfers", func(ctx context.Context) ([]TransferPair, error) {
		pairs, err := p.addProximityTransfers(ctx, g)
		if err != nil {
			return nil, err
		}
		if err := writeGraph(p.path(fileTransferGraph), g); err != nil {
			return nil, err
		}
		if err := writeJSON(p.path(fileTransferPairs), pairs); err != nil {
			return nil, err
		}
		return pairs, nil
	})
	if err != nil {
		return nil, nil, err
	}

	_, err = runStage(p, ctx, 3, "transfer weights", func(ctx context.Context) (struct{}, error) {
		if err := p.calculateTransferWeights(ctx, g, pairs); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, writeGraph(p.path(fileWeightedGraph), g)
	})
	if err != nil {
		return nil, nil, err
	}
	return g, pairs, nil
}

// runWeighting covers stages 4-6: timetable fetch, timetable-derived
// weights, journey-derived weights.
func (p *Pipeline) runWeighting(ctx context.Context, g *graph.Graph) ([]WeightRecord, error) {
	timetables, err := runStage(p, ctx, 4, "timetable fetch", func(ctx context.Context) (map[string]*LineTimetables, error) {
		return p.fetchTimetables(ctx)
	})
	if err != nil {
		return nil, err
	}

	records, err := runStage(p, ctx, 5, "timetable weights", func(ctx context.Context) ([]WeightRecord, error) {
		return p.calculateTimetableWeights(ctx, g, timetables)
	})
	if err != nil {
		return nil, err
	}

	journeyRecords, err := runStage(p, ctx, 6, "journey weights", func(ctx context.Context) ([]WeightRecord, error) {
		return p.calculateJourneyWeights(ctx, g, records)
	})
	if err != nil {
		return nil, err
	}
	records = append(records, journeyRecords...)

	if err := writeJSON(p.path(fileWeights), records); err != nil {
		return nil, err
	}
	return records, nil
}

// runGate covers stages 7-8: validation and the final merge.
func (p *Pipeline) runGate(ctx context.Context, g *graph.Graph, records []WeightRecord) error {
	report, err := runStage(p, ctx, 7, "validation gate", func(ctx context.Context) (*ValidationReport, error) {
		report := validateWeights(g, records)
		if err := writeJSON(p.path(fileValidation), report); err != nil {
			return nil, err
		}
		return report, nil
	})
	if err != nil {
		return err
	}
	if !report.OK() {
		p.log.Error("validation gate failed",
			"problems", report.ProblemCount(), "report", p.path(fileValidation))
		return fmt.Errorf("%d problems, see %s: %w",
			report.ProblemCount(), p.path(fileValidation), ErrValidation)
	}

	_, err = runStage(p, ctx, 8, "graph merge", func(ctx context.Context) (struct{}, error) {
		final, err := p.mergeWeights(g, records)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, writeGraph(p.path(fileFinalGraph), final)
	})
	return err
}

// runStage wraps one stage with cancellation checks and duration logging.
func runStage[T any](p *Pipeline, ctx context.Context, n int, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("stage %d (%s) cancelled: %w", n, name, err)
	}
	log := p.log.With("stage", n)
	log.Info("stage started", "name", name)
	start := p.clock.Now()
	out, err := fn(ctx)
	if err != nil {
		return zero, fmt.Errorf("stage %d (%s): %w", n, name, err)
	}
	log.Info("stage finished", "name", name, "elapsed", p.clock.Since(start).Round(time.Millisecond))
	return out, nil
}

// malformedCounter tracks the fraction of bad sub-records within a stage.
type malformedCounter struct {
	total atomic.Int64
	bad   atomic.Int64
}

func (m *malformedCounter) ok()        { m.total.Add(1) }
func (m *malformedCounter) malformed() { m.total.Add(1); m.bad.Add(1) }

func (m *malformedCounter) check(threshold float64) error {
	total := m.total.Load()
	bad := m.bad.Load()
	if total == 0 || float64(bad)/float64(total) <= threshold {
		return nil
	}
	return fmt.Errorf("%d of %d records malformed: %w", bad, total, ErrTooManyMalformed)
}
