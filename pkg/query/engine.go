// Package query implements the online meeting-point engine: spatial
// candidate filtering, change-penalty shortest-path estimation and
// provider-refined ranking over the weighted hub graph.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/midpoint-labs/midpoint/pkg/graph"
	"github.com/midpoint-labs/midpoint/pkg/metrics"
	"github.com/midpoint-labs/midpoint/pkg/tfl"
)

// ErrNoMeetingPoint is returned when no candidate hub is reachable by every
// user.
var ErrNoMeetingPoint = errors.New("no viable meeting point")

// Planner supplies door-to-door journey durations for the refinement pass.
type Planner interface {
	JourneyDuration(ctx context.Context, from, to string, opts tfl.JourneyOptions) (float64, error)
}

var _ Planner = (*tfl.Client)(nil)

// Person is one participant: where they start and how long they walk to
// their starting station. StartStationID is the constituent station the
// refinement pass plans journeys from; it defaults to the hub's primary.
type Person struct {
	HubID          string  `json:"hub_id"`
	WalkMinutes    float64 `json:"walk_minutes"`
	StartStationID string  `json:"start_station_id,omitempty"`
}

// Candidate is one ranked meeting point.
type Candidate struct {
	Hub             graph.Hub `json:"hub"`
	PerUserMinutes  []float64 `json:"per_user_minutes"`
	TotalMinutes    float64   `json:"total_minutes"`
	AverageMinutes  float64   `json:"average_minutes"`
	EstimateMinutes float64   `json:"estimate_minutes"`
}

// Result is the engine's answer: the best candidate plus ranked
// alternatives.
type Result struct {
	Best         Candidate   `json:"best"`
	Alternatives []Candidate `json:"alternatives"`
}

// Config holds query engine configuration.
type Config struct {
	Logger  *slog.Logger
	Graph   *graph.Graph
	Planner Planner
	Clock   clockwork.Clock
	Metrics *metrics.Metrics

	TopK          int // candidates refined, default 10
	Alternatives  int // alternatives returned beside the best, default 5
	RefineWorkers int // concurrent refinement calls, default 8
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.Graph == nil {
		return fmt.Errorf("graph is required")
	}
	if c.Planner == nil {
		return fmt.Errorf("planner is required")
	}
	return nil
}

// Engine answers meeting-point queries against a loaded graph.
type Engine struct {
	log     *slog.Logger
	cfg     Config
	graph   *graph.Graph
	planner Planner
	clock   clockwork.Clock
}

// New builds an engine from the configuration.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query config: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.Alternatives <= 0 {
		cfg.Alternatives = 5
	}
	if cfg.RefineWorkers <= 0 {
		cfg.RefineWorkers = 8
	}
	return &Engine{
		log:     cfg.Logger,
		cfg:     cfg,
		graph:   cfg.Graph,
		planner: cfg.Planner,
		clock:   cfg.Clock,
	}, nil
}

// ResolveStart finds a start hub by ID or name (case-insensitive) and
// returns a Person rooted at it. The start station defaults to the hub's
// primary; callers pick a different constituent when the hub has several.
func (e *Engine) ResolveStart(name string, walkMinutes float64) (Person, error) {
	if hub, ok := e.graph.Hub(name); ok {
		return Person{HubID: hub.ID, WalkMinutes: walkMinutes, StartStationID: hub.PrimaryNaptanID}, nil
	}
	for _, hub := range e.graph.Hubs() {
		if strings.EqualFold(hub.Name, name) {
			return Person{HubID: hub.ID, WalkMinutes: walkMinutes, StartStationID: hub.PrimaryNaptanID}, nil
		}
	}
	return Person{}, fmt.Errorf("no station matches %q", name)
}

// Meet finds the best meeting point for the given people: spatial filter,
// per-user shortest-path estimation, then provider-refined ranking of the
// top candidates.
func (e *Engine) Meet(ctx context.Context, people []Person) (*Result, error) {
	start := e.clock.Now()
	defer func() {
		e.cfg.Metrics.ObserveQueryDuration(e.clock.Since(start))
	}()

	if len(people) < 2 {
		return nil, fmt.Errorf("need at least 2 people, got %d", len(people))
	}
	starts := make([]graph.Hub, len(people))
	for i := range people {
		hub, ok := e.graph.Hub(people[i].HubID)
		if !ok {
			return nil, fmt.Errorf("unknown start hub %q", people[i].HubID)
		}
		starts[i] = hub
		if people[i].StartStationID == "" {
			people[i].StartStationID = hub.PrimaryNaptanID
		}
	}

	candidates := candidateHubs(starts, e.graph.Hubs())
	e.log.Debug("spatial filter done", "candidates", len(candidates), "hubs", e.graph.NumHubs())

	estimated, err := e.estimate(people, candidates)
	if err != nil {
		return nil, err
	}
	if len(estimated) == 0 {
		return nil, fmt.Errorf("no candidate reachable by all %d people: %w", len(people), ErrNoMeetingPoint)
	}
	if len(estimated) > e.cfg.TopK {
		estimated = estimated[:e.cfg.TopK]
	}

	refined, err := e.refine(ctx, people, estimated)
	if err != nil {
		return nil, err
	}
	if len(refined) == 0 {
		return nil, fmt.Errorf("no candidate survived journey refinement: %w", ErrNoMeetingPoint)
	}

	n := len(refined) - 1
	if n > e.cfg.Alternatives {
		n = e.cfg.Alternatives
	}
	e.log.Info("query answered",
		"people", len(people), "best", refined[0].Hub.ID,
		"alternatives", n, "elapsed", e.clock.Since(start))
	return &Result{Best: refined[0], Alternatives: refined[1 : 1+n]}, nil
}

// estimate ranks candidates by average graph cost across users. One
// all-costs run per user covers every candidate. Candidates any user cannot
// reach are dropped.
func (e *Engine) estimate(people []Person, candidates []graph.Hub) ([]Candidate, error) {
	costs := make([]map[string]float64, len(people))
	for i, p := range people {
		c, err := e.graph.AllCosts(p.HubID)
		if err != nil {
			return nil, fmt.Errorf("costs from %s: %w", p.HubID, err)
		}
		costs[i] = c
	}

	out := make([]Candidate, 0, len(candidates))
	for _, hub := range candidates {
		cand := Candidate{Hub: hub, PerUserMinutes: make([]float64, len(people))}
		reachable := true
		for i, p := range people {
			cost, ok := costs[i][hub.ID]
			if !ok {
				reachable = false
				break
			}
			minutes := cost + p.WalkMinutes
			cand.PerUserMinutes[i] = minutes
			cand.TotalMinutes += minutes
		}
		if !reachable {
			continue
		}
		cand.AverageMinutes = cand.TotalMinutes / float64(len(people))
		cand.EstimateMinutes = cand.AverageMinutes
		out = append(out, cand)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AverageMinutes != out[j].AverageMinutes {
			return out[i].AverageMinutes < out[j].AverageMinutes
		}
		return out[i].Hub.ID < out[j].Hub.ID
	})
	return out, nil
}

// refine replaces graph estimates with provider journey durations for the
// shortlist. A failed journey for any user drops the candidate; auth errors
// and cancellation abort the query.
func (e *Engine) refine(ctx context.Context, people []Person, shortlist []Candidate) ([]Candidate, error) {
	var (
		mu  sync.Mutex
		out []Candidate
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.cfg.RefineWorkers)

	for _, cand := range shortlist {
		eg.Go(func() error {
			refined := Candidate{
				Hub:             cand.Hub,
				PerUserMinutes:  make([]float64, len(people)),
				EstimateMinutes: cand.EstimateMinutes,
			}
			for i, p := range people {
				minutes, err := e.planner.JourneyDuration(egCtx, p.StartStationID, cand.Hub.PrimaryNaptanID, tfl.JourneyOptions{})
				if err != nil {
					if errors.Is(err, tfl.ErrAuth) || errors.Is(err, context.Canceled) {
						return err
					}
					e.log.Warn("refinement journey failed",
						"candidate", cand.Hub.ID, "from", p.StartStationID, "error", err)
					return nil
				}
				refined.PerUserMinutes[i] = minutes + p.WalkMinutes
				refined.TotalMinutes += refined.PerUserMinutes[i]
			}
			refined.AverageMinutes = refined.TotalMinutes / float64(len(people))
			mu.Lock()
			out = append(out, refined)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalMinutes != out[j].TotalMinutes {
			return out[i].TotalMinutes < out[j].TotalMinutes
		}
		return out[i].Hub.ID < out[j].Hub.ID
	})
	return out, nil
}
