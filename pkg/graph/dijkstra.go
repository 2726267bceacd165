package graph

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
)

// LineChangePenalty is the fixed cost in minutes added when a traveller
// switches between two distinct lines without a walking transfer in between.
const LineChangePenalty = 5.0

// ErrNoPath is returned when the target hub is unreachable from the source.
var ErrNoPath = errors.New("no path between hubs")

// PathHop is one step of a shortest path: the hub reached and the edge key
// used to reach it (empty for the starting hub).
type PathHop struct {
	Hub  string
	Line string
}

// Search states are (hub, incoming edge key) pairs: the cheapest way into a
// hub on one line is not always the cheapest way out on another once the
// change penalty applies.
type travelState struct {
	hub  string
	line string
}

type travelItem struct {
	state travelState
	cost  float64
	index int
}

type travelQueue []*travelItem

func (q travelQueue) Len() int            { return len(q) }
func (q travelQueue) Less(i, j int) bool  { return q[i].cost < q[j].cost }
func (q travelQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index = i; q[j].index = j }
func (q *travelQueue) Push(x any)         { it := x.(*travelItem); it.index = len(*q); *q = append(*q, it) }
func (q *travelQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}

// changeCost returns the penalty for traversing edge key next after having
// arrived on prev. Walking transfers never incur or trigger the penalty.
func changeCost(prev, next string) float64 {
	if prev == "" || prev == next || prev == TransferKey || next == TransferKey {
		return 0
	}
	return LineChangePenalty
}

// AllCosts runs Dijkstra from the hub and returns the minimum travel time in
// minutes to every reachable hub. Edges without a calculated weight are
// ignored.
func (g *Graph) AllCosts(from string) (map[string]float64, error) {
	dist, _, err := g.dijkstra(from)
	if err != nil {
		return nil, err
	}
	best := make(map[string]float64)
	for st, d := range dist {
		if cur, ok := best[st.hub]; !ok || d < cur {
			best[st.hub] = d
		}
	}
	return best, nil
}

// ShortestPath returns the minimum travel time in minutes between two hubs
// and the hop sequence achieving it. Returns ErrNoPath when the target is
// unreachable.
func (g *Graph) ShortestPath(from, to string) (float64, []PathHop, error) {
	if !g.HasHub(to) {
		return 0, nil, fmt.Errorf("hub %q: %w", to, ErrNoPath)
	}
	dist, prev, err := g.dijkstra(from)
	if err != nil {
		return 0, nil, err
	}

	bestCost := math.Inf(1)
	var bestState travelState
	for st, d := range dist {
		if st.hub == to && d < bestCost {
			bestCost = d
			bestState = st
		}
	}
	if math.IsInf(bestCost, 1) {
		return 0, nil, fmt.Errorf("%s -> %s: %w", from, to, ErrNoPath)
	}

	var hops []PathHop
	for st := bestState; ; {
		hops = append(hops, PathHop{Hub: st.hub, Line: st.line})
		p, ok := prev[st]
		if !ok {
			break
		}
		st = p
	}
	for i, j := 0, len(hops)-1; i < j; i, j = i+1, j-1 {
		hops[i], hops[j] = hops[j], hops[i]
	}
	return bestCost, hops, nil
}

func (g *Graph) dijkstra(from string) (map[travelState]float64, map[travelState]travelState, error) {
	if !g.HasHub(from) {
		return nil, nil, fmt.Errorf("unknown hub %q", from)
	}

	dist := map[travelState]float64{}
	prev := map[travelState]travelState{}
	done := map[travelState]bool{}

	start := travelState{hub: from, line: ""}
	dist[start] = 0

	pq := &travelQueue{}
	heap.Init(pq)
	heap.Push(pq, &travelItem{state: start, cost: 0})

	for pq.Len() > 0 {
		it := heap.Pop(pq).(*travelItem)
		if done[it.state] {
			continue
		}
		done[it.state] = true

		// Stale queue entry: a cheaper route to this state was settled
		// after this one was pushed.
		if d, ok := dist[it.state]; ok && it.cost > d {
			continue
		}

		for _, e := range g.EdgesFrom(it.state.hub) {
			if e.Weight == nil {
				continue
			}
			next := travelState{hub: e.Target, line: e.Key}
			cand := it.cost + *e.Weight + changeCost(it.state.line, e.Key)
			if d, ok := dist[next]; !ok || cand < d {
				dist[next] = cand
				prev[next] = it.state
				heap.Push(pq, &travelItem{state: next, cost: cand})
			}
		}
	}
	return dist, prev, nil
}
