package build

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/midpoint-labs/midpoint/pkg/tfl"
)

// fetchTimetables runs stage 4: fetch every timetabled line's schedule from
// each of its terminals, plus the point-to-point segments terminal-rooted
// timetables miss, and publish one artifact per line.
func (p *Pipeline) fetchTimetables(ctx context.Context) (map[string]*LineTimetables, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]*LineTimetables)
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.cfg.TimetableWorkers)

	for _, lineID := range timetabledLines() {
		eg.Go(func() error {
			lt, err := p.fetchLineTimetables(egCtx, lineID)
			if err != nil {
				return err
			}
			path := filepath.Join(p.cfg.DataDir, timetableSubdir, lineID+".json")
			if err := writeJSON(path, lt); err != nil {
				return err
			}
			mu.Lock()
			out[lineID] = lt
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) fetchLineTimetables(ctx context.Context, lineID string) (*LineTimetables, error) {
	terminals, ok := terminalStations[lineID]
	if !ok {
		return nil, fmt.Errorf("line %s has no curated terminals", lineID)
	}

	lt := &LineTimetables{
		LineID:     lineID,
		FetchedAt:  p.clock.Now().UTC(),
		Timetables: make(map[string]*tfl.TimetableResponse, len(terminals)),
	}

	for _, terminal := range terminals {
		tt, err := p.provider.Timetable(ctx, lineID, terminal)
		if err != nil {
			if errors.Is(err, tfl.ErrAuth) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			// Some terminals are rejected by the provider; record the
			// attempt so stage 5 sees the gap.
			p.log.Warn("timetable fetch failed",
				"line", lineID, "terminal", terminal, "error", err)
			lt.Timetables[terminal] = nil
			continue
		}
		lt.Timetables[terminal] = tt
	}

	for _, seg := range pointToPointFetches[lineID] {
		key := seg[0] + "_to_" + seg[1]
		tt, err := p.provider.TimetableBetween(ctx, lineID, seg[0], seg[1])
		if err != nil {
			if errors.Is(err, tfl.ErrAuth) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			p.log.Warn("point-to-point timetable fetch failed",
				"line", lineID, "segment", key, "error", err)
			lt.Timetables[key] = nil
			continue
		}
		lt.Timetables[key] = tt
	}

	return lt, nil
}
