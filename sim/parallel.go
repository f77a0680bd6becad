package sim

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RunParallel runs cfg with agents partitioned round-robin across workers, each
// worker owning a private Simulator and event queue.
//
// Agents are independent and every agent draws only from its own stream, so each
// per-agent timeline equals the one produced by a single Simulator with the same
// configuration. Result.Timelines keeps configuration order.
//
// A failing worker cancels the others; the merged result then has StatusFailed and
// the first worker error is returned.
//
// An event budget counts events in global time order, so a run with
// Config.MaxEvents set executes on a single Simulator whatever the worker count.
func RunParallel(ctx context.Context, cfg Config, workers int) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if workers < 1 {
		return nil, configErrorf("workers", "must be at least 1, got %d", workers)
	}
	workers = min(workers, len(cfg.Agents))
	if cfg.MaxEvents > 0 && workers > 1 {
		logrus.Infof("Event budget of %d set; running %d agents on a single worker", cfg.MaxEvents, len(cfg.Agents))
		workers = 1
	}
	if workers == 1 {
		s, err := NewSimulator(cfg)
		if err != nil {
			return nil, err
		}
		return s.Run(ctx)
	}

	parts := make([]Config, workers)
	for w := range parts {
		parts[w] = Config{
			Seed:     cfg.Seed,
			Duration: cfg.Duration,
			NewState: cfg.NewState,
		}
	}
	for i, a := range cfg.Agents {
		parts[i%workers].Agents = append(parts[i%workers].Agents, a)
	}

	sims := make([]*Simulator, workers)
	for w, part := range parts {
		s, err := NewSimulator(part)
		if err != nil {
			return nil, err
		}
		sims[w] = s
	}

	logrus.Infof("Running %d agents on %d workers", len(cfg.Agents), workers)
	results := make([]*Result, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := range sims {
		g.Go(func() error {
			res, err := sims[w].Run(gctx)
			results[w] = res
			return err
		})
	}
	err := g.Wait()
	return mergeResults(results, len(cfg.Agents), cfg.Duration), err
}

// mergeResults combines worker results. Agent i ran on worker i%workers at
// position i/workers.
func mergeResults(results []*Result, agents int, duration float64) *Result {
	workers := len(results)
	merged := &Result{
		Status:    StatusCompleted,
		Duration:  duration,
		Timelines: make([]*Timeline, agents),
	}
	for i := range agents {
		merged.Timelines[i] = results[i%workers].Timelines[i/workers]
	}
	for _, res := range results {
		merged.Clock = max(merged.Clock, res.Clock)
		merged.EventsApplied += res.EventsApplied
		switch {
		case res.Status == StatusFailed && merged.Status != StatusFailed:
			merged.Status, merged.Cause = StatusFailed, res.Cause
		case res.Status == StatusCancelled && merged.Status == StatusCompleted:
			merged.Status, merged.Cause = StatusCancelled, res.Cause
		}
	}
	return merged
}
