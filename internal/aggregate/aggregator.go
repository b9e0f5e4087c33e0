package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	v1 "github.com/checkline-lab/checkline/internal/api/v1"
	"github.com/checkline-lab/checkline/internal/core/timeline"
)

// Adapter is the contract every event source implements. The aggregator
// calls these three things and nothing else: it has no knowledge of HTTP,
// file paths, globs or environment variables.
type Adapter interface {
	// Name identifies the adapter in diagnostics.
	Name() string

	// Available reports whether the adapter has what it needs to fetch.
	// Unavailable adapters are skipped without ever calling Fetch.
	Available() bool

	// Fetch produces the adapter's events. Errors are isolated by the
	// aggregator: a failing source contributes zero events, never aborts
	// the run.
	Fetch(ctx context.Context) ([]v1.Event, error)
}

// TotalReporter is optionally implemented by adapters that learn the check's
// authoritative total during Fetch.
type TotalReporter interface {
	AuthoritativeTotalCents() *int64
}

// Aggregator runs a configured set of adapters and merges their events into
// one Timeline.
type Aggregator struct {
	checkID  string
	adapters []Adapter
	parallel bool
}

// New creates an Aggregator. Adapter order is significant: the authoritative
// total is resolved first-wins in this order, in both execution modes.
func New(checkID string, adapters []Adapter, parallel bool) *Aggregator {
	return &Aggregator{
		checkID:  checkID,
		adapters: adapters,
		parallel: parallel,
	}
}

// result is one adapter's outcome, written exactly once into its own slot.
type result struct {
	events []v1.Event
}

// Run executes every adapter and returns the merged Timeline. It always
// returns a timeline, possibly empty: per-source failures degrade to zero
// events plus a logged warning.
func (a *Aggregator) Run(ctx context.Context) *timeline.Timeline {
	runID := uuid.NewString()
	slog.Info("[Aggregator] Starting run",
		"run_id", runID,
		"check_id", a.checkID,
		"adapters", len(a.adapters),
		"parallel", a.parallel,
	)

	results := make([]result, len(a.adapters))
	if a.parallel {
		a.runConcurrent(ctx, results)
	} else {
		for i, adapter := range a.adapters {
			results[i] = a.fetchOne(ctx, adapter)
		}
	}

	var merged []v1.Event
	for _, res := range results {
		merged = append(merged, res.events...)
	}

	// Explicit fold in configured adapter order: the earliest non-nil
	// total wins, a later adapter never overrides it.
	var total *int64
	for _, adapter := range a.adapters {
		reporter, ok := adapter.(TotalReporter)
		if !ok {
			continue
		}
		if reported := reporter.AuthoritativeTotalCents(); reported != nil {
			total = reported
			break
		}
	}

	slog.Info("[Aggregator] Run complete",
		"run_id", runID,
		"check_id", a.checkID,
		"events", len(merged),
		"has_authoritative_total", total != nil,
	)

	return timeline.New(a.checkID, merged, total)
}

// runConcurrent gives each adapter its own goroutine and a dedicated result
// slot, so concurrent and sequential runs merge the same event multiset.
// The coordinator blocks only on the join.
func (a *Aggregator) runConcurrent(ctx context.Context, results []result) {
	var wg sync.WaitGroup
	wg.Add(len(a.adapters))
	for i, adapter := range a.adapters {
		go func(slot int, ad Adapter) {
			defer wg.Done()
			results[slot] = a.fetchOne(ctx, ad)
		}(i, adapter)
	}
	wg.Wait()
}

// fetchOne runs a single adapter behind the isolation boundary: availability
// gate, error swallowing, panic recovery. It never lets a source failure
// escape.
func (a *Aggregator) fetchOne(ctx context.Context, adapter Adapter) (res result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[Aggregator] Adapter panicked, treating as empty result",
				"adapter", adapter.Name(),
				"panic", fmt.Sprintf("%v", r),
			)
			res = result{}
		}
	}()

	if !adapter.Available() {
		slog.Info("[Aggregator] Adapter unavailable, skipping", "adapter", adapter.Name())
		return result{}
	}

	events, err := adapter.Fetch(ctx)
	if err != nil {
		slog.Warn("[Aggregator] Adapter fetch failed, treating as empty result",
			"adapter", adapter.Name(),
			"error", err,
		)
		return result{}
	}

	slog.Info("[Aggregator] Adapter fetch complete",
		"adapter", adapter.Name(),
		"events", len(events),
	)
	return result{events: events}
}
