package timeline

import (
	"fmt"
	"sort"
	"time"

	v1 "github.com/checkline-lab/checkline/internal/api/v1"
)

// Timeline is the sorted, immutable view over one check's merged events.
// Construction sorts ascending by timestamp; every filtering operation
// returns a new Timeline and never mutates the receiver.
type Timeline struct {
	checkID            string
	events             []v1.Event
	authoritativeTotal *int64
}

// LedgerEntry is one step of the value ledger: the amount-bearing event and
// the running total after applying it.
type LedgerEntry struct {
	Event        v1.Event `json:"event"`
	RunningTotal int64    `json:"running_total"`
}

// New builds a Timeline from a snapshot of events. The slice is copied, then
// stable-sorted by timestamp: insertion order is the documented tie-break for
// events whose timestamps collide at full precision.
func New(checkID string, events []v1.Event, authoritativeTotal *int64) *Timeline {
	snapshot := make([]v1.Event, len(events))
	copy(snapshot, events)
	sort.SliceStable(snapshot, func(i, j int) bool {
		return snapshot[i].Timestamp.Before(snapshot[j].Timestamp)
	})
	return &Timeline{
		checkID:            checkID,
		events:             snapshot,
		authoritativeTotal: authoritativeTotal,
	}
}

// CheckID returns the identifier of the check this timeline describes.
func (t *Timeline) CheckID() string { return t.checkID }

// Events returns the chronologically sorted event sequence. The returned
// slice is a copy; callers can't reach the timeline's internals through it.
func (t *Timeline) Events() []v1.Event {
	out := make([]v1.Event, len(t.events))
	copy(out, t.events)
	return out
}

// Len reports the number of events.
func (t *Timeline) Len() int { return len(t.events) }

// IsEmpty reports whether the timeline holds no events.
func (t *Timeline) IsEmpty() bool { return len(t.events) == 0 }

// StartedAt returns the earliest event timestamp, nil when empty.
func (t *Timeline) StartedAt() *time.Time {
	if len(t.events) == 0 {
		return nil
	}
	ts := t.events[0].Timestamp
	return &ts
}

// EndedAt returns the latest event timestamp, nil when empty.
func (t *Timeline) EndedAt() *time.Time {
	if len(t.events) == 0 {
		return nil
	}
	ts := t.events[len(t.events)-1].Timestamp
	return &ts
}

// Duration renders the span between the first and last event as a human
// string, e.g. "2h 15m 3s". Empty timelines render as "0s".
func (t *Timeline) Duration() string {
	start, end := t.StartedAt(), t.EndedAt()
	if start == nil || end == nil {
		return "0s"
	}
	return humanizeDuration(end.Sub(*start))
}

// BySource partitions the events per origin system, preserving chronological
// order within each partition.
func (t *Timeline) BySource() map[v1.Source][]v1.Event {
	out := make(map[v1.Source][]v1.Event)
	for _, evt := range t.events {
		out[evt.Source] = append(out[evt.Source], evt)
	}
	return out
}

// ByCategory partitions the events per category, preserving chronological
// order within each partition.
func (t *Timeline) ByCategory() map[v1.Category][]v1.Event {
	out := make(map[v1.Category][]v1.Event)
	for _, evt := range t.events {
		out[evt.Category] = append(out[evt.Category], evt)
	}
	return out
}

// ValueLedger folds Amount over the chronological sequence. Events without
// an amount are non-contributing: they don't appear as no-op ledger steps.
func (t *Timeline) ValueLedger() []LedgerEntry {
	var (
		ledger  []LedgerEntry
		running int64
	)
	for _, evt := range t.events {
		if evt.Amount == nil {
			continue
		}
		running += *evt.Amount
		ledger = append(ledger, LedgerEntry{Event: evt, RunningTotal: running})
	}
	return ledger
}

// FinalValue is the authoritative total when a source supplied one, else the
// ledger's final running total. Nil when neither exists.
func (t *Timeline) FinalValue() *int64 {
	if t.authoritativeTotal != nil {
		v := *t.authoritativeTotal
		return &v
	}
	ledger := t.ValueLedger()
	if len(ledger) == 0 {
		return nil
	}
	v := ledger[len(ledger)-1].RunningTotal
	return &v
}

// AuthoritativeTotal exposes the source-supplied total, nil when none.
func (t *Timeline) AuthoritativeTotal() *int64 {
	if t.authoritativeTotal == nil {
		return nil
	}
	v := *t.authoritativeTotal
	return &v
}

// SeverityCounts tallies events per severity.
func (t *Timeline) SeverityCounts() map[v1.Severity]int {
	out := make(map[v1.Severity]int)
	for _, evt := range t.events {
		out[evt.Severity]++
	}
	return out
}

// ErrorCount is the number of error and critical events.
func (t *Timeline) ErrorCount() int {
	n := 0
	for _, evt := range t.events {
		if evt.IsError() {
			n++
		}
	}
	return n
}

// Errors returns the error/critical sub-timeline.
func (t *Timeline) Errors() *Timeline {
	return t.filter(func(evt v1.Event) bool { return evt.IsError() })
}

// FilterBySource returns a new Timeline holding only events from the given
// source.
func (t *Timeline) FilterBySource(source v1.Source) *Timeline {
	return t.filter(func(evt v1.Event) bool { return evt.Source == source })
}

// FilterByCategory returns a new Timeline holding only events of the given
// category.
func (t *Timeline) FilterByCategory(category v1.Category) *Timeline {
	return t.filter(func(evt v1.Event) bool { return evt.Category == category })
}

// filter carries the authoritative total into derived timelines: filtering
// narrows the view, it doesn't change what the check was worth.
func (t *Timeline) filter(keep func(v1.Event) bool) *Timeline {
	var kept []v1.Event
	for _, evt := range t.events {
		if keep(evt) {
			kept = append(kept, evt)
		}
	}
	return &Timeline{
		checkID:            t.checkID,
		events:             kept,
		authoritativeTotal: t.authoritativeTotal,
	}
}

func humanizeDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	d = d.Round(time.Second)

	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	s := d - m*time.Minute

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s/time.Second)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s/time.Second)
	default:
		return fmt.Sprintf("%ds", s/time.Second)
	}
}
