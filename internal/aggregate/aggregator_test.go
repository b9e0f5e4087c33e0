package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	v1 "github.com/checkline-lab/checkline/internal/api/v1"
)

type stubAdapter struct {
	name        string
	available   bool
	events      []v1.Event
	err         error
	panicValue  any
	total       *int64
	fetchCalled atomic.Int32
}

func (s *stubAdapter) Name() string    { return s.name }
func (s *stubAdapter) Available() bool { return s.available }

func (s *stubAdapter) Fetch(ctx context.Context) ([]v1.Event, error) {
	s.fetchCalled.Add(1)
	if s.panicValue != nil {
		panic(s.panicValue)
	}
	return s.events, s.err
}

func (s *stubAdapter) AuthoritativeTotalCents() *int64 { return s.total }

func stubEvents(prefix string, n int) []v1.Event {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	events := make([]v1.Event, n)
	for i := range events {
		events[i] = v1.Event{
			ID:        fmt.Sprintf("%s-%d", prefix, i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Source:    v1.SourceChecksAPI,
			Category:  v1.CategoryCheck,
			Type:      "check.updated",
			Title:     "Check Updated",
			Severity:  v1.SeverityInfo,
		}
	}
	return events
}

func TestRun_MergesAllAdapters(t *testing.T) {
	agg := New("check-42", []Adapter{
		&stubAdapter{name: "one", available: true, events: stubEvents("a", 2)},
		&stubAdapter{name: "two", available: true, events: stubEvents("b", 3)},
	}, false)

	tl := agg.Run(context.Background())
	require.Equal(t, 5, tl.Len())
	require.Equal(t, "check-42", tl.CheckID())
}

func TestRun_FailingAdapterIsIsolated(t *testing.T) {
	failing := &stubAdapter{name: "bad", available: true, err: errors.New("connection refused")}
	agg := New("check-42", []Adapter{
		&stubAdapter{name: "good", available: true, events: stubEvents("a", 4)},
		failing,
	}, false)

	tl := agg.Run(context.Background())
	require.Equal(t, 4, tl.Len())
	require.Equal(t, int32(1), failing.fetchCalled.Load())
}

func TestRun_PanickingAdapterIsIsolated(t *testing.T) {
	agg := New("check-42", []Adapter{
		&stubAdapter{name: "boom", available: true, panicValue: "nil map write"},
		&stubAdapter{name: "good", available: true, events: stubEvents("a", 2)},
	}, false)

	tl := agg.Run(context.Background())
	require.Equal(t, 2, tl.Len())
}

func TestRun_UnavailableAdapterIsNeverFetched(t *testing.T) {
	skipped := &stubAdapter{name: "skipped", available: false, events: stubEvents("x", 3)}
	agg := New("check-42", []Adapter{skipped}, false)

	tl := agg.Run(context.Background())
	require.True(t, tl.IsEmpty())
	require.Equal(t, int32(0), skipped.fetchCalled.Load())
}

func TestRun_FirstNonNilTotalWins(t *testing.T) {
	first := int64(800)
	second := int64(999)

	agg := New("check-42", []Adapter{
		&stubAdapter{name: "no-total", available: true},
		&stubAdapter{name: "first", available: true, total: &first},
		&stubAdapter{name: "second", available: true, total: &second},
	}, false)

	tl := agg.Run(context.Background())
	require.Equal(t, int64(800), *tl.AuthoritativeTotal())
}

func TestRun_TotalFoldIgnoresNilReporters(t *testing.T) {
	agg := New("check-42", []Adapter{
		&stubAdapter{name: "nil-total", available: true},
	}, false)

	tl := agg.Run(context.Background())
	require.Nil(t, tl.AuthoritativeTotal())
}

func TestRun_SequentialAndConcurrentAgree(t *testing.T) {
	build := func() []Adapter {
		total := int64(1150)
		return []Adapter{
			&stubAdapter{name: "api", available: true, events: stubEvents("a", 3), total: &total},
			&stubAdapter{name: "snap", available: true, events: stubEvents("b", 2)},
			&stubAdapter{name: "bad", available: true, err: errors.New("boom")},
		}
	}

	seq := New("check-42", build(), false).Run(context.Background())
	par := New("check-42", build(), true).Run(context.Background())

	require.Equal(t, seq.Len(), par.Len())
	require.Equal(t, *seq.AuthoritativeTotal(), *par.AuthoritativeTotal())

	seqIDs := map[string]bool{}
	for _, e := range seq.Events() {
		seqIDs[e.ID] = true
	}
	for _, e := range par.Events() {
		require.True(t, seqIDs[e.ID], "event %s missing from sequential run", e.ID)
	}
}

func TestRun_EmptyAdapterListYieldsEmptyTimeline(t *testing.T) {
	tl := New("check-42", nil, true).Run(context.Background())
	require.True(t, tl.IsEmpty())
	require.Nil(t, tl.FinalValue())
}
