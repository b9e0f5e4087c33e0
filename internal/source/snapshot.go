package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bytedance/sonic"

	v1 "github.com/checkline-lab/checkline/internal/api/v1"
	"github.com/checkline-lab/checkline/internal/core/parser"
)

// SnapshotAdapter sources events from locally saved JSON snapshots of check
// documents — the same shape the API serves, captured to disk. Files whose
// top level is a payments collection are parsed as payments instead, so a
// snapshot directory can hold both.
type SnapshotAdapter struct {
	name     string
	glob     string
	currency string

	mu    sync.Mutex
	total *int64
}

// NewSnapshotAdapter wires an adapter over a filename glob.
func NewSnapshotAdapter(name, glob, defaultCurrency string) *SnapshotAdapter {
	if name == "" {
		name = "snapshot"
	}
	return &SnapshotAdapter{
		name:     name,
		glob:     glob,
		currency: defaultCurrency,
	}
}

func (a *SnapshotAdapter) Name() string { return a.name }

// Available reports whether the glob matches at least one file. A missing
// snapshot set is a no-op signal, not an error.
func (a *SnapshotAdapter) Available() bool {
	matches, err := filepath.Glob(a.glob)
	return err == nil && len(matches) > 0
}

// Fetch parses every matching file. A single corrupt file degrades to a
// warning as long as any file parses; an all-failures run surfaces the last
// error so the aggregation boundary can report the source as broken.
func (a *SnapshotAdapter) Fetch(_ context.Context) ([]v1.Event, error) {
	matches, err := filepath.Glob(a.glob)
	if err != nil {
		return nil, fmt.Errorf("snapshot glob %q: %w", a.glob, err)
	}

	var (
		events  []v1.Event
		parsed  int
		lastErr error
	)
	for _, path := range matches {
		fileEvents, err := a.parseFile(path)
		if err != nil {
			slog.Warn("[SnapshotAdapter] Skipping unparseable snapshot",
				"adapter", a.name,
				"file", path,
				"error", err,
			)
			lastErr = err
			continue
		}
		events = append(events, fileEvents...)
		parsed++
	}

	if parsed == 0 && lastErr != nil {
		return nil, fmt.Errorf("no snapshot in %q parsed: %w", a.glob, lastErr)
	}
	return events, nil
}

func (a *SnapshotAdapter) parseFile(path string) ([]v1.Event, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var doc any
	if err := sonic.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	if m, ok := doc.(map[string]any); ok {
		if events, err := parser.ParseCheckDocument(m); err == nil {
			if total := parser.ParseCheckTotalCents(m); total != nil {
				a.mu.Lock()
				if a.total == nil {
					a.total = total
				}
				a.mu.Unlock()
			}
			events = append(events, parser.ParseVersionsDocument(m, a.currency)...)
			return events, nil
		}
	}

	// Not a check document: the payments parser accepts raw arrays and the
	// two wrapper shapes, and yields nothing for anything else.
	checkID := snapshotCheckID(doc)
	if events := parser.ParsePaymentsDocument(doc, checkID, a.currency); len(events) > 0 {
		return events, nil
	}

	return nil, fmt.Errorf("%w: not a check or payments snapshot", parser.ErrMalformedDocument)
}

// AuthoritativeTotalCents reports the first total seen across the snapshot
// set, nil when no snapshot carried one.
func (a *SnapshotAdapter) AuthoritativeTotalCents() *int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

func snapshotCheckID(doc any) string {
	m, ok := doc.(map[string]any)
	if !ok {
		return ""
	}
	return parser.ParseCheckID(m)
}
