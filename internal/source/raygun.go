package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"

	v1 "github.com/checkline-lab/checkline/internal/api/v1"
	"github.com/checkline-lab/checkline/internal/core/parser"
)

// RaygunAdapter sources events from exception-report JSON files exported
// from the crash reporter, one event per payload.
type RaygunAdapter struct {
	name string
	glob string
}

// NewRaygunAdapter wires an adapter over a filename glob of crash payloads.
func NewRaygunAdapter(name, glob string) *RaygunAdapter {
	if name == "" {
		name = "raygun"
	}
	return &RaygunAdapter{name: name, glob: glob}
}

func (a *RaygunAdapter) Name() string { return a.name }

// Available reports whether the glob matches at least one file.
func (a *RaygunAdapter) Available() bool {
	matches, err := filepath.Glob(a.glob)
	return err == nil && len(matches) > 0
}

// Fetch parses every matching payload. Unreadable files are skipped with a
// warning: an exception report that can't be decoded shouldn't hide the
// reports that can.
func (a *RaygunAdapter) Fetch(_ context.Context) ([]v1.Event, error) {
	matches, err := filepath.Glob(a.glob)
	if err != nil {
		return nil, fmt.Errorf("raygun glob %q: %w", a.glob, err)
	}

	var events []v1.Event
	for _, path := range matches {
		raw, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("[RaygunAdapter] Skipping unreadable payload", "adapter", a.name, "file", path, "error", err)
			continue
		}

		var payload map[string]any
		if err := sonic.Unmarshal(raw, &payload); err != nil {
			slog.Warn("[RaygunAdapter] Skipping undecodable payload", "adapter", a.name, "file", path, "error", err)
			continue
		}

		events = append(events, parser.ParseExceptionPayload(payload, filepath.Base(path)))
	}
	return events, nil
}
