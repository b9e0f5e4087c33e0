package viewer

import (
	"sort"
	"time"

	v1 "github.com/checkline-lab/checkline/internal/api/v1"
	"github.com/checkline-lab/checkline/internal/core/currency"
	"github.com/checkline-lab/checkline/internal/core/timeline"
)

// View is the presentation projection of a Timeline: everything the HTML
// template and the JSON endpoint need, preformatted.
type View struct {
	CheckID        string         `json:"check_id"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	EndedAt        *time.Time     `json:"ended_at,omitempty"`
	Duration       string         `json:"duration"`
	FinalValue     string         `json:"final_value"`
	EventCount     int            `json:"event_count"`
	ErrorCount     int            `json:"error_count"`
	SeverityCounts map[string]int `json:"severity_counts"`
	Sources        []SourceCount  `json:"sources"`
	Rows           []Row          `json:"rows"`
}

// SourceCount is one per-source partition summary.
type SourceCount struct {
	Source string `json:"source"`
	Icon   string `json:"icon"`
	Count  int    `json:"count"`
}

// Row is one rendered event.
type Row struct {
	Time         string   `json:"time"`
	Source       string   `json:"source"`
	Icon         string   `json:"icon"`
	Category     string   `json:"category"`
	Type         string   `json:"type"`
	Title        string   `json:"title"`
	Detail       []string `json:"detail,omitempty"`
	Severity     string   `json:"severity"`
	Amount       string   `json:"amount,omitempty"`
	RunningTotal string   `json:"running_total,omitempty"`
}

var sourceIcons = map[v1.Source]string{
	v1.SourceChecksAPI:  "🧾",
	v1.SourcePaperTrail: "📋",
	v1.SourceRaygun:     "🐞",
}

// iconFor falls back for unrecognized sources, which Event deliberately
// passes through verbatim.
func iconFor(source v1.Source) string {
	if icon, ok := sourceIcons[source]; ok {
		return icon
	}
	return "❓"
}

// BuildView projects a Timeline into its presentation shape.
func BuildView(t *timeline.Timeline) View {
	events := t.Events()

	code := v1.DefaultCurrency
	if len(events) > 0 {
		code = events[0].Currency
	}

	runningByID := make(map[string]int64)
	for _, entry := range t.ValueLedger() {
		runningByID[entry.Event.ID] = entry.RunningTotal
	}

	rows := make([]Row, 0, len(events))
	for _, evt := range events {
		row := Row{
			Time:     evt.Timestamp.Format("2006-01-02 15:04:05.000"),
			Source:   string(evt.Source),
			Icon:     iconFor(evt.Source),
			Category: string(evt.Category),
			Type:     evt.Type,
			Title:    evt.Title,
			Detail:   splitLines(evt.Description),
			Severity: string(evt.Severity),
		}
		if evt.Amount != nil {
			row.Amount = currency.FormatCents(*evt.Amount, evt.Currency)
			if total, ok := runningByID[evt.ID]; ok {
				row.RunningTotal = currency.FormatCents(total, evt.Currency)
			}
		}
		rows = append(rows, row)
	}

	severities := make(map[string]int)
	for sev, n := range t.SeverityCounts() {
		severities[string(sev)] = n
	}

	var sources []SourceCount
	for src, partition := range t.BySource() {
		sources = append(sources, SourceCount{
			Source: string(src),
			Icon:   iconFor(src),
			Count:  len(partition),
		})
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Source < sources[j].Source })

	return View{
		CheckID:        t.CheckID(),
		StartedAt:      t.StartedAt(),
		EndedAt:        t.EndedAt(),
		Duration:       t.Duration(),
		FinalValue:     currency.FormatOptionalCents(t.FinalValue(), code),
		EventCount:     t.Len(),
		ErrorCount:     t.ErrorCount(),
		SeverityCounts: severities,
		Sources:        sources,
		Rows:           rows,
	}
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return append(lines, s[start:])
}
