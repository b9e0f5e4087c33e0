package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Documents arrive as already-parsed generic JSON (nested maps, slices,
// scalars). The helpers below absorb the shape differences so the per-source
// parse functions read like the policy they implement.

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func mapAt(m map[string]any, key string) (map[string]any, bool) {
	if m == nil {
		return nil, false
	}
	return asMap(m[key])
}

func sliceAt(m map[string]any, key string) ([]any, bool) {
	if m == nil {
		return nil, false
	}
	return asSlice(m[key])
}

// stringAt returns the string value of a field, coercing numbers so that
// loosely typed documents (IDs serialized as numbers) still resolve.
func stringAt(m map[string]any, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		return formatFloat(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int:
		return strconv.Itoa(t), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

// centsAt coerces a numeric field to minor units. JSON numbers unmarshal to
// float64 in Go; decimal conversion avoids drift on the int cast.
func centsAt(m map[string]any, key string) (int64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t).IntPart(), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return d.IntPart(), true
	}
	return 0, false
}

// firstCents walks the candidate keys and returns the first present numeric
// value. Used for the amount fallback chain (amount_cents, total_cents, ...).
func firstCents(m map[string]any, keys ...string) (int64, bool) {
	for _, key := range keys {
		if v, ok := centsAt(m, key); ok {
			return v, true
		}
	}
	return 0, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
}

// parseTime parses the timestamp formats the upstream systems emit.
// Millisecond precision is preserved; results are normalized to UTC.
func parseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

func timeAt(m map[string]any, key string) (time.Time, bool) {
	raw, ok := stringAt(m, key)
	if !ok {
		return time.Time{}, false
	}
	return parseTime(raw)
}

// formatFloat renders JSON numbers the way a human typed them: integers
// without a trailing ".0", everything else with minimal digits.
func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// scalarString renders an arbitrary scalar for display, truncating long
// values and collapsing null/blank to an em-dash.
func scalarString(v any) string {
	if v == nil {
		return "—"
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		s = formatFloat(t)
	case bool:
		s = strconv.FormatBool(t)
	default:
		s = fmt.Sprintf("%v", t)
	}
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return truncate(s, 60)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

// fieldLabel turns a snake_case field name into a display label:
// "amount_due" -> "Amount Due".
func fieldLabel(field string) string {
	words := strings.Split(field, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
