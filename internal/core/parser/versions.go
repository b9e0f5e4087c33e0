package parser

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	v1 "github.com/checkline-lab/checkline/internal/api/v1"
	"github.com/checkline-lab/checkline/internal/core/currency"
)

// versionRecord is one audit-trail entry: a field-level diff applied to the
// check at a point in time.
type versionRecord struct {
	event      string
	createdAt  time.Time
	createdRaw string
	itemID     string
	whodunnit  string
	changes    map[string]fieldChange
}

type fieldChange struct {
	before any
	after  any
}

// ParseVersionsDocument extracts audit-trail version records from a document
// and interprets each diff into one event. Records lacking a created_at are
// dropped. When defaultCurrency is empty the currency is inferred from the
// latest non-blank currency change in the trail.
func ParseVersionsDocument(doc any, defaultCurrency string) []v1.Event {
	records := versionRecords(doc)
	if len(records) == 0 {
		return nil
	}

	code := defaultCurrency
	if code == "" {
		code = inferCurrency(records)
	}
	if code == "" {
		code = v1.DefaultCurrency
	}

	var events []v1.Event
	for i, rec := range records {
		events = append(events, interpretVersion(rec, i, code))
	}
	return events
}

func versionRecords(doc any) []versionRecord {
	var raw []any
	switch t := doc.(type) {
	case []any:
		raw = t
	case map[string]any:
		if included, ok := sliceAt(t, "included"); ok {
			for _, r := range included {
				res, ok := asMap(r)
				if !ok {
					continue
				}
				if typ, _ := stringAt(res, "type"); typ == "versions" {
					raw = append(raw, r)
				}
			}
		} else if data, ok := sliceAt(t, "data"); ok {
			raw = data
		}
	}

	var out []versionRecord
	for _, r := range raw {
		m, ok := asMap(r)
		if !ok {
			continue
		}
		resourceID := ""
		if attrs, ok := mapAt(m, "attributes"); ok {
			resourceID, _ = stringAt(m, "id")
			m = attrs
		}

		rec := versionRecord{changes: map[string]fieldChange{}}
		rec.event, _ = stringAt(m, "event")
		rec.itemID, _ = stringAt(m, "item_id")
		if rec.itemID == "" {
			rec.itemID = resourceID
		}
		rec.whodunnit, _ = stringAt(m, "whodunnit")

		createdRaw, ok := stringAt(m, "created_at")
		if !ok {
			continue
		}
		createdAt, ok := parseTime(createdRaw)
		if !ok {
			continue
		}
		rec.createdRaw = createdRaw
		rec.createdAt = createdAt

		if changes, ok := mapAt(m, "object_changes"); ok {
			for field, pair := range changes {
				if p, ok := asSlice(pair); ok && len(p) == 2 {
					rec.changes[field] = fieldChange{before: p[0], after: p[1]}
				}
			}
		}

		out = append(out, rec)
	}
	return out
}

// inferCurrency prefers the latest non-blank currency value in the trail.
func inferCurrency(records []versionRecord) string {
	code := ""
	for _, rec := range records {
		if ch, ok := rec.changes["currency"]; ok {
			if after, isStr := ch.after.(string); isStr && strings.TrimSpace(after) != "" {
				code = after
			}
		}
	}
	return code
}

// versionRule is one (predicate, builder) pair of the interpretation chain.
// Rules are evaluated in order, first match wins: a diff that changed both
// status and amount_due is titled by the status rule alone.
type versionRule struct {
	match func(rec versionRecord) bool
	build func(rec versionRecord, code string) (title string, severity v1.Severity, consumed []string)
}

var versionRules = []versionRule{
	{
		match: func(rec versionRecord) bool { return rec.event == "create" },
		build: func(rec versionRecord, code string) (string, v1.Severity, []string) {
			title := "Check Created"
			if num, ok := afterScalar(rec, "number"); ok {
				title = fmt.Sprintf("Check #%s Created", num)
			}
			return title, v1.SeverityInfo, []string{"number"}
		},
	},
	{
		match: changed("status"),
		build: func(rec versionRecord, code string) (string, v1.Severity, []string) {
			ch := rec.changes["status"]
			sev := v1.SeverityInfo
			if after, _ := ch.after.(string); after == "closed" {
				sev = v1.SeverityWarning
			}
			return fmt.Sprintf("Status: %s → %s", scalarString(ch.before), scalarString(ch.after)), sev, []string{"status"}
		},
	},
	{
		match: func(rec versionRecord) bool {
			ch, ok := rec.changes["paid_at"]
			return ok && ch.before == nil && ch.after != nil
		},
		build: func(rec versionRecord, code string) (string, v1.Severity, []string) {
			title := "Check Settled"
			if ch, ok := rec.changes["amount_due"]; ok {
				title = fmt.Sprintf("Check Settled (%s → %s)", formatMoneyValue(ch.before, code), formatMoneyValue(ch.after, code))
				return title, v1.SeverityInfo, []string{"paid_at", "amount_due"}
			}
			return title, v1.SeverityInfo, []string{"paid_at"}
		},
	},
	{
		match: changed("amount_due"),
		build: func(rec versionRecord, code string) (string, v1.Severity, []string) {
			ch := rec.changes["amount_due"]
			return fmt.Sprintf("Amount Due: %s → %s", formatMoneyValue(ch.before, code), formatMoneyValue(ch.after, code)), v1.SeverityInfo, []string{"amount_due"}
		},
	},
	{
		match: changed("discounts"),
		build: func(rec versionRecord, code string) (string, v1.Severity, []string) {
			return arrayChangeTitle(rec.changes["discounts"], "Discount Applied", "Discount Removed", "Discounts Updated", "name"), v1.SeverityInfo, []string{"discounts"}
		},
	},
	{
		match: changed("service_charges"),
		build: func(rec versionRecord, code string) (string, v1.Severity, []string) {
			return arrayChangeTitle(rec.changes["service_charges"], "Service Charge Added", "Service Charge Removed", "Service Charges Updated", "name"), v1.SeverityInfo, []string{"service_charges"}
		},
	},
	{
		match: changed("other_payments"),
		build: func(rec versionRecord, code string) (string, v1.Severity, []string) {
			types := itemNames(rec.changes["other_payments"].after, "payment_type", "type")
			title := "Other Payments Updated"
			if len(types) > 0 {
				title = "Other Payment: " + strings.Join(types, ", ")
			}
			return title, v1.SeverityInfo, []string{"other_payments"}
		},
	},
	{
		match: changed("currency"),
		build: func(rec versionRecord, code string) (string, v1.Severity, []string) {
			ch := rec.changes["currency"]
			return fmt.Sprintf("Currency Set: %s → %s", scalarString(ch.before), scalarString(ch.after)), v1.SeverityInfo, []string{"currency"}
		},
	},
	{
		match: changed("reason"),
		build: func(rec versionRecord, code string) (string, v1.Severity, []string) {
			ch := rec.changes["reason"]
			return fmt.Sprintf("Reason: %s → %s", scalarString(ch.before), scalarString(ch.after)), v1.SeverityInfo, []string{"reason"}
		},
	},
}

func changed(field string) func(versionRecord) bool {
	return func(rec versionRecord) bool {
		_, ok := rec.changes[field]
		return ok
	}
}

// interpretVersion runs the priority chain over one record and assembles the
// event. Exactly one interpretation fires per record.
func interpretVersion(rec versionRecord, index int, code string) v1.Event {
	var (
		title    string
		severity = v1.SeverityInfo
		consumed []string
	)

	matched := false
	for _, rule := range versionRules {
		if rule.match(rec) {
			title, severity, consumed = rule.build(rec, code)
			matched = true
			break
		}
	}
	if !matched {
		title = fallbackTitle(rec)
	}

	eventKind := rec.event
	if eventKind == "" {
		eventKind = "update"
	}

	evt := v1.Event{
		ID:          v1.EventID(rec.itemID, v1.SourcePaperTrail, "version."+eventKind, rec.createdRaw, strconv.Itoa(index)),
		Timestamp:   rec.createdAt,
		Source:      v1.SourcePaperTrail,
		Category:    v1.CategoryVersion,
		Type:        "version." + eventKind,
		Title:       title,
		Description: describeChanges(rec, consumed, code),
		Severity:    severity,
		Currency:    code,
	}
	if rec.whodunnit != "" || rec.itemID != "" {
		evt.Metadata = map[string]any{}
		if rec.whodunnit != "" {
			evt.Metadata["whodunnit"] = rec.whodunnit
		}
		if rec.itemID != "" {
			evt.Metadata["item_id"] = rec.itemID
		}
	}
	return evt.Normalize()
}

func fallbackTitle(rec versionRecord) string {
	fields := changedFieldNames(rec)
	if len(fields) == 0 {
		return "Check Updated"
	}
	return "Updated: " + strings.Join(fields, ", ")
}

func changedFieldNames(rec versionRecord) []string {
	var fields []string
	for field := range rec.changes {
		if noiseFields[field] {
			continue
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// noiseFields never appear in titles or descriptions: internal identifiers
// and operator workstation bookkeeping.
var noiseFields = map[string]bool{
	"id":               true,
	"uuid":             true,
	"check_id":         true,
	"venue_id":         true,
	"account_id":       true,
	"lock_version":     true,
	"workstation":      true,
	"workstation_name": true,
	"device_id":        true,
}

var monetaryFields = map[string]bool{
	"amount_due":     true,
	"amount_cents":   true,
	"total":          true,
	"total_cents":    true,
	"subtotal":       true,
	"subtotal_cents": true,
	"tip":            true,
	"tip_cents":      true,
	"balance":        true,
	"discount_total": true,
}

var arrayFields = map[string]bool{
	"discounts":       true,
	"service_charges": true,
	"other_payments":  true,
	"line_items":      true,
	"payments":        true,
	"taxes":           true,
}

var timestampFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"paid_at":    true,
	"opened_at":  true,
	"closed_at":  true,
	"voided_at":  true,
	"sent_at":    true,
}

// describeChanges renders the field-by-field diff summary: every changed
// field except those the title already covers and the noise set, one line
// per field, alphabetical for determinism.
func describeChanges(rec versionRecord, consumed []string, code string) string {
	skip := make(map[string]bool, len(consumed))
	for _, f := range consumed {
		skip[f] = true
	}

	fields := make([]string, 0, len(rec.changes))
	for field := range rec.changes {
		if skip[field] || noiseFields[field] {
			continue
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var lines []string
	for _, field := range fields {
		if line, ok := describeField(field, rec.changes[field], code); ok {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func describeField(field string, ch fieldChange, code string) (string, bool) {
	label := fieldLabel(field)

	switch {
	case monetaryFields[field]:
		return fmt.Sprintf("%s: %s → %s", label, formatMoneyValue(ch.before, code), formatMoneyValue(ch.after, code)), true

	case arrayFields[field]:
		beforeN, afterN := arrayLen(ch.before), arrayLen(ch.after)
		if beforeN == afterN && reflect.DeepEqual(ch.before, ch.after) {
			return "", false
		}
		return fmt.Sprintf("%s: %s → %s", label, itemCount(beforeN), itemCount(afterN)), true

	case timestampFields[field]:
		if reflect.DeepEqual(ch.before, ch.after) {
			return "", false
		}
		return fmt.Sprintf("%s: %s", label, scalarString(ch.after)), true

	case ch.before == nil && ch.after != nil:
		return fmt.Sprintf("%s: set to %s", label, scalarString(ch.after)), true

	case ch.before != nil && ch.after == nil:
		return fmt.Sprintf("%s: cleared", label), true

	default:
		before, after := scalarString(ch.before), scalarString(ch.after)
		if before == after {
			return "", false
		}
		return fmt.Sprintf("%s: %s → %s", label, before, after), true
	}
}

// formatMoneyValue renders a raw diff value as currency; non-numeric values
// fall back to the scalar rendering.
func formatMoneyValue(v any, code string) string {
	if v == nil {
		return "—"
	}
	switch t := v.(type) {
	case float64:
		return currency.FormatCents(int64(t), code)
	case int64:
		return currency.FormatCents(t, code)
	case int:
		return currency.FormatCents(int64(t), code)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return currency.FormatCents(n, code)
		}
	}
	return scalarString(v)
}

func afterScalar(rec versionRecord, field string) (string, bool) {
	ch, ok := rec.changes[field]
	if !ok || ch.after == nil {
		return "", false
	}
	s := scalarString(ch.after)
	return s, s != "—"
}

func arrayLen(v any) int {
	if s, ok := asSlice(v); ok {
		return len(s)
	}
	return 0
}

func itemCount(n int) string {
	if n == 1 {
		return "1 item"
	}
	return fmt.Sprintf("%d items", n)
}

// arrayChangeTitle compares the before/after sizes of a known array field:
// growth names the additions, shrink names the removals, equal size is a
// generic update.
func arrayChangeTitle(ch fieldChange, addedPrefix, removedPrefix, updatedTitle, nameKey string) string {
	beforeN, afterN := arrayLen(ch.before), arrayLen(ch.after)
	switch {
	case afterN > beforeN:
		if names := addedItemNames(ch.before, ch.after, nameKey); len(names) > 0 {
			return addedPrefix + ": " + strings.Join(names, ", ")
		}
		return addedPrefix
	case afterN < beforeN:
		if names := addedItemNames(ch.after, ch.before, nameKey); len(names) > 0 {
			return removedPrefix + ": " + strings.Join(names, ", ")
		}
		return removedPrefix
	default:
		return updatedTitle
	}
}

// addedItemNames returns the names present in superset but not subset,
// preserving superset order.
func addedItemNames(subset, superset any, nameKey string) []string {
	seen := map[string]int{}
	for _, name := range itemNames(subset, nameKey) {
		seen[name]++
	}
	var names []string
	for _, name := range itemNames(superset, nameKey) {
		if seen[name] > 0 {
			seen[name]--
			continue
		}
		names = append(names, name)
	}
	return names
}

func itemNames(v any, keys ...string) []string {
	items, ok := asSlice(v)
	if !ok {
		return nil
	}
	var names []string
	for _, item := range items {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		for _, key := range keys {
			if name, ok := stringAt(m, key); ok {
				names = append(names, truncate(name, 60))
				break
			}
		}
	}
	return names
}
