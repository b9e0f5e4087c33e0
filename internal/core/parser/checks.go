package parser

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	v1 "github.com/checkline-lab/checkline/internal/api/v1"
	"github.com/checkline-lab/checkline/internal/core/currency"
)

// ErrMalformedDocument marks input that does not carry the minimum JSON:API
// shape. The aggregation boundary converts it into "zero events + warning".
var ErrMalformedDocument = errors.New("malformed document")

// ParseCheckDocument translates a JSON:API check document into lifecycle
// events. Each emission rule gates independently on field presence: partial
// documents simply produce fewer events, never an error.
func ParseCheckDocument(doc map[string]any) ([]v1.Event, error) {
	data, ok := mapAt(doc, "data")
	if !ok {
		return nil, fmt.Errorf("%w: missing data object", ErrMalformedDocument)
	}
	attrs, ok := mapAt(data, "attributes")
	if !ok {
		return nil, fmt.Errorf("%w: missing data.attributes", ErrMalformedDocument)
	}

	checkID, _ := stringAt(data, "id")
	code := checkCurrency(attrs)

	var events []v1.Event

	createdRaw, hasCreatedRaw := stringAt(attrs, "created_at")
	createdAt, hasCreated := timeAt(attrs, "created_at")
	if hasCreated {
		evt := v1.Event{
			ID:        v1.EventID(checkID, v1.SourceChecksAPI, "check.created", createdRaw),
			Timestamp: createdAt,
			Source:    v1.SourceChecksAPI,
			Category:  v1.CategoryCheck,
			Type:      "check.created",
			Title:     checkTitle(attrs, "Created"),
			Currency:  code,
			Metadata:  checkMetadata(attrs),
		}
		if total, ok := centsAt(attrs, "total_cents"); ok {
			evt.Amount = v1.AmountOf(total)
		}
		events = append(events, evt.Normalize())
	}

	// updated_at equal to created_at is just the write that created the row.
	if updatedRaw, ok := stringAt(attrs, "updated_at"); ok && (!hasCreatedRaw || updatedRaw != createdRaw) {
		if updatedAt, ok := parseTime(updatedRaw); ok {
			events = append(events, v1.Event{
				ID:        v1.EventID(checkID, v1.SourceChecksAPI, "check.updated", updatedRaw),
				Timestamp: updatedAt,
				Source:    v1.SourceChecksAPI,
				Category:  v1.CategoryCheck,
				Type:      "check.updated",
				Title:     checkTitle(attrs, "Updated"),
				Currency:  code,
			}.Normalize())
		}
	}

	if paidRaw, ok := stringAt(attrs, "paid_at"); ok {
		if paidAt, ok := parseTime(paidRaw); ok {
			evt := v1.Event{
				ID:        v1.EventID(checkID, v1.SourceChecksAPI, "check.paid", paidRaw),
				Timestamp: paidAt,
				Source:    v1.SourceChecksAPI,
				Category:  v1.CategoryCheck,
				Type:      "check.paid",
				Title:     checkTitle(attrs, "Paid"),
				Currency:  code,
			}
			if total, ok := centsAt(attrs, "total_cents"); ok {
				evt.Description = "Total: " + currency.FormatCents(total, code)
			}
			events = append(events, evt.Normalize())
		}
	}

	// Line items have no timestamp of their own. Offsetting by (index+1)
	// seconds keeps them stably ordered after check.created.
	if hasCreated {
		for i, entry := range collectEntries(doc, attrs, "line_items") {
			name, _ := stringAt(entry, "name")
			evt := v1.Event{
				ID:        v1.EventID(checkID, v1.SourceChecksAPI, "check.line_item_added", strconv.Itoa(i), name),
				Timestamp: createdAt.Add(time.Duration(i+1) * time.Second),
				Source:    v1.SourceChecksAPI,
				Category:  v1.CategoryCheck,
				Type:      "check.line_item_added",
				Title:     lineItemTitle(name),
				Currency:  code,
				Metadata:  entry,
			}
			if cents, ok := firstCents(entry, "amount_cents", "total_cents", "cents", "price_cents", "amount"); ok {
				evt.Amount = v1.AmountOf(cents)
			}
			events = append(events, evt.Normalize())
		}
	}

	for i, entry := range collectEntries(doc, attrs, "discounts") {
		ts, ok := entryTimestamp(entry, attrs)
		if !ok {
			continue
		}
		name, _ := stringAt(entry, "name")
		cents, _ := firstCents(entry, "amount_cents", "total_cents", "cents", "amount")
		if cents < 0 {
			cents = -cents
		}
		events = append(events, v1.Event{
			ID:        v1.EventID(checkID, v1.SourceChecksAPI, "check.discount_applied", strconv.Itoa(i), name),
			Timestamp: ts,
			Source:    v1.SourceChecksAPI,
			Category:  v1.CategoryCheck,
			Type:      "check.discount_applied",
			Title:     namedTitle("Discount Applied", name),
			Amount:    v1.AmountOf(-cents),
			Currency:  code,
			Metadata:  entry,
		}.Normalize())
	}

	for i, entry := range collectEntries(doc, attrs, "service_charges") {
		ts, ok := entryTimestamp(entry, attrs)
		if !ok {
			continue
		}
		name, _ := stringAt(entry, "name")
		cents, _ := firstCents(entry, "amount_cents", "total_cents", "cents", "amount")
		if cents < 0 {
			cents = -cents
		}
		events = append(events, v1.Event{
			ID:        v1.EventID(checkID, v1.SourceChecksAPI, "check.service_charge_added", strconv.Itoa(i), name),
			Timestamp: ts,
			Source:    v1.SourceChecksAPI,
			Category:  v1.CategoryCheck,
			Type:      "check.service_charge_added",
			Title:     namedTitle("Service Charge Added", name),
			Amount:    v1.AmountOf(cents),
			Currency:  code,
			Metadata:  entry,
		}.Normalize())
	}

	return events, nil
}

// ParseCheckTotalCents extracts the authoritative total from a check
// document. Nil when absent; never an error.
func ParseCheckTotalCents(doc map[string]any) *int64 {
	data, ok := mapAt(doc, "data")
	if !ok {
		return nil
	}
	attrs, ok := mapAt(data, "attributes")
	if !ok {
		return nil
	}
	total, ok := centsAt(attrs, "total_cents")
	if !ok {
		return nil
	}
	return v1.AmountOf(total)
}

// ParseCheckID pulls the check identifier out of a check document, empty
// string when absent.
func ParseCheckID(doc map[string]any) string {
	data, ok := mapAt(doc, "data")
	if !ok {
		return ""
	}
	id, _ := stringAt(data, "id")
	return id
}

// checkMetadata copies the raw scalar attributes worth surfacing alongside
// the creation event.
func checkMetadata(attrs map[string]any) map[string]any {
	meta := make(map[string]any)
	for _, key := range []string{"number", "status", "table_name", "covers", "currency"} {
		if v, ok := attrs[key]; ok && v != nil {
			meta[key] = v
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func checkCurrency(attrs map[string]any) string {
	if code, ok := stringAt(attrs, "currency"); ok {
		return code
	}
	return v1.DefaultCurrency
}

func checkTitle(attrs map[string]any, verb string) string {
	if number, ok := stringAt(attrs, "number"); ok {
		return fmt.Sprintf("Check #%s %s", number, verb)
	}
	return "Check " + verb
}

func lineItemTitle(name string) string {
	return namedTitle("Line Item Added", name)
}

func namedTitle(prefix, name string) string {
	if name == "" {
		return prefix
	}
	return prefix + ": " + truncate(name, 60)
}

// collectEntries gathers the named sub-records either inline under
// attributes or as JSON:API included resources of the matching type.
func collectEntries(doc, attrs map[string]any, key string) []map[string]any {
	var out []map[string]any
	if inline, ok := sliceAt(attrs, key); ok {
		for _, raw := range inline {
			if m, ok := asMap(raw); ok {
				out = append(out, m)
			}
		}
		return out
	}

	included, ok := sliceAt(doc, "included")
	if !ok {
		return nil
	}
	for _, raw := range included {
		res, ok := asMap(raw)
		if !ok {
			continue
		}
		if typ, _ := stringAt(res, "type"); typ != key {
			continue
		}
		if resAttrs, ok := mapAt(res, "attributes"); ok {
			out = append(out, resAttrs)
		}
	}
	return out
}

// entryTimestamp resolves a sub-record's timestamp: its own created_at, then
// the check's updated_at, then the check's created_at.
func entryTimestamp(entry, attrs map[string]any) (time.Time, bool) {
	if ts, ok := timeAt(entry, "created_at"); ok {
		return ts, true
	}
	if ts, ok := timeAt(attrs, "updated_at"); ok {
		return ts, true
	}
	return timeAt(attrs, "created_at")
}
