package parser

import (
	"strconv"
	"time"

	v1 "github.com/checkline-lab/checkline/internal/api/v1"
	"github.com/checkline-lab/checkline/internal/core/currency"
)

// ParsePaymentsDocument translates a payments document into payment events.
// Three shapes are accepted: a raw array, {"data": [...]} and
// {"payments": [...]}. Anything else yields an empty result, never an error:
// a source that returns an unexpected payments shape just contributes no
// payment events.
func ParsePaymentsDocument(doc any, checkID, defaultCurrency string) []v1.Event {
	records := paymentRecords(doc)
	if len(records) == 0 {
		return nil
	}

	var events []v1.Event
	for i, rec := range records {
		events = append(events, parsePayment(rec, i, checkID, defaultCurrency)...)
	}
	return events
}

func paymentRecords(doc any) []map[string]any {
	var raw []any
	switch t := doc.(type) {
	case []any:
		raw = t
	case map[string]any:
		if s, ok := sliceAt(t, "data"); ok {
			raw = s
		} else if s, ok := sliceAt(t, "payments"); ok {
			raw = s
		}
	}

	var out []map[string]any
	for _, r := range raw {
		if m, ok := asMap(r); ok {
			// JSON:API resources nest the payload under attributes.
			if attrs, ok := mapAt(m, "attributes"); ok {
				out = append(out, attrs)
				continue
			}
			out = append(out, m)
		}
	}
	return out
}

// parsePayment emits the lifecycle events one payment record supports. The
// rules are independent: a captured-then-refunded payment emits three events.
func parsePayment(rec map[string]any, index int, checkID, defaultCurrency string) []v1.Event {
	code := defaultCurrency
	if c, ok := stringAt(rec, "currency"); ok {
		code = c
	}

	amount, _ := firstCents(rec, "amount_cents", "total_cents", "cents", "amount")
	money := currency.FormatCents(amount, code)
	idx := strconv.Itoa(index)

	build := func(typ, title string, ts time.Time, sev v1.Severity, cents int64) v1.Event {
		evt := v1.Event{
			ID:        v1.EventID(checkID, v1.SourceChecksAPI, typ, idx, ts.Format(time.RFC3339Nano)),
			Timestamp: ts,
			Source:    v1.SourceChecksAPI,
			Category:  v1.CategoryPayment,
			Type:      typ,
			Title:     title,
			Severity:  sev,
			Amount:    v1.AmountOf(cents),
			Currency:  code,
			Metadata:  paymentMetadata(rec),
		}
		return evt.Normalize()
	}

	var events []v1.Event

	if ts, ok := firstTime(rec, "created_at", "initiated_at"); ok {
		events = append(events, build("payment.initiated", "Payment Initiated: "+money, ts, v1.SeverityInfo, amount))
	}
	if ts, ok := firstTime(rec, "captured_at", "succeeded_at"); ok {
		events = append(events, build("payment.captured", "Payment Captured: "+money, ts, v1.SeverityInfo, amount))
	}
	if ts, ok := timeAt(rec, "failed_at"); ok {
		events = append(events, build("payment.failed", "Payment Failed: "+money, ts, v1.SeverityError, amount))
	}
	if ts, ok := timeAt(rec, "refunded_at"); ok {
		refund := amount
		if refund > 0 {
			refund = -refund
		}
		events = append(events, build("payment.refunded", "Payment Refunded: "+money, ts, v1.SeverityWarning, refund))
	}

	return events
}

func firstTime(m map[string]any, keys ...string) (time.Time, bool) {
	for _, key := range keys {
		if ts, ok := timeAt(m, key); ok {
			return ts, true
		}
	}
	return time.Time{}, false
}

func paymentMetadata(rec map[string]any) map[string]any {
	meta := make(map[string]any)
	for _, key := range []string{"method", "status", "reference", "provider", "card_brand"} {
		if v, ok := rec[key]; ok && v != nil {
			meta[key] = v
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
