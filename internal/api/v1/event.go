package v1

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Source identifies the origin system of an event.
type Source string

const (
	SourceChecksAPI  Source = "checks_api"
	SourceRaygun     Source = "raygun"
	SourcePaperTrail Source = "paper_trail"
	SourceUnknown    Source = "unknown"
)

// Category is the coarse classification of an event.
type Category string

const (
	CategoryCheck     Category = "check"
	CategoryPayment   Category = "payment"
	CategoryException Category = "exception"
	CategoryVersion   Category = "version"
	CategoryUnknown   Category = "unknown"
)

// Severity grades how alarming an event is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event is the canonical immutable record produced by every source.
// Once constructed it is never mutated; derived views copy, they don't edit.
type Event struct {
	// ID is a deterministic content hash of (check ID, source, components).
	// Same inputs always yield the same ID, so reprocessing is idempotent.
	ID string `json:"id"`

	// Timestamp is the sort key. Millisecond precision must survive
	// parsing and sorting. Never zero once constructed.
	Timestamp time.Time `json:"timestamp"`

	Source   Source   `json:"source"`
	Category Category `json:"category"`

	// Type is the fine-grained dotted label, e.g. "payment.captured".
	Type string `json:"type"`

	// Title is the one-line headline; Description carries the
	// newline-separated detail and may be empty.
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Severity Severity `json:"severity"`

	// Amount is the minor-unit monetary value carried by this event.
	// Negative means debit/refund/discount. Nil means the event does not
	// contribute to the value ledger at all.
	Amount *int64 `json:"amount,omitempty"`

	// Currency is the ISO 4217 code, defaulting to GBP.
	Currency string `json:"currency"`

	// Metadata is a raw passthrough of source fields, arbitrary shape.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DefaultCurrency is assumed whenever a document carries no currency.
const DefaultCurrency = "GBP"

// EventID derives the deterministic event identifier from the check ID, the
// source name and any caller-supplied components. SHA-256 over the joined
// inputs, truncated to 16 hex chars; collisions within one check's few
// hundred events are not a practical concern.
func EventID(checkID string, source Source, components ...string) string {
	h := sha256.New()
	h.Write([]byte(checkID))
	h.Write([]byte{0})
	h.Write([]byte(source))
	for _, c := range components {
		h.Write([]byte{0})
		h.Write([]byte(c))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ParseSource coerces a loose raw value into a Source. Unrecognized non-blank
// values are accepted verbatim: the renderer uses them for icon-lookup
// fallback, so flattening them to "unknown" would lose information.
func ParseSource(raw string) Source {
	switch s := Source(normalizeEnum(raw)); s {
	case SourceChecksAPI, SourceRaygun, SourcePaperTrail, SourceUnknown:
		return s
	}
	if strings.TrimSpace(raw) == "" {
		return SourceUnknown
	}
	return Source(raw)
}

// ParseCategory coerces a loose raw value into a Category, falling back to
// CategoryUnknown.
func ParseCategory(raw string) Category {
	switch c := Category(normalizeEnum(raw)); c {
	case CategoryCheck, CategoryPayment, CategoryException, CategoryVersion:
		return c
	}
	return CategoryUnknown
}

// ParseSeverity coerces a loose raw value into a Severity, falling back to
// SeverityInfo.
func ParseSeverity(raw string) Severity {
	switch s := Severity(normalizeEnum(raw)); s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return s
	}
	return SeverityInfo
}

func normalizeEnum(raw string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), ":")))
}

// Validate ensures the event carries the attributes every consumer relies on.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if e.Type == "" {
		return fmt.Errorf("type is required")
	}
	if e.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

// Normalize fills the defaulted fields and returns the value. Meant for use
// at construction time, before the event escapes its builder.
func (e Event) Normalize() Event {
	if e.Category == "" {
		e.Category = CategoryUnknown
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	if e.Source == "" {
		e.Source = SourceUnknown
	}
	if e.Currency == "" {
		e.Currency = DefaultCurrency
	}
	return e
}

// IsError reports whether the event belongs in the error subset.
func (e Event) IsError() bool {
	return e.Severity == SeverityError || e.Severity == SeverityCritical
}

// AmountOf is a convenience for building the optional Amount field.
func AmountOf(cents int64) *int64 {
	return &cents
}
