package currency

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// symbols covers the currencies the checks platform actually operates in.
// Unknown codes fall back to "CODE 12.00" rather than guessing a symbol.
var symbols = map[string]string{
	"GBP": "£",
	"EUR": "€",
	"USD": "$",
	"AUD": "A$",
	"NZD": "NZ$",
	"CAD": "C$",
	"JPY": "¥",
	"CHF": "CHF ",
	"SEK": "kr ",
	"NOK": "kr ",
	"DKK": "kr ",
}

// FormatCents renders a minor-unit amount as a display string, e.g.
// FormatCents(1200, "GBP") == "£12.00". Negative amounts put the sign in
// front of the symbol: "-£2.00". Decimal arithmetic keeps the conversion to
// major units exact.
func FormatCents(cents int64, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = "GBP"
	}

	neg := cents < 0
	abs := cents
	if neg {
		abs = -abs
	}
	major := decimal.New(abs, -2).StringFixed(2)

	sym, ok := symbols[code]
	if !ok {
		if neg {
			return fmt.Sprintf("%s -%s", code, major)
		}
		return fmt.Sprintf("%s %s", code, major)
	}
	if neg {
		return "-" + sym + major
	}
	return sym + major
}

// FormatOptionalCents renders a nullable amount, using an em-dash for nil.
func FormatOptionalCents(cents *int64, code string) string {
	if cents == nil {
		return "—"
	}
	return FormatCents(*cents, code)
}
