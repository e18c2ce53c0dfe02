package parser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// PriceBounds is the exclusive range a parsed price must fall in.
type PriceBounds struct {
	Min float64
	Max float64
}

// DefaultBounds rejects prices at or below 10 and at or above ten million.
var DefaultBounds = PriceBounds{Min: 10, Max: 10_000_000}

var (
	priceSymbolPattern  = regexp.MustCompile(`[,\x{00a0}₹$£€]`)
	currencyCodePattern = regexp.MustCompile(`(?i)(INR|MRP|RS\.?|USD)`)
	priceNumberPattern  = regexp.MustCompile(`(?:^|[^\d.])(\d{2,}(?:\.\d+)?)`)
)

// Contains reports whether v lies strictly inside the bounds.
func (b PriceBounds) Contains(v float64) bool {
	return v > b.Min && v < b.Max
}

// Normalize strips currency symbols, thousands separators and currency
// codes from text and parses the first decimal number with at least two
// integer digits. ok is false when no number is found or the number is
// outside the bounds.
func (b PriceBounds) Normalize(text string) (float64, bool) {
	t := priceSymbolPattern.ReplaceAllString(text, "")
	t = strings.TrimSpace(currencyCodePattern.ReplaceAllString(t, ""))

	m := priceNumberPattern.FindStringSubmatch(t)
	if m == nil {
		return 0, false
	}

	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || !b.Contains(v) {
		return 0, false
	}
	return v, true
}

// NormalizeValue accepts the loosely typed price values found in JSON
// payloads (strings, numbers, json.Number).
func (b PriceBounds) NormalizeValue(v any) (float64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case string:
		return b.Normalize(val)
	case float64:
		return b.Normalize(strconv.FormatFloat(val, 'f', -1, 64))
	case json.Number:
		return b.Normalize(val.String())
	case int:
		return b.Normalize(strconv.Itoa(val))
	default:
		return 0, false
	}
}

// NormalizePrice applies DefaultBounds.
func NormalizePrice(text string) (float64, bool) {
	return DefaultBounds.Normalize(text)
}

// FormatPrice renders a normalised price so that NormalizePrice(FormatPrice(v)) == v.
func FormatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
