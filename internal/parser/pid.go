package parser

import (
	"net/url"
	"regexp"
)

const (
	// pidWindow is how far apart a pid and its price may sit in the page source.
	pidWindow = 1800

	// pidPriceFloor marks generic matches that are probably an accessory or EMI amount.
	pidPriceFloor = 1000

	// pidSlack leaves room for the matched token itself past the window edge.
	pidSlack = 256
)

var (
	pidFinalPricePattern = regexp.MustCompile(`"finalPrice"\s*:\s*(\d{3,7})`)
	pidOtherPricePattern = regexp.MustCompile(`"(?:sellingPrice|specialPrice|mrp)"\s*:\s*(\d{3,7})`)
)

// PIDPriceExtractor prefers a price tied to the page's pid query parameter.
// It fills an empty price, and replaces a generic price below 1000 when the
// pid-tied price is 1000 or more.
type PIDPriceExtractor struct{}

func NewPIDPriceExtractor() *PIDPriceExtractor {
	return &PIDPriceExtractor{}
}

func (e *PIDPriceExtractor) Name() string { return "pid-price" }

func (e *PIDPriceExtractor) Fill(doc *Document, b *RecordBuilder) {
	pid := productID(b.URL())
	if pid == "" {
		return
	}

	pidPrice, ok := PIDPrice(doc.Raw, pid, b.Bounds())
	if !ok {
		return
	}

	current, has := b.Price()
	switch {
	case !has:
		b.FillPrice(pidPrice)
	case current < pidPriceFloor && pidPrice >= pidPriceFloor:
		b.OverridePrice(pidPrice)
	}
}

func productID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("pid")
}

// PIDPrice looks for a price within pidWindow bytes of the pid marker: a
// finalPrice after it, then a finalPrice before it, then a selling, special
// or MRP price after it.
func PIDPrice(raw, pid string, bounds PriceBounds) (float64, bool) {
	pidPattern := regexp.MustCompile(`"pid"\s*:\s*"` + regexp.QuoteMeta(pid) + `"`)

	searches := []func() (string, bool){
		func() (string, bool) { return valueAfter(raw, pidPattern, pidFinalPricePattern) },
		func() (string, bool) { return valueBefore(raw, pidFinalPricePattern, pidPattern) },
		func() (string, bool) { return valueAfter(raw, pidPattern, pidOtherPricePattern) },
	}

	for _, search := range searches {
		text, ok := search()
		if !ok {
			continue
		}
		if v, ok := bounds.Normalize(text); ok {
			return v, true
		}
	}
	return 0, false
}

// valueAfter returns the first capture of value that starts within pidWindow
// bytes after any match of anchor.
func valueAfter(raw string, anchor, value *regexp.Regexp) (string, bool) {
	for _, loc := range anchor.FindAllStringIndex(raw, -1) {
		window := raw[loc[1]:min(len(raw), loc[1]+pidWindow+pidSlack)]
		m := value.FindStringSubmatchIndex(window)
		if m != nil && m[0] <= pidWindow {
			return window[m[2]:m[3]], true
		}
	}
	return "", false
}

// valueBefore returns the capture of the first value match followed by
// anchor within pidWindow bytes.
func valueBefore(raw string, value, anchor *regexp.Regexp) (string, bool) {
	for _, m := range value.FindAllStringSubmatchIndex(raw, -1) {
		rest := raw[m[1]:min(len(raw), m[1]+pidWindow+pidSlack)]
		loc := anchor.FindStringIndex(rest)
		if loc != nil && loc[0] <= pidWindow {
			return raw[m[2]:m[3]], true
		}
	}
	return "", false
}
