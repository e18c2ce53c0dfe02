package parser

import (
	"regexp"
	"strings"
)

// Patterns over raw page text, tried in order. Each pattern contributes only
// its first match.
var (
	scriptPricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?s)"finalPrice"\s*:\s*\{[^{}]{0,220}?"value"\s*:\s*"?(\d[\d,]*\.?\d*)"?`),
		regexp.MustCompile(`"finalPrice"\s*:\s*(\d[\d,]*\.?\d*)`),
		regexp.MustCompile(`(?s)"sellingPrice"\s*:\s*\{[^{}]{0,220}?"(?:value|amount)"\s*:\s*"?(\d[\d,]*\.?\d*)"?`),
		regexp.MustCompile(`"priceToPayAmount"\s*:\s*"?(\d[\d,]*\.?\d*)"?`),
		regexp.MustCompile(`(?s)"listingPrice"\s*:\s*\{[^{}]{0,220}?"amount"\s*:\s*"?(\d[\d,]*\.?\d*)"?`),
		regexp.MustCompile(`"buyingPrice"\s*:\s*"?(\d[\d,]*\.?\d*)"?`),
		regexp.MustCompile(`"DisplayPrice"\s*:\s*"[₹\s]*([\d,]+)"`),
		regexp.MustCompile(`"priceAmount"\s*:\s*"?(\d[\d,]*\.?\d*)"?`),
		regexp.MustCompile(`"price"\s*:\s*"?(\d[\d,]*\.?\d*)"?`),
		regexp.MustCompile(`(?s)finalPrice.*?(\d{3,7})`),
	}

	scriptImagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`"hiRes"\s*:\s*"(https://[^"]+)"`),
		regexp.MustCompile(`"large"\s*:\s*"(https://[^"]+)"`),
		regexp.MustCompile(`"mainUrl"\s*:\s*"(https://[^"]+)"`),
		regexp.MustCompile(`data-old-hires="(https://[^"]+)"`),
		regexp.MustCompile(`"imageUrl"\s*:\s*"(https://[^"]+)"`),
		regexp.MustCompile(`"src"\s*:\s*"(https://[^"]+(?:jpg|jpeg|png|webp)[^"]*)"`),
	}

	jsEscapedSlash = strings.NewReplacer(`\u002F`, "/", `\/`, "/")
)

// ScriptExtractor fills price and image from inline script blobs. It never sets the title.
type ScriptExtractor struct{}

func NewScriptExtractor() *ScriptExtractor {
	return &ScriptExtractor{}
}

func (e *ScriptExtractor) Name() string { return "scripts" }

func (e *ScriptExtractor) Fill(doc *Document, b *RecordBuilder) {
	if !b.HasPrice() {
		if v, ok := ScriptPrice(doc.Raw, b.Bounds()); ok {
			b.FillPrice(v)
		}
	}
	if !b.HasImage() {
		b.FillImage(ScriptImage(doc.Raw))
	}
}

// ScriptPrice returns the first in-bounds price found by the script patterns.
func ScriptPrice(raw string, bounds PriceBounds) (float64, bool) {
	for _, pattern := range scriptPricePatterns {
		m := pattern.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		if v, ok := bounds.Normalize(m[1]); ok {
			return v, true
		}
	}
	return 0, false
}

// ScriptImage returns the first absolute image URL found by the script patterns.
func ScriptImage(raw string) string {
	for _, pattern := range scriptImagePatterns {
		m := pattern.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		if u := NormalizeImageURL(jsEscapedSlash.Replace(m[1])); u != "" {
			return u
		}
	}
	return ""
}
