package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	MaxSpecs      = 36
	maxSpecKeyLen = 80
	maxSpecValLen = 260
	specEllipsis  = "..."
)

// SpecPair is a raw key/value pair before normalisation.
type SpecPair struct {
	Key   string
	Value string
}

var specNoiseKeys = map[string]struct{}{
	"asin": {}, "manufacturer": {}, "customerreviews": {}, "customerrating": {},
	"reviews": {}, "ratings": {}, "bestsellersrank": {}, "datefirstavailable": {},
	"sellers": {}, "seller": {}, "returnpolicy": {}, "delivery": {}, "offers": {},
	"warranty": {}, "services": {}, "producturl": {}, "url": {}, "image": {},
	"sku": {}, "modelnumber": {}, "itemmodelnumber": {},
}

var specUnavailableValues = map[string]struct{}{
	"na": {}, "n/a": {}, "not available": {}, "none": {}, "-": {}, "--": {},
}

var (
	bidiControlPattern = regexp.MustCompile(`[\x{200e}\x{200f}\x{202a}-\x{202e}]`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
	specKeyFoldPattern = regexp.MustCompile(`[^a-z0-9]+`)
)

func cleanSpecText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = bidiControlPattern.ReplaceAllString(s, "")
	s = strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
	return strings.TrimSpace(strings.Trim(s, ": "))
}

// FoldSpecKey is the de-duplication form of a key: lower case, alphanumerics only.
func FoldSpecKey(key string) string {
	return specKeyFoldPattern.ReplaceAllString(strings.ToLower(key), "")
}

// IsNoiseSpecKey reports whether a folded key is dropped from specifications.
func IsNoiseSpecKey(folded string) bool {
	_, ok := specNoiseKeys[folded]
	return ok
}

// NormalizeSpecs cleans and de-duplicates pairs, keeping first-seen order.
// It returns the map and the key order; at most MaxSpecs entries survive.
func NormalizeSpecs(pairs []SpecPair) (map[string]string, []string) {
	specs := make(map[string]string)
	order := make([]string, 0)
	seen := make(map[string]struct{})

	for _, p := range pairs {
		key := cleanSpecText(p.Key)
		val := cleanSpecText(p.Value)
		if key == "" || val == "" {
			continue
		}

		folded := FoldSpecKey(key)
		if folded == "" || IsNoiseSpecKey(folded) {
			continue
		}
		if _, dup := seen[folded]; dup {
			continue
		}
		if _, na := specUnavailableValues[strings.ToLower(val)]; na {
			continue
		}
		if utf8.RuneCountInString(key) > maxSpecKeyLen {
			continue
		}
		if utf8.RuneCountInString(val) > maxSpecValLen {
			runes := []rune(val)
			val = strings.TrimRight(string(runes[:maxSpecValLen-len(specEllipsis)]), " \t\n") + specEllipsis
		}

		if _, exists := specs[key]; !exists {
			order = append(order, key)
		}
		specs[key] = val
		seen[folded] = struct{}{}

		if len(specs) >= MaxSpecs {
			break
		}
	}

	return specs, order
}

// specsFromBlocks reads key/value pairs from tables, definition lists and
// "key: value" list items under each selector.
func specsFromBlocks(doc *goquery.Document, selectors []string) []SpecPair {
	var pairs []SpecPair

	for _, selector := range selectors {
		doc.Find(selector).Each(func(_ int, block *goquery.Selection) {
			block.Find("tr").Each(func(_ int, row *goquery.Selection) {
				cells := row.ChildrenFiltered("th, td")
				if cells.Length() == 0 {
					cells = row.Find("th, td")
				}
				if cells.Length() >= 2 {
					pairs = append(pairs, SpecPair{
						Key:   textOf(cells.First()),
						Value: textOf(cells.Last()),
					})
				}
			})

			dts := block.Find("dt")
			dds := block.Find("dd")
			if dts.Length() > 0 && dds.Length() > 0 {
				n := min(dts.Length(), dds.Length())
				for i := 0; i < n; i++ {
					pairs = append(pairs, SpecPair{
						Key:   textOf(dts.Eq(i)),
						Value: textOf(dds.Eq(i)),
					})
				}
			}

			block.Find("li").Each(func(_ int, li *goquery.Selection) {
				text := textOf(li)
				if k, v, ok := strings.Cut(text, ":"); ok {
					pairs = append(pairs, SpecPair{Key: k, Value: v})
					return
				}
				spans := li.Find("span")
				if spans.Length() >= 2 {
					pairs = append(pairs, SpecPair{
						Key:   textOf(spans.First()),
						Value: textOf(spans.Last()),
					})
				}
			})
		})
	}

	return pairs
}

// scalarString renders a JSON scalar as text; ok is false for objects,
// arrays and null.
func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	case nil, *jsonObject, []any:
		return "", false
	default:
		return fmt.Sprint(val), true
	}
}
