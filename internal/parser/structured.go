package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maltedev/marketplace-analyzer/internal/models"
)

var ErrEmptyRecord = errors.New("no title, price or image found")

var (
	structuredPriceKeys   = []string{"price", "pricing", "list_price", "sale_price", "original_price"}
	structuredNestedPrice = []string{"current_price", "price", "sale_price"}
	structuredImageKeys   = []string{"main_image", "image", "thumbnail"}

	structuredSpecKeys = []string{
		"specifications", "specs", "technical_details", "product_details",
		"attributes", "details", "feature_bullets", "about_this_item",
	}
	structuredFlatSpecKeys = []string{
		"brand", "model", "color", "size", "material", "item_weight",
		"memory_storage_capacity", "screen_size", "operating_system",
		"ram_memory_installed_size",
	}
	structuredSkipKeys = map[string]struct{}{
		"@context": {}, "@type": {}, "url": {}, "image": {}, "description": {},
	}
)

// ParseStructured converts a structured-data service product payload into a
// record. It returns ErrEmptyRecord when the payload has no title, price or image.
func ParseStructured(body []byte, bounds PriceBounds) (*models.ProductRecord, error) {
	data, err := decodeJSON(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to decode structured payload: %w", err)
	}
	obj, ok := data.(*jsonObject)
	if !ok {
		return nil, fmt.Errorf("structured payload is not an object")
	}

	b := NewRecordBuilder(models.MarketplaceAmazon, firstString(obj, "url", "product_url"), bounds)

	b.FillTitle(firstString(obj, "name", "product_title"))

	for _, key := range structuredPriceKeys {
		if v := obj.get(key); truthy(v) && b.FillPriceValue(v) {
			break
		}
	}
	if pricing, ok := obj.get("pricing").(*jsonObject); ok && !b.HasPrice() {
		for _, key := range structuredNestedPrice {
			if v := pricing.get(key); truthy(v) && b.FillPriceValue(v) {
				break
			}
		}
	}

	b.FillImage(structuredImage(obj))

	if avail, ok := scalarString(obj.get("availability")); ok {
		b.SetAvailability(avail)
	}

	b.AddSpecs(structuredSpecs(obj)...)

	record := b.Build()
	if record == nil {
		return nil, ErrEmptyRecord
	}
	return record, nil
}

func firstString(obj *jsonObject, keys ...string) string {
	for _, key := range keys {
		if s := obj.str(key); s != "" {
			return s
		}
	}
	return ""
}

func structuredImage(obj *jsonObject) string {
	for _, key := range []string{"images", "product_photos"} {
		list, ok := obj.get(key).([]any)
		if !ok || len(list) == 0 {
			continue
		}
		if s, ok := list[0].(string); ok {
			return s
		}
		break
	}
	return firstString(obj, structuredImageKeys...)
}

// structuredSpecs walks the candidate spec containers; when they yield
// nothing it falls back to a few well-known flat keys.
func structuredSpecs(obj *jsonObject) []SpecPair {
	var pairs []SpecPair
	for _, key := range structuredSpecKeys {
		if obj.has(key) {
			pairs = append(pairs, collectStructuredPairs(obj.get(key))...)
		}
	}
	if len(pairs) > 0 {
		return pairs
	}

	for _, key := range structuredFlatSpecKeys {
		v := obj.get(key)
		if _, isBool := v.(bool); isBool {
			continue
		}
		if s, ok := scalarString(v); ok && strings.TrimSpace(s) != "" {
			pairs = append(pairs, SpecPair{Key: strings.ReplaceAll(key, "_", " "), Value: s})
		}
	}
	return pairs
}

// collectStructuredPairs reads name/value objects and scalar leaves in
// document order, bounded like ldSpecs.
func collectStructuredPairs(root any) []SpecPair {
	var pairs []SpecPair

	stack := []ldNode{{value: root}}
	for visited := 0; len(stack) > 0 && visited < maxLDNodes; {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if n.pair != nil {
			pairs = append(pairs, *n.pair)
			continue
		}
		visited++

		var next []ldNode
		switch node := n.value.(type) {
		case *jsonObject:
			if node.has("name") && node.has("value") {
				if val, ok := scalarString(node.get("value")); ok {
					name, _ := scalarString(node.get("name"))
					pairs = append(pairs, SpecPair{Key: name, Value: val})
				}
			}
			for _, k := range node.keys {
				if _, skip := structuredSkipKeys[k]; skip {
					continue
				}
				switch v := node.values[k].(type) {
				case *jsonObject, []any:
					next = append(next, ldNode{value: v, depth: n.depth + 1})
				case nil:
				default:
					if k == "name" || k == "value" {
						continue
					}
					if s, ok := scalarString(v); ok {
						next = append(next, ldNode{pair: &SpecPair{Key: strings.ReplaceAll(k, "_", " "), Value: s}})
					}
				}
			}
		case []any:
			for _, v := range node {
				next = append(next, ldNode{value: v, depth: n.depth + 1})
			}
		}

		for i := len(next) - 1; i >= 0; i-- {
			if next[i].pair == nil && n.depth >= maxLDDepth {
				continue
			}
			stack = append(stack, next[i])
		}
	}

	return pairs
}
