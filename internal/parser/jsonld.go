package parser

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxLDDepth = 32
	maxLDNodes = 2000
)

// Keys whose subtrees never carry additionalProperty specs.
var ldSkipKeys = map[string]struct{}{
	"@context": {}, "@type": {}, "url": {}, "image": {},
	"name": {}, "offers": {}, "description": {},
}

// JSONLDExtractor reads schema.org product markup from ld+json script tags.
type JSONLDExtractor struct{}

func NewJSONLDExtractor() *JSONLDExtractor {
	return &JSONLDExtractor{}
}

func (e *JSONLDExtractor) Name() string { return "json-ld" }

func (e *JSONLDExtractor) Fill(doc *Document, b *RecordBuilder) {
	for _, data := range ldBlocks(doc.DOM) {
		for _, item := range ldItems(data) {
			if !b.HasTitle() {
				b.FillTitle(item.str("name"))
			}
			if !b.HasImage() {
				b.FillImage(ldImage(item.get("image")))
			}
			if !b.HasPrice() {
				b.FillPriceValue(ldOfferPrice(item.get("offers")))
			}
		}
		b.AddSpecs(ldSpecs(data)...)
	}
}

// ldBlocks decodes every ld+json script; malformed blocks are skipped.
func ldBlocks(dom *goquery.Document) []any {
	var blocks []any
	dom.Find(`script[type="application/ld+json"]`).Each(func(_ int, sc *goquery.Selection) {
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			return
		}
		data, err := decodeJSON(raw)
		if err != nil {
			return
		}
		blocks = append(blocks, data)
	})
	return blocks
}

// ldItems returns the top-level objects of a block, expanding @graph.
func ldItems(data any) []*jsonObject {
	roots, ok := data.([]any)
	if !ok {
		roots = []any{data}
	}

	var items []*jsonObject
	for _, r := range roots {
		obj, ok := r.(*jsonObject)
		if !ok {
			continue
		}
		items = append(items, obj)
		if graph, ok := obj.get("@graph").([]any); ok {
			for _, g := range graph {
				if gobj, ok := g.(*jsonObject); ok {
					items = append(items, gobj)
				}
			}
		}
	}
	return items
}

func ldImage(v any) string {
	switch img := v.(type) {
	case string:
		return img
	case []any:
		if len(img) > 0 {
			if s, ok := img[0].(string); ok {
				return s
			}
		}
	case *jsonObject:
		return img.str("url")
	}
	return ""
}

func ldOfferPrice(v any) any {
	switch offers := v.(type) {
	case *jsonObject:
		if p := offers.get("price"); truthy(p) {
			return p
		}
		return offers.get("lowPrice")
	case []any:
		if len(offers) > 0 {
			if first, ok := offers[0].(*jsonObject); ok {
				return first.get("price")
			}
		}
	}
	return nil
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case json.Number:
		f, err := val.Float64()
		return err != nil || f != 0
	case bool:
		return val
	default:
		return true
	}
}

// ldNode is a worklist entry: a JSON value to visit, or a pair to emit in place.
type ldNode struct {
	value any
	depth int
	pair  *SpecPair
}

// ldSpecs collects additionalProperty name/value pairs in depth-first
// document order. Traversal stops at maxLDDepth and after maxLDNodes nodes.
func ldSpecs(data any) []SpecPair {
	var pairs []SpecPair

	stack := []ldNode{{value: data}}
	for visited := 0; len(stack) > 0 && visited < maxLDNodes; visited++ {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var children []any
		switch node := n.value.(type) {
		case *jsonObject:
			pairs = append(pairs, additionalProperties(node.get("additionalProperty"))...)
			for _, k := range node.keys {
				if _, skip := ldSkipKeys[k]; !skip {
					children = append(children, node.values[k])
				}
			}
		case []any:
			children = node
		}

		if n.depth >= maxLDDepth {
			continue
		}
		for i := len(children) - 1; i >= 0; i-- {
			switch children[i].(type) {
			case *jsonObject, []any:
				stack = append(stack, ldNode{value: children[i], depth: n.depth + 1})
			}
		}
	}

	return pairs
}

func additionalProperties(v any) []SpecPair {
	var props []any
	switch ap := v.(type) {
	case []any:
		props = ap
	case *jsonObject:
		props = []any{ap}
	default:
		return nil
	}

	var pairs []SpecPair
	for _, p := range props {
		prop, ok := p.(*jsonObject)
		if !ok {
			continue
		}
		key, _ := scalarString(prop.get("name"))
		if key == "" {
			key, _ = scalarString(prop.get("key"))
		}
		val, ok := scalarString(prop.get("value"))
		if key == "" || !ok {
			continue
		}
		pairs = append(pairs, SpecPair{Key: key, Value: val})
	}
	return pairs
}
