package parser

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// textOf joins the trimmed text nodes under sel with single spaces.
func textOf(sel *goquery.Selection) string {
	var parts []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	for _, n := range sel.Nodes {
		walk(n)
	}

	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// firstJSONKey returns the first key of a JSON object in document order.
func firstJSONKey(raw string) (string, bool) {
	dec := json.NewDecoder(strings.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return "", false
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return "", false
	}

	tok, err = dec.Token()
	if err != nil {
		return "", false
	}
	key, ok := tok.(string)
	return key, ok
}

// attrOr returns the first non-empty attribute among names.
func attrOr(sel *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := sel.Attr(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
