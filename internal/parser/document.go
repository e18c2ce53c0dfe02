package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is a fetched HTML page ready for extraction.
type Document struct {
	Raw string
	DOM *goquery.Document
	URL string
}

func NewDocument(body []byte, pageURL string) (*Document, error) {
	dom, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return &Document{
		Raw: string(body),
		DOM: dom,
		URL: pageURL,
	}, nil
}

// Canonical returns the page's canonical link resolved against its URL,
// or "" when the page declares none.
func (d *Document) Canonical() string {
	href, ok := d.DOM.Find(`link[rel="canonical"]`).First().Attr("href")
	if !ok {
		return ""
	}
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	base, err := url.Parse(d.URL)
	if err != nil || d.URL == "" {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// MetaContent returns the trimmed content of the first meta tag matching selector.
func (d *Document) MetaContent(selector string) string {
	v, _ := d.DOM.Find(selector).First().Attr("content")
	return strings.TrimSpace(v)
}
