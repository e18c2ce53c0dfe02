package parser

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const minTitleLen = 4

// SelectorProfile lists a marketplace's structural selectors, most specific
// first. ImageSource returns the image URL carried by a matched element, or "".
type SelectorProfile struct {
	Title        []string
	Price        []string
	Image        []string
	Specs        []string
	Availability string
	ImageSource  func(*goquery.Selection) string
	ExtraSpecs   func(*goquery.Document) []SpecPair
}

// SelectorExtractor reads title, price and image from the first element
// each selector matches, plus spec tables and availability.
type SelectorExtractor struct {
	profile SelectorProfile
}

func NewSelectorExtractor(profile SelectorProfile) *SelectorExtractor {
	return &SelectorExtractor{profile: profile}
}

func (e *SelectorExtractor) Name() string { return "selectors" }

func (e *SelectorExtractor) Fill(doc *Document, b *RecordBuilder) {
	dom := doc.DOM

	if !b.HasTitle() {
		for _, selector := range e.profile.Title {
			el := dom.Find(selector).First()
			if el.Length() == 0 {
				continue
			}
			if t := textOf(el); utf8.RuneCountInString(t) >= minTitleLen {
				b.FillTitle(t)
				break
			}
		}
	}

	if !b.HasPrice() {
		for _, selector := range e.profile.Price {
			el := dom.Find(selector).First()
			if el.Length() == 0 {
				continue
			}
			text, hasContent := el.Attr("content")
			if !hasContent {
				text = el.Text()
			}
			if b.FillPriceText(text) {
				break
			}
		}
	}

	if !b.HasImage() && e.profile.ImageSource != nil {
		for _, selector := range e.profile.Image {
			el := dom.Find(selector).First()
			if el.Length() == 0 {
				continue
			}
			if b.FillImage(e.profile.ImageSource(el)) {
				break
			}
		}
	}

	if e.profile.Availability != "" {
		if el := dom.Find(e.profile.Availability).First(); el.Length() > 0 {
			b.SetAvailability(textOf(el))
		}
	}

	b.AddSpecs(specsFromBlocks(dom, e.profile.Specs)...)
	if e.profile.ExtraSpecs != nil {
		b.AddSpecs(e.profile.ExtraSpecs(dom)...)
	}
}

// firstSrcsetEntry keeps the URL of the first candidate in a srcset-like value.
func firstSrcsetEntry(v string) string {
	first, _, _ := strings.Cut(v, ",")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
