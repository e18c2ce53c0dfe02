package parser

import (
	"strings"

	"github.com/maltedev/marketplace-analyzer/internal/models"
)

// RecordBuilder accumulates fields from successive extractors. A field is
// only written while it is still empty, so earlier extractors win.
type RecordBuilder struct {
	marketplace  models.Marketplace
	url          string
	title        string
	price        *float64
	image        string
	availability string
	specPairs    []SpecPair
	bounds       PriceBounds
}

func NewRecordBuilder(m models.Marketplace, pageURL string, bounds PriceBounds) *RecordBuilder {
	return &RecordBuilder{
		marketplace: m,
		url:         pageURL,
		bounds:      bounds,
	}
}

func (b *RecordBuilder) HasTitle() bool { return b.title != "" }
func (b *RecordBuilder) HasPrice() bool { return b.price != nil }
func (b *RecordBuilder) HasImage() bool { return b.image != "" }

// Complete reports whether title, price and image are all set.
func (b *RecordBuilder) Complete() bool {
	return b.HasTitle() && b.HasPrice() && b.HasImage()
}

func (b *RecordBuilder) Price() (float64, bool) {
	if b.price == nil {
		return 0, false
	}
	return *b.price, true
}

func (b *RecordBuilder) Bounds() PriceBounds { return b.bounds }

func (b *RecordBuilder) URL() string { return b.url }

func (b *RecordBuilder) FillTitle(title string) bool {
	title = strings.TrimSpace(title)
	if b.title != "" || title == "" {
		return false
	}
	b.title = title
	return true
}

// FillPriceText parses text within the builder's bounds.
func (b *RecordBuilder) FillPriceText(text string) bool {
	if b.price != nil {
		return false
	}
	if v, ok := b.bounds.Normalize(text); ok {
		b.price = &v
		return true
	}
	return false
}

func (b *RecordBuilder) FillPriceValue(v any) bool {
	if b.price != nil {
		return false
	}
	if p, ok := b.bounds.NormalizeValue(v); ok {
		b.price = &p
		return true
	}
	return false
}

func (b *RecordBuilder) FillPrice(v float64) bool {
	if b.price != nil || !b.bounds.Contains(v) {
		return false
	}
	b.price = &v
	return true
}

// OverridePrice replaces an already-set price. Only refinements that
// know better than generic matches use it.
func (b *RecordBuilder) OverridePrice(v float64) {
	if b.bounds.Contains(v) {
		b.price = &v
	}
}

// FillImage accepts only absolute http(s) URLs; protocol-relative URLs are
// upgraded to https.
func (b *RecordBuilder) FillImage(raw string) bool {
	if b.image != "" {
		return false
	}
	if img := NormalizeImageURL(raw); img != "" {
		b.image = img
		return true
	}
	return false
}

func (b *RecordBuilder) SetAvailability(text string) {
	if text = strings.TrimSpace(text); text != "" && b.availability == "" {
		b.availability = text
	}
}

func (b *RecordBuilder) SetURL(u string) {
	if u = strings.TrimSpace(u); u != "" {
		b.url = u
	}
}

func (b *RecordBuilder) AddSpecs(pairs ...SpecPair) {
	b.specPairs = append(b.specPairs, pairs...)
}

// Build returns nil when no title, price or image was found.
func (b *RecordBuilder) Build() *models.ProductRecord {
	if b.title == "" && b.price == nil && b.image == "" {
		return nil
	}

	specs, order := NormalizeSpecs(b.specPairs)

	availability := b.availability
	if availability == "" {
		availability = models.AvailabilityInStock
	}

	record := &models.ProductRecord{
		Platform:     b.marketplace.DisplayName(),
		Title:        b.title,
		ImageURL:     b.image,
		URL:          b.url,
		Availability: availability,
		Specs:        specs,
		SpecOrder:    order,
	}
	if b.price != nil {
		record.Price = models.Float(*b.price)
	}
	return record
}

// NormalizeImageURL returns raw as an absolute http(s) URL or "".
func NormalizeImageURL(raw string) string {
	u := strings.TrimSpace(raw)
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return ""
}
