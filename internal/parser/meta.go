package parser

// MetaExtractor is the last resort: Open Graph, product price and Twitter card tags.
type MetaExtractor struct{}

func NewMetaExtractor() *MetaExtractor {
	return &MetaExtractor{}
}

func (e *MetaExtractor) Name() string { return "meta" }

func (e *MetaExtractor) Fill(doc *Document, b *RecordBuilder) {
	if !b.HasTitle() {
		if !b.FillTitle(doc.MetaContent(`meta[property="og:title"]`)) {
			b.FillTitle(doc.MetaContent(`meta[name="twitter:title"]`))
		}
	}
	if !b.HasPrice() {
		b.FillPriceText(doc.MetaContent(`meta[property="product:price:amount"]`))
	}
	if !b.HasImage() {
		if !b.FillImage(doc.MetaContent(`meta[property="og:image"]`)) {
			b.FillImage(doc.MetaContent(`meta[name="twitter:image"]`))
		}
	}
}
