package parser

import (
	"github.com/maltedev/marketplace-analyzer/internal/models"
)

// Extractor fills whatever fields of b are still empty from doc.
type Extractor interface {
	Name() string
	Fill(doc *Document, b *RecordBuilder)
}

// Engine applies its extractors in order over one document.
type Engine struct {
	marketplace  models.Marketplace
	bounds       PriceBounds
	useCanonical bool
	extractors   []Extractor
}

type EngineOption func(*Engine)

// WithBounds overrides DefaultBounds for every price the engine accepts.
func WithBounds(bounds PriceBounds) EngineOption {
	return func(e *Engine) {
		e.bounds = bounds
	}
}

// WithCanonicalURL makes the record URL follow the page's canonical link.
func WithCanonicalURL() EngineOption {
	return func(e *Engine) {
		e.useCanonical = true
	}
}

func NewEngine(m models.Marketplace, extractors []Extractor, opts ...EngineOption) *Engine {
	e := &Engine{
		marketplace: m,
		bounds:      DefaultBounds,
		extractors:  extractors,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewAmazonEngine builds the selector, script, JSON-LD and meta chain for Amazon pages.
func NewAmazonEngine(opts ...EngineOption) *Engine {
	return NewEngine(models.MarketplaceAmazon, []Extractor{
		NewSelectorExtractor(AmazonProfile()),
		NewScriptExtractor(),
		NewJSONLDExtractor(),
		NewMetaExtractor(),
	}, opts...)
}

// NewFlipkartEngine adds the pid price refinement after the script
// extractor and rewrites the record URL to the canonical link.
func NewFlipkartEngine(opts ...EngineOption) *Engine {
	opts = append([]EngineOption{WithCanonicalURL()}, opts...)
	return NewEngine(models.MarketplaceFlipkart, []Extractor{
		NewSelectorExtractor(FlipkartProfile()),
		NewScriptExtractor(),
		NewPIDPriceExtractor(),
		NewJSONLDExtractor(),
		NewMetaExtractor(),
	}, opts...)
}

func (e *Engine) Marketplace() models.Marketplace {
	return e.marketplace
}

// Extract returns nil when no extractor found a title, price or image.
func (e *Engine) Extract(doc *Document) *models.ProductRecord {
	b := NewRecordBuilder(e.marketplace, doc.URL, e.bounds)

	if e.useCanonical {
		if canonical := doc.Canonical(); canonical != "" {
			b.SetURL(canonical)
		}
	}

	for _, ex := range e.extractors {
		ex.Fill(doc, b)
	}

	return b.Build()
}

// ExtractHTML parses body and runs Extract against it.
func (e *Engine) ExtractHTML(body []byte, pageURL string) (*models.ProductRecord, error) {
	doc, err := NewDocument(body, pageURL)
	if err != nil {
		return nil, err
	}
	return e.Extract(doc), nil
}
