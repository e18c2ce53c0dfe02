package models

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

type Marketplace string

const (
	MarketplaceAmazon   Marketplace = "amazon"
	MarketplaceFlipkart Marketplace = "flipkart"
	MarketplaceUnknown  Marketplace = ""
)

// DisplayName is the platform label stored on a ProductRecord.
func (m Marketplace) DisplayName() string {
	switch m {
	case MarketplaceAmazon:
		return "Amazon"
	case MarketplaceFlipkart:
		return "Flipkart"
	default:
		return ""
	}
}

// StoreTag is the upper-case store label used by the compare endpoint.
func (m Marketplace) StoreTag() string {
	return strings.ToUpper(string(m))
}

// Marketplaces lists the supported marketplaces in display order.
var Marketplaces = []Marketplace{MarketplaceAmazon, MarketplaceFlipkart}

const (
	AvailabilityInStock    = "In Stock"
	AvailabilityUnverified = "Price could not be verified"
)

// ProductURL is a classified product link. It is not modified after Classify.
type ProductURL struct {
	Raw         string      `json:"raw"`
	Host        string      `json:"host"`
	Marketplace Marketplace `json:"marketplace"`
	IsShortLink bool        `json:"is_short_link"`
}

type PayloadKind int

const (
	PayloadHTML PayloadKind = iota
	PayloadJSON
)

func (k PayloadKind) String() string {
	if k == PayloadJSON {
		return "json"
	}
	return "html"
}

// FetchResult is the outcome of a single retrieval attempt.
type FetchResult struct {
	Kind       PayloadKind
	Body       []byte
	StatusCode int
	FinalURL   string
	Strategy   string
}

func (r *FetchResult) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

func (r *FetchResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Body)
}

type ProductRecord struct {
	Platform     string            `json:"platform"`
	Title        string            `json:"title,omitempty"`
	Price        *float64          `json:"price"`
	ImageURL     string            `json:"image_url,omitempty"`
	URL          string            `json:"url"`
	Availability string            `json:"availability"`
	Specs        map[string]string `json:"specs"`
	// SpecOrder keeps first-seen order of Specs keys.
	SpecOrder []string `json:"-"`
}

func (r *ProductRecord) HasPrice() bool {
	return r != nil && r.Price != nil
}

// IsEmpty reports whether none of title, price and image were found.
func (r *ProductRecord) IsEmpty() bool {
	return r == nil || (r.Title == "" && r.Price == nil && r.ImageURL == "")
}

type ComparisonResult struct {
	CheapestPlatform Marketplace `json:"cheapest_platform"`
	CheapestPrice    *float64    `json:"cheapest_price"`
	PriceDifference  *float64    `json:"price_difference"`
	SavingsPlatform  Marketplace `json:"savings_platform"`
	BothFound        bool        `json:"both_found"`
}

type Recommendation string

const (
	RecommendationWait             Recommendation = "WAIT"
	RecommendationBuyNow           Recommendation = "BUY_NOW"
	RecommendationPriceUnavailable Recommendation = "PRICE_UNAVAILABLE"
)

type PredictionResult struct {
	FuturePrices   map[string]float64 `json:"future_prices"`
	Recommendation Recommendation     `json:"recommendation"`
	MaxSavings     *float64           `json:"max_savings"`
	BestTimeDays   *int               `json:"best_time_days"`
	Confidence     float64            `json:"confidence"`
}

type ProductSummary struct {
	Name         string      `json:"name"`
	CurrentPrice *float64    `json:"current_price"`
	Source       Marketplace `json:"source"`
	URL          string      `json:"url"`
	ImageURL     string      `json:"image_url,omitempty"`
}

type AnalysisResult struct {
	Success        bool                           `json:"success"`
	Error          string                         `json:"error,omitempty"`
	ProductName    string                         `json:"product_name,omitempty"`
	SourcePlatform Marketplace                    `json:"source_platform,omitempty"`
	SourceURL      string                         `json:"source_url,omitempty"`
	ResolvedURL    string                         `json:"resolved_url,omitempty"`
	PlatformsFound []Marketplace                  `json:"platforms_found,omitempty"`
	Product        *ProductSummary                `json:"product,omitempty"`
	Records        map[Marketplace]*ProductRecord `json:"-"`
	Comparison     *ComparisonResult              `json:"comparison,omitempty"`
	Prediction     *PredictionResult              `json:"prediction,omitempty"`
	AnalyzedAt     time.Time                      `json:"analyzed_at,omitzero"`
}

// Record returns the record scraped for m, or nil.
func (a *AnalysisResult) Record(m Marketplace) *ProductRecord {
	if a == nil || a.Records == nil {
		return nil
	}
	return a.Records[m]
}

type missingRecord struct {
	Found   bool   `json:"found"`
	Message string `json:"message"`
}

// MarshalJSON writes each marketplace's record under its own key, with a
// not-found placeholder for marketplaces that produced nothing.
func (a AnalysisResult) MarshalJSON() ([]byte, error) {
	type plain AnalysisResult
	raw, err := json.Marshal(plain(a))
	if err != nil {
		return nil, err
	}
	if !a.Success {
		return raw, nil
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	for _, m := range Marketplaces {
		var entry any = missingRecord{Message: "Not found on " + m.DisplayName()}
		if r := a.Records[m]; r != nil {
			entry = r
		}
		b, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		fields[string(m)] = b
	}
	return json.Marshal(fields)
}

// NormalizedProduct is the single-record payload returned by CompareSingle.
type NormalizedProduct struct {
	Name     string            `json:"name"`
	Price    *float64          `json:"price"`
	Store    string            `json:"store"`
	ImageURL string            `json:"image_url"`
	URL      string            `json:"url"`
	Specs    map[string]string `json:"specs"`
}

// HostOf returns the lower-cased host of raw without a leading "www.".
func HostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func Float(v float64) *float64 {
	return &v
}

// MarketplaceForHost maps a host (as returned by HostOf) to its marketplace.
// Flipkart short-link hosts map to Flipkart; generic shorteners map to nothing.
func MarketplaceForHost(host string) Marketplace {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	switch {
	case host == "amazon.in" || host == "amazon.com" ||
		strings.HasSuffix(host, ".amazon.in") || strings.HasSuffix(host, ".amazon.com"):
		return MarketplaceAmazon
	case host == "flipkart.com" || strings.HasSuffix(host, ".flipkart.com"):
		return MarketplaceFlipkart
	case host == "fkrt.cc" || host == "fkrt.it" || host == "fkrt.to":
		return MarketplaceFlipkart
	default:
		return MarketplaceUnknown
	}
}
