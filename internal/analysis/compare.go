package analysis

import (
	"fmt"
	"math"

	"github.com/maltedev/marketplace-analyzer/internal/models"
)

// Horizon is one projected point: the price after Days scaled by Factor.
type Horizon struct {
	Days   int
	Factor float64
}

// DefaultHorizons never increase, so projected prices are non-increasing.
var DefaultHorizons = []Horizon{
	{Days: 7, Factor: 0.98},
	{Days: 15, Factor: 0.95},
	{Days: 30, Factor: 0.92},
	{Days: 60, Factor: 0.90},
	{Days: 90, Factor: 0.88},
}

const (
	waitThreshold    = 0.05
	waitDays         = 90
	confidenceBoth   = 0.85
	confidenceSingle = 0.60
)

// Compare finds the cheapest marketplace among records that carry a price.
// The difference is only set when both marketplaces have one.
func Compare(records map[models.Marketplace]*models.ProductRecord) *models.ComparisonResult {
	result := &models.ComparisonResult{}

	var prices []float64
	found := 0
	for _, m := range models.Marketplaces {
		r := records[m]
		if r == nil {
			continue
		}
		found++
		if !r.HasPrice() {
			continue
		}

		p := *r.Price
		prices = append(prices, p)
		if result.CheapestPrice == nil || p < *result.CheapestPrice {
			result.CheapestPlatform = m
			result.CheapestPrice = models.Float(p)
		}
	}

	result.SavingsPlatform = result.CheapestPlatform
	if len(prices) == 2 {
		result.PriceDifference = models.Float(round2(math.Abs(prices[0] - prices[1])))
	}
	result.BothFound = found == 2

	return result
}

// Predictor projects future prices from fixed decay horizons.
type Predictor struct {
	horizons []Horizon
}

func NewPredictor(horizons []Horizon) *Predictor {
	if len(horizons) == 0 {
		horizons = DefaultHorizons
	}
	return &Predictor{horizons: horizons}
}

var defaultPredictor = NewPredictor(DefaultHorizons)

// Predict uses DefaultHorizons.
func Predict(current *float64, bothFound bool) *models.PredictionResult {
	return defaultPredictor.Predict(current, bothFound)
}

func (p *Predictor) Predict(current *float64, bothFound bool) *models.PredictionResult {
	result := &models.PredictionResult{
		FuturePrices:   make(map[string]float64, len(p.horizons)),
		Recommendation: models.RecommendationPriceUnavailable,
		Confidence:     confidenceSingle,
	}
	if bothFound {
		result.Confidence = confidenceBoth
	}

	if current == nil || *current <= 0 {
		return result
	}
	price := *current

	lowest := math.Inf(1)
	for _, h := range p.horizons {
		projected := round2(price * h.Factor)
		result.FuturePrices[horizonKey(h.Days)] = projected
		lowest = min(lowest, projected)
	}

	savings := round2(price - lowest)
	result.MaxSavings = &savings

	if savings/price > waitThreshold {
		result.Recommendation = models.RecommendationWait
		days := waitDays
		result.BestTimeDays = &days
	} else {
		result.Recommendation = models.RecommendationBuyNow
	}

	return result
}

func horizonKey(days int) string {
	return fmt.Sprintf("%d_days", days)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
