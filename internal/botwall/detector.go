package botwall

import (
	"strings"
)

// DefaultThreshold is the body size at or above which a page is treated as
// real content even when it mentions a block phrase.
const DefaultThreshold = 20000

var blockPhrases = []string{
	"robot check",
	"captcha",
	"are you a robot",
	"enter the characters",
	"verify you are human",
}

// Detector classifies fetched bodies as anti-bot challenge pages.
type Detector struct {
	threshold int
}

func NewDetector(threshold int) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold}
}

// IsBlocked reports whether body is a block page: it must contain one of the
// block phrases and be shorter than the threshold.
func (d *Detector) IsBlocked(body string) bool {
	if len(body) >= d.threshold {
		return false
	}
	low := strings.ToLower(body)
	for _, phrase := range blockPhrases {
		if strings.Contains(low, phrase) {
			return true
		}
	}
	return false
}

var defaultDetector = NewDetector(DefaultThreshold)

// IsBlocked uses the default 20 KB threshold.
func IsBlocked(body string) bool {
	return defaultDetector.IsBlocked(body)
}
