package resolver

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/maltedev/marketplace-analyzer/internal/models"
)

// ShortHosts are redirecting hosts that never serve a product page themselves.
var ShortHosts = map[string]struct{}{
	"amzn.in": {}, "amzn.to": {}, "amzn.eu": {}, "a.co": {},
	"fkrt.cc": {}, "fkrt.it": {}, "fkrt.to": {}, "dl.flipkart.com": {},
	"bit.ly": {}, "t.co": {}, "ow.ly": {}, "goo.gl": {}, "tinyurl.com": {},
}

var flipkartShortHosts = map[string]struct{}{
	"dl.flipkart.com": {}, "fkrt.cc": {}, "fkrt.it": {}, "fkrt.to": {},
}

// Query parameters some shorteners use to carry the destination.
var redirectParams = []string{"url", "u", "redirect", "redirect_url", "target"}

var productURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)https?://(?:www\.)?flipkart\.com/[^\s"'<>]+/p/[^\s"'<>]+`),
	regexp.MustCompile(`(?i)https?://(?:www\.)?amazon\.(?:in|com)/[^\s"'<>]+/dp/[^\s"'<>]+`),
}

var jsEscapes = strings.NewReplacer(`\/`, "/", `\u002F`, "/", `\u002f`, "/")

func IsShortLink(raw string) bool {
	_, ok := ShortHosts[models.HostOf(raw)]
	return ok
}

func IsFlipkartShortLink(raw string) bool {
	_, ok := flipkartShortHosts[models.HostOf(raw)]
	return ok
}

// Classify records the host, marketplace and short-link status of raw.
func Classify(raw string) models.ProductURL {
	raw = strings.TrimSpace(raw)
	host := models.HostOf(raw)
	return models.ProductURL{
		Raw:         raw,
		Host:        host,
		Marketplace: models.MarketplaceForHost(host),
		IsShortLink: IsShortLink(raw),
	}
}

// mentionsMarketplace is the loose substring test applied to candidate
// destinations; it deliberately accepts URLs whose path mentions the host.
func mentionsMarketplace(s string) bool {
	return strings.Contains(s, "amazon.in") || strings.Contains(s, "amazon.com") || strings.Contains(s, "flipkart.com")
}

// RedirectTarget returns a marketplace URL carried in raw's query string,
// or "". It never touches the network.
func RedirectTarget(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	q := u.Query()
	for _, key := range redirectParams {
		v := q.Get(key)
		if v == "" {
			continue
		}
		candidate := lenientUnescape(v)
		if mentionsMarketplace(candidate) {
			return candidate
		}
	}
	return ""
}

// ProductURLFromText finds a direct Amazon or Flipkart product URL in raw,
// percent-encoded or JavaScript-escaped text. It returns "" when none is found.
func ProductURLFromText(text string) string {
	if text == "" {
		return ""
	}

	variants := []string{text, lenientUnescape(text), jsEscapes.Replace(text)}
	for _, blob := range variants {
		for _, pattern := range productURLPatterns {
			m := pattern.FindString(blob)
			if m == "" {
				continue
			}
			candidate := jsEscapes.Replace(strings.Trim(strings.TrimSpace(m), `'"<>`))
			if mentionsMarketplace(strings.ToLower(candidate)) {
				return candidate
			}
		}
	}
	return ""
}

// lenientUnescape percent-decodes s, leaving '+' alone, and returns s
// unchanged when it holds a malformed escape.
func lenientUnescape(s string) string {
	if out, err := url.PathUnescape(s); err == nil {
		return out
	}
	return s
}
