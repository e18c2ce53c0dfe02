package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

const (
	// KeyPrefixAnalysis is the prefix for cached analysis results
	KeyPrefixAnalysis = "analyzer:analysis:"
)

// trackingParams are dropped before hashing so shared links with campaign
// tags hit the same entry as the clean URL.
var trackingParams = map[string]struct{}{
	"tag": {}, "ref": {}, "ref_": {}, "psc": {}, "smid": {}, "th": {},
	"affid": {}, "affextparam1": {}, "affextparam2": {}, "_refid": {}, "_appid": {},
	"cmpid": {}, "otracker": {}, "otracker1": {}, "fm": {}, "iid": {}, "ssid": {},
	"srno": {}, "lid": {}, "marketplace": {}, "store": {}, "spotlighttagid": {},
}

// NormalizeURL lower-cases scheme and host, strips a leading "www.", drops
// the fragment and tracking parameters and sorts what remains.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawPath = ""

	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if _, drop := trackingParams[lower]; drop || strings.HasPrefix(lower, "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// AnalysisKey returns the Redis key for a cached analysis of rawURL under
// the given data version.
func AnalysisKey(version, rawURL string) string {
	sum := sha256.Sum256([]byte(NormalizeURL(rawURL)))
	return KeyPrefixAnalysis + version + ":" + hex.EncodeToString(sum[:])
}
