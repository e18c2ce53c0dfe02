package fetch

import (
	"math/rand/v2"
	"net/http"
)

const (
	DefaultReferer  = "https://www.google.com/"
	AmazonReferer   = "https://www.amazon.in/"
	FlipkartReferer = "https://www.flipkart.com/"
)

// BrowserHeaders is a desktop browser navigation profile.
func BrowserHeaders(userAgent, referer string) http.Header {
	if referer == "" {
		referer = DefaultReferer
	}

	h := make(http.Header)
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-IN,en-GB;q=0.9,en-US;q=0.8,en;q=0.7")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Referer", referer)
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "cross-site")
	h.Set("Cache-Control", "no-cache")
	h.Set("DNT", "1")
	return h
}

// AppHeaders mimics a messaging app's link preview fetcher.
func AppHeaders(base http.Header) http.Header {
	h := base.Clone()
	h.Set("User-Agent", "WhatsApp/2.23.10.76 A")
	return h
}

// MinimalHeaders mimics a bare mobile HTTP library.
func MinimalHeaders() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", "okhttp/4.10.0")
	h.Set("Accept", "*/*")
	return h
}

// UserAgentPool hands out user agents from a fixed list.
type UserAgentPool []string

// Random returns any entry, or "" for an empty pool.
func (p UserAgentPool) Random() string {
	if len(p) == 0 {
		return ""
	}
	return p[rand.IntN(len(p))]
}

// Take returns the first n entries.
func (p UserAgentPool) Take(n int) UserAgentPool {
	if n >= len(p) {
		return p
	}
	return p[:n]
}
