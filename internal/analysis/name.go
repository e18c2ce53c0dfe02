package analysis

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	amazonSlugPattern   = regexp.MustCompile(`/([^/]+)/dp/`)
	flipkartSlugPattern = regexp.MustCompile(`/([^/]+)/p/`)
	slugSeparators      = regexp.MustCompile(`[-_]+`)
)

const minSlugLen = 10

// NameFromURL guesses a product name from the URL slug: the segment before
// /dp/ on Amazon or /p/ on Flipkart, else the longest hyphenated segment.
func NameFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	path, err := url.PathUnescape(u.EscapedPath())
	if err != nil {
		path = u.Path
	}
	host := strings.ToLower(u.Host)

	switch {
	case strings.Contains(host, "amazon"):
		if m := amazonSlugPattern.FindStringSubmatch(path); m != nil {
			return humanize(m[1])
		}
	case strings.Contains(host, "flipkart"):
		if m := flipkartSlugPattern.FindStringSubmatch(path); m != nil {
			return humanize(m[1])
		}
	}

	var best string
	for _, seg := range strings.Split(path, "/") {
		if strings.Contains(seg, "-") && len(seg) > minSlugLen && len(seg) > len(best) {
			best = seg
		}
	}
	return humanize(best)
}

func humanize(slug string) string {
	return strings.TrimSpace(slugSeparators.ReplaceAllString(slug, " "))
}
