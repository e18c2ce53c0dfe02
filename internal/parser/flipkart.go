package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FlipkartProfile returns the structural selectors for flipkart.com product pages.
// Flipkart ships obfuscated class names, so several generations are listed.
func FlipkartProfile() SelectorProfile {
	return SelectorProfile{
		Title: []string{
			"span.VU-ZEz",
			"h1.yhB1nd",
			".B_NuCI",
			"span.B_NuCI",
			"span[class*='VU-ZEz']",
			"div[class*='GNDEQ-'] h1",
			"div.col.col-7-12 h1",
			"h1",
		},
		Price: []string{
			"div.Nx9bqj.CxhGGd",
			"div.Nx9bqj",
			"div[class*='Nx9bqj']",
			"._30jeq3._16Jk6d",
			"._30jeq3",
			"div._16Jk6d",
			"[itemprop='price']",
			"div.UOCQB1",
			"div._3tbKJL",
			"div.CEmiEU div.Nx9bqj",
		},
		Image: []string{
			"img.DByuf4",
			"img._396cs4",
			"img._2r_T1I",
			"img._53J4C-",
			"img[src*='rukminim']",
			"img[src*='flixcart']",
			"div._2r_T1I img",
			"div._3kidU img",
		},
		Specs: []string{
			"table._0ZhAN9",
			"table._14cfVK",
			"div._3k-BhJ table",
			"div._1UhVsV table",
			"div.X3BRps table",
			"div.GNDEQ- table",
		},
		ImageSource: flipkartImageSource,
	}
}

func flipkartImageSource(el *goquery.Selection) string {
	src := attrOr(el, "src", "data-src")
	if !strings.HasPrefix(src, "http") {
		return ""
	}
	return firstSrcsetEntry(src)
}
