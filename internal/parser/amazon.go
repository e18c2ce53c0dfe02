package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// AmazonProfile returns the structural selectors for amazon.in/amazon.com product pages.
func AmazonProfile() SelectorProfile {
	return SelectorProfile{
		Title: []string{
			"#productTitle",
			"span#productTitle",
			"h1.a-size-large",
			"#title span",
			"h1 span",
		},
		Price: []string{
			"span.a-price.priceToPay span.a-offscreen",
			".priceToPay span.a-offscreen",
			"#corePriceDisplay_desktop_feature_div span.a-offscreen",
			"#corePriceDisplay_desktop_feature_div .a-price-whole",
			".a-price .a-offscreen",
			"#priceblock_ourprice",
			"#priceblock_dealprice",
			"#priceblock_saleprice",
			".a-price-whole",
			"span[data-a-color='price'] .a-offscreen",
			"#apex_offerDisplay_desktop span.a-offscreen",
			".reinventPricePriceToPayMargin span.a-offscreen",
		},
		Image: []string{
			"#landingImage",
			"#imgTagWrapperId img",
			"#imgBlkFront",
			"img#main-image",
			"#imageBlock img",
			".imgTagWrapper img",
		},
		Specs: []string{
			"#productDetails_techSpec_section_1",
			"#productDetails_techSpec_section_2",
			"#technicalSpecifications_section_1",
			"#productDetails_detailBullets_sections1",
			"#detailBullets_feature_div",
			"#poExpander table",
			"#productOverview_feature_div table",
			"table.a-normal.a-spacing-micro",
		},
		Availability: "#availability span",
		ImageSource:  amazonImageSource,
		ExtraSpecs:   amazonGridSpecs,
	}
}

// amazonImageSource prefers the first (largest) entry of data-a-dynamic-image,
// which maps image URLs to their dimensions.
func amazonImageSource(el *goquery.Selection) string {
	if dyn, ok := el.Attr("data-a-dynamic-image"); ok && strings.TrimSpace(dyn) != "" {
		if key, ok := firstJSONKey(dyn); ok {
			return key
		}
	}
	return attrOr(el, "src", "data-old-hires", "data-src")
}

// amazonGridSpecs reads the two-column overview rows and the brand byline.
func amazonGridSpecs(doc *goquery.Document) []SpecPair {
	var pairs []SpecPair

	doc.Find(".a-fixed-left-grid-inner").Each(func(_ int, row *goquery.Selection) {
		left := textOf(row.Find(".a-col-left .a-color-base").First())
		right := textOf(row.Find(".a-col-right .a-color-base").First())
		if left != "" && right != "" {
			pairs = append(pairs, SpecPair{Key: left, Value: right})
		}
	})

	if brand := amazonBrand(doc); brand != "" {
		pairs = append(pairs, SpecPair{Key: "Brand", Value: brand})
	}

	return pairs
}

func amazonBrand(doc *goquery.Document) string {
	brand := textOf(doc.Find("#bylineInfo").First())
	brand = strings.TrimPrefix(brand, "Brand: ")
	brand = strings.TrimPrefix(brand, "Visit the ")
	brand = strings.TrimSuffix(brand, " Store")
	return strings.TrimSpace(brand)
}
