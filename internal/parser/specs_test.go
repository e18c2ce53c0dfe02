package parser

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSpecs(t *testing.T) {
	pairs := []SpecPair{
		{Key: " Colour: ", Value: "  Midnight\u00a0Black "},
		{Key: "colour", Value: "Red"},
		{Key: "ASIN", Value: "B0TEST"},
		{Key: "Item Model Number", Value: "X1"},
		{Key: "Weight", Value: "n/a"},
		{Key: "Screen\u200e Size", Value: "6.1 inches"},
		{Key: "", Value: "orphan"},
		{Key: "Battery", Value: ""},
	}

	specs, order := NormalizeSpecs(pairs)

	assert.Equal(t, map[string]string{
		"Colour":      "Midnight Black",
		"Screen Size": "6.1 inches",
	}, specs)
	assert.Equal(t, []string{"Colour", "Screen Size"}, order)
}

func TestNormalizeSpecsLimits(t *testing.T) {
	var pairs []SpecPair
	for i := 0; i < 50; i++ {
		pairs = append(pairs, SpecPair{Key: fmt.Sprintf("Feature %d", i), Value: "yes"})
	}

	specs, order := NormalizeSpecs(pairs)
	assert.Len(t, specs, MaxSpecs)
	assert.Len(t, order, MaxSpecs)
	assert.Equal(t, "Feature 0", order[0])
	assert.Equal(t, "Feature 35", order[MaxSpecs-1])
}

func TestNormalizeSpecsTruncation(t *testing.T) {
	longKey := strings.Repeat("k", 81)
	longVal := strings.Repeat("v", 300)

	specs, _ := NormalizeSpecs([]SpecPair{
		{Key: longKey, Value: "dropped"},
		{Key: "Description", Value: longVal},
	})

	require.Len(t, specs, 1)
	got := specs["Description"]
	assert.Equal(t, maxSpecValLen, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestNormalizeSpecsNeverKeepsNoiseOrDuplicates(t *testing.T) {
	keys := []string{"SKU", "sku", "Sku!", "RAM", "ram", "R-A-M", "Storage", "storage ", "URL", "Seller"}

	var pairs []SpecPair
	distinct := map[string]struct{}{}
	for _, k := range keys {
		pairs = append(pairs, SpecPair{Key: k, Value: "value"})
		if folded := FoldSpecKey(k); !IsNoiseSpecKey(folded) {
			distinct[folded] = struct{}{}
		}
	}

	specs, _ := NormalizeSpecs(pairs)
	assert.LessOrEqual(t, len(specs), len(distinct))
	for k := range specs {
		assert.False(t, IsNoiseSpecKey(FoldSpecKey(k)), k)
	}
	assert.Equal(t, map[string]string{"RAM": "value", "Storage": "value"}, specs)
}
