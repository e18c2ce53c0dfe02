package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStructured(t *testing.T) {
	body := `{
		"name": "Acme Noise Cancelling Headphones",
		"pricing": "₹2,999",
		"list_price": "₹4,999",
		"images": ["https://m.media-amazon.com/images/I/main.jpg", "https://m.media-amazon.com/images/I/alt.jpg"],
		"url": "https://www.amazon.in/dp/B0TEST1234",
		"availability": "In stock",
		"product_information": {"ASIN": "B0TEST1234"},
		"specifications": [
			{"name": "Colour", "value": "Black"},
			{"name": "Item Weight", "value": "250 g"}
		]
	}`

	record, err := ParseStructured([]byte(body), DefaultBounds)
	require.NoError(t, err)

	assert.Equal(t, "Amazon", record.Platform)
	assert.Equal(t, "Acme Noise Cancelling Headphones", record.Title)
	require.NotNil(t, record.Price)
	assert.Equal(t, 2999.0, *record.Price)
	assert.Equal(t, "https://m.media-amazon.com/images/I/main.jpg", record.ImageURL)
	assert.Equal(t, "https://www.amazon.in/dp/B0TEST1234", record.URL)
	assert.Equal(t, "In stock", record.Availability)
	assert.Equal(t, []string{"Colour", "Item Weight"}, record.SpecOrder)
}

func TestParseStructuredShapes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		title     string
		price     float64
		image     string
		specs     map[string]string
		wantEmpty bool
	}{
		{
			name:  "nested pricing and product_title",
			body:  `{"product_title":"Acme Mixer","pricing":{"current_price":"₹3,450"},"main_image":"//m.media-amazon.com/mixer.jpg"}`,
			title: "Acme Mixer",
			price: 3450,
			image: "https://m.media-amazon.com/mixer.jpg",
			specs: map[string]string{},
		},
		{
			name:  "flat spec fallback",
			body:  `{"name":"Acme Mixer","price":1299,"brand":"Acme","item_weight":"2 kg","color":""}`,
			title: "Acme Mixer",
			price: 1299,
			specs: map[string]string{"brand": "Acme", "item weight": "2 kg"},
		},
		{
			name:  "scalar leaves in spec containers",
			body:  `{"name":"Acme Mixer","product_details":{"wattage":"750 W","jars":{"jar_count":3}}}`,
			title: "Acme Mixer",
			specs: map[string]string{"wattage": "750 W", "jar count": "3"},
		},
		{
			name:      "nothing usable",
			body:      `{"asin":"B0TEST","price":"₹5"}`,
			wantEmpty: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := ParseStructured([]byte(tt.body), DefaultBounds)
			if tt.wantEmpty {
				assert.ErrorIs(t, err, ErrEmptyRecord)
				assert.Nil(t, record)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, tt.title, record.Title)
			if tt.price > 0 {
				require.NotNil(t, record.Price)
				assert.Equal(t, tt.price, *record.Price)
			} else {
				assert.Nil(t, record.Price)
			}
			assert.Equal(t, tt.image, record.ImageURL)
			assert.Equal(t, tt.specs, record.Specs)
		})
	}
}

func TestParseStructuredRejectsInvalidJSON(t *testing.T) {
	_, err := ParseStructured([]byte(`<html>not json</html>`), DefaultBounds)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyRecord)
}
