package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compscout/compscout/internal/landscape"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestPlacesCSV(t *testing.T) {
	t.Parallel()

	records := []landscape.PlaceRecord{
		{
			SearchQuery: "tacos",
			Location:    "Austin, TX",
			Name:        "Taco Haven",
			Description: "Mexican restaurant",
			Stars:       floatPtr(4.5),
			ReviewCount: intPtr(321),
			Address:     "1 Main St, Austin, TX",
			Phone:       "+1 512-555-0101",
			Emails:      "hi@tacohaven.com",
			Website:     "https://tacohaven.com",
			PriceRange:  "$$",
		},
		{SearchQuery: "tacos", Location: "Austin, TX", Name: "Cart With No Details"},
	}

	out, err := PlacesCSV(records)
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{
		"Search Query", "Location", "Name", "Description", "Stars (out of 5)",
		"Number of Reviews", "Address", "Phone", "Emails", "Website", "Price Range",
	}, rows[0])
	assert.Equal(t, []string{
		"tacos", "Austin, TX", "Taco Haven", "Mexican restaurant", "4.5",
		"321", "1 Main St, Austin, TX", "+1 512-555-0101", "hi@tacohaven.com",
		"https://tacohaven.com", "$$",
	}, rows[1])
	// Optional fields render as empty cells, not zeros.
	assert.Equal(t, []string{"tacos", "Austin, TX", "Cart With No Details", "", "", "", "", "", "", "", ""}, rows[2])
}

func TestProductsCSV(t *testing.T) {
	t.Parallel()

	records := []landscape.ProductRecord{
		{
			StoreName:   "Burrito Barn",
			Category:    "Burritos",
			ProductName: "Chicken Burrito",
			Price:       10,
			RatingPct:   floatPtr(95),
			ReviewCount: 120,
			Calories:    intPtr(670),
		},
		{StoreName: "Burrito Barn", Category: "Sides", ProductName: "Chips", Price: 3},
	}

	out, err := ProductsCSV(records)
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{
		"Store Name", "Category", "Product Name", "Price", "Rating",
		"Number of Reviews", "Calories",
	}, rows[0])
	assert.Equal(t, []string{"Burrito Barn", "Burritos", "Chicken Burrito", "10.00", "95%", "120", "670"}, rows[1])
	assert.Equal(t, []string{"Burrito Barn", "Sides", "Chips", "3.00", "", "", ""}, rows[2])
}

func TestArtifactName(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 12, 9, 30, 0, 0, time.UTC)
	got := ArtifactName(landscape.JobKindPlaces, "0196a7c2", at)
	assert.Equal(t, "places/20240512T093000Z-0196a7c2.csv", got)
}
