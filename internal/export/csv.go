// Package export renders scrape results into CSV artifacts.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/compscout/compscout/internal/landscape"
)

// Column headers match the layout downstream analysis sheets expect.
var (
	placeHeaders = []string{
		"Search Query", "Location", "Name", "Description", "Stars (out of 5)",
		"Number of Reviews", "Address", "Phone", "Emails", "Website", "Price Range",
	}
	productHeaders = []string{
		"Store Name", "Category", "Product Name", "Price", "Rating",
		"Number of Reviews", "Calories",
	}
)

// PlacesCSV renders place records into a CSV document.
func PlacesCSV(records []landscape.PlaceRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(placeHeaders); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.SearchQuery,
			r.Location,
			r.Name,
			r.Description,
			formatFloat(r.Stars),
			formatInt(r.ReviewCount),
			r.Address,
			r.Phone,
			r.Emails,
			r.Website,
			r.PriceRange,
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ProductsCSV renders product records into a CSV document.
func ProductsCSV(records []landscape.ProductRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(productHeaders); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		rating := ""
		if r.RatingPct != nil {
			rating = strconv.FormatFloat(*r.RatingPct, 'f', -1, 64) + "%"
		}
		reviews := ""
		if r.ReviewCount > 0 {
			reviews = strconv.Itoa(r.ReviewCount)
		}
		row := []string{
			r.StoreName,
			r.Category,
			r.ProductName,
			strconv.FormatFloat(r.Price, 'f', 2, 64),
			rating,
			reviews,
			formatInt(r.Calories),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ArtifactName builds a collision-free object name for a job artifact.
func ArtifactName(kind landscape.JobKind, jobID string, at time.Time) string {
	return fmt.Sprintf("%s/%s-%s.csv", kind, at.UTC().Format("20060102T150405Z"), jobID)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
