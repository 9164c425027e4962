// Package products scrapes storefront menus for product pricing data.
package products

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/compscout/compscout/internal/landscape"
)

// priceTokenPattern matches a rendered price span in the supported
// currencies (USD, generic dollar, Mexican peso).
var priceTokenPattern = regexp.MustCompile(`^(USD ?|\$ ?|MX\$ ?)\d+\.\d{2}$`)

// reviewPattern matches the "<pct>% (<count>)" rating span.
var reviewPattern = regexp.MustCompile(`^ ?\d+% \(\d+\)`)

// Storefront prices carry a delivery markup in the 10-30% range; 20% is
// assumed when deflating back to an in-store price.
const deliveryMarkup = 1.2

// featuredCategories are promotional sections that duplicate products from
// their real categories and are skipped.
var featuredCategories = []string{"Featured items", "Artículos destacados"}

func isFeaturedCategory(name string) bool {
	for _, f := range featuredCategories {
		if name == f {
			return true
		}
	}
	return false
}

// parsePrice strips the currency prefix and deflates the delivery markup,
// rounding to cents.
func parsePrice(token string) (float64, bool) {
	if !priceTokenPattern.MatchString(token) {
		return 0, false
	}
	var digits string
	switch {
	case strings.HasPrefix(token, "USD"):
		digits = strings.TrimSpace(token[len("USD"):])
	case strings.HasPrefix(token, "MX$"):
		digits = strings.TrimSpace(token[len("MX$"):])
	default:
		digits = strings.TrimSpace(token[len("$"):])
	}
	listed, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, false
	}
	return math.Round(listed/deliveryMarkup*100) / 100, true
}

// parseReview splits "<pct>% (<count>)" into its parts.
func parseReview(text string) (pct float64, count int, ok bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return 0, 0, false
	}
	pctStr := strings.TrimSuffix(fields[0], "%")
	countStr := strings.TrimSuffix(strings.TrimPrefix(fields[1], "("), ")")
	pct, err := strconv.ParseFloat(pctStr, 64)
	if err != nil {
		return 0, 0, false
	}
	count, err = strconv.Atoi(countStr)
	if err != nil {
		return 0, 0, false
	}
	return pct, count, true
}

// parseCalories reads the leading integer of a "<n> Cal" span.
func parseCalories(text string) *int {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	v, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil
	}
	return &v
}

// categoryBlock is the raw span sequence extracted from one menu category.
type categoryBlock struct {
	Category string   `json:"category"`
	Spans    []string `json:"spans"`
}

type productKey struct {
	name  string
	price float64
}

// parseStoreMenu walks the span runs of every category on a store page.
// A product is anchored by its price span; the preceding span is the name,
// and a following bullet-separated run optionally carries the rating,
// review count, and calories.
func parseStoreMenu(storeName string, blocks []categoryBlock) []landscape.ProductRecord {
	var records []landscape.ProductRecord
	seen := make(map[productKey]struct{})

	for _, block := range blocks {
		if block.Category == "" || isFeaturedCategory(block.Category) {
			continue
		}
		for i, span := range block.Spans {
			price, ok := parsePrice(span)
			if !ok {
				continue
			}
			var name string
			if i > 0 {
				name = block.Spans[i-1]
			}
			key := productKey{name: name, price: price}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			rec := landscape.ProductRecord{
				StoreName:   storeName,
				Category:    block.Category,
				ProductName: name,
				Price:       price,
			}
			applyDetailRun(block.Spans, i, &rec)
			records = append(records, rec)
		}
	}
	return records
}

// applyDetailRun inspects the bullet-separated spans after the price.
// Layouts seen in the wild: "• <cal> Cal", "• <pct>% (<count>)", and
// "• <pct>% (<count>) • <cal> Cal".
func applyDetailRun(spans []string, priceIdx int, rec *landscape.ProductRecord) {
	if priceIdx+2 >= len(spans) || strings.TrimSpace(spans[priceIdx+1]) != "•" {
		return
	}
	detail := spans[priceIdx+2]
	if !reviewPattern.MatchString(detail) {
		rec.Calories = parseCalories(detail)
		return
	}
	if pct, count, ok := parseReview(detail); ok {
		rec.RatingPct = &pct
		rec.ReviewCount = count
	}
	if priceIdx+4 < len(spans) && strings.TrimSpace(spans[priceIdx+3]) == "•" {
		rec.Calories = parseCalories(spans[priceIdx+4])
	}
}
