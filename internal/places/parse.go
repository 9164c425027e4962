// Package places scrapes maps listings for search queries and locations.
package places

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/compscout/compscout/internal/landscape"
)

// emailPattern matches addresses embedded anywhere in page HTML.
var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,4}`)

// closedMarkers flag listings that should be skipped entirely. The page
// language depends on the viewer locale, so both variants are checked.
var closedMarkers = []string{"Temporarily closed", "Cerrado temporalmente"}

type placeHeader struct {
	Name        string
	Stars       *float64
	ReviewCount *int
	PriceRange  string
	Description string
}

// parsePlaceHeader splits the place page header block into its fields.
// The block has 1, 2, 4, or 5 lines depending on whether the listing has
// reviews and a price range. Any other layout is unparseable and skipped,
// as are temporarily closed listings.
func parsePlaceHeader(headerText string) (placeHeader, bool) {
	lines := strings.Split(strings.TrimRight(headerText, "\n"), "\n")
	for _, line := range lines {
		for _, marker := range closedMarkers {
			if line == marker {
				return placeHeader{}, false
			}
		}
	}

	h := placeHeader{Name: lines[0]}
	switch len(lines) {
	case 1:
	case 2:
		h.Description = lines[1]
	case 4:
		h.Stars = parseStars(lines[1])
		h.ReviewCount = parseReviewCount(lines[2])
		h.Description = lines[3]
	case 5:
		h.Stars = parseStars(lines[1])
		h.ReviewCount = parseReviewCount(lines[2])
		h.PriceRange = lines[3]
		h.Description = lines[4]
	default:
		return placeHeader{}, false
	}
	return h, true
}

func parseStars(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseReviewCount reads the parenthesized review count, tolerating
// thousands separators.
func parseReviewCount(s string) *int {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}

// infoRow is one labeled contact row from the place page.
type infoRow struct {
	AriaLabel string `json:"aria"`
	Text      string `json:"text"`
	Href      string `json:"href"`
}

// applyInfoRows fills address, phone, and website from the labeled rows.
// Labels are matched in both English and Spanish.
func applyInfoRows(rows []infoRow, rec *landscape.PlaceRecord) {
	for _, row := range rows {
		if row.AriaLabel == "" {
			continue
		}
		switch {
		case strings.Contains(row.AriaLabel, "Address:") || strings.Contains(row.AriaLabel, "Dirección:"):
			rec.Address = secondLineOrWhole(row.Text)
		case strings.Contains(row.AriaLabel, "Phone:") || strings.Contains(row.AriaLabel, "Teléfono:"):
			rec.Phone = strings.TrimSpace(row.Text)
		case strings.Contains(row.AriaLabel, "Website:") || strings.Contains(row.AriaLabel, "Sitio web:"):
			rec.Website = row.Href
		}
	}
}

// The address row renders an icon caption on its first line.
func secondLineOrWhole(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[idx+1:])
	}
	return strings.TrimSpace(text)
}

// extractEmails returns the unique email addresses found in html, in first
// appearance order, joined by commas.
func extractEmails(html string) string {
	matches := emailPattern.FindAllString(html, -1)
	seen := make(map[string]struct{}, len(matches))
	unique := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		unique = append(unique, m)
	}
	return strings.Join(unique, ",")
}

// dedupeTracker drops listings already seen in this run. A listing is a
// duplicate only when both its address and its name were recorded before.
type dedupeTracker struct {
	addresses map[string]struct{}
	names     map[string]struct{}
}

func newDedupeTracker() *dedupeTracker {
	return &dedupeTracker{
		addresses: make(map[string]struct{}),
		names:     make(map[string]struct{}),
	}
}

// Seen reports whether the pair is a duplicate, recording it otherwise.
func (d *dedupeTracker) Seen(address, name string) bool {
	_, addrSeen := d.addresses[address]
	_, nameSeen := d.names[name]
	if addrSeen && nameSeen {
		return true
	}
	d.addresses[address] = struct{}{}
	d.names[name] = struct{}{}
	return false
}
