package landscape

import (
	"fmt"
	"strings"
)

// Report renders one assignment as the four-line plain-text block consumed
// by downstream tooling. Indexes must be valid for the given lists.
func (a Assignment) Report(origins, destinations []Location) string {
	o := origins[a.OriginIndex]
	d := destinations[a.DestinationIndex]
	return fmt.Sprintf(
		"Origin Name: %s\nOrigin Address: %s\nDestination Name: %s\nDestination Address: %s\n",
		o.Name, o.Address, d.Name, d.Address,
	)
}

// RenderReports renders every assignment in order.
func RenderReports(assignments []Assignment, origins, destinations []Location) []string {
	reports := make([]string, 0, len(assignments))
	for _, a := range assignments {
		reports = append(reports, a.Report(origins, destinations))
	}
	return reports
}

// ParseReport is the inverse of Report. It recovers the origin and
// destination from one four-line block.
func ParseReport(report string) (origin, destination Location, err error) {
	lines := strings.Split(strings.TrimRight(report, "\n"), "\n")
	if len(lines) != 4 {
		return Location{}, Location{}, fmt.Errorf("report must have 4 lines, got %d", len(lines))
	}
	fields := make([]string, 4)
	prefixes := []string{"Origin Name: ", "Origin Address: ", "Destination Name: ", "Destination Address: "}
	for i, prefix := range prefixes {
		if !strings.HasPrefix(lines[i], prefix) {
			return Location{}, Location{}, fmt.Errorf("line %d missing %q prefix", i+1, strings.TrimSpace(prefix))
		}
		fields[i] = strings.TrimPrefix(lines[i], prefix)
	}
	origin = Location{Name: fields[0], Address: fields[1]}
	destination = Location{Name: fields[2], Address: fields[3]}
	return origin, destination, nil
}
