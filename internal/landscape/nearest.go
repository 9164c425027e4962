package landscape

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidArgument marks caller errors detected before any work is done.
var ErrInvalidArgument = errors.New("invalid argument")

// Assignment is the chosen nearest eligible origin for one destination.
// Indexes refer to positions in the origin and destination input lists.
type Assignment struct {
	OriginIndex      int     `json:"origin_index"`
	DestinationIndex int     `json:"destination_index"`
	TravelSeconds    float64 `json:"travel_seconds"`
}

// ClosestLocations finds, for each destination column, the origin row with
// the minimum travel time among rows strictly below maxTime. Cells equal to
// maxTime are not eligible, and neither are unreachable cells. Destinations
// with no eligible origin produce no record. Ties keep the lowest origin
// index. Results are ordered by origin index ascending; within one origin,
// destination index ascending.
//
// The matrix is read-only input and is never modified.
func ClosestLocations(m *Matrix, origins, destinations []Location, maxTime float64) ([]Assignment, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: matrix is required", ErrInvalidArgument)
	}
	if maxTime <= 0 {
		return nil, fmt.Errorf("%w: max time must be > 0 seconds, got %v", ErrInvalidArgument, maxTime)
	}
	if m.Rows() != len(origins) {
		return nil, fmt.Errorf("%w: matrix has %d rows but %d origins", ErrInvalidArgument, m.Rows(), len(origins))
	}
	if m.Cols() != len(destinations) {
		return nil, fmt.Errorf("%w: matrix has %d columns but %d destinations", ErrInvalidArgument, m.Cols(), len(destinations))
	}

	assignments := make([]Assignment, 0, m.Cols())
	for j := 0; j < m.Cols(); j++ {
		best := -1
		var bestTime float64
		for i := 0; i < m.Rows(); i++ {
			cell := m.At(i, j)
			if !cell.Valid || cell.Seconds >= maxTime {
				continue
			}
			// Strict comparison keeps the first minimum on ties.
			if best == -1 || cell.Seconds < bestTime {
				best = i
				bestTime = cell.Seconds
			}
		}
		if best == -1 {
			continue
		}
		assignments = append(assignments, Assignment{
			OriginIndex:      best,
			DestinationIndex: j,
			TravelSeconds:    bestTime,
		})
	}

	sort.SliceStable(assignments, func(a, b int) bool {
		return assignments[a].OriginIndex < assignments[b].OriginIndex
	})
	return assignments, nil
}

// ValidateLocations checks the positional-identity contract: both name and
// address are required for every entry of both lists.
func ValidateLocations(origins, destinations []Location) error {
	if len(origins) == 0 {
		return fmt.Errorf("%w: at least one origin is required", ErrInvalidArgument)
	}
	if len(destinations) == 0 {
		return fmt.Errorf("%w: at least one destination is required", ErrInvalidArgument)
	}
	for i, o := range origins {
		if o.Address == "" {
			return fmt.Errorf("%w: origin %d has an empty address", ErrInvalidArgument, i)
		}
	}
	for j, d := range destinations {
		if d.Address == "" {
			return fmt.Errorf("%w: destination %d has an empty address", ErrInvalidArgument, j)
		}
	}
	return nil
}
