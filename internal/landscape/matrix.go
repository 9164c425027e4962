package landscape

import (
	"encoding/json"
	"fmt"
)

// TravelTime is one matrix cell. Unreachable pairs carry Valid=false and are
// never eligible for assignment, regardless of threshold.
type TravelTime struct {
	Seconds float64 `json:"seconds"`
	Valid   bool    `json:"valid"`
}

// Matrix is a travel-time table with origins as rows and destinations as
// columns. Row and column labels are the location names used to build it.
type Matrix struct {
	OriginNames      []string
	DestinationNames []string
	cells            [][]TravelTime
}

// NewMatrix allocates an all-invalid matrix labeled with the given names.
func NewMatrix(originNames, destinationNames []string) *Matrix {
	cells := make([][]TravelTime, len(originNames))
	for i := range cells {
		cells[i] = make([]TravelTime, len(destinationNames))
	}
	return &Matrix{
		OriginNames:      append([]string(nil), originNames...),
		DestinationNames: append([]string(nil), destinationNames...),
		cells:            cells,
	}
}

// Rows returns the number of origins.
func (m *Matrix) Rows() int { return len(m.cells) }

// Cols returns the number of destinations.
func (m *Matrix) Cols() int {
	if len(m.cells) == 0 {
		return len(m.DestinationNames)
	}
	return len(m.cells[0])
}

// At returns the cell for origin i and destination j.
func (m *Matrix) At(i, j int) TravelTime {
	return m.cells[i][j]
}

// Set marks the cell for origin i and destination j as reachable in the
// given number of seconds.
func (m *Matrix) Set(i, j int, seconds float64) {
	m.cells[i][j] = TravelTime{Seconds: seconds, Valid: true}
}

// Clone returns a deep copy, so callers can cache the original safely.
func (m *Matrix) Clone() *Matrix {
	clone := NewMatrix(m.OriginNames, m.DestinationNames)
	for i := range m.cells {
		copy(clone.cells[i], m.cells[i])
	}
	return clone
}

// Equal reports whether two matrices have identical labels and cells.
func (m *Matrix) Equal(other *Matrix) bool {
	if other == nil || m.Rows() != other.Rows() || m.Cols() != other.Cols() {
		return false
	}
	for i, name := range m.OriginNames {
		if other.OriginNames[i] != name {
			return false
		}
	}
	for j, name := range m.DestinationNames {
		if other.DestinationNames[j] != name {
			return false
		}
	}
	for i := range m.cells {
		for j := range m.cells[i] {
			if m.cells[i][j] != other.cells[i][j] {
				return false
			}
		}
	}
	return true
}

type matrixJSON struct {
	OriginNames      []string       `json:"origin_names"`
	DestinationNames []string       `json:"destination_names"`
	Cells            [][]TravelTime `json:"cells"`
}

// MarshalJSON serializes the matrix including its private cell grid.
func (m *Matrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(matrixJSON{
		OriginNames:      m.OriginNames,
		DestinationNames: m.DestinationNames,
		Cells:            m.cells,
	})
}

// UnmarshalJSON restores a matrix and validates its shape.
func (m *Matrix) UnmarshalJSON(data []byte) error {
	var raw matrixJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Cells) != len(raw.OriginNames) {
		return fmt.Errorf("matrix has %d rows but %d origin names", len(raw.Cells), len(raw.OriginNames))
	}
	for i, row := range raw.Cells {
		if len(row) != len(raw.DestinationNames) {
			return fmt.Errorf("matrix row %d has %d cells but %d destination names", i, len(row), len(raw.DestinationNames))
		}
	}
	m.OriginNames = raw.OriginNames
	m.DestinationNames = raw.DestinationNames
	m.cells = raw.Cells
	return nil
}
