package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Columns of the wide-format uncertainty source
const (
	UncertaintyColumnVariable   = "Variable"
	UncertaintyColumnScenario   = "Scenario"
	UncertaintyColumnPercentile = "Percentile"
)

// UncertaintyRow holds one (variable, scenario, percentile) series.
// Values are aligned with UncertaintyTable.Years.
type UncertaintyRow struct {
	Variable   string
	Scenario   string
	Percentile int
	Values     []*float64
}

// UncertaintyTable is read-only percentile reference data
type UncertaintyTable struct {
	Name  string
	Years []int
	Rows  []UncertaintyRow
}

// Find returns the first row matching the key
func (t *UncertaintyTable) Find(variable, scenario string, percentile int) (UncertaintyRow, bool) {
	if t == nil {
		return UncertaintyRow{}, false
	}
	for _, row := range t.Rows {
		if row.Variable == variable && row.Scenario == scenario && row.Percentile == percentile {
			return row, true
		}
	}
	return UncertaintyRow{}, false
}

// YearIndex returns the column position of year, or -1
func (t *UncertaintyTable) YearIndex(year int) int {
	if t == nil {
		return -1
	}
	for i, y := range t.Years {
		if y == year {
			return i
		}
	}
	return -1
}

// ParsePercentile accepts "5", "5.0", "5th", "50th", "95th" and "p95".
func ParsePercentile(label string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(label))
	s = strings.TrimPrefix(s, "p")
	for _, suffix := range []string{"th", "st", "nd", "rd"} {
		s = strings.TrimSuffix(s, suffix)
	}
	if p, err := strconv.Atoi(s); err == nil && p >= 0 && p <= 100 {
		return p, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f <= 100 && f == float64(int(f)) {
		return int(f), nil
	}
	return 0, &ValidationError{
		Field:   UncertaintyColumnPercentile,
		Value:   label,
		Message: fmt.Sprintf("invalid percentile label %q", label),
	}
}
