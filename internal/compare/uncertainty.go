package compare

import (
	"sort"

	"iam-platform/internal/models"
)

// Scale converts raw source units to display units by division,
// e.g. Divisor 1000 turns GW into TW.
type Scale struct {
	Divisor float64 `json:"divisor" yaml:"divisor"`
	Unit    string  `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// Identity leaves values untouched
var Identity = Scale{Divisor: 1}

func (s Scale) divisor() float64 {
	if s.Divisor == 0 {
		return 1
	}
	return s.Divisor
}

// Apply converts a raw value to display units
func (s Scale) Apply(v float64) float64 {
	return v / s.divisor()
}

// Invert converts a display value back to raw units
func (s Scale) Invert(v float64) float64 {
	return v * s.divisor()
}

// Series is an ordered, year-indexed run of values
type Series struct {
	Years  []int      `json:"years"`
	Values []*float64 `json:"values"`
	Unit   string     `json:"unit,omitempty"`
}

// At returns the value for year, or nil when the year is not on the grid
func (s Series) At(year int) *float64 {
	for i, y := range s.Years {
		if y == year {
			return s.Values[i]
		}
	}
	return nil
}

// BandRequest selects the series to extract from an uncertainty table
type BandRequest struct {
	Variable  string
	Scenarios []string
	// Percentiles are labels such as "5th" and "95th"; they key the result.
	Percentiles []string
	Scale       Scale
}

// Bands maps scenario -> percentile label -> series
type Bands map[string]map[string]Series

// MergeUncertainty extracts one series per (scenario, percentile) for the
// requested variable. Values keep the source's year-column order and are
// divided by the request's scale; nothing is interpolated or resampled.
//
// Combinations absent from the table are left out of the bands and reported
// as lookup misses. A malformed request or label yields a SchemaError.
func MergeUncertainty(table *models.UncertaintyTable, req BandRequest) (Bands, []*models.LookupMissError, error) {
	if table == nil {
		return nil, nil, &models.SchemaError{Table: "uncertainty", Column: models.UncertaintyColumnVariable, Message: "no uncertainty table loaded"}
	}
	if req.Variable == "" {
		return nil, nil, &models.SchemaError{Table: table.Name, Column: models.UncertaintyColumnVariable, Message: "variable not set"}
	}

	percentiles := make([]int, len(req.Percentiles))
	for i, label := range req.Percentiles {
		p, err := models.ParsePercentile(label)
		if err != nil {
			return nil, nil, &models.SchemaError{Table: table.Name, Column: models.UncertaintyColumnPercentile, Message: err.Error()}
		}
		percentiles[i] = p
	}

	bands := make(Bands)
	var misses []*models.LookupMissError
	for _, scenario := range req.Scenarios {
		for i, label := range req.Percentiles {
			row, ok := table.Find(req.Variable, scenario, percentiles[i])
			if !ok {
				misses = append(misses, &models.LookupMissError{
					Variable:   req.Variable,
					Scenario:   scenario,
					Percentile: percentiles[i],
				})
				continue
			}
			if bands[scenario] == nil {
				bands[scenario] = make(map[string]Series)
			}
			bands[scenario][label] = scaleSeries(table.Years, row.Values, req.Scale)
		}
	}
	return bands, misses, nil
}

func scaleSeries(years []int, raw []*float64, scale Scale) Series {
	s := Series{
		Years:  append([]int(nil), years...),
		Values: make([]*float64, len(years)),
		Unit:   scale.Unit,
	}
	for i := range years {
		if i >= len(raw) || raw[i] == nil {
			continue
		}
		s.Values[i] = models.Float(scale.Apply(*raw[i]))
	}
	return s
}

// LookupPercentile returns the raw value of one (variable, scenario,
// percentile, year) cell. A missing row, year column or empty cell is a
// lookup miss.
func LookupPercentile(table *models.UncertaintyTable, variable, scenario string, percentile, year int) (float64, error) {
	miss := &models.LookupMissError{Variable: variable, Scenario: scenario, Percentile: percentile, Year: year}
	row, ok := table.Find(variable, scenario, percentile)
	if !ok {
		return 0, miss
	}
	idx := table.YearIndex(year)
	if idx < 0 || idx >= len(row.Values) || row.Values[idx] == nil {
		return 0, miss
	}
	return *row.Values[idx], nil
}

// Whisker is a central estimate with its low/high band for one year
type Whisker struct {
	Variable string  `json:"variable"`
	Scenario string  `json:"scenario"`
	Year     int     `json:"year"`
	Median   float64 `json:"median"`
	Low      float64 `json:"low"`
	High     float64 `json:"high"`
}

// LookupWhisker reads the 50th, 5th and 95th percentile cells for one year.
// The first missing cell is returned as a lookup miss.
func LookupWhisker(table *models.UncertaintyTable, variable, scenario string, year int) (Whisker, error) {
	w := Whisker{Variable: variable, Scenario: scenario, Year: year}
	var err error
	if w.Median, err = LookupPercentile(table, variable, scenario, 50, year); err != nil {
		return Whisker{}, err
	}
	if w.Low, err = LookupPercentile(table, variable, scenario, 5, year); err != nil {
		return Whisker{}, err
	}
	if w.High, err = LookupPercentile(table, variable, scenario, 95, year); err != nil {
		return Whisker{}, err
	}
	return w, nil
}

// GridMismatch lists years present on only one of two year grids
type GridMismatch struct {
	OnlyInSource       []int `json:"only_in_source,omitempty"`
	OnlyInObservations []int `json:"only_in_observations,omitempty"`
}

// Empty reports whether the grids agree
func (g GridMismatch) Empty() bool {
	return len(g.OnlyInSource) == 0 && len(g.OnlyInObservations) == 0
}

// CheckYearGrid compares the uncertainty year grid with the observation
// years. The mismatch is reported, never resolved.
func CheckYearGrid(sourceYears, observationYears []int) GridMismatch {
	src := make(map[int]bool, len(sourceYears))
	for _, y := range sourceYears {
		src[y] = true
	}
	obs := make(map[int]bool, len(observationYears))
	for _, y := range observationYears {
		obs[y] = true
	}

	var g GridMismatch
	for y := range src {
		if !obs[y] {
			g.OnlyInSource = append(g.OnlyInSource, y)
		}
	}
	for y := range obs {
		if !src[y] {
			g.OnlyInObservations = append(g.OnlyInObservations, y)
		}
	}
	sort.Ints(g.OnlyInSource)
	sort.Ints(g.OnlyInObservations)
	return g
}
