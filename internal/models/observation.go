package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Column names of the long-format observation table
const (
	ColumnModel    = "model"
	ColumnScenario = "scenario"
	ColumnRegion   = "region"
	ColumnVariable = "variable"
	ColumnUnit     = "unit"
	ColumnYear     = "year"
	ColumnValue    = "value"
)

// RequiredColumns lists the columns every observation table must carry
var RequiredColumns = []string{
	ColumnModel, ColumnScenario, ColumnRegion, ColumnVariable, ColumnUnit, ColumnYear, ColumnValue,
}

// Observation is a single row of the long-format IAM table.
// Absent values are represented as nil pointers.
type Observation struct {
	Model    string   `json:"model" db:"model"`
	Scenario string   `json:"scenario" db:"scenario"`
	Region   string   `json:"region" db:"region"`
	Variable string   `json:"variable" db:"variable"`
	Unit     string   `json:"unit" db:"unit"`
	Year     int      `json:"year" db:"year"`
	Value    *float64 `json:"value" db:"value"`
}

// ObservationKey identifies a row within one logical source
type ObservationKey struct {
	Model    string
	Scenario string
	Region   string
	Variable string
	Year     int
}

// BaselineKey is the join key between a row and its baseline counterpart
type BaselineKey struct {
	Model    string
	Region   string
	Variable string
	Year     int
}

// PairKey is the join key between two variables of the same run
type PairKey struct {
	Model    string
	Scenario string
	Region   string
	Year     int
}

// Key returns the row identity
func (o Observation) Key() ObservationKey {
	return ObservationKey{Model: o.Model, Scenario: o.Scenario, Region: o.Region, Variable: o.Variable, Year: o.Year}
}

// BaselineKey returns the key used to find the baseline counterpart
func (o Observation) BaselineKey() BaselineKey {
	return BaselineKey{Model: o.Model, Region: o.Region, Variable: o.Variable, Year: o.Year}
}

// PairKey returns the key used to match two variables
func (o Observation) PairKey() PairKey {
	return PairKey{Model: o.Model, Scenario: o.Scenario, Region: o.Region, Year: o.Year}
}

// MissingKeyColumn returns the first identifying column left empty, or "".
func (o Observation) MissingKeyColumn() string {
	switch {
	case strings.TrimSpace(o.Model) == "":
		return ColumnModel
	case strings.TrimSpace(o.Scenario) == "":
		return ColumnScenario
	case strings.TrimSpace(o.Region) == "":
		return ColumnRegion
	case strings.TrimSpace(o.Variable) == "":
		return ColumnVariable
	}
	return ""
}

// MissingReason explains why an enriched row carries no percentage change
type MissingReason string

const (
	ReasonNone           MissingReason = ""
	ReasonNoBaselineData MissingReason = "NoBaselineData"
	ReasonDivisionByZero MissingReason = "DivisionByZero"
	// ReasonUnknown covers rows whose own value is absent while the baseline is usable.
	ReasonUnknown MissingReason = "Unknown"
)

// EnrichedObservation is an observation joined to its baseline counterpart
type EnrichedObservation struct {
	Observation
	BaselineScenario string   `json:"baseline_scenario" db:"baseline_scenario"`
	BaselineValue    *float64 `json:"baseline_value" db:"baseline_value"`
	Delta            *float64 `json:"delta" db:"delta"`
	PercentageChange *float64 `json:"percentage_change" db:"percentage_change"`
}

// MissingReason classifies a row without a percentage change.
// Rows with a percentage change return ReasonNone.
func (e EnrichedObservation) MissingReason() MissingReason {
	if e.PercentageChange != nil {
		return ReasonNone
	}
	if e.BaselineValue == nil {
		return ReasonNoBaselineData
	}
	if *e.BaselineValue == 0 {
		return ReasonDivisionByZero
	}
	return ReasonUnknown
}

// ShareRecord is one variable expressed as a percentage of another
type ShareRecord struct {
	Model               string   `json:"model" db:"model"`
	Scenario            string   `json:"scenario" db:"scenario"`
	Region              string   `json:"region" db:"region"`
	Year                int      `json:"year" db:"year"`
	NumeratorVariable   string   `json:"numerator_variable" db:"numerator_variable"`
	DenominatorVariable string   `json:"denominator_variable" db:"denominator_variable"`
	NumeratorValue      *float64 `json:"numerator_value" db:"numerator_value"`
	DenominatorValue    *float64 `json:"denominator_value" db:"denominator_value"`
	Share               *float64 `json:"share" db:"share"`
}

// IngestionRun records one load of a source into the database
type IngestionRun struct {
	ID          string     `json:"id" db:"id"`
	Source      string     `json:"source" db:"source"`
	Baseline    string     `json:"baseline" db:"baseline"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	Files       int        `json:"files" db:"files"`
	FilesFailed int        `json:"files_failed" db:"files_failed"`
	Rows        int        `json:"rows" db:"row_count"`
}

// Float returns a pointer to v, or nil when v is not finite
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ParseValue parses a numeric cell. Empty cells and NaN markers are absent.
func ParseValue(raw string) (*float64, error) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "", "nan", "na", "n/a", "null", "none", "-":
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, &ValidationError{
			Field:   ColumnValue,
			Value:   raw,
			Message: fmt.Sprintf("invalid numeric value %q", raw),
		}
	}
	return Float(v), nil
}

// ParseYear parses a year cell; spreadsheet exports sometimes write "2030.0".
func ParseYear(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if y, err := strconv.Atoi(s); err == nil {
		return y, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, &ValidationError{
			Field:   ColumnYear,
			Value:   raw,
			Message: fmt.Sprintf("invalid year %q", raw),
		}
	}
	return int(f), nil
}
