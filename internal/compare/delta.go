// Package compare holds the baseline-relative comparison engine: baseline
// deltas, variable shares, uncertainty band lookups and column renames.
//
// Every function here is a pure transform. Inputs are never modified; each
// call returns freshly allocated rows so one consumer's output cannot leak
// into another's input.
package compare

import (
	"math"
	"sort"
	"strings"

	"iam-platform/internal/models"
)

// DeltaResult is the output of ComputeDeltas
type DeltaResult struct {
	Baseline string
	Rows     []models.EnrichedObservation
	// BaselineRows is the number of rows in the baseline reference
	BaselineRows int
	// DuplicateBaselineKeys counts baseline rows ignored because an earlier
	// row already claimed the same (model, region, variable, year).
	DuplicateBaselineKeys int
}

// ComputeDeltas joins every observation to the baseline scenario row with the
// same model, region, variable and year, and derives delta and percentage change.
//
// The join is a left join: the output has exactly one row per input row, in
// input order. When the baseline reference holds several rows for one key the
// first in input order wins. A baseline row whose value is absent counts as no
// baseline data. Percentage change is left absent when the baseline is zero,
// and no infinite or NaN value is ever returned.
func ComputeDeltas(observations []models.Observation, baseline string) (*DeltaResult, error) {
	if strings.TrimSpace(baseline) == "" {
		return nil, &models.SchemaError{Table: "observations", Column: models.ColumnScenario, Message: "baseline scenario not set"}
	}
	for _, o := range observations {
		if col := o.MissingKeyColumn(); col != "" {
			return nil, &models.SchemaError{Table: "observations", Column: col, Message: "empty key field"}
		}
	}

	result := &DeltaResult{
		Baseline: baseline,
		Rows:     make([]models.EnrichedObservation, len(observations)),
	}

	reference := make(map[models.BaselineKey]*float64)
	for _, o := range observations {
		if o.Scenario != baseline {
			continue
		}
		result.BaselineRows++
		key := o.BaselineKey()
		if _, seen := reference[key]; seen {
			result.DuplicateBaselineKeys++
			continue
		}
		reference[key] = copyFloat(o.Value)
	}

	for i, o := range observations {
		row := models.EnrichedObservation{
			Observation:      o,
			BaselineScenario: baseline,
		}
		row.Value = copyFloat(o.Value)

		base := reference[o.BaselineKey()]
		if base != nil {
			row.BaselineValue = copyFloat(base)
			if o.Value != nil {
				row.Delta = models.Float(*o.Value - *base)
				if *base != 0 && row.Delta != nil {
					row.PercentageChange = models.Float(100 * *row.Delta / *base)
				}
			}
		}
		result.Rows[i] = row
	}

	return result, nil
}

// MissingRow is a diagnostic view of an enriched row without a percentage change
type MissingRow struct {
	models.EnrichedObservation
	Reason models.MissingReason `json:"reason"`
}

// ClassifyMissing returns the rows whose percentage change is absent, each
// tagged with the reason. The enriched rows are not modified.
func ClassifyMissing(rows []models.EnrichedObservation) []MissingRow {
	var out []MissingRow
	for _, r := range rows {
		reason := r.MissingReason()
		if reason == models.ReasonNone {
			continue
		}
		out = append(out, MissingRow{EnrichedObservation: r, Reason: reason})
	}
	return out
}

// ReasonCount is the number of missing rows for one reason
type ReasonCount struct {
	Reason models.MissingReason `json:"reason"`
	Count  int                  `json:"count"`
}

// CountByReason tallies missing rows, most frequent first
func CountByReason(missing []MissingRow) []ReasonCount {
	counts := make(map[models.MissingReason]int)
	for _, m := range missing {
		counts[m.Reason]++
	}
	out := make([]ReasonCount, 0, len(counts))
	for reason, n := range counts {
		out = append(out, ReasonCount{Reason: reason, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

// Filter selects rows by exact match on the non-empty fields
type Filter struct {
	Models    []string
	Scenarios []string
	Regions   []string
	Variables []string
	Years     []int
}

func (f Filter) match(o models.Observation) bool {
	return matchString(f.Models, o.Model) &&
		matchString(f.Scenarios, o.Scenario) &&
		matchString(f.Regions, o.Region) &&
		matchString(f.Variables, o.Variable) &&
		matchInt(f.Years, o.Year)
}

// FilterEnriched returns the enriched rows matching f
func FilterEnriched(rows []models.EnrichedObservation, f Filter) []models.EnrichedObservation {
	var out []models.EnrichedObservation
	for _, r := range rows {
		if f.match(r.Observation) {
			out = append(out, r)
		}
	}
	return out
}

// FilterObservations returns the observations matching f
func FilterObservations(rows []models.Observation, f Filter) []models.Observation {
	var out []models.Observation
	for _, r := range rows {
		if f.match(r) {
			out = append(out, r)
		}
	}
	return out
}

// DuplicateKeys returns observation keys that occur more than once, in order
// of first appearance.
func DuplicateKeys(observations []models.Observation) []models.ObservationKey {
	seen := make(map[models.ObservationKey]int)
	var dups []models.ObservationKey
	for _, o := range observations {
		k := o.Key()
		seen[k]++
		if seen[k] == 2 {
			dups = append(dups, k)
		}
	}
	return dups
}

// Years returns the sorted distinct years present in the observations
func Years(observations []models.Observation) []int {
	set := make(map[int]struct{})
	for _, o := range observations {
		set[o.Year] = struct{}{}
	}
	years := make([]int, 0, len(set))
	for y := range set {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

func matchString(allowed []string, v string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}

func matchInt(allowed []int, v int) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	c := *v
	return &c
}
