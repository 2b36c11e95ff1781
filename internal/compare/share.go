package compare

import (
	"math"
	"strings"

	"iam-platform/internal/models"
)

// ComputeShare expresses numerator as a percentage of denominator for every
// (model, scenario, region, year) where both variables are present.
//
// The join is an inner join: keys present for only one of the two variables
// are dropped. Rows come out in numerator order. When the denominator holds
// several rows for one key the first in input order wins. Share is absent
// when either value is absent or the denominator is zero.
func ComputeShare(observations []models.Observation, numerator, denominator string) ([]models.ShareRecord, error) {
	if strings.TrimSpace(numerator) == "" {
		return nil, &models.SchemaError{Table: "observations", Column: models.ColumnVariable, Message: "numerator variable not set"}
	}
	if strings.TrimSpace(denominator) == "" {
		return nil, &models.SchemaError{Table: "observations", Column: models.ColumnVariable, Message: "denominator variable not set"}
	}

	denominators := make(map[models.PairKey]*float64)
	for _, o := range observations {
		if o.Variable != denominator {
			continue
		}
		if col := o.MissingKeyColumn(); col != "" {
			return nil, &models.SchemaError{Table: "observations", Column: col, Message: "empty key field"}
		}
		key := o.PairKey()
		if _, seen := denominators[key]; seen {
			continue
		}
		denominators[key] = copyFloat(o.Value)
	}

	var out []models.ShareRecord
	for _, o := range observations {
		if o.Variable != numerator {
			continue
		}
		if col := o.MissingKeyColumn(); col != "" {
			return nil, &models.SchemaError{Table: "observations", Column: col, Message: "empty key field"}
		}
		den, ok := denominators[o.PairKey()]
		if !ok {
			continue
		}
		rec := models.ShareRecord{
			Model:               o.Model,
			Scenario:            o.Scenario,
			Region:              o.Region,
			Year:                o.Year,
			NumeratorVariable:   numerator,
			DenominatorVariable: denominator,
			NumeratorValue:      copyFloat(o.Value),
			DenominatorValue:    copyFloat(den),
		}
		if rec.NumeratorValue != nil && rec.DenominatorValue != nil && *rec.DenominatorValue != 0 {
			rec.Share = models.Float(100 * *rec.NumeratorValue / *rec.DenominatorValue)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ShareFilter selects share records
type ShareFilter struct {
	Models    []string
	Scenarios []string
	Regions   []string
	Years     []int
}

// FilterShares returns the records matching f
func FilterShares(records []models.ShareRecord, f ShareFilter) []models.ShareRecord {
	var out []models.ShareRecord
	for _, r := range records {
		if matchString(f.Models, r.Model) &&
			matchString(f.Scenarios, r.Scenario) &&
			matchString(f.Regions, r.Region) &&
			matchInt(f.Years, r.Year) {
			out = append(out, r)
		}
	}
	return out
}

// ShareSummary aggregates the defined shares of one year across models
type ShareSummary struct {
	Year  int      `json:"year"`
	Count int      `json:"count"`
	Mean  *float64 `json:"mean"`
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
}

// SummarizeShares computes mean, min and max of the defined shares for one
// scenario and region, one entry per requested year in request order. Years
// without a defined share yield a zero count and absent statistics.
func SummarizeShares(records []models.ShareRecord, scenario, region string, years []int) []ShareSummary {
	out := make([]ShareSummary, len(years))
	for i, year := range years {
		sum := 0.0
		lo, hi := math.Inf(1), math.Inf(-1)
		n := 0
		for _, r := range records {
			if r.Scenario != scenario || r.Region != region || r.Year != year || r.Share == nil {
				continue
			}
			v := *r.Share
			sum += v
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
			n++
		}
		out[i] = ShareSummary{Year: year, Count: n}
		if n > 0 {
			out[i].Mean = models.Float(sum / float64(n))
			out[i].Min = models.Float(lo)
			out[i].Max = models.Float(hi)
		}
	}
	return out
}
