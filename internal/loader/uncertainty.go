package loader

import (
	"context"
	"fmt"
	"slices"

	"iam-platform/internal/models"
)

// ParseUncertainty reads a wide table with Variable, Scenario and Percentile
// columns followed by one column per year.
func ParseUncertainty(name string, records [][]string) (*models.UncertaintyTable, error) {
	if len(records) == 0 {
		return nil, &models.SchemaError{Table: name, Column: models.UncertaintyColumnVariable, Message: "file is empty"}
	}
	h := parseHeader(records[0])
	if err := h.require(name, models.UncertaintyColumnVariable, models.UncertaintyColumnScenario, models.UncertaintyColumnPercentile); err != nil {
		return nil, err
	}
	if len(h.years) == 0 {
		return nil, &models.SchemaError{Table: name, Column: "<year>", Message: "no year columns"}
	}

	table := &models.UncertaintyTable{Name: name, Years: yearsOf(h.years)}
	varPos := h.index["variable"]
	scenPos := h.index["scenario"]
	pctPos := h.index["percentile"]
	for i, row := range records[1:] {
		if isBlank(row) {
			continue
		}
		pct, err := models.ParsePercentile(cell(row, pctPos))
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", name, i+2, err)
		}
		values, err := rowValues(row, h.years)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", name, i+2, err)
		}
		table.Rows = append(table.Rows, models.UncertaintyRow{
			Variable:   cell(row, varPos),
			Scenario:   cell(row, scenPos),
			Percentile: pct,
			Values:     values,
		})
	}
	return table, nil
}

// ReadUncertainty loads one wide uncertainty file from src
func ReadUncertainty(ctx context.Context, src Source, name string) (*models.UncertaintyTable, error) {
	records, err := openRecords(ctx, src, name)
	if err != nil {
		return nil, err
	}
	return ParseUncertainty(name, records)
}

// PercentileFileName is the name of a per-scenario, per-percentile export,
// e.g. FRIDA_HD_ER_RCP85_1_CDD_20_10_5th.csv
func PercentileFileName(prefix, scenario, label string) string {
	return fmt.Sprintf("%s_%s_%s.csv", prefix, scenario, label)
}

// ReadScenarioPercentileFiles assembles one table from per-scenario,
// per-percentile files. Each file carries a Variable column and year columns;
// the scenario and percentile come from the file name. Absent files are
// returned as lookup misses. All files must share one year grid.
func ReadScenarioPercentileFiles(ctx context.Context, src Source, prefix string, scenarios, labels []string) (*models.UncertaintyTable, []*models.LookupMissError, error) {
	percentiles := make([]int, len(labels))
	for i, label := range labels {
		p, err := models.ParsePercentile(label)
		if err != nil {
			return nil, nil, err
		}
		percentiles[i] = p
	}

	available, err := src.List(ctx)
	if err != nil {
		return nil, nil, err
	}

	table := &models.UncertaintyTable{Name: prefix}
	var misses []*models.LookupMissError
	for _, scenario := range scenarios {
		for i, label := range labels {
			name := PercentileFileName(prefix, scenario, label)
			if !slices.Contains(available, name) {
				misses = append(misses, &models.LookupMissError{Scenario: scenario, Percentile: percentiles[i], File: name})
				continue
			}
			records, err := openRecords(ctx, src, name)
			if err != nil {
				return nil, nil, err
			}
			if len(records) == 0 {
				return nil, nil, &models.SchemaError{Table: name, Column: models.UncertaintyColumnVariable, Message: "file is empty"}
			}
			h := parseHeader(records[0])
			if err := h.require(name, models.UncertaintyColumnVariable); err != nil {
				return nil, nil, err
			}
			years := yearsOf(h.years)
			if table.Years == nil {
				table.Years = years
			} else if !slices.Equal(table.Years, years) {
				return nil, nil, &models.SchemaError{Table: name, Column: "<year>", Message: "year grid differs from earlier files"}
			}
			for j, row := range records[1:] {
				if isBlank(row) {
					continue
				}
				values, err := rowValues(row, h.years)
				if err != nil {
					return nil, nil, fmt.Errorf("%s line %d: %w", name, j+2, err)
				}
				table.Rows = append(table.Rows, models.UncertaintyRow{
					Variable:   cell(row, h.index["variable"]),
					Scenario:   scenario,
					Percentile: percentiles[i],
					Values:     values,
				})
			}
		}
	}
	return table, misses, nil
}

func openRecords(ctx context.Context, src Source, name string) ([][]string, error) {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return readRecords(name, rc)
}

func yearsOf(cols []yearColumn) []int {
	out := make([]int, len(cols))
	for i, c := range cols {
		out[i] = c.year
	}
	return out
}

func rowValues(row []string, cols []yearColumn) ([]*float64, error) {
	values := make([]*float64, len(cols))
	for i, c := range cols {
		v, err := models.ParseValue(cell(row, c.pos))
		if err != nil {
			return nil, fmt.Errorf("year %d: %w", c.year, err)
		}
		values[i] = v
	}
	return values, nil
}
