package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"iam-platform/internal/models"
)

var enrichedHeader = []string{
	models.ColumnModel, models.ColumnScenario, models.ColumnRegion, models.ColumnVariable,
	models.ColumnUnit, models.ColumnYear, models.ColumnValue,
	"baseline_scenario", "baseline_value", "delta", "percentage_change", "missing_reason",
}

var shareHeader = []string{
	models.ColumnModel, models.ColumnScenario, models.ColumnRegion, models.ColumnYear,
	"numerator_variable", "denominator_variable", "numerator_value", "denominator_value", "share",
}

func enrichedCells(e models.EnrichedObservation) []interface{} {
	return []interface{}{
		e.Model, e.Scenario, e.Region, e.Variable, e.Unit, e.Year, deref(e.Value),
		e.BaselineScenario, deref(e.BaselineValue), deref(e.Delta), deref(e.PercentageChange),
		string(e.MissingReason()),
	}
}

func shareCells(s models.ShareRecord) []interface{} {
	return []interface{}{
		s.Model, s.Scenario, s.Region, s.Year,
		s.NumeratorVariable, s.DenominatorVariable,
		deref(s.NumeratorValue), deref(s.DenominatorValue), deref(s.Share),
	}
}

// deref yields nil for absent values so they export as empty cells
func deref(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// ExportCSV writes enriched rows with a header line
func ExportCSV(w io.Writer, rows []models.EnrichedObservation) error {
	cells := make([][]interface{}, len(rows))
	for i, r := range rows {
		cells[i] = enrichedCells(r)
	}
	return writeCSV(w, enrichedHeader, cells)
}

// ExportSharesCSV writes share records with a header line
func ExportSharesCSV(w io.Writer, records []models.ShareRecord) error {
	cells := make([][]interface{}, len(records))
	for i, r := range records {
		cells[i] = shareCells(r)
	}
	return writeCSV(w, shareHeader, cells)
}

func writeCSV(w io.Writer, header []string, rows [][]interface{}) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for _, row := range rows {
		for i, c := range row {
			record[i] = formatCell(c)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatCell(c interface{}) string {
	switch v := c.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return fmt.Sprint(c)
}

// ExportXLSX writes enriched rows to a "deltas" sheet and, when given,
// share records to a "shares" sheet. Absent values are left blank.
func ExportXLSX(w io.Writer, rows []models.EnrichedObservation, shares []models.ShareRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	const deltas = "deltas"
	if err := f.SetSheetName(f.GetSheetName(0), deltas); err != nil {
		return err
	}
	cells := make([][]interface{}, len(rows))
	for i, r := range rows {
		cells[i] = enrichedCells(r)
	}
	if err := writeSheet(f, deltas, enrichedHeader, cells); err != nil {
		return err
	}

	if len(shares) > 0 {
		const sheet = "shares"
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
		cells := make([][]interface{}, len(shares))
		for i, r := range shares {
			cells[i] = shareCells(r)
		}
		if err := writeSheet(f, sheet, shareHeader, cells); err != nil {
			return err
		}
	}

	_, err := f.WriteTo(w)
	return err
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]interface{}) error {
	head := make([]interface{}, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return err
	}
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(sheet, cellName, &row); err != nil {
			return err
		}
	}
	return nil
}
