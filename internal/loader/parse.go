// Package loader reads scenario result files and uncertainty tables from a
// local directory or an S3 bucket, and writes enriched tables back out.
package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"iam-platform/internal/models"
)

// ParsedFile is the outcome of parsing one observation file
type ParsedFile struct {
	Name         string
	Observations []models.Observation
	// FailedRows counts rows skipped for unparsable cells
	FailedRows int
	RowErrors  []string
}

const maxRowErrors = 20

// ParseFile dispatches on the file extension
func ParseFile(name string, r io.Reader) (*ParsedFile, error) {
	records, err := readRecords(name, r)
	if err != nil {
		return nil, err
	}
	return parseObservations(name, records)
}

func readRecords(name string, r io.Reader) ([][]string, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return readCSV(r)
	case ".xlsx":
		return readXLSX(r)
	}
	return nil, fmt.Errorf("unsupported file type %q", path.Ext(name))
}

// readCSV decodes UTF-8, falling back to ISO-8859-1 for legacy exports
func readCSV(r io.Reader) ([][]string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	var in io.Reader = bytes.NewReader(raw)
	if !utf8.Valid(raw) {
		in = charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(raw))
	}

	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing csv: %w", err)
	}
	return records, nil
}

// readXLSX reads the first sheet of a workbook
func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

// header maps lower-cased column names to positions and collects year columns
type header struct {
	index map[string]int
	years []yearColumn
}

type yearColumn struct {
	pos  int
	year int
}

func parseHeader(row []string) header {
	h := header{index: make(map[string]int, len(row))}
	for i, col := range row {
		name := strings.ToLower(strings.TrimSpace(col))
		if _, dup := h.index[name]; !dup {
			h.index[name] = i
		}
		if y, err := models.ParseYear(col); err == nil {
			h.years = append(h.years, yearColumn{pos: i, year: y})
		}
	}
	return h
}

func (h header) require(table string, cols ...string) error {
	for _, c := range cols {
		if _, ok := h.index[strings.ToLower(c)]; !ok {
			return &models.SchemaError{Table: table, Column: c}
		}
	}
	return nil
}

func cell(row []string, pos int) string {
	if pos < len(row) {
		return strings.TrimSpace(row[pos])
	}
	return ""
}

// parseObservations accepts the long layout (year and value columns) or the
// wide IAMC layout (one column per year). Wide cells left empty are not
// reported and produce no row.
func parseObservations(name string, records [][]string) (*ParsedFile, error) {
	if len(records) == 0 {
		return nil, &models.SchemaError{Table: name, Column: models.ColumnModel, Message: "file is empty"}
	}
	h := parseHeader(records[0])
	keyCols := []string{models.ColumnModel, models.ColumnScenario, models.ColumnRegion, models.ColumnVariable, models.ColumnUnit}
	if err := h.require(name, keyCols...); err != nil {
		return nil, err
	}

	_, hasYear := h.index[models.ColumnYear]
	_, hasValue := h.index[models.ColumnValue]
	long := hasYear && hasValue
	if !long && len(h.years) == 0 {
		col := models.ColumnYear
		if hasYear {
			col = models.ColumnValue
		}
		return nil, &models.SchemaError{Table: name, Column: col}
	}

	out := &ParsedFile{Name: name}
	fail := func(line int, err error) {
		out.FailedRows++
		if len(out.RowErrors) < maxRowErrors {
			out.RowErrors = append(out.RowErrors, fmt.Sprintf("line %d: %v", line, err))
		}
	}

	for i, row := range records[1:] {
		line := i + 2
		if isBlank(row) {
			continue
		}
		base := models.Observation{
			Model:    cell(row, h.index[models.ColumnModel]),
			Scenario: cell(row, h.index[models.ColumnScenario]),
			Region:   cell(row, h.index[models.ColumnRegion]),
			Variable: cell(row, h.index[models.ColumnVariable]),
			Unit:     cell(row, h.index[models.ColumnUnit]),
		}
		if col := base.MissingKeyColumn(); col != "" {
			fail(line, &models.ValidationError{Field: col, Message: "empty " + col})
			continue
		}

		if long {
			year, err := models.ParseYear(cell(row, h.index[models.ColumnYear]))
			if err != nil {
				fail(line, err)
				continue
			}
			value, err := models.ParseValue(cell(row, h.index[models.ColumnValue]))
			if err != nil {
				fail(line, err)
				continue
			}
			o := base
			o.Year, o.Value = year, value
			out.Observations = append(out.Observations, o)
			continue
		}

		for _, yc := range h.years {
			raw := cell(row, yc.pos)
			if raw == "" {
				continue
			}
			value, err := models.ParseValue(raw)
			if err != nil {
				fail(line, fmt.Errorf("year %d: %w", yc.year, err))
				continue
			}
			o := base
			o.Year, o.Value = yc.year, value
			out.Observations = append(out.Observations, o)
		}
	}
	return out, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
