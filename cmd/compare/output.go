package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"iam-platform/internal/compare"
	"iam-platform/internal/loader"
	"iam-platform/internal/models"
)

// Output formats accepted by --format
const (
	formatTable = "table"
	formatCSV   = "csv"
	formatJSON  = "json"
)

func checkFormat(format string) error {
	switch format {
	case formatTable, formatCSV, formatJSON:
		return nil
	}
	return fmt.Errorf("unknown format %q (want table, csv or json)", format)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func num(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', 6, 64)
}

func writeDeltas(w io.Writer, format string, rows []models.EnrichedObservation) error {
	switch format {
	case formatCSV:
		return loader.ExportCSV(w, rows)
	case formatJSON:
		if rows == nil {
			rows = []models.EnrichedObservation{}
		}
		return writeJSON(w, rows)
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "MODEL\tSCENARIO\tREGION\tVARIABLE\tUNIT\tYEAR\tVALUE\tBASELINE\tDELTA\tPCT_CHANGE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			r.Model, r.Scenario, r.Region, r.Variable, r.Unit, r.Year,
			num(r.Value), num(r.BaselineValue), num(r.Delta), num(r.PercentageChange))
	}
	return tw.Flush()
}

// missingReport is the JSON shape of the missing command
type missingReport struct {
	Counts []compare.ReasonCount `json:"counts"`
	Rows   []compare.MissingRow  `json:"rows,omitempty"`
}

func writeMissing(w io.Writer, format string, report missingReport) error {
	switch format {
	case formatJSON:
		if report.Counts == nil {
			report.Counts = []compare.ReasonCount{}
		}
		return writeJSON(w, report)
	case formatCSV:
		rows := make([]models.EnrichedObservation, len(report.Rows))
		for i, m := range report.Rows {
			rows[i] = m.EnrichedObservation
		}
		return loader.ExportCSV(w, rows)
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "REASON\tROWS")
	for _, c := range report.Counts {
		fmt.Fprintf(tw, "%s\t%d\n", c.Reason, c.Count)
	}
	if len(report.Rows) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "MODEL\tSCENARIO\tREGION\tVARIABLE\tYEAR\tVALUE\tBASELINE\tREASON")
		for _, m := range report.Rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
				m.Model, m.Scenario, m.Region, m.Variable, m.Year,
				num(m.Value), num(m.BaselineValue), m.Reason)
		}
	}
	return tw.Flush()
}

func writeShares(w io.Writer, format string, records []models.ShareRecord) error {
	switch format {
	case formatCSV:
		return loader.ExportSharesCSV(w, records)
	case formatJSON:
		if records == nil {
			records = []models.ShareRecord{}
		}
		return writeJSON(w, records)
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "MODEL\tSCENARIO\tREGION\tYEAR\tNUMERATOR\tDENOMINATOR\tSHARE_PCT")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.Model, r.Scenario, r.Region, r.Year,
			num(r.NumeratorValue), num(r.DenominatorValue), num(r.Share))
	}
	return tw.Flush()
}

func writeShareSummary(w io.Writer, format string, summary []compare.ShareSummary) error {
	switch format {
	case formatJSON:
		return writeJSON(w, summary)
	case formatCSV:
		fmt.Fprintln(w, "year,count,mean,min,max")
		for _, s := range summary {
			fmt.Fprintf(w, "%d,%d,%s,%s,%s\n", s.Year, s.Count, csvNum(s.Mean), csvNum(s.Min), csvNum(s.Max))
		}
		return nil
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "YEAR\tMODELS\tMEAN\tMIN\tMAX")
	for _, s := range summary {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", s.Year, s.Count, num(s.Mean), num(s.Min), num(s.Max))
	}
	return tw.Flush()
}

func csvNum(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

// writeBands prints one line per (scenario, percentile), in request order
func writeBands(w io.Writer, format string, bands compare.Bands, scenarios, percentiles []string, years []int) error {
	if format == formatJSON {
		return writeJSON(w, bands)
	}

	sep := "\t"
	var out io.Writer = w
	var tw *tabwriter.Writer
	if format == formatCSV {
		sep = ","
	} else {
		tw = newTable(w)
		out = tw
	}

	header := []string{"scenario", "percentile"}
	if format == formatTable {
		header = []string{"SCENARIO", "PERCENTILE"}
	}
	for _, y := range years {
		header = append(header, strconv.Itoa(y))
	}
	fmt.Fprintln(out, strings.Join(header, sep))

	for _, scenario := range scenarios {
		for _, label := range percentiles {
			series, ok := bands[scenario][label]
			if !ok {
				continue
			}
			line := []string{scenario, label}
			for _, v := range series.Values {
				if format == formatCSV {
					line = append(line, csvNum(v))
				} else {
					line = append(line, num(v))
				}
			}
			fmt.Fprintln(out, strings.Join(line, sep))
		}
	}
	if tw != nil {
		return tw.Flush()
	}
	return nil
}
