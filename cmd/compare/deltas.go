package main

import (
	"github.com/spf13/cobra"

	"iam-platform/internal/compare"
)

func newDeltasCmd(a *app) *cobra.Command {
	var (
		ff     filterFlags
		format string
	)

	cmd := &cobra.Command{
		Use:   "deltas",
		Short: "Print every row joined to its baseline counterpart",
		Long: `deltas joins every observation to the baseline scenario row with the same
model, region, variable and year and prints value, baseline value, delta
and percentage change. Filters apply after the join.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			filter, err := ff.filter(a.display)
			if err != nil {
				return err
			}
			res, err := a.deltas(cmd.Context())
			if err != nil {
				return err
			}
			return writeDeltas(cmd.OutOrStdout(), format, compare.FilterEnriched(res.Rows, filter))
		},
	}

	ff.bind(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format: table, csv or json")
	return cmd
}

func newMissingCmd(a *app) *cobra.Command {
	var (
		ff       filterFlags
		format   string
		showRows bool
	)

	cmd := &cobra.Command{
		Use:   "missing",
		Short: "Explain rows without a percentage change",
		Long: `missing counts the joined rows whose percentage change is absent by reason:
NoBaselineData, DivisionByZero or Unknown. --rows also lists the rows.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			filter, err := ff.filter(a.display)
			if err != nil {
				return err
			}
			res, err := a.deltas(cmd.Context())
			if err != nil {
				return err
			}

			missing := compare.ClassifyMissing(compare.FilterEnriched(res.Rows, filter))
			report := missingReport{Counts: compare.CountByReason(missing)}
			if showRows || format == formatCSV {
				report.Rows = missing
			}
			return writeMissing(cmd.OutOrStdout(), format, report)
		},
	}

	ff.bind(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format: table, csv or json")
	cmd.Flags().BoolVar(&showRows, "rows", false, "list the missing rows as well as the counts")
	return cmd
}
