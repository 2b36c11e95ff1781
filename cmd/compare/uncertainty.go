package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"iam-platform/internal/compare"
	"iam-platform/internal/loader"
	"iam-platform/internal/models"
	"iam-platform/internal/services"
	"iam-platform/pkg/logging"
)

func newUncertaintyCmd(a *app) *cobra.Command {
	var (
		file        string
		prefix      string
		variable    string
		scenarios   []string
		percentiles []string
		year        int
		checkGrid   bool
		format      string
	)

	cmd := &cobra.Command{
		Use:   "uncertainty",
		Short: "Extract percentile bands from the uncertainty source",
		Long: `uncertainty reads the wide percentile table (--file, default from config) or a
set of per-scenario, per-percentile files named <prefix>_<scenario>_<label>.csv
(--prefix) and prints one series per scenario and percentile in display units.

--year prints the 50th percentile with its 5th to 95th whisker for that year.
--check-grid compares the table's years with the observation years.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := checkFormat(format); err != nil {
				return err
			}
			if variable == "" {
				return errors.New("--variable is required")
			}
			if len(scenarios) == 0 {
				return errors.New("at least one --scenario is required")
			}
			if file == "" {
				file = a.cfg.Analysis.UncertaintyFile
			}
			if file == "" && prefix == "" {
				return errors.New("either --file or --prefix is required")
			}

			src, err := a.newSource(ctx)
			if err != nil {
				return err
			}

			var table *models.UncertaintyTable
			if prefix != "" {
				labels := percentiles
				if year != 0 {
					labels = []string{"5th", "50th", "95th"}
				}
				var misses []*models.LookupMissError
				table, misses, err = loader.ReadScenarioPercentileFiles(ctx, src, prefix, scenarios, labels)
				for _, m := range misses {
					a.logger.Warn(ctx, "[UNCERTAINTY_FILE_MISSING] Percentile file not found", logging.Fields{
						"file":       m.File,
						"scenario":   m.Scenario,
						"percentile": m.Percentile,
					})
				}
			} else {
				table, err = loader.ReadUncertainty(ctx, src, file)
			}
			if err != nil {
				return err
			}

			svc := services.NewUncertaintyService(table, a.display, a.logger, a.metrics)

			if checkGrid {
				observations, err := a.observations(ctx)
				if err != nil {
					return err
				}
				grid := svc.CheckGrid(ctx, compare.Years(observations))
				if format == formatJSON {
					return writeJSON(cmd.OutOrStdout(), grid)
				}
				if grid.Empty() {
					fmt.Fprintln(cmd.OutOrStdout(), "year grids agree")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "only in uncertainty source: %v\n", grid.OnlyInSource)
				fmt.Fprintf(cmd.OutOrStdout(), "only in observations:       %v\n", grid.OnlyInObservations)
				return nil
			}

			if year != 0 {
				return printWhiskers(cmd, svc, format, variable, scenarios, year)
			}

			bands, misses, err := svc.Bands(ctx, variable, scenarios, percentiles)
			if err != nil {
				return err
			}
			if len(bands) == 0 && len(misses) > 0 {
				return misses[0]
			}
			return writeBands(cmd.OutOrStdout(), format, bands, scenarios, percentiles, svc.Years())
		},
	}

	f := cmd.Flags()
	f.StringVar(&file, "file", "", "wide percentile table (default analysis.uncertainty_file)")
	f.StringVar(&prefix, "prefix", "", "prefix of per-scenario, per-percentile files")
	f.StringVar(&variable, "variable", "", "variable to extract")
	f.StringSliceVar(&scenarios, "scenario", nil, "scenarios to extract")
	f.StringSliceVar(&percentiles, "percentile", []string{"5th", "95th"}, "percentile labels")
	f.IntVar(&year, "year", 0, "print the median and 5th to 95th whisker for this year")
	f.BoolVar(&checkGrid, "check-grid", false, "compare the year grid with the observation years")
	f.StringVarP(&format, "format", "f", formatTable, "output format: table, csv or json")
	return cmd
}

func printWhiskers(cmd *cobra.Command, svc *services.UncertaintyService, format, variable string, scenarios []string, year int) error {
	whiskers := make([]compare.Whisker, 0, len(scenarios))
	for _, scenario := range scenarios {
		w, err := svc.Whisker(cmd.Context(), variable, scenario, year)
		if err != nil {
			return err
		}
		whiskers = append(whiskers, w)
	}

	out := cmd.OutOrStdout()
	switch format {
	case formatJSON:
		return writeJSON(out, whiskers)
	case formatCSV:
		fmt.Fprintln(out, "scenario,year,median,low,high")
		for _, w := range whiskers {
			fmt.Fprintf(out, "%s,%d,%g,%g,%g\n", w.Scenario, w.Year, w.Median, w.Low, w.High)
		}
		return nil
	}

	tw := newTable(out)
	fmt.Fprintln(tw, "SCENARIO\tYEAR\tMEDIAN\tLOW\tHIGH")
	for _, w := range whiskers {
		fmt.Fprintf(tw, "%s\t%d\t%g\t%g\t%g\n", w.Scenario, w.Year, w.Median, w.Low, w.High)
	}
	return tw.Flush()
}
