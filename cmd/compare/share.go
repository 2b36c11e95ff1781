package main

import (
	"errors"
	"slices"

	"github.com/spf13/cobra"

	"iam-platform/internal/compare"
)

func newShareCmd(a *app) *cobra.Command {
	var (
		numerator   string
		denominator string
		models      []string
		scenarios   []string
		regions     []string
		years       []int
		summary     bool
		format      string
	)

	cmd := &cobra.Command{
		Use:   "share",
		Short: "Express one variable as a percentage of another",
		Long: `share pairs the numerator and denominator variables by model, scenario,
region and year and prints the numerator as a percentage of the denominator.
Without --numerator and --denominator the first configured share pair is used.

With --summary the defined shares of one scenario and region are reduced to
mean, min and max across models for each year.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			if numerator == "" && denominator == "" && len(a.cfg.Analysis.SharePairs) > 0 {
				numerator = a.cfg.Analysis.SharePairs[0].Numerator
				denominator = a.cfg.Analysis.SharePairs[0].Denominator
			}
			if numerator == "" || denominator == "" {
				return errors.New("both --numerator and --denominator are required")
			}
			if summary && len(scenarios) != 1 {
				return errors.New("--summary needs exactly one --scenario")
			}

			observations, err := a.observations(cmd.Context())
			if err != nil {
				return err
			}
			records, err := compare.ComputeShare(observations, numerator, denominator)
			if err != nil {
				return err
			}

			if summary {
				region := "World"
				if len(regions) > 0 {
					region = regions[0]
				}
				want := years
				if len(want) == 0 {
					for _, r := range records {
						if !slices.Contains(want, r.Year) {
							want = append(want, r.Year)
						}
					}
					slices.Sort(want)
				}
				return writeShareSummary(cmd.OutOrStdout(), format,
					compare.SummarizeShares(records, scenarios[0], region, want))
			}

			records = compare.FilterShares(records, compare.ShareFilter{
				Models:    models,
				Scenarios: scenarios,
				Regions:   regions,
				Years:     years,
			})
			return writeShares(cmd.OutOrStdout(), format, records)
		},
	}

	f := cmd.Flags()
	f.StringVar(&numerator, "numerator", "", "numerator variable")
	f.StringVar(&denominator, "denominator", "", "denominator variable")
	f.StringSliceVar(&models, "model", nil, "keep only these models")
	f.StringSliceVar(&scenarios, "scenario", nil, "keep only these scenarios")
	f.StringSliceVar(&regions, "region", nil, "keep only these regions (summary default World)")
	f.IntSliceVar(&years, "year", nil, "keep only these years")
	f.BoolVar(&summary, "summary", false, "print mean, min and max across models per year")
	f.StringVarP(&format, "format", "f", formatTable, "output format: table, csv or json")
	return cmd
}
