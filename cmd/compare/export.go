package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"iam-platform/internal/compare"
	"iam-platform/internal/loader"
	"iam-platform/internal/models"
	"iam-platform/pkg/logging"
)

func newExportCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the delta table and configured shares to a file",
		Long: `export writes the baseline delta table and every configured share pair.
A .xlsx path gets a "deltas" sheet and a "shares" sheet. A .csv path gets the
deltas, with the shares beside it in <name>_shares.csv.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if out == "" {
				return errors.New("--out is required")
			}
			ext := strings.ToLower(filepath.Ext(out))
			if ext != ".xlsx" && ext != ".csv" {
				return fmt.Errorf("unsupported export type %q (want .xlsx or .csv)", ext)
			}

			observations, err := a.observations(ctx)
			if err != nil {
				return err
			}
			res, err := compare.ComputeDeltas(observations, a.cfg.Analysis.BaselineScenario)
			if err != nil {
				return err
			}

			var shares []models.ShareRecord
			for _, pair := range a.cfg.Analysis.SharePairs {
				records, err := compare.ComputeShare(observations, pair.Numerator, pair.Denominator)
				if err != nil {
					return err
				}
				shares = append(shares, records...)
			}

			if ext == ".xlsx" {
				err = writeFile(out, func(f *os.File) error {
					return loader.ExportXLSX(f, res.Rows, shares)
				})
			} else {
				err = writeFile(out, func(f *os.File) error {
					return loader.ExportCSV(f, res.Rows)
				})
				if err == nil && len(a.cfg.Analysis.SharePairs) > 0 {
					err = writeFile(strings.TrimSuffix(out, filepath.Ext(out))+"_shares.csv", func(f *os.File) error {
						return loader.ExportSharesCSV(f, shares)
					})
				}
			}
			if err != nil {
				return err
			}

			a.logger.Info(ctx, "[EXPORT_COMPLETE] Comparison tables written", logging.Fields{
				"path":   out,
				"rows":   len(res.Rows),
				"shares": len(shares),
			})
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows and %d share records to %s\n", len(res.Rows), len(shares), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (.xlsx or .csv)")
	return cmd
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
