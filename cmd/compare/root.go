package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"iam-platform/internal/compare"
	"iam-platform/internal/config"
	"iam-platform/internal/display"
	"iam-platform/internal/loader"
	"iam-platform/internal/models"
	"iam-platform/pkg/logging"
	"iam-platform/pkg/metrics"
)

const version = "1.0.0"

// app carries the global flags and what PersistentPreRunE builds from them
type app struct {
	configFile  string
	dataDir     string
	source      string
	displayFile string
	baseline    string
	logLevel    string
	workers     int

	cfg     *config.Config
	display *display.Config
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "iam-compare",
		Short: "Compare IAM scenario results against a baseline scenario",
		Long: `iam-compare loads long or wide format scenario tables (CSV or XLSX, local or S3)
and derives baseline deltas, variable shares and uncertainty bands without a database.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configFile, "config", "", "config file (default is $IAM_CONFIG or ./config.yaml)")
	f.StringVar(&a.dataDir, "data-dir", "", "directory of scenario files (overrides config)")
	f.StringVar(&a.source, "source", "", "input source: local or s3 (overrides config)")
	f.StringVar(&a.displayFile, "display", "", "display tables YAML (overrides config)")
	f.StringVar(&a.baseline, "baseline", "", "baseline scenario (overrides config)")
	f.StringVar(&a.logLevel, "log-level", "warn", "level of the JSON log written to stderr")
	f.IntVar(&a.workers, "workers", 0, "files parsed concurrently (overrides config)")

	root.AddCommand(
		newDeltasCmd(a),
		newMissingCmd(a),
		newShareCmd(a),
		newUncertaintyCmd(a),
		newExportCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	var err error
	if a.configFile != "" {
		a.cfg, err = config.Load(a.configFile)
	} else {
		a.cfg, err = config.LoadConfig()
	}
	if err != nil {
		return err
	}

	f := cmd.Flags()
	if f.Changed("data-dir") {
		a.cfg.Ingest.DataDir = a.dataDir
		if !f.Changed("source") {
			a.cfg.Ingest.Source = "local"
		}
	}
	if f.Changed("source") {
		a.cfg.Ingest.Source = a.source
	}
	if f.Changed("display") {
		a.cfg.Analysis.DisplayFile = a.displayFile
	}
	if f.Changed("baseline") {
		a.cfg.Analysis.BaselineScenario = a.baseline
	}
	if f.Changed("workers") {
		a.cfg.Ingest.Workers = a.workers
	}

	level, err := logging.ParseLevel(a.logLevel)
	if err != nil {
		return err
	}
	a.logger = logging.NewStructuredLogger("iam-compare", version, level)
	a.logger.SetOutput(cmd.ErrOrStderr())
	a.metrics = metrics.NewCollector("iam_compare", prometheus.NewRegistry())

	a.display, err = display.LoadOrDefault(a.cfg.Analysis.DisplayFile)
	return err
}

func (a *app) newSource(ctx context.Context) (loader.Source, error) {
	return loader.NewSource(ctx, a.cfg.Ingest)
}

// observations loads every input file and applies the display renames
func (a *app) observations(ctx context.Context) ([]models.Observation, error) {
	src, err := a.newSource(ctx)
	if err != nil {
		return nil, err
	}
	res, err := loader.LoadAll(ctx, src, loader.Options{Workers: a.cfg.Ingest.Workers, Logger: a.logger})
	if err != nil {
		return nil, err
	}
	return a.display.ApplyRenames(res.Observations)
}

// deltas loads the inputs and joins them to the configured baseline
func (a *app) deltas(ctx context.Context) (*compare.DeltaResult, error) {
	observations, err := a.observations(ctx)
	if err != nil {
		return nil, err
	}
	res, err := compare.ComputeDeltas(observations, a.cfg.Analysis.BaselineScenario)
	if err != nil {
		return nil, err
	}
	if res.BaselineRows == 0 {
		a.logger.Warn(ctx, "[COMPARE_NO_BASELINE] Baseline scenario has no rows", logging.Fields{
			"baseline": res.Baseline,
		})
	}
	if res.DuplicateBaselineKeys > 0 {
		a.logger.Warn(ctx, "[COMPARE_DUPLICATE_BASELINE] Duplicate baseline keys, first row used", logging.Fields{
			"duplicates": res.DuplicateBaselineKeys,
		})
	}
	return res, nil
}

// filterFlags are the row selectors shared by the table commands
type filterFlags struct {
	models    []string
	scenarios []string
	regions   []string
	variables []string
	years     []int
	group     string
}

func (ff *filterFlags) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSliceVar(&ff.models, "model", nil, "keep only these models")
	f.StringSliceVar(&ff.scenarios, "scenario", nil, "keep only these scenarios")
	f.StringSliceVar(&ff.regions, "region", nil, "keep only these regions")
	f.StringSliceVar(&ff.variables, "variable", nil, "keep only these variables")
	f.IntSliceVar(&ff.years, "year", nil, "keep only these years")
	f.StringVar(&ff.group, "group", "", "keep only the variables of a display group")
}

func (ff *filterFlags) filter(d *display.Config) (compare.Filter, error) {
	f := compare.Filter{
		Models:    ff.models,
		Scenarios: ff.scenarios,
		Regions:   ff.regions,
		Variables: ff.variables,
		Years:     ff.years,
	}
	if ff.group != "" {
		vars, ok := d.Group(ff.group)
		if !ok {
			return f, fmt.Errorf("unknown variable group %q", ff.group)
		}
		f.Variables = append(f.Variables, vars...)
	}
	return f, nil
}

// execute runs the CLI with args, writing results to out and logs to errOut
func execute(args []string, out, errOut io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	return root.Execute()
}

func main() {
	if err := execute(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}
