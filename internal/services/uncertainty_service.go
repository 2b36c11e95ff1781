package services

import (
	"context"
	"errors"

	"iam-platform/internal/compare"
	"iam-platform/internal/display"
	"iam-platform/internal/models"
	"iam-platform/pkg/logging"
	"iam-platform/pkg/metrics"
)

// UncertaintyService answers band and whisker queries against an in-memory
// percentile table
type UncertaintyService struct {
	table   *models.UncertaintyTable
	display *display.Config
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewUncertaintyService wraps table. A nil table is allowed; every query then
// fails with a SchemaError.
func NewUncertaintyService(table *models.UncertaintyTable, cfg *display.Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *UncertaintyService {
	if cfg == nil {
		cfg = display.Default()
	}
	return &UncertaintyService{
		table:   table,
		display: cfg,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Loaded reports whether a table is available
func (s *UncertaintyService) Loaded() bool {
	return s.table != nil
}

// Years returns the year grid of the table
func (s *UncertaintyService) Years() []int {
	if s.table == nil {
		return nil
	}
	return append([]int(nil), s.table.Years...)
}

// Bands extracts the requested percentile series of variable, rescaled to
// the variable's display unit. Missing combinations are logged and returned.
func (s *UncertaintyService) Bands(ctx context.Context, variable string, scenarios, percentiles []string) (compare.Bands, []*models.LookupMissError, error) {
	bands, misses, err := compare.MergeUncertainty(s.table, compare.BandRequest{
		Variable:    variable,
		Scenarios:   scenarios,
		Percentiles: percentiles,
		Scale:       s.display.Scale(variable),
	})
	if err != nil {
		return nil, nil, err
	}
	s.recordMisses(ctx, misses)
	return bands, misses, nil
}

// Whisker returns the median and 5-95 band of one year in display units
func (s *UncertaintyService) Whisker(ctx context.Context, variable, scenario string, year int) (compare.Whisker, error) {
	if s.table == nil {
		return compare.Whisker{}, &models.SchemaError{Table: "uncertainty", Column: models.UncertaintyColumnVariable, Message: "no uncertainty table loaded"}
	}
	w, err := compare.LookupWhisker(s.table, variable, scenario, year)
	if err != nil {
		var miss *models.LookupMissError
		if errors.As(err, &miss) {
			s.recordMisses(ctx, []*models.LookupMissError{miss})
		}
		return compare.Whisker{}, err
	}
	scale := s.display.Scale(variable)
	w.Median = scale.Apply(w.Median)
	w.Low = scale.Apply(w.Low)
	w.High = scale.Apply(w.High)
	return w, nil
}

// CheckGrid compares the table's years with the observation years and warns
// on a mismatch
func (s *UncertaintyService) CheckGrid(ctx context.Context, observationYears []int) compare.GridMismatch {
	g := compare.CheckYearGrid(s.Years(), observationYears)
	if !g.Empty() {
		s.logger.Warn(ctx, "[UNCERTAINTY_GRID_MISMATCH] Year grids differ", logging.Fields{
			"only_in_source":       g.OnlyInSource,
			"only_in_observations": g.OnlyInObservations,
		})
	}
	return g
}

func (s *UncertaintyService) recordMisses(ctx context.Context, misses []*models.LookupMissError) {
	if len(misses) == 0 {
		return
	}
	s.metrics.LookupMissesTotal.Add(float64(len(misses)))
	for _, m := range misses {
		s.logger.Warn(ctx, "[UNCERTAINTY_LOOKUP_MISS] Percentile series not found", logging.Fields{
			"variable":   m.Variable,
			"scenario":   m.Scenario,
			"percentile": m.Percentile,
			"year":       m.Year,
		})
	}
}
