package services

import (
	"context"
	"fmt"
	"time"

	"iam-platform/internal/compare"
	"iam-platform/internal/config"
	"iam-platform/internal/repository"
	"iam-platform/pkg/logging"
	"iam-platform/pkg/metrics"
)

// ComparisonService derives the baseline and share tables from the stored
// observations
type ComparisonService struct {
	repo    repository.IAMRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// DeltaRefresh reports one baseline refresh
type DeltaRefresh struct {
	Baseline              string                `json:"baseline"`
	Rows                  int                   `json:"rows"`
	BaselineRows          int                   `json:"baseline_rows"`
	DuplicateBaselineKeys int                   `json:"duplicate_baseline_keys"`
	Missing               []compare.ReasonCount `json:"missing"`
	Duration              time.Duration         `json:"-"`
}

// ShareRefresh reports one share refresh
type ShareRefresh struct {
	Numerator   string `json:"numerator"`
	Denominator string `json:"denominator"`
	Records     int    `json:"records"`
	Absent      int    `json:"absent"`
}

// NewComparisonService creates a new comparison service
func NewComparisonService(repo repository.IAMRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ComparisonService {
	return &ComparisonService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// RefreshDeltas recomputes the enriched table of one baseline scenario and
// replaces the stored copy
func (s *ComparisonService) RefreshDeltas(ctx context.Context, baseline string) (*DeltaRefresh, error) {
	timer := s.metrics.NewTimer(s.metrics.ComparisonDuration.WithLabelValues("deltas"))

	observations, err := s.repo.AllObservations(ctx)
	if err != nil {
		return nil, err
	}

	res, err := compare.ComputeDeltas(observations, baseline)
	if err != nil {
		s.logger.Error(ctx, "[COMPARE_DELTAS_ERROR] Delta computation failed", logging.Fields{
			"baseline": baseline,
			"stage":    "DELTAS",
		}, err)
		return nil, err
	}

	if res.BaselineRows == 0 {
		s.logger.Warn(ctx, "[COMPARE_NO_BASELINE] Baseline scenario has no rows", logging.Fields{
			"baseline": baseline,
		})
	}
	if res.DuplicateBaselineKeys > 0 {
		s.metrics.RecordDuplicates("baseline", res.DuplicateBaselineKeys)
		s.logger.Warn(ctx, "[COMPARE_DUPLICATE_BASELINE] Duplicate baseline keys, first row used", logging.Fields{
			"baseline":   baseline,
			"duplicates": res.DuplicateBaselineKeys,
		})
	}

	if err := s.repo.ReplaceEnriched(ctx, baseline, res.Rows); err != nil {
		return nil, fmt.Errorf("failed to store enriched rows: %w", err)
	}

	summary := &DeltaRefresh{
		Baseline:              baseline,
		Rows:                  len(res.Rows),
		BaselineRows:          res.BaselineRows,
		DuplicateBaselineKeys: res.DuplicateBaselineKeys,
		Missing:               compare.CountByReason(compare.ClassifyMissing(res.Rows)),
	}
	s.metrics.EnrichedRowsTotal.Add(float64(summary.Rows))
	for _, c := range summary.Missing {
		s.metrics.RecordMissing(string(c.Reason), c.Count)
		s.logger.Warn(ctx, "[COMPARE_MISSING] Rows without percentage change", logging.Fields{
			"baseline": baseline,
			"reason":   string(c.Reason),
			"count":    c.Count,
		})
	}
	summary.Duration = timer.ObserveDuration()

	s.logger.Info(ctx, "[COMPARE_DELTAS_COMPLETE] Baseline deltas refreshed", logging.Fields{
		"baseline":    baseline,
		"rows":        summary.Rows,
		"duration_ms": summary.Duration.Milliseconds(),
	})
	return summary, nil
}

// RefreshShares recomputes one numerator/denominator share table
func (s *ComparisonService) RefreshShares(ctx context.Context, pair config.SharePair) (*ShareRefresh, error) {
	timer := s.metrics.NewTimer(s.metrics.ComparisonDuration.WithLabelValues("shares"))
	defer timer.ObserveDuration()

	observations, err := s.repo.AllObservations(ctx)
	if err != nil {
		return nil, err
	}

	records, err := compare.ComputeShare(observations, pair.Numerator, pair.Denominator)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceShares(ctx, pair.Numerator, pair.Denominator, records); err != nil {
		return nil, fmt.Errorf("failed to store shares: %w", err)
	}

	summary := &ShareRefresh{Numerator: pair.Numerator, Denominator: pair.Denominator, Records: len(records)}
	for _, r := range records {
		if r.Share == nil {
			summary.Absent++
		}
	}
	s.metrics.ShareRecordsTotal.Add(float64(len(records)))

	if len(records) == 0 {
		s.logger.Warn(ctx, "[COMPARE_SHARE_EMPTY] No key carries both variables", logging.Fields{
			"numerator":   pair.Numerator,
			"denominator": pair.Denominator,
		})
	}
	s.logger.Info(ctx, "[COMPARE_SHARES_COMPLETE] Shares refreshed", logging.Fields{
		"numerator":   pair.Numerator,
		"denominator": pair.Denominator,
		"records":     summary.Records,
		"absent":      summary.Absent,
	})
	return summary, nil
}

// RunAll refreshes the baseline table and every configured share pair.
// It stops at the first failure.
func (s *ComparisonService) RunAll(ctx context.Context, baseline string, pairs []config.SharePair) (*DeltaRefresh, []*ShareRefresh, error) {
	deltas, err := s.RefreshDeltas(ctx, baseline)
	if err != nil {
		return nil, nil, err
	}

	shares := make([]*ShareRefresh, 0, len(pairs))
	for _, p := range pairs {
		sum, err := s.RefreshShares(ctx, p)
		if err != nil {
			return deltas, shares, fmt.Errorf("share %s/%s: %w", p.Numerator, p.Denominator, err)
		}
		shares = append(shares, sum)
	}
	return deltas, shares, nil
}
