package services

import (
	"context"
	"sort"

	"iam-platform/internal/compare"
	"iam-platform/internal/models"
	"iam-platform/internal/repository"
	"iam-platform/pkg/logging"
	"iam-platform/pkg/metrics"
)

// summaryScanLimit caps the share rows read to build one summary
const summaryScanLimit = 100000

// QueryService handles read access to stored comparison results
type QueryService struct {
	repo    repository.IAMRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewQueryService creates a new query service
func NewQueryService(repo repository.IAMRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *QueryService {
	return &QueryService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// GetObservations retrieves observations with filtering
func (s *QueryService) GetObservations(ctx context.Context, filter repository.ObservationFilter) ([]models.Observation, int, error) {
	return s.repo.GetObservations(ctx, filter)
}

// GetDeltas retrieves enriched rows of one baseline
func (s *QueryService) GetDeltas(ctx context.Context, filter repository.EnrichedFilter) ([]models.EnrichedObservation, int, error) {
	return s.repo.GetEnriched(ctx, filter)
}

// MissingPage is one page of the missing-data diagnostic
type MissingPage struct {
	Rows   []compare.MissingRow
	Total  int
	Counts []compare.ReasonCount
}

// GetMissing lists the rows of one baseline without a percentage change,
// tagged with their reason, together with the per-reason totals
func (s *QueryService) GetMissing(ctx context.Context, filter repository.EnrichedFilter) (*MissingPage, error) {
	filter.MissingOnly = true
	rows, total, err := s.repo.GetEnriched(ctx, filter)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.CountMissing(ctx, filter.Baseline)
	if err != nil {
		return nil, err
	}
	return &MissingPage{
		Rows:   compare.ClassifyMissing(rows),
		Total:  total,
		Counts: counts,
	}, nil
}

// GetShares retrieves share records of one variable pair
func (s *QueryService) GetShares(ctx context.Context, filter repository.ShareFilter) ([]models.ShareRecord, int, error) {
	return s.repo.GetShares(ctx, filter)
}

// SummarizeShares computes per-year mean, min and max shares across models
// for one scenario and region. With no years given, every stored year is used.
func (s *QueryService) SummarizeShares(ctx context.Context, numerator, denominator, scenario, region string, years []int) ([]compare.ShareSummary, error) {
	records, _, err := s.repo.GetShares(ctx, repository.ShareFilter{
		Numerator:   numerator,
		Denominator: denominator,
		Scenario:    &scenario,
		Region:      &region,
		Limit:       summaryScanLimit,
	})
	if err != nil {
		return nil, err
	}
	if len(years) == 0 {
		years = shareYears(records)
	}
	return compare.SummarizeShares(records, scenario, region, years), nil
}

func shareYears(records []models.ShareRecord) []int {
	seen := make(map[int]bool)
	var years []int
	for _, r := range records {
		if !seen[r.Year] {
			seen[r.Year] = true
			years = append(years, r.Year)
		}
	}
	sort.Ints(years)
	return years
}

// HealthCheck reports whether the store is reachable
func (s *QueryService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
