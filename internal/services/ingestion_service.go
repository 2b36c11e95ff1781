package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"iam-platform/internal/compare"
	"iam-platform/internal/display"
	"iam-platform/internal/loader"
	"iam-platform/internal/models"
	"iam-platform/internal/repository"
	"iam-platform/pkg/logging"
	"iam-platform/pkg/metrics"
)

// IngestionService loads scenario files into the observations table
type IngestionService struct {
	repo    repository.IAMRepository
	display *display.Config
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// IngestOptions tune one ingestion run
type IngestOptions struct {
	Workers   int
	BatchSize int
}

// IngestionResult contains ingestion statistics
type IngestionResult struct {
	RunID         string
	TotalFiles    int
	FilesSkipped  int
	TotalRecords  int
	Inserted      int
	FailedRecords int
	DuplicateKeys int
	Duration      time.Duration
	Files         []loader.FileReport
}

// NewIngestionService creates a new ingestion service. A nil display config
// means the built-in defaults.
func NewIngestionService(repo repository.IAMRepository, cfg *display.Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	if cfg == nil {
		cfg = display.Default()
	}
	return &IngestionService{
		repo:    repo,
		display: cfg,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Ingest loads every file of src, applies the configured renames and stores
// the rows. Files that fail to parse are skipped; the run fails only when no
// file could be loaded or the database rejects a batch.
func (s *IngestionService) Ingest(ctx context.Context, src loader.Source, baseline string, opts IngestOptions) (*IngestionResult, error) {
	timer := s.metrics.NewTimer(s.metrics.IngestionDuration)

	run := &models.IngestionRun{
		ID:        uuid.NewString(),
		Source:    src.String(),
		Baseline:  baseline,
		StartedAt: time.Now().UTC(),
	}
	ctx = logging.WithRunID(ctx, run.ID)

	s.logger.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"source":     run.Source,
		"batch_size": opts.BatchSize,
		"workers":    opts.Workers,
		"stage":      "INITIALIZATION",
	})

	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	loaded, err := loader.LoadAll(ctx, src, loader.Options{Workers: opts.Workers, Logger: s.logger})
	if err != nil {
		if errors.Is(err, loader.ErrNoSources) && loaded != nil {
			s.metrics.RecordFiles(0, loaded.Skipped())
			run.Files = len(loaded.Files)
			run.FilesFailed = loaded.Skipped()
			if ferr := s.repo.FinishRun(ctx, run); ferr != nil {
				s.logger.Error(ctx, "[INGEST_RUN_ERROR] Failed to close run", logging.Fields{}, ferr)
			}
		}
		s.metrics.RecordIngestionError("load_error")
		s.logger.Error(ctx, "[INGEST_LOAD_ERROR] Loading input files failed", logging.Fields{
			"source": run.Source,
			"stage":  "FILE_PROCESSING",
		}, err)
		return nil, err
	}

	result := &IngestionResult{
		RunID:        run.ID,
		TotalFiles:   len(loaded.Files),
		FilesSkipped: loaded.Skipped(),
		TotalRecords: len(loaded.Observations),
		Files:        loaded.Files,
	}
	for _, f := range loaded.Files {
		result.FailedRecords += f.FailedRows
	}
	s.metrics.RecordFiles(loaded.Loaded(), loaded.Skipped())
	if result.FailedRecords > 0 {
		s.metrics.IngestionErrorsTotal.WithLabelValues("parse_error").Add(float64(result.FailedRecords))
	}

	observations, err := s.display.ApplyRenames(loaded.Observations)
	if err != nil {
		return nil, err
	}

	if dups := compare.DuplicateKeys(observations); len(dups) > 0 {
		result.DuplicateKeys = len(dups)
		s.metrics.RecordDuplicates("observations", len(dups))
		s.logger.Warn(ctx, "[INGEST_DUPLICATES] Duplicate observation keys, first loaded row kept", logging.Fields{
			"duplicates": len(dups),
			"example":    fmt.Sprintf("%+v", dups[0]),
		})
	}

	result.Inserted, err = s.repo.InsertObservations(ctx, run.ID, observations, opts.BatchSize)
	if err != nil {
		s.metrics.RecordIngestionError("insert_error")
		return nil, fmt.Errorf("failed to store observations: %w", err)
	}

	run.Files = result.TotalFiles
	run.FilesFailed = result.FilesSkipped
	run.Rows = result.Inserted
	if err := s.repo.FinishRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to finish run: %w", err)
	}

	result.Duration = timer.ObserveDuration()

	s.logger.Info(ctx, "[INGEST_COMPLETE] Data ingestion completed", logging.Fields{
		"total_files":      result.TotalFiles,
		"files_skipped":    result.FilesSkipped,
		"total_records":    result.TotalRecords,
		"inserted":         result.Inserted,
		"failed_records":   result.FailedRecords,
		"duplicate_keys":   result.DuplicateKeys,
		"duration_seconds": result.Duration.Seconds(),
		"stage":            "COMPLETE",
	})

	return result, nil
}
