package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"iam-platform/internal/config"
	"iam-platform/internal/display"
	"iam-platform/internal/loader"
	"iam-platform/internal/repository"
	"iam-platform/internal/services"
	"iam-platform/pkg/database"
	"iam-platform/pkg/logging"
	"iam-platform/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Parse command-line flags; they override the file and environment
	source := flag.String("source", cfg.Ingest.Source, "Input source: local or s3")
	dataDir := flag.String("data-dir", cfg.Ingest.DataDir, "Directory containing scenario files")
	batchSize := flag.Int("batch-size", cfg.Ingest.BatchSize, "Number of rows inserted per transaction")
	workers := flag.Int("workers", cfg.Ingest.Workers, "Files parsed concurrently")
	baseline := flag.String("baseline", cfg.Analysis.BaselineScenario, "Baseline scenario for the delta table")
	compute := flag.Bool("compute", false, "Refresh baseline deltas and shares after ingestion")
	flag.Parse()

	cfg.Ingest.Source = *source
	cfg.Ingest.DataDir = *dataDir
	cfg.Ingest.BatchSize = *batchSize
	cfg.Analysis.BaselineScenario = *baseline

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logLevel, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v, using INFO\n", err)
	}

	logger := logging.NewStructuredLogger("iam-ingester", version, logLevel)

	ctx := context.Background()
	logger.Info(ctx, "[INGESTER_START] Starting scenario data ingestion", logging.Fields{
		"version":    version,
		"source":     *source,
		"data_dir":   *dataDir,
		"batch_size": *batchSize,
		"workers":    *workers,
		"compute":    *compute,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("iam_ingester", prometheus.NewRegistry())

	// Initialize database
	db, err := database.NewDB(cfg.Database.Options(0), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	displayConfig, err := display.LoadOrDefault(cfg.Analysis.DisplayFile)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to load display configuration", logging.Fields{}, err)
	}

	src, err := loader.NewSource(ctx, cfg.Ingest)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to open source", logging.Fields{}, err)
	}

	// Initialize repository
	iamRepo := repository.NewIAMRepository(db, logger, metricsCollector)

	// Initialize services
	ingestionService := services.NewIngestionService(iamRepo, displayConfig, logger, metricsCollector)
	comparisonService := services.NewComparisonService(iamRepo, logger, metricsCollector)

	// Ingest data
	result, err := ingestionService.Ingest(ctx, src, cfg.Analysis.BaselineScenario, services.IngestOptions{
		Workers:   *workers,
		BatchSize: *batchSize,
	})
	if err != nil {
		logger.Fatal(ctx, "[INGESTION_ERROR] Ingestion failed", logging.Fields{
			"error": err.Error(),
		}, err)
	}

	// Print results
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("INGESTION COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Run ID:             %s\n", result.RunID)
	fmt.Printf("Total Files:        %d\n", result.TotalFiles)
	fmt.Printf("Skipped Files:      %d\n", result.FilesSkipped)
	fmt.Printf("Total Records:      %d\n", result.TotalRecords)
	fmt.Printf("Inserted Records:   %d\n", result.Inserted)
	fmt.Printf("Failed Records:     %d\n", result.FailedRecords)
	fmt.Printf("Duplicate Keys:     %d\n", result.DuplicateKeys)
	fmt.Printf("Duration:           %v\n", result.Duration)

	skipped := 0
	for _, f := range result.Files {
		if f.Err == "" {
			continue
		}
		if skipped == 0 {
			fmt.Printf("\nSkipped files (%d):\n", result.FilesSkipped)
		}
		if skipped < 10 {
			fmt.Printf("  - %s: %s\n", f.Name, f.Err)
		}
		skipped++
	}
	if skipped > 10 {
		fmt.Printf("  ... and %d more\n", skipped-10)
	}

	// Refresh comparison tables if requested
	if *compute {
		fmt.Println("\n" + strings.Repeat("=", 80))
		fmt.Println("COMPUTING COMPARISONS")
		fmt.Println(strings.Repeat("=", 80))

		deltas, shares, err := comparisonService.RunAll(ctx, cfg.Analysis.BaselineScenario, cfg.Analysis.SharePairs)
		if err != nil {
			logger.Error(ctx, "[COMPARE_ERROR] Comparison failed", logging.Fields{}, err)
			fmt.Printf("Comparison failed: %v\n", err)
		}
		if deltas != nil {
			fmt.Printf("Baseline %s: %d rows, %d baseline rows\n", deltas.Baseline, deltas.Rows, deltas.BaselineRows)
			for _, m := range deltas.Missing {
				fmt.Printf("  missing %-16s %d\n", m.Reason, m.Count)
			}
		}
		for _, s := range shares {
			fmt.Printf("Share %s / %s: %d records, %d absent\n", s.Numerator, s.Denominator, s.Records, s.Absent)
		}
	}

	logger.Info(ctx, "[INGESTER_COMPLETE] Ingestion completed successfully", logging.Fields{
		"total_records":    result.TotalRecords,
		"inserted":         result.Inserted,
		"failed_records":   result.FailedRecords,
		"duration_seconds": result.Duration.Seconds(),
	})
}
