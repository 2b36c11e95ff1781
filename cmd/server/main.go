package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"iam-platform/internal/config"
	"iam-platform/internal/display"
	"iam-platform/internal/handlers"
	"iam-platform/internal/loader"
	"iam-platform/internal/models"
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

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logLevel, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v, using INFO\n", err)
	}

	logger := logging.NewStructuredLogger("iam-api", version, logLevel)

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting IAM comparison API server", logging.Fields{
		"version":     version,
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_driver":   cfg.Database.Driver,
		"baseline":    cfg.Analysis.BaselineScenario,
	})

	// Initialize metrics collector
	metricsCollector := metrics.NewCollector("iam_platform", prometheus.DefaultRegisterer)

	// Initialize database
	db, err := database.NewDB(cfg.Database.Options(15*time.Second), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	displayConfig, err := display.LoadOrDefault(cfg.Analysis.DisplayFile)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to load display configuration", logging.Fields{
			"path": cfg.Analysis.DisplayFile,
		}, err)
	}

	// Initialize repository
	iamRepo := repository.NewIAMRepository(db, logger, metricsCollector)

	// Initialize services
	queryService := services.NewQueryService(iamRepo, logger, metricsCollector)
	uncertaintyService := services.NewUncertaintyService(
		loadUncertainty(ctx, cfg, logger), displayConfig, logger, metricsCollector,
	)

	// Initialize handlers
	iamHandler := handlers.NewIAMHandler(queryService, uncertaintyService, displayConfig, cfg.Analysis, logger, metricsCollector)

	// Setup router
	router := mux.NewRouter()
	router.Use(handlers.RequestID)

	// Register routes
	iamHandler.RegisterRoutes(router)
	router.HandleFunc("/api/docs", handlers.SwaggerUI("/api/docs/openapi.json")).Methods("GET")
	router.HandleFunc("/api/docs/openapi.json", handlers.OpenAPISpec).Methods("GET")

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}

// loadUncertainty reads the configured percentile table from the ingest
// source. The API serves without it when none is configured or it fails.
func loadUncertainty(ctx context.Context, cfg *config.Config, logger *logging.StructuredLogger) *models.UncertaintyTable {
	name := cfg.Analysis.UncertaintyFile
	if name == "" {
		return nil
	}

	src, err := loader.NewSource(ctx, cfg.Ingest)
	if err == nil {
		var table *models.UncertaintyTable
		if table, err = loader.ReadUncertainty(ctx, src, name); err == nil {
			logger.Info(ctx, "[STARTUP_UNCERTAINTY] Uncertainty table loaded", logging.Fields{
				"file":  name,
				"rows":  len(table.Rows),
				"years": len(table.Years),
			})
			return table
		}
	}

	logger.Warn(ctx, "[STARTUP_UNCERTAINTY_SKIPPED] Uncertainty endpoints disabled", logging.Fields{
		"file":  name,
		"error": err.Error(),
	})
	return nil
}
