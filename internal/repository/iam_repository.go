package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"iam-platform/internal/compare"
	"iam-platform/internal/models"
	"iam-platform/pkg/database"
	"iam-platform/pkg/logging"
	"iam-platform/pkg/metrics"
)

// IAMRepository provides data access for scenario observations and the
// comparison tables derived from them
type IAMRepository interface {
	// Run operations
	CreateRun(ctx context.Context, run *models.IngestionRun) error
	FinishRun(ctx context.Context, run *models.IngestionRun) error
	GetRun(ctx context.Context, id string) (*models.IngestionRun, error)

	// Observation operations
	InsertObservations(ctx context.Context, runID string, observations []models.Observation, batchSize int) (int, error)
	GetObservations(ctx context.Context, filter ObservationFilter) ([]models.Observation, int, error)
	AllObservations(ctx context.Context) ([]models.Observation, error)

	// Comparison operations
	ReplaceEnriched(ctx context.Context, baseline string, rows []models.EnrichedObservation) error
	GetEnriched(ctx context.Context, filter EnrichedFilter) ([]models.EnrichedObservation, int, error)
	CountMissing(ctx context.Context, baseline string) ([]compare.ReasonCount, error)
	ReplaceShares(ctx context.Context, numerator, denominator string, records []models.ShareRecord) error
	GetShares(ctx context.Context, filter ShareFilter) ([]models.ShareRecord, int, error)

	HealthCheck(ctx context.Context) error
}

// ObservationFilter narrows observation queries; nil fields match all rows
type ObservationFilter struct {
	Model    *string
	Scenario *string
	Region   *string
	Variable *string
	Year     *int
	Limit    int
	Offset   int
}

// EnrichedFilter narrows enriched-row queries for one baseline
type EnrichedFilter struct {
	Baseline string
	ObservationFilter
	// MissingOnly keeps rows without a percentage change
	MissingOnly bool
	Reason      *string
}

// ShareFilter narrows share queries for one variable pair
type ShareFilter struct {
	Numerator   string
	Denominator string
	Model       *string
	Scenario    *string
	Region      *string
	Year        *int
	Limit       int
	Offset      int
}

// iamRepository implements IAMRepository on postgres or sqlite
type iamRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewIAMRepository creates a repository over db
func NewIAMRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) IAMRepository {
	return &iamRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// conditions accumulates WHERE clauses with ? placeholders
type conditions struct {
	clauses []string
	args    []interface{}
}

func (c *conditions) add(clause string, arg interface{}) {
	c.clauses = append(c.clauses, clause)
	c.args = append(c.args, arg)
}

func (c *conditions) addString(column string, v *string) {
	if v != nil {
		c.add(column+" = ?", *v)
	}
}

func (c *conditions) addInt(column string, v *int) {
	if v != nil {
		c.add(column+" = ?", *v)
	}
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

func (c *conditions) observation(f ObservationFilter) {
	c.addString("model", f.Model)
	c.addString("scenario", f.Scenario)
	c.addString("region", f.Region)
	c.addString("variable", f.Variable)
	c.addInt("year", f.Year)
}

func (r *iamRepository) CreateRun(ctx context.Context, run *models.IngestionRun) error {
	query := `
		INSERT INTO ingestion_runs (id, source, baseline, started_at, files, files_failed, row_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, "insert_run", query,
		run.ID, run.Source, run.Baseline, run.StartedAt, run.Files, run.FilesFailed, run.Rows)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (r *iamRepository) FinishRun(ctx context.Context, run *models.IngestionRun) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	query := `
		UPDATE ingestion_runs
		SET finished_at = ?, files = ?, files_failed = ?, row_count = ?
		WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, "finish_run", query, finished, run.Files, run.FilesFailed, run.Rows, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &NotFoundError{Resource: "ingestion_run", ID: run.ID}
	}
	run.FinishedAt = &finished
	return nil
}

func (r *iamRepository) GetRun(ctx context.Context, id string) (*models.IngestionRun, error) {
	query := `
		SELECT id, source, baseline, started_at, finished_at, files, files_failed, row_count
		FROM ingestion_runs
		WHERE id = ?
	`
	var run models.IngestionRun
	err := r.db.GetContext(ctx, "get_run", &run, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Resource: "ingestion_run", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// InsertObservations writes observations in transactions of batchSize rows.
// A key already stored is left untouched, so the first loaded row wins.
// It returns the number of rows actually inserted.
func (r *iamRepository) InsertObservations(ctx context.Context, runID string, observations []models.Observation, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	query := `
		INSERT INTO observations (model, scenario, region, variable, unit, year, value, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (model, scenario, region, variable, year) DO NOTHING
	`

	inserted := 0
	for start := 0; start < len(observations); start += batchSize {
		end := start + batchSize
		if end > len(observations) {
			end = len(observations)
		}
		batch := observations[start:end]

		n, err := r.withTx(ctx, query, len(batch), func(stmt *sqlx.Stmt, i int) (sql.Result, error) {
			o := batch[i]
			return stmt.ExecContext(ctx, o.Model, o.Scenario, o.Region, o.Variable, o.Unit, o.Year, o.Value, runID)
		})
		if err != nil {
			return inserted, fmt.Errorf("failed to insert observations batch: %w", err)
		}
		inserted += n
		r.metrics.IngestionBatchSize.Observe(float64(len(batch)))
	}

	r.metrics.IngestionRecordsTotal.Add(float64(inserted))
	r.logger.Debug(ctx, "[REPO_INSERT_OBSERVATIONS] Observations stored", logging.Fields{
		"rows":     len(observations),
		"inserted": inserted,
		"ignored":  len(observations) - inserted,
	})
	return inserted, nil
}

// withTx prepares query in a transaction and executes it n times
func (r *iamRepository) withTx(ctx context.Context, query string, n int, exec func(*sqlx.Stmt, int) (sql.Result, error)) (int, error) {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	affected, err := execPrepared(ctx, tx, query, n, exec)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return affected, nil
}

func execPrepared(ctx context.Context, tx *sqlx.Tx, query string, n int, exec func(*sqlx.Stmt, int) (sql.Result, error)) (int, error) {
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(query))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	affected := 0
	for i := 0; i < n; i++ {
		res, err := exec(stmt, i)
		if err != nil {
			return 0, err
		}
		if k, err := res.RowsAffected(); err == nil {
			affected += int(k)
		}
	}
	return affected, nil
}

const observationColumns = "model, scenario, region, variable, unit, year, value"

func (r *iamRepository) GetObservations(ctx context.Context, filter ObservationFilter) ([]models.Observation, int, error) {
	var c conditions
	c.observation(filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM observations" + c.where()
	if err := r.db.GetContext(ctx, "count_observations", &total, countQuery, c.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count observations: %w", err)
	}

	query := "SELECT " + observationColumns + " FROM observations" + c.where() +
		" ORDER BY model, scenario, region, variable, year LIMIT ? OFFSET ?"
	args := append(c.args, filter.Limit, filter.Offset)

	var observations []models.Observation
	if err := r.db.SelectContext(ctx, "get_observations", &observations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get observations: %w", err)
	}
	return observations, total, nil
}

// AllObservations returns every stored row in key order
func (r *iamRepository) AllObservations(ctx context.Context) ([]models.Observation, error) {
	query := "SELECT " + observationColumns + " FROM observations ORDER BY model, scenario, region, variable, year"
	var observations []models.Observation
	if err := r.db.SelectContext(ctx, "all_observations", &observations, query); err != nil {
		return nil, fmt.Errorf("failed to load observations: %w", err)
	}
	return observations, nil
}

// ReplaceEnriched swaps the stored join result of one baseline atomically
func (r *iamRepository) ReplaceEnriched(ctx context.Context, baseline string, rows []models.EnrichedObservation) error {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM enriched_observations WHERE baseline_scenario = ?"), baseline); err != nil {
		return fmt.Errorf("failed to clear enriched rows: %w", err)
	}

	query := `
		INSERT INTO enriched_observations (
			baseline_scenario, model, scenario, region, variable, unit, year,
			value, baseline_value, delta, percentage_change, missing_reason
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (baseline_scenario, model, scenario, region, variable, year) DO NOTHING
	`
	_, err = execPrepared(ctx, tx, query, len(rows), func(stmt *sqlx.Stmt, i int) (sql.Result, error) {
		e := rows[i]
		return stmt.ExecContext(ctx,
			baseline, e.Model, e.Scenario, e.Region, e.Variable, e.Unit, e.Year,
			e.Value, e.BaselineValue, e.Delta, e.PercentageChange, string(e.MissingReason()),
		)
	})
	if err != nil {
		return fmt.Errorf("failed to insert enriched rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_REPLACE_ENRICHED] Enriched rows replaced", logging.Fields{
		"baseline": baseline,
		"rows":     len(rows),
	})
	return nil
}

func (r *iamRepository) GetEnriched(ctx context.Context, filter EnrichedFilter) ([]models.EnrichedObservation, int, error) {
	var c conditions
	c.add("baseline_scenario = ?", filter.Baseline)
	c.observation(filter.ObservationFilter)
	if filter.MissingOnly {
		c.clauses = append(c.clauses, "missing_reason <> ''")
	}
	c.addString("missing_reason", filter.Reason)

	var total int
	countQuery := "SELECT COUNT(*) FROM enriched_observations" + c.where()
	if err := r.db.GetContext(ctx, "count_enriched", &total, countQuery, c.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count enriched rows: %w", err)
	}

	query := `SELECT baseline_scenario, ` + observationColumns + `, baseline_value, delta, percentage_change
		FROM enriched_observations` + c.where() +
		" ORDER BY model, scenario, region, variable, year LIMIT ? OFFSET ?"
	args := append(c.args, filter.Limit, filter.Offset)

	var rows []models.EnrichedObservation
	if err := r.db.SelectContext(ctx, "get_enriched", &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get enriched rows: %w", err)
	}
	return rows, total, nil
}

// CountMissing groups the rows of one baseline without a percentage change
func (r *iamRepository) CountMissing(ctx context.Context, baseline string) ([]compare.ReasonCount, error) {
	query := `
		SELECT missing_reason AS reason, COUNT(*) AS count
		FROM enriched_observations
		WHERE baseline_scenario = ? AND missing_reason <> ''
		GROUP BY missing_reason
		ORDER BY count DESC, missing_reason
	`
	var counts []struct {
		Reason string `db:"reason"`
		Count  int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, "count_missing", &counts, query, baseline); err != nil {
		return nil, fmt.Errorf("failed to count missing rows: %w", err)
	}

	out := make([]compare.ReasonCount, len(counts))
	for i, c := range counts {
		out[i] = compare.ReasonCount{Reason: models.MissingReason(c.Reason), Count: c.Count}
	}
	return out, nil
}

// ReplaceShares swaps the stored share records of one variable pair
func (r *iamRepository) ReplaceShares(ctx context.Context, numerator, denominator string, records []models.ShareRecord) error {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	del := tx.Rebind("DELETE FROM shares WHERE numerator_variable = ? AND denominator_variable = ?")
	if _, err := tx.ExecContext(ctx, del, numerator, denominator); err != nil {
		return fmt.Errorf("failed to clear shares: %w", err)
	}

	query := `
		INSERT INTO shares (
			numerator_variable, denominator_variable, model, scenario, region, year,
			numerator_value, denominator_value, share
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (numerator_variable, denominator_variable, model, scenario, region, year) DO NOTHING
	`
	_, err = execPrepared(ctx, tx, query, len(records), func(stmt *sqlx.Stmt, i int) (sql.Result, error) {
		s := records[i]
		return stmt.ExecContext(ctx,
			numerator, denominator, s.Model, s.Scenario, s.Region, s.Year,
			s.NumeratorValue, s.DenominatorValue, s.Share,
		)
	})
	if err != nil {
		return fmt.Errorf("failed to insert shares: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *iamRepository) GetShares(ctx context.Context, filter ShareFilter) ([]models.ShareRecord, int, error) {
	var c conditions
	c.add("numerator_variable = ?", filter.Numerator)
	c.add("denominator_variable = ?", filter.Denominator)
	c.addString("model", filter.Model)
	c.addString("scenario", filter.Scenario)
	c.addString("region", filter.Region)
	c.addInt("year", filter.Year)

	var total int
	if err := r.db.GetContext(ctx, "count_shares", &total, "SELECT COUNT(*) FROM shares"+c.where(), c.args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count shares: %w", err)
	}

	query := `SELECT model, scenario, region, year, numerator_variable, denominator_variable,
		       numerator_value, denominator_value, share
		FROM shares` + c.where() +
		" ORDER BY model, scenario, region, year LIMIT ? OFFSET ?"
	args := append(c.args, filter.Limit, filter.Offset)

	var records []models.ShareRecord
	if err := r.db.SelectContext(ctx, "get_shares", &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get shares: %w", err)
	}
	return records, total, nil
}

func (r *iamRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}
