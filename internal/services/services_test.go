package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iam-platform/internal/config"
	"iam-platform/internal/display"
	"iam-platform/internal/loader"
	"iam-platform/internal/models"
	"iam-platform/internal/repository"
	"iam-platform/migrations"
	"iam-platform/pkg/database"
	"iam-platform/pkg/logging"
	"iam-platform/pkg/metrics"
)

const (
	base  = "NDC_EI_DERP2_HD"
	elec  = "Final Energy|Electricity"
	total = "Final Energy"
)

const scenarioCSV = `Model,Scenario,Region,Variable,Unit,Year,Value
GCAM,NDC_EI_DERP2_HD,World,Final Energy,EJ/yr,2030,100
GCAM,NDC_EI_DERP2_HD,World,Final Energy|Electricity,EJ/yr,2030,20
GCAM,S1,World,Final Energy,EJ/yr,2030,110
GCAM,S1,World,Final Energy|Electricity,EJ/yr,2030,33
GCAM,S1,World,Final Energy,EJ/yr,2040,50
GCAM,S1,World,Capacity|Electricity|Gas|CCS,GW,2030,12
`

type fixture struct {
	repo    repository.IAMRepository
	metrics *metrics.Collector
	logger  *logging.StructuredLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.Discard()
	m := metrics.NewCollector("test", prometheus.NewRegistry())

	db, err := database.NewDB(&database.Config{Driver: database.DriverSQLite, Path: ":memory:"}, logger, m)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = migrations.Apply(context.Background(), db.DB(), migrations.Up)
	require.NoError(t, err)

	return &fixture{repo: repository.NewIAMRepository(db, logger, m), metrics: m, logger: logger}
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestIngestAndCompare(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	dir := writeFiles(t, map[string]string{
		"a_scenarios.csv": scenarioCSV,
		"b_broken.csv":    "Model,Scenario\nGCAM,S1\n",
		"notes.txt":       "ignored",
	})

	ingest := NewIngestionService(fx.repo, nil, fx.logger, fx.metrics)
	res, err := ingest.Ingest(ctx, loader.DirSource{Dir: dir}, base, IngestOptions{Workers: 2, BatchSize: 4})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.TotalFiles)
	assert.Equal(t, 1, res.FilesSkipped)
	assert.Equal(t, 6, res.TotalRecords)
	assert.Equal(t, 6, res.Inserted)
	assert.Equal(t, float64(1), testutil.ToFloat64(fx.metrics.IngestionFilesTotal.WithLabelValues("skipped")))
	assert.Equal(t, float64(6), testutil.ToFloat64(fx.metrics.IngestionRecordsTotal))

	query := NewQueryService(fx.repo, fx.logger, fx.metrics)

	renamed := "Capacity|Electricity|Gas|w/ CCS"
	_, n, err := query.GetObservations(ctx, repository.ObservationFilter{Variable: &renamed, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "variable renamed on ingest")

	cmpSvc := NewComparisonService(fx.repo, fx.logger, fx.metrics)
	deltas, shares, err := cmpSvc.RunAll(ctx, base, []config.SharePair{{Numerator: elec, Denominator: total}})
	require.NoError(t, err)

	assert.Equal(t, 6, deltas.Rows)
	assert.Equal(t, 2, deltas.BaselineRows)
	require.Len(t, deltas.Missing, 1)
	assert.Equal(t, models.ReasonNoBaselineData, deltas.Missing[0].Reason)
	assert.Equal(t, 2, deltas.Missing[0].Count)
	assert.Equal(t, float64(2), testutil.ToFloat64(fx.metrics.MissingRowsTotal.WithLabelValues("NoBaselineData")))

	require.Len(t, shares, 1)
	assert.Equal(t, 2, shares[0].Records)
	assert.Zero(t, shares[0].Absent)

	s1 := "S1"
	rows, _, err := query.GetDeltas(ctx, repository.EnrichedFilter{
		Baseline:          base,
		ObservationFilter: repository.ObservationFilter{Scenario: &s1, Variable: strp(total), Limit: 10},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].PercentageChange)
	assert.InDelta(t, 10.0, *rows[0].PercentageChange, 1e-9)
	assert.Nil(t, rows[1].PercentageChange)

	page, err := query.GetMissing(ctx, repository.EnrichedFilter{
		Baseline:          base,
		ObservationFilter: repository.ObservationFilter{Limit: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Rows, 2)
	for _, r := range page.Rows {
		assert.Equal(t, models.ReasonNoBaselineData, r.Reason)
	}

	summary, err := query.SummarizeShares(ctx, elec, total, "S1", "World", nil)
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, 2030, summary[0].Year)
	require.NotNil(t, summary[0].Mean)
	assert.InDelta(t, 30.0, *summary[0].Mean, 1e-9)

	// a second run of the same files stores nothing new
	res, err = ingest.Ingest(ctx, loader.DirSource{Dir: dir}, base, IngestOptions{Workers: 1, BatchSize: 100})
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)
}

func TestIngestNoSources(t *testing.T) {
	fx := newFixture(t)
	dir := writeFiles(t, map[string]string{"broken.csv": "nothing,useful\n1,2\n"})

	ingest := NewIngestionService(fx.repo, display.Default(), fx.logger, fx.metrics)
	_, err := ingest.Ingest(context.Background(), loader.DirSource{Dir: dir}, base, IngestOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, loader.ErrNoSources))
}

func TestRefreshDeltasSchemaError(t *testing.T) {
	fx := newFixture(t)
	svc := NewComparisonService(fx.repo, fx.logger, fx.metrics)

	_, err := svc.RefreshDeltas(context.Background(), "")
	assert.True(t, models.IsSchemaError(err))

	_, err = svc.RefreshShares(context.Background(), config.SharePair{Numerator: elec})
	assert.True(t, models.IsSchemaError(err))
}

func strp(s string) *string { return &s }

func f(v float64) *float64 { return &v }

func uncertaintyTable() *models.UncertaintyTable {
	return &models.UncertaintyTable{
		Name:  "uncertainty.csv",
		Years: []int{2040, 2070, 2100},
		Rows: []models.UncertaintyRow{
			{Variable: "Capacity|Electricity", Scenario: "S1", Percentile: 5, Values: []*float64{f(1000), f(2000), nil}},
			{Variable: "Capacity|Electricity", Scenario: "S1", Percentile: 50, Values: []*float64{f(1500), f(2500), f(3500)}},
			{Variable: "Capacity|Electricity", Scenario: "S1", Percentile: 95, Values: []*float64{f(3000), f(4000), f(5000)}},
		},
	}
}

func TestUncertaintyBands(t *testing.T) {
	fx := newFixture(t)
	svc := NewUncertaintyService(uncertaintyTable(), nil, fx.logger, fx.metrics)
	ctx := context.Background()

	bands, misses, err := svc.Bands(ctx, "Capacity|Electricity", []string{"S1", "S2"}, []string{"5th", "95th"})
	require.NoError(t, err)

	low := bands["S1"]["5th"]
	assert.Equal(t, "TW", low.Unit)
	assert.Equal(t, []int{2040, 2070, 2100}, low.Years)
	require.NotNil(t, low.Values[0])
	assert.InDelta(t, 1.0, *low.Values[0], 1e-9)
	assert.Nil(t, low.Values[2])

	require.Len(t, misses, 2)
	assert.Equal(t, "S2", misses[0].Scenario)
	assert.Equal(t, float64(2), testutil.ToFloat64(fx.metrics.LookupMissesTotal))
}

func TestUncertaintyWhisker(t *testing.T) {
	fx := newFixture(t)
	svc := NewUncertaintyService(uncertaintyTable(), nil, fx.logger, fx.metrics)
	ctx := context.Background()

	w, err := svc.Whisker(ctx, "Capacity|Electricity", "S1", 2070)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, w.Median, 1e-9)
	assert.InDelta(t, 2.0, w.Low, 1e-9)
	assert.InDelta(t, 4.0, w.High, 1e-9)

	_, err = svc.Whisker(ctx, "Capacity|Electricity", "S1", 2100)
	assert.True(t, models.IsLookupMiss(err), "empty 5th percentile cell")

	empty := NewUncertaintyService(nil, nil, fx.logger, fx.metrics)
	assert.False(t, empty.Loaded())
	_, err = empty.Whisker(ctx, "Capacity|Electricity", "S1", 2070)
	assert.True(t, models.IsSchemaError(err))
}

func TestUncertaintyCheckGrid(t *testing.T) {
	fx := newFixture(t)
	svc := NewUncertaintyService(uncertaintyTable(), nil, fx.logger, fx.metrics)

	g := svc.CheckGrid(context.Background(), []int{2040, 2050, 2070, 2100})
	assert.Equal(t, []int{2050}, g.OnlyInObservations)
	assert.Empty(t, g.OnlyInSource)
	assert.True(t, svc.CheckGrid(context.Background(), []int{2040, 2070, 2100}).Empty())
}
