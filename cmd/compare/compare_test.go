package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/goleak"

	"iam-platform/internal/compare"
	"iam-platform/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const scenarioCSV = `Model,Scenario,Region,Variable,Unit,Year,Value
GCAM,NDC_EI_DERP2_HD,World,Final Energy,EJ/yr,2030,100
GCAM,NDC_EI_DERP2_HD,World,Final Energy|Electricity,EJ/yr,2030,20
GCAM,S1,World,Final Energy,EJ/yr,2030,110
GCAM,S1,World,Final Energy|Electricity,EJ/yr,2030,33
GCAM,S1,World,Final Energy,EJ/yr,2040,50
GCAM,S1,World,Capacity|Electricity|Gas|CCS,GW,2030,12
`

const bandsCSV = `Variable,Scenario,Percentile,2030,2040
Capacity|Electricity,S1,5th,1000,2000
Capacity|Electricity,S1,50th,1500,2500
Capacity|Electricity,S1,95th,3000,
`

// runCLI executes the command line in a scratch working directory holding
// the fixture files, so no config.yaml is picked up. The uncertainty file
// sits beside the scenarios and is skipped by the observation loader.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scenarios.csv"), []byte(scenarioCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uncertainty.csv"), []byte(bandsCSV), 0o644))
	t.Chdir(dir)
	t.Setenv("IAM_CONFIG", "")

	var out bytes.Buffer
	err := execute(append([]string{"--data-dir", "."}, args...), &out, io.Discard)
	return out.String(), err
}

func TestDeltasCSV(t *testing.T) {
	out, err := runCLI(t, "deltas", "--scenario", "S1", "--variable", "Final Energy", "-f", "csv")
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewBufferString(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "percentage_change", records[0][10])
	assert.Equal(t, "10", records[1][10])
	assert.Equal(t, "", records[2][10])
	assert.Equal(t, string(models.ReasonNoBaselineData), records[2][11])
}

func TestDeltasTable(t *testing.T) {
	out, err := runCLI(t, "deltas", "--scenario", "S1", "--year", "2040")
	require.NoError(t, err)
	assert.Contains(t, out, "PCT_CHANGE")
	assert.Contains(t, out, "2040")
	assert.NotContains(t, out, "2030")
}

func TestDeltasErrors(t *testing.T) {
	_, err := runCLI(t, "deltas", "--group", "No Such Group")
	assert.ErrorContains(t, err, "unknown variable group")

	_, err = runCLI(t, "deltas", "-f", "yaml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestMissingJSON(t *testing.T) {
	out, err := runCLI(t, "missing", "--rows", "-f", "json")
	require.NoError(t, err)

	var report missingReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))

	want := []compare.ReasonCount{{Reason: models.ReasonNoBaselineData, Count: 2}}
	if diff := cmp.Diff(want, report.Counts); diff != "" {
		t.Errorf("counts mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, report.Rows, 2)
	assert.Equal(t, "Capacity|Electricity|Gas|w/ CCS", report.Rows[1].Variable, "variable renamed on load")
}

func TestShare(t *testing.T) {
	out, err := runCLI(t, "share", "--scenario", "S1", "-f", "json")
	require.NoError(t, err)

	var records []models.ShareRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Share)
	assert.InDelta(t, 30.0, *records[0].Share, 1e-9)
	assert.Equal(t, "Final Energy|Electricity", records[0].NumeratorVariable)
}

func TestShareSummary(t *testing.T) {
	out, err := runCLI(t, "share", "--summary", "--scenario", "S1", "-f", "json")
	require.NoError(t, err)

	var summary []compare.ShareSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.Len(t, summary, 1)
	assert.Equal(t, 2030, summary[0].Year)
	assert.Equal(t, 1, summary[0].Count)
	require.NotNil(t, summary[0].Mean)
	assert.InDelta(t, 30.0, *summary[0].Mean, 1e-9)

	_, err = runCLI(t, "share", "--summary", "-f", "json")
	assert.ErrorContains(t, err, "exactly one --scenario")
}

func TestUncertaintyBands(t *testing.T) {
	out, err := runCLI(t, "uncertainty", "--file", "uncertainty.csv",
		"--variable", "Capacity|Electricity", "--scenario", "S1", "-f", "json")
	require.NoError(t, err)

	var bands compare.Bands
	require.NoError(t, json.Unmarshal([]byte(out), &bands))
	high := bands["S1"]["95th"]
	assert.Equal(t, []int{2030, 2040}, high.Years)
	assert.Equal(t, "TW", high.Unit)
	require.NotNil(t, high.Values[0])
	assert.InDelta(t, 3.0, *high.Values[0], 1e-9)
	assert.Nil(t, high.Values[1])
}

func TestUncertaintyWhisker(t *testing.T) {
	out, err := runCLI(t, "uncertainty", "--file", "uncertainty.csv",
		"--variable", "Capacity|Electricity", "--scenario", "S1", "--year", "2030", "-f", "json")
	require.NoError(t, err)

	var whiskers []compare.Whisker
	require.NoError(t, json.Unmarshal([]byte(out), &whiskers))
	want := []compare.Whisker{{
		Variable: "Capacity|Electricity", Scenario: "S1", Year: 2030,
		Median: 1.5, Low: 1, High: 3,
	}}
	if diff := cmp.Diff(want, whiskers); diff != "" {
		t.Errorf("whisker mismatch (-want +got):\n%s", diff)
	}

	_, err = runCLI(t, "uncertainty", "--file", "uncertainty.csv",
		"--variable", "Capacity|Electricity", "--scenario", "S1", "--year", "2040")
	assert.True(t, models.IsLookupMiss(err), "absent 95th cell in 2040")
}

func TestUncertaintyCheckGrid(t *testing.T) {
	out, err := runCLI(t, "uncertainty", "--file", "uncertainty.csv",
		"--variable", "Capacity|Electricity", "--scenario", "S1", "--check-grid", "-f", "json")
	require.NoError(t, err)

	var grid compare.GridMismatch
	require.NoError(t, json.Unmarshal([]byte(out), &grid))
	assert.True(t, grid.Empty(), "both grids are 2030 and 2040")
}

func TestExportXLSX(t *testing.T) {
	out, err := runCLI(t, "export", "--out", "result.xlsx")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 6 rows and 2 share records")

	f, err := excelize.OpenFile("result.xlsx")
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("deltas")
	require.NoError(t, err)
	assert.Len(t, rows, 7)

	shares, err := f.GetRows("shares")
	require.NoError(t, err)
	assert.Len(t, shares, 3)
}

func TestExportCSV(t *testing.T) {
	_, err := runCLI(t, "export", "--out", "result.csv")
	require.NoError(t, err)

	for name, want := range map[string]int{"result.csv": 7, "result_shares.csv": 3} {
		data, err := os.ReadFile(name)
		require.NoError(t, err)
		records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
		require.NoError(t, err)
		assert.Len(t, records, want, name)
	}

	_, err = runCLI(t, "export", "--out", "result.json")
	assert.ErrorContains(t, err, "unsupported export type")
}
