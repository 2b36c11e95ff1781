package loader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"iam-platform/internal/config"
	"iam-platform/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const longCSV = `Model,Scenario,Region,Variable,Unit,Year,Value
GCAM 7.0,NDC_EI_DERP2_HD,World,Final Energy,EJ/yr,2040,100
GCAM 7.0,HD_ER,World,Final Energy,EJ/yr,2040,120
GCAM 7.0,HD_ER,World,Final Energy,EJ/yr,2070,
GCAM 7.0,HD_ER,World,Final Energy,EJ/yr,2100,abc
`

const wideCSV = `model,scenario,region,variable,unit,2040,2070.0,2100
FRIDAv2.1,HD_ER,World,Capacity|Electricity,GW,2000,,4000
`

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestParseFile_Long(t *testing.T) {
	pf, err := ParseFile("a.csv", strings.NewReader(longCSV))
	require.NoError(t, err)

	require.Len(t, pf.Observations, 3)
	assert.Equal(t, 1, pf.FailedRows)
	require.Len(t, pf.RowErrors, 1)
	assert.Contains(t, pf.RowErrors[0], "line 5")

	assert.Equal(t, "GCAM 7.0", pf.Observations[0].Model)
	assert.Equal(t, 100.0, *pf.Observations[0].Value)
	assert.Nil(t, pf.Observations[2].Value, "empty cell is absent")
	assert.Equal(t, 2070, pf.Observations[2].Year)
}

func TestParseFile_Wide(t *testing.T) {
	pf, err := ParseFile("w.csv", strings.NewReader(wideCSV))
	require.NoError(t, err)

	require.Len(t, pf.Observations, 2, "empty wide cells produce no row")
	assert.Equal(t, 2040, pf.Observations[0].Year)
	assert.Equal(t, 2100, pf.Observations[1].Year)
	assert.Equal(t, 4000.0, *pf.Observations[1].Value)
}

func TestParseFile_SchemaErrors(t *testing.T) {
	_, err := ParseFile("a.csv", strings.NewReader("model,scenario,region,unit,year,value\n"))
	require.Error(t, err)
	assert.True(t, models.IsSchemaError(err))
	assert.Contains(t, err.Error(), "variable")

	_, err = ParseFile("a.csv", strings.NewReader("model,scenario,region,variable,unit,year\n"))
	assert.True(t, models.IsSchemaError(err))

	_, err = ParseFile("a.csv", strings.NewReader(""))
	assert.True(t, models.IsSchemaError(err))

	_, err = ParseFile("a.txt", strings.NewReader(longCSV))
	assert.Error(t, err)
}

func TestParseFile_Latin1Fallback(t *testing.T) {
	// "Région" encoded as ISO-8859-1
	body := "model,scenario,region,variable,unit,year,value\nM,S,R\xe9gion,V,EJ/yr,2040,1\n"
	pf, err := ParseFile("l.csv", strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, pf.Observations, 1)
	assert.Equal(t, "Région", pf.Observations[0].Region)
}

func TestDirSourceAndLoadAll(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"b.csv":     wideCSV,
		"a.csv":     longCSV,
		"bad.csv":   "nothing,useful\n1,2\n",
		"notes.txt": "ignored",
	})

	src := DirSource{Dir: dir, FileTypes: []string{"csv"}}
	names, err := src.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv", "b.csv", "bad.csv"}, names)

	res, err := LoadAll(context.Background(), src, Options{Workers: 3})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Loaded())
	assert.Equal(t, 1, res.Skipped())
	require.Len(t, res.Observations, 5)
	// file-name order regardless of scheduling
	assert.Equal(t, "GCAM 7.0", res.Observations[0].Model)
	assert.Equal(t, "FRIDAv2.1", res.Observations[4].Model)
	assert.NotEmpty(t, res.Files[2].Err)
}

func TestNewSource(t *testing.T) {
	src, err := NewSource(context.Background(), config.IngestConfig{Source: "local", DataDir: "/data", FileTypes: []string{"csv"}})
	require.NoError(t, err)
	assert.Equal(t, DirSource{Dir: "/data", FileTypes: []string{"csv"}}, src)

	_, err = NewSource(context.Background(), config.IngestConfig{Source: "ftp"})
	assert.Error(t, err)

	_, err = NewSource(context.Background(), config.IngestConfig{Source: "s3"})
	assert.Error(t, err, "bucket required")
}

func TestLoadAll_NoSources(t *testing.T) {
	empty := DirSource{Dir: t.TempDir()}
	_, err := LoadAll(context.Background(), empty, Options{})
	assert.True(t, errors.Is(err, ErrNoSources))

	dir := writeFiles(t, map[string]string{"bad.csv": "x\n"})
	res, err := LoadAll(context.Background(), DirSource{Dir: dir}, Options{Workers: 2})
	assert.True(t, errors.Is(err, ErrNoSources))
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Skipped())

	_, err = DirSource{Dir: filepath.Join(dir, "missing")}.List(context.Background())
	assert.Error(t, err)
}

func TestLoadAll_Cancelled(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.csv": longCSV})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := LoadAll(ctx, DirSource{Dir: dir}, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeS3 struct {
	objects  map[string]string
	pageSize int
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}
	end := start + f.pageSize
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if end < len(keys) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[end])
	} else {
		end = len(keys)
	}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3Source(t *testing.T) {
	fake := &fakeS3{pageSize: 1, objects: map[string]string{
		"runs/a.csv":        longCSV,
		"runs/b.csv":        wideCSV,
		"runs/nested/c.csv": longCSV,
		"runs/readme.md":    "x",
		"other/d.csv":       longCSV,
	}}
	src := newS3Source(fake, S3Config{Bucket: "iam", Prefix: "runs"})
	assert.Equal(t, "s3://iam/runs/", src.String())

	names, err := src.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.csv", "b.csv"}, names)

	res, err := LoadAll(context.Background(), src, Options{Workers: 2})
	require.NoError(t, err)
	assert.Len(t, res.Observations, 5)

	_, err = src.Open(context.Background(), "missing.csv")
	assert.Error(t, err)
}

const uncertaintyCSV = `Variable,Scenario,Percentile,2040,2070,2100
Capacity|Electricity,S1,5th,1500,2500,3500
Capacity|Electricity,S1,95th,2500,,4500
`

func TestReadUncertainty(t *testing.T) {
	dir := writeFiles(t, map[string]string{"unc.csv": uncertaintyCSV})
	table, err := ReadUncertainty(context.Background(), DirSource{Dir: dir}, "unc.csv")
	require.NoError(t, err)

	assert.Equal(t, []int{2040, 2070, 2100}, table.Years)
	row, ok := table.Find("Capacity|Electricity", "S1", 95)
	require.True(t, ok)
	assert.Nil(t, row.Values[1])
	assert.Equal(t, 4500.0, *row.Values[2])

	_, err = ParseUncertainty("x.csv", [][]string{{"Variable", "Scenario", "2040"}})
	assert.True(t, models.IsSchemaError(err))
	_, err = ParseUncertainty("x.csv", [][]string{{"Variable", "Scenario", "Percentile"}})
	assert.True(t, models.IsSchemaError(err))
}

func TestReadScenarioPercentileFiles(t *testing.T) {
	file := func(v string) string {
		return "Variable,1980,1990\nCapacity|Electricity," + v + "," + v + "\nEmissions|CO2,1,2\n"
	}
	dir := writeFiles(t, map[string]string{
		PercentileFileName("FRIDA", "S1", "5th"):  file("1000"),
		PercentileFileName("FRIDA", "S1", "95th"): file("3000"),
		PercentileFileName("FRIDA", "S2", "5th"):  file("1100"),
	})

	table, misses, err := ReadScenarioPercentileFiles(context.Background(), DirSource{Dir: dir}, "FRIDA",
		[]string{"S1", "S2"}, []string{"5th", "95th"})
	require.NoError(t, err)

	assert.Equal(t, []int{1980, 1990}, table.Years)
	assert.Len(t, table.Rows, 6)
	require.Len(t, misses, 1)
	assert.Equal(t, "S2", misses[0].Scenario)
	assert.Equal(t, 95, misses[0].Percentile)
	assert.Equal(t, "FRIDA_S2_95th.csv", misses[0].File)
	assert.Equal(t, `no uncertainty file "FRIDA_S2_95th.csv" for scenario="S2" percentile=95`, misses[0].Error())

	row, ok := table.Find("Capacity|Electricity", "S1", 95)
	require.True(t, ok)
	assert.Equal(t, 3000.0, *row.Values[0])
}

func TestReadScenarioPercentileFiles_GridMismatch(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"P_S1_5th.csv":  "Variable,1980,1990\nV,1,2\n",
		"P_S1_95th.csv": "Variable,1980,2000\nV,1,2\n",
	})
	_, _, err := ReadScenarioPercentileFiles(context.Background(), DirSource{Dir: dir}, "P",
		[]string{"S1"}, []string{"5th", "95th"})
	assert.True(t, models.IsSchemaError(err))
}

func TestExportCSVAndXLSXRoundTrip(t *testing.T) {
	v := func(f float64) *float64 { return &f }
	rows := []models.EnrichedObservation{
		{
			Observation:      models.Observation{Model: "M", Scenario: "S", Region: "World", Variable: "V", Unit: "EJ/yr", Year: 2040, Value: v(120)},
			BaselineScenario: "B", BaselineValue: v(100), Delta: v(20), PercentageChange: v(20),
		},
		{
			Observation:      models.Observation{Model: "M", Scenario: "S", Region: "World", Variable: "W", Unit: "EJ/yr", Year: 2040, Value: v(5)},
			BaselineScenario: "B",
		},
	}

	var csvBuf bytes.Buffer
	require.NoError(t, ExportCSV(&csvBuf, rows))
	lines := strings.Split(strings.TrimSpace(csvBuf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "M,S,World,V,EJ/yr,2040,120,B,100,20,20,", lines[1])
	assert.Equal(t, "M,S,World,W,EJ/yr,2040,5,B,,,,NoBaselineData", lines[2])

	var xlsxBuf bytes.Buffer
	shares := []models.ShareRecord{{Model: "M", Scenario: "S", Region: "World", Year: 2040, NumeratorVariable: "a", DenominatorVariable: "b", Share: v(25)}}
	require.NoError(t, ExportXLSX(&xlsxBuf, rows, shares))

	pf, err := ParseFile("export.xlsx", bytes.NewReader(xlsxBuf.Bytes()))
	require.NoError(t, err)
	require.Len(t, pf.Observations, 2)
	assert.Equal(t, "W", pf.Observations[1].Variable)
	assert.Equal(t, 5.0, *pf.Observations[1].Value)

	var shareBuf bytes.Buffer
	require.NoError(t, ExportSharesCSV(&shareBuf, shares))
	assert.Contains(t, shareBuf.String(), "M,S,World,2040,a,b,,,25")
}
