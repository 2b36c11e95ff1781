package compare

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iam-platform/internal/models"
)

const base = "NDC_EI_DERP2_HD"

func f(v float64) *float64 { return &v }

func obs(model, scenario, variable string, year int, value *float64) models.Observation {
	return models.Observation{
		Model:    model,
		Scenario: scenario,
		Region:   "World",
		Variable: variable,
		Unit:     "EJ/yr",
		Year:     year,
		Value:    value,
	}
}

func TestComputeDeltas_NormalCase(t *testing.T) {
	in := []models.Observation{
		obs("GCAM 7.0", base, "Final Energy", 2040, f(100)),
		obs("GCAM 7.0", "HD_ER", "Final Energy", 2040, f(120)),
	}

	res, err := ComputeDeltas(in, base)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	row := res.Rows[1]
	require.NotNil(t, row.BaselineValue)
	require.NotNil(t, row.Delta)
	require.NotNil(t, row.PercentageChange)
	assert.Equal(t, 100.0, *row.BaselineValue)
	assert.Equal(t, 20.0, *row.Delta)
	assert.InDelta(t, 20.0, *row.PercentageChange, 1e-12)
	assert.Equal(t, models.ReasonNone, row.MissingReason())

	// the baseline joins to itself
	self := res.Rows[0]
	require.NotNil(t, self.PercentageChange)
	assert.Equal(t, 0.0, *self.PercentageChange)
	assert.Equal(t, base, self.BaselineScenario)
	assert.Equal(t, 1, res.BaselineRows)
}

func TestComputeDeltas_ZeroBaseline(t *testing.T) {
	in := []models.Observation{
		obs("TIAM_Grantham", base, "Capacity|Electricity|Coal", 2070, f(0)),
		obs("TIAM_Grantham", "HD_ER", "Capacity|Electricity|Coal", 2070, f(5)),
	}

	res, err := ComputeDeltas(in, base)
	require.NoError(t, err)

	row := res.Rows[1]
	require.NotNil(t, row.Delta)
	assert.Equal(t, 5.0, *row.Delta)
	assert.Nil(t, row.PercentageChange)
	assert.Equal(t, models.ReasonDivisionByZero, row.MissingReason())
}

func TestComputeDeltas_MissingBaseline(t *testing.T) {
	in := []models.Observation{
		obs("GCAM 7.0", base, "Final Energy", 2040, f(100)),
		obs("GCAM 7.0", "HD_ER", "Final Energy|Industry|Electricity", 2040, f(7)),
		obs("FRIDAv2.1", "HD_ER", "Final Energy", 2040, f(7)),
		obs("GCAM 7.0", "HD_ER", "Final Energy", 2070, f(7)),
	}

	res, err := ComputeDeltas(in, base)
	require.NoError(t, err)

	for _, row := range res.Rows[1:] {
		assert.Nil(t, row.BaselineValue, "%+v", row.Observation)
		assert.Nil(t, row.Delta)
		assert.Nil(t, row.PercentageChange)
		assert.Equal(t, models.ReasonNoBaselineData, row.MissingReason())
	}
}

func TestComputeDeltas_BaselineValueAbsent(t *testing.T) {
	in := []models.Observation{
		obs("GCAM 7.0", base, "Final Energy", 2040, nil),
		obs("GCAM 7.0", "HD_ER", "Final Energy", 2040, f(3)),
	}

	res, err := ComputeDeltas(in, base)
	require.NoError(t, err)
	assert.Equal(t, models.ReasonNoBaselineData, res.Rows[1].MissingReason())
}

func TestComputeDeltas_OwnValueAbsent(t *testing.T) {
	in := []models.Observation{
		obs("GCAM 7.0", base, "Final Energy", 2040, f(50)),
		obs("GCAM 7.0", "HD_ER", "Final Energy", 2040, nil),
	}

	res, err := ComputeDeltas(in, base)
	require.NoError(t, err)

	row := res.Rows[1]
	require.NotNil(t, row.BaselineValue)
	assert.Nil(t, row.Delta)
	assert.Equal(t, models.ReasonUnknown, row.MissingReason())
}

func TestComputeDeltas_NoBaselineScenario(t *testing.T) {
	in := []models.Observation{
		obs("GCAM 7.0", "HD_ER", "Final Energy", 2040, f(1)),
		obs("GCAM 7.0", "HD_IR", "Final Energy", 2040, f(2)),
	}

	res, err := ComputeDeltas(in, "does-not-exist")
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Zero(t, res.BaselineRows)
	for _, row := range res.Rows {
		assert.Equal(t, models.ReasonNoBaselineData, row.MissingReason())
	}
}

func TestComputeDeltas_RowCountPreserved(t *testing.T) {
	var in []models.Observation
	for _, model := range []string{"GCAM 7.0", "FRIDAv2.1", "TIAM_Grantham"} {
		for _, scen := range []string{base, "HD_ER", "HD_IR"} {
			for _, year := range []int{2040, 2070, 2100} {
				in = append(in, obs(model, scen, "Final Energy", year, f(float64(year%7))))
			}
		}
	}

	res, err := ComputeDeltas(in, base)
	require.NoError(t, err)
	require.Len(t, res.Rows, len(in))
	for i := range in {
		assert.Equal(t, in[i].Key(), res.Rows[i].Key(), "row %d out of order", i)
	}
}

func TestComputeDeltas_DuplicateBaselineFirstWins(t *testing.T) {
	in := []models.Observation{
		obs("GCAM 7.0", base, "Final Energy", 2040, f(50)),
		obs("GCAM 7.0", base, "Final Energy", 2040, f(80)),
		obs("GCAM 7.0", "HD_ER", "Final Energy", 2040, f(100)),
	}

	res, err := ComputeDeltas(in, base)
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, 1, res.DuplicateBaselineKeys)

	row := res.Rows[2]
	require.NotNil(t, row.BaselineValue)
	assert.Equal(t, 50.0, *row.BaselineValue)
	assert.Equal(t, 100.0, *row.PercentageChange)
}

func TestComputeDeltas_NeverInfinite(t *testing.T) {
	in := []models.Observation{
		obs("M", base, "V", 2040, f(0)),
		obs("M", "S", "V", 2040, f(-3)),
		obs("M", base, "V", 2070, f(math.SmallestNonzeroFloat64)),
		obs("M", "S", "V", 2070, f(math.MaxFloat64)),
		obs("M", base, "V", 2100, f(math.Inf(1))),
		obs("M", "S", "V", 2100, f(1)),
		obs("M", base, "W", 2040, f(math.NaN())),
		obs("M", "S", "W", 2040, f(1)),
	}

	res, err := ComputeDeltas(in, base)
	require.NoError(t, err)
	for _, row := range res.Rows {
		for _, v := range []*float64{row.Value, row.BaselineValue, row.Delta, row.PercentageChange} {
			if v != nil {
				assert.False(t, math.IsInf(*v, 0), "infinite value in %+v", row.Observation)
				assert.False(t, math.IsNaN(*v), "NaN value in %+v", row.Observation)
			}
		}
	}
}

func TestComputeDeltas_DoesNotMutateInput(t *testing.T) {
	in := []models.Observation{
		obs("GCAM 7.0", base, "Final Energy", 2040, f(100)),
		obs("GCAM 7.0", "HD_ER", "Final Energy", 2040, f(120)),
	}
	snapshot := []models.Observation{
		obs("GCAM 7.0", base, "Final Energy", 2040, f(100)),
		obs("GCAM 7.0", "HD_ER", "Final Energy", 2040, f(120)),
	}

	res, err := ComputeDeltas(in, base)
	require.NoError(t, err)

	*res.Rows[1].Value = -1
	*res.Rows[1].BaselineValue = -1

	if diff := cmp.Diff(snapshot, in); diff != "" {
		t.Errorf("input mutated (-want +got):\n%s", diff)
	}
}

func TestComputeDeltas_SchemaErrors(t *testing.T) {
	_, err := ComputeDeltas(nil, "")
	assert.True(t, models.IsSchemaError(err))

	bad := []models.Observation{obs("", "S", "V", 2040, f(1))}
	_, err = ComputeDeltas(bad, base)
	require.Error(t, err)
	assert.True(t, models.IsSchemaError(err))
	assert.Contains(t, err.Error(), "model")
}

func TestClassifyMissing(t *testing.T) {
	in := []models.Observation{
		obs("M", base, "A", 2040, f(100)),
		obs("M", "S", "A", 2040, f(120)),
		obs("M", base, "B", 2040, f(0)),
		obs("M", "S", "B", 2040, f(5)),
		obs("M", "S", "C", 2040, f(5)),
		obs("N", "S", "C", 2040, f(6)),
	}
	res, err := ComputeDeltas(in, base)
	require.NoError(t, err)

	missing := ClassifyMissing(res.Rows)
	// the zero baseline row itself is also DivisionByZero
	require.Len(t, missing, 4)

	counts := CountByReason(missing)
	want := []ReasonCount{
		{Reason: models.ReasonDivisionByZero, Count: 2},
		{Reason: models.ReasonNoBaselineData, Count: 2},
	}
	if diff := cmp.Diff(want, counts); diff != "" {
		t.Errorf("CountByReason (-want +got):\n%s", diff)
	}

	// classification is a read-only view
	for _, row := range res.Rows {
		if row.Variable == "A" {
			assert.NotNil(t, row.PercentageChange)
		}
	}
}

func TestFilterAndHelpers(t *testing.T) {
	in := []models.Observation{
		obs("M", base, "A", 2040, f(1)),
		obs("M", "S", "A", 2070, f(2)),
		obs("N", "S", "B", 2100, f(3)),
		obs("N", "S", "B", 2100, f(4)),
	}

	got := FilterObservations(in, Filter{Scenarios: []string{"S"}, Years: []int{2100}})
	require.Len(t, got, 2)
	assert.Equal(t, "N", got[0].Model)

	assert.Equal(t, []int{2040, 2070, 2100}, Years(in))

	dups := DuplicateKeys(in)
	require.Len(t, dups, 1)
	assert.Equal(t, "B", dups[0].Variable)

	res, err := ComputeDeltas(in, base)
	require.NoError(t, err)
	assert.Len(t, FilterEnriched(res.Rows, Filter{Models: []string{"M"}}), 2)
}
