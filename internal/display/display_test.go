package display

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iam-platform/internal/compare"
	"iam-platform/internal/models"
)

func TestDefaultLabels(t *testing.T) {
	c := Default()

	assert.Equal(t, "D2_NDC", c.ScenarioLabel(BaselineScenario))
	assert.Equal(t, "unknown", c.ScenarioLabel("unknown"))
	assert.Equal(t, "FE|Res & Com", c.VariableLabel("Final Energy|Residential and Commercial"))
	assert.Equal(t, "Offshore", c.VariableLabel("Capacity|Electricity|Wind|Offshore"))
	assert.Equal(t, "Population", c.VariableLabel("Population"))
	assert.Equal(t, "#000000", c.Colour(BaselineScenario))
	assert.Equal(t, "black", c.Colour("HD_ER_RCP85_5_CDD_30_20"))
	assert.Equal(t, ":", c.LineStyle("FRIDAv2.1"))
	assert.Equal(t, "-", c.LineStyle("REMIND"))
	assert.Equal(t, "GCAM 7.0", c.ModelLabel("GCAM 7.0"))
}

func TestModelMarkersCycle(t *testing.T) {
	c := Default()
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}
	markers := c.ModelMarkers(names)

	assert.Equal(t, "P", markers["a"])
	assert.Equal(t, "X", markers["b"])
	assert.Equal(t, "o", markers["h"])
	assert.Equal(t, "P", markers["i"], "cycle wraps")
}

func TestScaleAndRenames(t *testing.T) {
	c := Default()

	assert.Equal(t, compare.Scale{Divisor: 1000, Unit: "TW"}, c.Scale("Capacity|Electricity"))
	assert.Equal(t, compare.Identity, c.Scale("Final Energy"))

	renames, err := c.Renames(models.ColumnVariable)
	require.NoError(t, err)
	assert.Equal(t, "Capacity|Electricity|Gas|w/ CCS", renames["Capacity|Electricity|Gas|CCS"])

	// returned maps are copies
	renames["x"] = "y"
	again, _ := c.Renames(models.ColumnVariable)
	assert.NotContains(t, again, "x")

	_, err = c.Renames(models.ColumnYear)
	assert.True(t, models.IsSchemaError(err))
}

func TestGroup(t *testing.T) {
	c := Default()
	vars, ok := c.Group("Final Energy by Sources")
	require.True(t, ok)
	assert.Equal(t, []string{"Final Energy|Geothermal", "Final Energy|Solar", "Final Energy|Hydrogen"}, vars)

	vars[0] = "mutated"
	again, _ := c.Group("Final Energy by Sources")
	assert.Equal(t, "Final Energy|Geothermal", again[0])

	_, ok = c.Group("nope")
	assert.False(t, ok)
}

func TestLoadKeepsCaseAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "display.yaml")
	body := `
scenario_names:
  HD_ER_RCP85_1_CDD_20_10: "Early Response"
unit_scales:
  Capacity|Electricity|Solar:
    divisor: 1000
    unit: TW
markers: ["o", "s"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Early Response", c.ScenarioLabel("HD_ER_RCP85_1_CDD_20_10"))
	assert.Equal(t, BaselineScenario, c.ScenarioLabel(BaselineScenario), "file replaces the whole table")
	assert.Equal(t, 1000.0, c.Scale("Capacity|Electricity|Solar").Divisor)
	assert.Equal(t, ":", c.LineStyle("FRIDAv2.1"), "absent sections keep defaults")
	assert.Equal(t, "s", c.ModelMarkers([]string{"a", "b"})["b"])
}

func TestNewValidation(t *testing.T) {
	_, err := New(Tables{})
	assert.Error(t, err)

	_, err = New(Tables{Markers: []string{"o"}, UnitScales: map[string]compare.Scale{"x": {Divisor: -1}}})
	assert.Error(t, err)

	_, err = Parse([]byte("markers: [\"o\"\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTablesIsCopy(t *testing.T) {
	c := Default()
	tables := c.Tables()
	tables.Colours[BaselineScenario] = "red"
	tables.Markers[0] = "Z"

	assert.Equal(t, "#000000", c.Colour(BaselineScenario))
	assert.Equal(t, "P", c.ModelMarkers([]string{"a"})["a"])
}

func TestLoadOrDefault(t *testing.T) {
	c, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, Default().Tables(), c.Tables())

	_, err = LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyRenames(t *testing.T) {
	in := []models.Observation{
		{Model: "GCAM 7.0", Scenario: "S1", Region: "World", Variable: "Capacity|Electricity|Gas|CCS", Year: 2030},
		{Model: "GCAM 7.0", Scenario: "S1", Region: "World", Variable: "Final Energy", Year: 2030},
	}
	out, err := Default().ApplyRenames(in)
	require.NoError(t, err)
	assert.Equal(t, "Capacity|Electricity|Gas|w/ CCS", out[0].Variable)
	assert.Equal(t, "Final Energy", out[1].Variable)
	assert.Equal(t, "Capacity|Electricity|Gas|CCS", in[0].Variable, "input untouched")
}
