package display

import "iam-platform/internal/compare"

// BaselineScenario is the reference scenario of the heat and drought study
const BaselineScenario = "NDC_EI_DERP2_HD"

// Default returns the tables of the heat and drought study
func Default() *Config {
	c, err := New(defaultTables())
	if err != nil {
		panic(err)
	}
	return c
}

func defaultTables() Tables {
	return Tables{
		ScenarioNames: map[string]string{
			BaselineScenario:               "D2_NDC",
			"HD_ER_RCP85_1_CDD_30_20":      "D1_ER_1RCP85_CDD_30_20",
			"HD_ER_RCP85_2_CDD_30_20":      "D1_ER_2RCP85_CDD_30_20",
			"HD_ER_RCP85_3_CDD_30_20":      "D1_ER_3RCP85_CDD_30_20",
			"HD_ER_RCP85_4_CDD_30_20":      "D1_ER_4RCP85_CDD_30_20",
			"HD_ER_RCP85_5_CDD_30_20":      "D1_ER_5RCP85_CDD_30_20",
			"HD_ER_RCP85_1_CDD_20_10":      "D1_ER",
			"HD_ER_RCP85_2_CDD_20_10":      "D1_ER_2RCP85_CDD_20_10",
			"HD_ER_RCP85_3_CDD_20_10":      "D1_ER_3RCP85_CDD_20_10",
			"HD_ER_RCP85_4_CDD_20_10":      "D1_ER_4RCP85_CDD_20_10",
			"HD_ER_RCP85_5_CDD_20_10":      "D1_ER_5RCP85_CDD_20_10",
			"HD_IR_RCP26_1_CDD_20_10_nCAP": "D4_IR_1RCP26_CDD_20_10_nCAP",
			"HD_IR_RCP26_1_CDD_30_20_nCAP": "D4_IR_1RCP26_CDD_30_20_nCAP",
			"HD_IR_RCP85_1_CDD_20_10_nCAP": "D4_IR",
			"HD_IR_RCP85_1_CDD_30_20_nCAP": "D4_IR_1RCP85_CDD_30_20_nCAP",
			"HD_IR_RCP85_5_CDD_30_20_nCAP": "D4_IR_5RCP85_CDD_30_20_nCAP",
		},
		ModelNames: map[string]string{},
		VariableNames: map[string]string{
			"Capacity|Electricity|Biomass":     "Biomass",
			"Capacity|Electricity|Coal":        "Coal",
			"Capacity|Electricity|Gas":         "Gas",
			"Capacity|Electricity|Oil":         "Oil",
			"Capacity|Electricity|Solar":       "Solar",
			"Capacity|Electricity|Wind":        "Wind",
			"Capacity|Electricity|Geothermal":  "Geothermal",
			"Capacity|Electricity|Hydro":       "Hydro",
			"Capacity|Electricity|Nuclear":     "Nuclear",
			"Capacity|Electricity|Gas|w/ CCS":  "Cap|Elec|Gas|w/ CCS",
			"Capacity|Electricity|Coal|w/ CCS": "Cap|Elec|Coal|w/ CCS",

			"Final Energy|Electricity": "FE|Electricity",
			"Final Energy|Gases":       "FE|Gases",
			"Final Energy|Heat":        "FE|Heat",
			"Final Energy|Liquids":     "FE|Liquids",
			"Final Energy|Solids":      "FE|Solids",
			"Final Energy|Geothermal":  "FE|Geothermal",
			"Final Energy|Solar":       "FE|Solar",
			"Final Energy|Hydrogen":    "FE|Hydrogen",

			"Final Energy|Industry":                   "FE|Industry",
			"Final Energy|Non-Energy Use":             "FE|Non-Energy Use",
			"Final Energy|Residential and Commercial": "FE|Res & Com",
			"Final Energy|Transportation":             "FE|Transportation",

			"Final Energy|Industry|Electricity":                   "FE|Ind|Electricity",
			"Final Energy|Residential and Commercial|Electricity": "FE|ResCom|Electricity",
			"Final Energy|Transportation|Electricity":             "FE|Transport|Electricity",
		},
		Colours: map[string]string{
			"HD_ER_RCP85_1_CDD_20_10":      "#FF7F00",
			"HD_IR_RCP85_1_CDD_20_10_nCAP": "#1F78B4",
			BaselineScenario:               "#000000",
		},
		ModelLineStyles: map[string]string{
			"GCAM 7.0":      "-",
			"TIAM_Grantham": "--",
			"FRIDAv2.1":     ":",
			"PROMETHEUS":    "-.",
		},
		Markers: []string{"P", "X", "s", "D", "v", "<", ">", "o"},
		Groups: []Group{
			{Name: "Installed Electricity Capacity", Variables: []string{
				"Capacity|Electricity|Biomass",
				"Capacity|Electricity|Coal",
				"Capacity|Electricity|Gas",
				"Capacity|Electricity|Oil",
				"Capacity|Electricity|Solar",
				"Capacity|Electricity|Wind",
				"Capacity|Electricity|Geothermal",
				"Capacity|Electricity|Hydro",
				"Capacity|Electricity|Nuclear",
			}},
			{Name: "Final Energy by Carriers", Variables: []string{
				"Final Energy|Electricity",
				"Final Energy|Gases",
				"Final Energy|Heat",
				"Final Energy|Liquids",
				"Final Energy|Solids",
			}},
			{Name: "Final Energy by Sources", Variables: []string{
				"Final Energy|Geothermal",
				"Final Energy|Solar",
				"Final Energy|Hydrogen",
			}},
			{Name: "Final Energy by Sector", Variables: []string{
				"Final Energy|Industry",
				"Final Energy|Non-Energy Use",
				"Final Energy|Residential and Commercial",
				"Final Energy|Transportation",
			}},
			{Name: "Electricity Use by Sector", Variables: []string{
				"Final Energy|Industry|Electricity",
				"Final Energy|Residential and Commercial|Electricity",
				"Final Energy|Transportation|Electricity",
			}},
		},
		ScenarioRenames: map[string]string{},
		ModelRenames:    map[string]string{},
		VariableRenames: map[string]string{
			"Capacity|Electricity|Gas|CCS":  "Capacity|Electricity|Gas|w/ CCS",
			"Capacity|Electricity|Coal|CCS": "Capacity|Electricity|Coal|w/ CCS",
		},
		UnitScales: map[string]compare.Scale{
			"Capacity|Electricity": {Divisor: 1000, Unit: "TW"},
		},
	}
}
